package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/payflow/payment-core/internal/models"
)

// RunRepository stores one row per payment run in postgres. The row is
// inserted when the run is accepted and finalized once, when the run
// reaches its terminal result.
type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payment_runs (
			run_id VARCHAR(255) PRIMARY KEY,
			variant VARCHAR(10) NOT NULL,
			status VARCHAR(50) NOT NULL,
			payment_id VARCHAR(255),
			error TEXT,
			error_kind VARCHAR(50),
			steps TEXT,
			duration_ms BIGINT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_runs_status ON payment_runs(status)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func (r *RunRepository) InsertRun(ctx context.Context, runID string, variant models.Variant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_runs (run_id, variant, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id) DO NOTHING
	`, runID, variant, models.PaymentStatusPending)
	return err
}

func (r *RunRepository) FinalizeRun(ctx context.Context, result models.PaymentResult) error {
	status := models.PaymentStatusCompleted
	if !result.Success {
		status = models.PaymentStatusFailed
		if result.ErrorKind == models.ErrorKindFraudBlocked {
			status = models.PaymentStatusBlockedFraud
		}
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE payment_runs
		SET status = $1, payment_id = $2, error = $3, error_kind = $4,
		    steps = $5, duration_ms = $6, updated_at = NOW()
		WHERE run_id = $7
	`, status, result.PaymentID, result.Error, result.ErrorKind,
		joinSteps(result.Summary.StepsExecuted), result.Summary.DurationMs, result.Summary.RunID)
	return err
}

func (r *RunRepository) GetRun(ctx context.Context, runID string) (*models.RunRecord, error) {
	var (
		rec       models.RunRecord
		paymentID sql.NullString
		runError  sql.NullString
		errorKind sql.NullString
		steps     sql.NullString
		duration  sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT run_id, variant, status, payment_id, error, error_kind, steps, duration_ms, created_at, updated_at
		FROM payment_runs WHERE run_id = $1
	`, runID).Scan(&rec.RunID, &rec.Variant, &rec.Status, &paymentID, &runError,
		&errorKind, &steps, &duration, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rec.PaymentID = paymentID.String
	rec.Error = runError.String
	rec.ErrorKind = models.ErrorKind(errorKind.String)
	rec.Steps = splitSteps(steps.String)
	rec.DurationMs = duration.Int64
	return &rec, nil
}

func joinSteps(steps []models.Step) string {
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}

func splitSteps(joined string) []models.Step {
	if joined == "" {
		return nil
	}
	parts := strings.Split(joined, ",")
	steps := make([]models.Step, len(parts))
	for i, p := range parts {
		steps[i] = models.Step(p)
	}
	return steps
}
