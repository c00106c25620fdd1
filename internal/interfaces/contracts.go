package interfaces

import (
	"context"

	"github.com/payflow/payment-core/internal/models"
)

// LedgerGateway is the account side of the mock banking backend.
// FindAccount returns (nil, nil) when the account does not exist; the error
// is reserved for transport failure.
type LedgerGateway interface {
	FindAccount(ctx context.Context, accountNumber string) (*models.Account, error)
	SetBalance(ctx context.Context, accountID string, newBalance float64) error
}

// FraudGateway looks up the stored risk profile of an account.
// GetFraudRecord returns (nil, nil) when no record exists for the account.
type FraudGateway interface {
	GetFraudRecord(ctx context.Context, accountNumber string) (*models.FraudRecord, error)
}

// PaymentGateway manages the externally owned payment record.
// UpdatePaymentStatus is best-effort: callers log its error and continue.
type PaymentGateway interface {
	CreatePaymentRecord(ctx context.Context, req models.PaymentRequest, runID string) (string, error)
	UpdatePaymentStatus(ctx context.Context, paymentID string, status models.PaymentStatus, detail string) error
}

// AuditSink appends one event to the compliance trail. Append returns
// nothing: a lost audit event must never fail or alter a run, and the
// signature is what enforces that contract.
type AuditSink interface {
	Append(ctx context.Context, event models.AuditEvent)
}

// RunRepository persists the trace of every run.
type RunRepository interface {
	InsertRun(ctx context.Context, runID string, variant models.Variant) error
	FinalizeRun(ctx context.Context, result models.PaymentResult) error
	GetRun(ctx context.Context, runID string) (*models.RunRecord, error)
}
