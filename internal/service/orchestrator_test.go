package service_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/payflow/payment-core/internal/metrics"
	"github.com/payflow/payment-core/internal/models"
	"github.com/payflow/payment-core/internal/service"
	"github.com/payflow/payment-core/internal/workflow"
)

type memoryLedger struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
}

func (m *memoryLedger) FindAccount(_ context.Context, accountNumber string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[accountNumber]
	if !ok {
		return nil, nil
	}
	clone := *acct
	return &clone, nil
}

func (m *memoryLedger) SetBalance(_ context.Context, accountID string, newBalance float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.ID == accountID {
			a.Balance = newBalance
			return nil
		}
	}
	return fmt.Errorf("no account with id %s", accountID)
}

type noFraud struct{}

func (noFraud) GetFraudRecord(context.Context, string) (*models.FraudRecord, error) {
	return nil, nil
}

type capturingPayments struct {
	mu       sync.Mutex
	requests []models.PaymentRequest
}

func (p *capturingPayments) CreatePaymentRecord(_ context.Context, req models.PaymentRequest, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	return fmt.Sprintf("pay-%d", len(p.requests)), nil
}

func (p *capturingPayments) UpdatePaymentStatus(context.Context, string, models.PaymentStatus, string) error {
	return nil
}

type noopSink struct{}

func (noopSink) Append(context.Context, models.AuditEvent) {}

type memoryRunRepo struct {
	mu       sync.Mutex
	rows     map[string]*models.RunRecord
	getCalls int
}

func newMemoryRunRepo() *memoryRunRepo {
	return &memoryRunRepo{rows: make(map[string]*models.RunRecord)}
}

func (r *memoryRunRepo) InsertRun(_ context.Context, runID string, variant models.Variant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[runID] = &models.RunRecord{RunID: runID, Variant: variant, Status: models.PaymentStatusPending}
	return nil
}

func (r *memoryRunRepo) FinalizeRun(_ context.Context, result models.PaymentResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := models.PaymentStatusCompleted
	if !result.Success {
		status = models.PaymentStatusFailed
		if result.ErrorKind == models.ErrorKindFraudBlocked {
			status = models.PaymentStatusBlockedFraud
		}
	}
	r.rows[result.Summary.RunID] = &models.RunRecord{
		RunID:      result.Summary.RunID,
		Variant:    result.Summary.Variant,
		Status:     status,
		PaymentID:  result.PaymentID,
		Error:      result.Error,
		ErrorKind:  result.ErrorKind,
		Steps:      result.Summary.StepsExecuted,
		DurationMs: result.Summary.DurationMs,
	}
	return nil
}

func (r *memoryRunRepo) GetRun(_ context.Context, runID string) (*models.RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getCalls++
	rec, ok := r.rows[runID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *rec
	return &clone, nil
}

func newTestOrchestrator(repo *memoryRunRepo, payments *capturingPayments) *service.Orchestrator {
	return newTestOrchestratorWithRedis(repo, payments, nil)
}

func newTestOrchestratorWithRedis(repo *memoryRunRepo, payments *capturingPayments, redisClient *redis.Client) *service.Orchestrator {
	ledger := &memoryLedger{accounts: map[string]*models.Account{
		"ACC1": {ID: "id-ACC1", AccountNumber: "ACC1", Balance: 5000, Currency: "USD", Status: models.AccountStatusActive},
		"ACC2": {ID: "id-ACC2", AccountNumber: "ACC2", Balance: 1000, Currency: "USD", Status: models.AccountStatusActive},
	}}
	engine := workflow.NewEngine(ledger, noFraud{}, payments, noopSink{}, zap.NewNop())
	return service.NewOrchestrator(engine, repo, redisClient, metrics.New(prometheus.NewRegistry()), zap.NewNop())
}

func TestStartPaymentBoundaryValidation(t *testing.T) {
	orch := newTestOrchestrator(newMemoryRunRepo(), &capturingPayments{})
	ctx := context.Background()

	_, err := orch.StartPayment(ctx, models.PaymentRequest{ToAccount: "ACC2", Amount: 100})
	assert.ErrorIs(t, err, service.ErrMissingFromAccount)

	_, err = orch.StartPayment(ctx, models.PaymentRequest{FromAccount: "ACC1", Amount: 100})
	assert.ErrorIs(t, err, service.ErrMissingToAccount)

	_, err = orch.StartPayment(ctx, models.PaymentRequest{FromAccount: "ACC1", ToAccount: "ACC2", Amount: 0})
	assert.ErrorIs(t, err, service.ErrNonPositiveAmount)

	_, err = orch.StartPayment(ctx, models.PaymentRequest{FromAccount: "ACC1", ToAccount: "ACC2", Amount: -5})
	assert.ErrorIs(t, err, service.ErrNonPositiveAmount)
}

func TestStartPaymentRoutesVariantAndRuns(t *testing.T) {
	payments := &capturingPayments{}
	orch := newTestOrchestrator(newMemoryRunRepo(), payments)
	ctx := context.Background()

	receipt, err := orch.StartPayment(ctx, models.PaymentRequest{
		FromAccount: "ACC1",
		ToAccount:   "ACC2",
		Amount:      750,
	})
	require.NoError(t, err)
	assert.True(t, receipt.Accepted)
	assert.Equal(t, models.VariantV1, receipt.Variant)
	assert.True(t, strings.HasPrefix(receipt.RunID, "modern-v1-"))

	require.Eventually(t, func() bool {
		result, running, err := orch.GetResult(ctx, receipt.RunID)
		return err == nil && !running && result != nil && result.Success
	}, 2*time.Second, 10*time.Millisecond)

	result, running, err := orch.GetResult(ctx, receipt.RunID)
	require.NoError(t, err)
	require.False(t, running)
	assert.Equal(t, receipt.RunID, result.Summary.RunID)
	assert.Contains(t, result.Summary.StepsExecuted, models.StepComplete)

	// Currency defaulted at the boundary.
	payments.mu.Lock()
	defer payments.mu.Unlock()
	require.Len(t, payments.requests, 1)
	assert.Equal(t, "USD", payments.requests[0].Currency)
}

func TestStartPaymentLargeAmountUsesV2(t *testing.T) {
	orch := newTestOrchestrator(newMemoryRunRepo(), &capturingPayments{})

	receipt, err := orch.StartPayment(context.Background(), models.PaymentRequest{
		FromAccount: "ACC1",
		ToAccount:   "ACC2",
		Amount:      1500,
		Currency:    "EUR",
	})
	require.NoError(t, err)
	assert.Equal(t, models.VariantV2, receipt.Variant)
	assert.True(t, strings.HasPrefix(receipt.RunID, "modern-v2-"))
}

func TestGetResultUnknownRun(t *testing.T) {
	orch := newTestOrchestrator(newMemoryRunRepo(), &capturingPayments{})

	_, _, err := orch.GetResult(context.Background(), "modern-v1-missing")
	assert.ErrorIs(t, err, service.ErrRunNotFound)
}

func TestGetResultFallsBackToRepository(t *testing.T) {
	repo := newMemoryRunRepo()
	repo.rows["modern-v2-restored"] = &models.RunRecord{
		RunID:      "modern-v2-restored",
		Variant:    models.VariantV2,
		Status:     models.PaymentStatusBlockedFraud,
		PaymentID:  "pay-9",
		Error:      "Payment blocked by fraud check: manual block",
		ErrorKind:  models.ErrorKindFraudBlocked,
		Steps:      []models.Step{models.StepCreatePaymentRequest, models.StepValidateAccount, models.StepFraudCheck},
		DurationMs: 42,
	}
	orch := newTestOrchestrator(repo, &capturingPayments{})

	result, running, err := orch.GetResult(context.Background(), "modern-v2-restored")
	require.NoError(t, err)
	require.False(t, running)
	assert.False(t, result.Success)
	assert.Equal(t, models.ErrorKindFraudBlocked, result.ErrorKind)
	assert.Equal(t, "pay-9", result.PaymentID)
	assert.Len(t, result.Summary.StepsExecuted, 3)
}

func TestGetResultPendingRepositoryRowIsRunning(t *testing.T) {
	repo := newMemoryRunRepo()
	repo.rows["modern-v1-inflight"] = &models.RunRecord{
		RunID:   "modern-v1-inflight",
		Variant: models.VariantV1,
		Status:  models.PaymentStatusPending,
	}
	orch := newTestOrchestrator(repo, &capturingPayments{})

	result, running, err := orch.GetResult(context.Background(), "modern-v1-inflight")
	require.NoError(t, err)
	assert.True(t, running)
	assert.Nil(t, result)
}

func TestStartPaymentRunsThroughRedisOutage(t *testing.T) {
	// Nothing listens on this address; every redis call errors. The dedupe
	// lock degrades but the run must still execute to a terminal result.
	unreachable := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer unreachable.Close()

	orch := newTestOrchestratorWithRedis(newMemoryRunRepo(), &capturingPayments{}, unreachable)
	ctx := context.Background()

	receipt, err := orch.StartPayment(ctx, models.PaymentRequest{
		FromAccount: "ACC1",
		ToAccount:   "ACC2",
		Amount:      750,
	})
	require.NoError(t, err)
	require.True(t, receipt.Accepted)

	require.Eventually(t, func() bool {
		result, running, err := orch.GetResult(ctx, receipt.RunID)
		return err == nil && !running && result != nil && result.Success
	}, 2*time.Second, 10*time.Millisecond, "accepted run never produced a result")
}

func TestTerminalRunsEvictedToDurableStores(t *testing.T) {
	repo := newMemoryRunRepo()
	orch := newTestOrchestrator(repo, &capturingPayments{})
	ctx := context.Background()

	receipt, err := orch.StartPayment(ctx, models.PaymentRequest{
		FromAccount: "ACC1",
		ToAccount:   "ACC2",
		Amount:      750,
	})
	require.NoError(t, err)

	// Once finalized, the registry entry is dropped and lookups go through
	// the repository fallback.
	require.Eventually(t, func() bool {
		result, running, err := orch.GetResult(ctx, receipt.RunID)
		if err != nil || running || result == nil || !result.Success {
			return false
		}
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.getCalls > 0
	}, 2*time.Second, 10*time.Millisecond, "terminal run was never served from the run store")

	result, running, err := orch.GetResult(ctx, receipt.RunID)
	require.NoError(t, err)
	require.False(t, running)
	assert.Equal(t, receipt.RunID, result.Summary.RunID)
	assert.Contains(t, result.Summary.StepsExecuted, models.StepComplete)
}
