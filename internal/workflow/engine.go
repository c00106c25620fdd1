package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/payflow/payment-core/internal/interfaces"
	"github.com/payflow/payment-core/internal/models"
)

// Engine executes the payment state machine for one run at a time. It holds
// no per-run state, so a single Engine serves concurrent runs. Retries,
// timeouts and durable replay belong to the host runtime wrapping each
// gateway call, not to the engine.
type Engine struct {
	ledger   interfaces.LedgerGateway
	fraud    interfaces.FraudGateway
	payments interfaces.PaymentGateway
	audit    interfaces.AuditSink
	logger   *zap.Logger
}

func NewEngine(
	ledger interfaces.LedgerGateway,
	fraud interfaces.FraudGateway,
	payments interfaces.PaymentGateway,
	audit interfaces.AuditSink,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		ledger:   ledger,
		fraud:    fraud,
		payments: payments,
		audit:    audit,
		logger:   logger,
	}
}

// runState is the mutable working set of one run, owned by Run for its
// duration.
type runState struct {
	runID     string
	variant   models.Variant
	req       models.PaymentRequest
	paymentID string
	steps     []models.Step
	current   models.Step
	started   time.Time
}

// stepError classifies a terminal step failure. blocked selects the BLOCKED
// audit status and the BLOCKED_FRAUD payment status instead of FAILED.
type stepError struct {
	kind    models.ErrorKind
	blocked bool
	msg     string
}

func (e *stepError) Error() string { return e.msg }

func asStepError(err error) *stepError {
	if serr, ok := err.(*stepError); ok {
		return serr
	}
	return &stepError{kind: models.ErrorKindInfraError, msg: err.Error()}
}

// Run drives the request through the variant's step sequence and returns the
// single terminal result. Every step is bracketed by a PENDING and a
// SUCCESS/FAILED/BLOCKED audit event, emitted synchronously so the trail
// stays in step order. The deferred recover is the one top-level recovery
// boundary: anything a gateway panics with becomes a failed result, never a
// crashed run.
func (e *Engine) Run(ctx context.Context, runID string, variant models.Variant, req models.PaymentRequest) (result models.PaymentResult) {
	st := &runState{
		runID:   runID,
		variant: variant,
		req:     req,
		started: time.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("unhandled failure in %s: %v", st.current, r)
			e.audit.Append(ctx, st.event(st.current, models.AuditStatusFailed, 0, msg))
			e.markPayment(ctx, st, models.PaymentStatusFailed, msg)
			e.logger.Error("payment run panicked",
				zap.String("run_id", runID),
				zap.String("step", string(st.current)),
				zap.Any("panic", r),
			)
			result = st.failure(models.ErrorKindInfraError, msg)
		}
	}()

	for _, step := range StepsFor(variant) {
		st.current = step
		st.steps = append(st.steps, step)
		e.audit.Append(ctx, st.event(step, models.AuditStatusPending, 0, fmt.Sprintf("starting %s", step)))

		start := time.Now()
		err := e.execute(ctx, step, st)
		elapsed := time.Since(start).Milliseconds()

		if err != nil {
			serr := asStepError(err)
			auditStatus := models.AuditStatusFailed
			paymentStatus := models.PaymentStatusFailed
			if serr.blocked {
				auditStatus = models.AuditStatusBlocked
				paymentStatus = models.PaymentStatusBlockedFraud
			}
			e.audit.Append(ctx, st.event(step, auditStatus, elapsed, serr.msg))
			e.markPayment(ctx, st, paymentStatus, serr.msg)
			e.logger.Warn("payment run terminated",
				zap.String("run_id", runID),
				zap.String("step", string(step)),
				zap.String("error_kind", string(serr.kind)),
				zap.String("reason", serr.msg),
			)
			return st.failure(serr.kind, serr.msg)
		}

		e.audit.Append(ctx, st.event(step, models.AuditStatusSuccess, elapsed, ""))
	}

	e.logger.Info("payment run completed",
		zap.String("run_id", runID),
		zap.String("payment_id", st.paymentID),
		zap.String("variant", string(variant)),
	)
	return st.success()
}

func (e *Engine) execute(ctx context.Context, step models.Step, st *runState) error {
	switch step {
	case models.StepCreatePaymentRequest:
		return e.createPaymentRequest(ctx, st)
	case models.StepValidateAccount:
		return e.validateAccount(ctx, st)
	case models.StepFraudCheck:
		return e.fraudCheck(ctx, st)
	case models.StepDebitAccount:
		return e.debitAccount(ctx, st)
	case models.StepCreditAccount:
		return e.creditAccount(ctx, st)
	case models.StepComplete:
		return e.complete(ctx, st)
	}
	return &stepError{kind: models.ErrorKindInfraError, msg: fmt.Sprintf("unknown step %s", step)}
}

func (e *Engine) createPaymentRequest(ctx context.Context, st *runState) error {
	paymentID, err := e.payments.CreatePaymentRecord(ctx, st.req, st.runID)
	if err != nil {
		// The run aborts with no payment id at all; there is no record to
		// flip to FAILED.
		return &stepError{kind: models.ErrorKindInfraError, msg: fmt.Sprintf("failed to create payment request: %v", err)}
	}
	st.paymentID = paymentID
	return nil
}

func (e *Engine) validateAccount(ctx context.Context, st *runState) error {
	acct, err := e.ledger.FindAccount(ctx, st.req.FromAccount)
	if err != nil {
		return &stepError{kind: models.ErrorKindInfraError, msg: fmt.Sprintf("account lookup failed: %v", err)}
	}
	if reason := ValidateAccount(acct, st.req.FromAccount, st.req.Amount); reason != "" {
		return &stepError{kind: models.ErrorKindValidationFailed, msg: reason}
	}
	return nil
}

func (e *Engine) fraudCheck(ctx context.Context, st *runState) error {
	record, err := e.fraud.GetFraudRecord(ctx, st.req.FromAccount)
	if err != nil {
		return &stepError{kind: models.ErrorKindInfraError, msg: fmt.Sprintf("fraud lookup failed: %v", err)}
	}
	assessment := AssessFraud(record, st.req.Amount)
	if assessment.IsBlocked {
		return &stepError{
			kind:    models.ErrorKindFraudBlocked,
			blocked: true,
			msg:     fmt.Sprintf("Payment blocked by fraud check: %s", assessment.Reason),
		}
	}
	return nil
}

func (e *Engine) debitAccount(ctx context.Context, st *runState) error {
	// Balance is re-read immediately before the write, never carried over
	// from VALIDATE_ACCOUNT.
	acct, err := e.ledger.FindAccount(ctx, st.req.FromAccount)
	if err != nil {
		return &stepError{kind: models.ErrorKindDebitFailed, msg: fmt.Sprintf("debit failed: account lookup: %v", err)}
	}
	if acct == nil {
		return &stepError{kind: models.ErrorKindDebitFailed, msg: fmt.Sprintf("debit failed: Account %s not found", st.req.FromAccount)}
	}
	if err := e.ledger.SetBalance(ctx, acct.ID, acct.Balance-st.req.Amount); err != nil {
		return &stepError{kind: models.ErrorKindDebitFailed, msg: fmt.Sprintf("debit failed: %v", err)}
	}
	return nil
}

func (e *Engine) creditAccount(ctx context.Context, st *runState) error {
	acct, err := e.ledger.FindAccount(ctx, st.req.ToAccount)
	if err != nil {
		return &stepError{kind: models.ErrorKindCreditFailed, msg: fmt.Sprintf("credit failed: account lookup: %v", err)}
	}
	if acct == nil {
		return &stepError{kind: models.ErrorKindCreditFailed, msg: fmt.Sprintf("credit failed: Account %s not found", st.req.ToAccount)}
	}
	// A failure past this point leaves the source already debited with no
	// reversal; the result reports it but the ledger stays inconsistent.
	if err := e.ledger.SetBalance(ctx, acct.ID, acct.Balance+st.req.Amount); err != nil {
		return &stepError{kind: models.ErrorKindCreditFailed, msg: fmt.Sprintf("credit failed: %v", err)}
	}
	return nil
}

func (e *Engine) complete(ctx context.Context, st *runState) error {
	if err := e.payments.UpdatePaymentStatus(ctx, st.paymentID, models.PaymentStatusCompleted, ""); err != nil {
		return &stepError{kind: models.ErrorKindInfraError, msg: fmt.Sprintf("failed to mark payment completed: %v", err)}
	}
	return nil
}

// markPayment flips the external payment record on the failure path. Best
// effort: an unreachable payment backend must not mask the real outcome.
func (e *Engine) markPayment(ctx context.Context, st *runState, status models.PaymentStatus, detail string) {
	if st.paymentID == "" {
		return
	}
	if err := e.payments.UpdatePaymentStatus(ctx, st.paymentID, status, detail); err != nil {
		e.logger.Warn("payment status update failed",
			zap.String("run_id", st.runID),
			zap.String("payment_id", st.paymentID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

func (st *runState) event(step models.Step, status models.AuditStatus, durationMs int64, detail string) models.AuditEvent {
	return models.AuditEvent{
		RunID:      st.runID,
		Variant:    st.variant,
		Step:       step,
		Status:     status,
		DurationMs: durationMs,
		Detail:     detail,
		Actor:      models.AuditActor,
		Timestamp:  time.Now().UTC(),
	}
}

func (st *runState) summary() models.ExecutionSummary {
	return models.ExecutionSummary{
		RunID:         st.runID,
		Variant:       st.variant,
		Architecture:  models.ArchitectureTag,
		StepsExecuted: st.steps,
		DurationMs:    time.Since(st.started).Milliseconds(),
	}
}

func (st *runState) success() models.PaymentResult {
	return models.PaymentResult{
		Success:   true,
		PaymentID: st.paymentID,
		Summary:   st.summary(),
	}
}

func (st *runState) failure(kind models.ErrorKind, msg string) models.PaymentResult {
	return models.PaymentResult{
		Success:   false,
		PaymentID: st.paymentID,
		Error:     msg,
		ErrorKind: kind,
		Summary:   st.summary(),
	}
}
