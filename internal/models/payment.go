package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Variant identifies which step sequence a run executes. v2 inserts a fraud
// screening step between account validation and the debit.
type Variant string

const (
	VariantV1 Variant = "v1"
	VariantV2 Variant = "v2"
)

// Amounts at or above this threshold are routed to the fraud-checked flow.
const FraudVariantThreshold = 1000.0

// ArchitectureTag marks results and run ids produced by this engine.
const ArchitectureTag = "modern"

// SelectVariant routes a request amount to v1 or v2. This is caller-side
// policy, not part of the state machine itself.
func SelectVariant(amount float64) Variant {
	if amount >= FraudVariantThreshold {
		return VariantV2
	}
	return VariantV1
}

// NewRunID builds a run identifier. External tooling queries runs by the
// "modern-<variant>-" prefix, so the format is load-bearing.
func NewRunID(variant Variant) string {
	return fmt.Sprintf("%s-%s-%s", ArchitectureTag, variant, uuid.New().String())
}

// Step names a state of the payment state machine.
type Step string

const (
	StepCreatePaymentRequest Step = "CREATE_PAYMENT_REQUEST"
	StepValidateAccount      Step = "VALIDATE_ACCOUNT"
	StepFraudCheck           Step = "FRAUD_CHECK"
	StepDebitAccount         Step = "DEBIT_ACCOUNT"
	StepCreditAccount        Step = "CREDIT_ACCOUNT"
	StepComplete             Step = "COMPLETE"
)

// PaymentStatus is the externally visible status of a payment record.
type PaymentStatus string

const (
	PaymentStatusPending      PaymentStatus = "PENDING"
	PaymentStatusCompleted    PaymentStatus = "COMPLETED"
	PaymentStatusFailed       PaymentStatus = "FAILED"
	PaymentStatusBlockedFraud PaymentStatus = "BLOCKED_FRAUD"
)

// AccountStatusActive is the only account status a debit may proceed from.
const AccountStatusActive = "ACTIVE"

// ErrorKind classifies a failed run beyond the human-readable error string.
type ErrorKind string

const (
	ErrorKindValidationFailed ErrorKind = "validation_failed"
	ErrorKindFraudBlocked     ErrorKind = "fraud_blocked"
	ErrorKindDebitFailed      ErrorKind = "debit_failed"
	ErrorKindCreditFailed     ErrorKind = "credit_failed"
	ErrorKindInfraError       ErrorKind = "infra_error"
)

// PaymentRequest is the immutable input of one run.
type PaymentRequest struct {
	FromAccount string  `json:"from_account"`
	ToAccount   string  `json:"to_account"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Description string  `json:"description"`
}

// Account is the ledger gateway's view of an account.
type Account struct {
	ID            string  `json:"id"`
	AccountNumber string  `json:"account_number"`
	CustomerID    string  `json:"customer_id"`
	Balance       float64 `json:"balance"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
}

// FraudRecord is the stored risk profile for an account, if any.
type FraudRecord struct {
	AccountNumber string `json:"account_number"`
	RiskScore     int    `json:"risk_score"`
	IsBlocked     bool   `json:"is_blocked"`
	Reason        string `json:"reason"`
}

// FraudAssessment is the per-run fraud verdict derived from a FraudRecord
// and the requested amount.
type FraudAssessment struct {
	RiskScore int    `json:"risk_score"`
	IsBlocked bool   `json:"is_blocked"`
	Reason    string `json:"reason"`
}

// ExecutionSummary is the ordered trace of one run.
type ExecutionSummary struct {
	RunID         string  `json:"run_id"`
	Variant       Variant `json:"variant"`
	Architecture  string  `json:"architecture"`
	StepsExecuted []Step  `json:"steps_executed"`
	DurationMs    int64   `json:"duration_ms"`
}

// PaymentResult is the single terminal outcome of a run. PaymentID is kept
// even on failure once the payment record exists. Error is present iff
// Success is false; its text is what callers match on, ErrorKind is an
// additive classification.
type PaymentResult struct {
	Success   bool             `json:"success"`
	PaymentID string           `json:"payment_id,omitempty"`
	Error     string           `json:"error,omitempty"`
	ErrorKind ErrorKind        `json:"error_kind,omitempty"`
	Summary   ExecutionSummary `json:"execution_summary"`
}

// RunRecord is a persisted run row, used when a result is served from
// storage instead of the in-memory registry.
type RunRecord struct {
	RunID      string
	Variant    Variant
	Status     PaymentStatus
	PaymentID  string
	Error      string
	ErrorKind  ErrorKind
	Steps      []Step
	DurationMs int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Terminal reports whether the run has reached its final result.
func (r *RunRecord) Terminal() bool {
	return r.Status != PaymentStatusPending
}

// Result rebuilds the terminal PaymentResult of a finalized run row.
func (r *RunRecord) Result() PaymentResult {
	return PaymentResult{
		Success:   r.Status == PaymentStatusCompleted,
		PaymentID: r.PaymentID,
		Error:     r.Error,
		ErrorKind: r.ErrorKind,
		Summary: ExecutionSummary{
			RunID:         r.RunID,
			Variant:       r.Variant,
			Architecture:  ArchitectureTag,
			StepsExecuted: r.Steps,
			DurationMs:    r.DurationMs,
		},
	}
}
