package workflow

import (
	"fmt"

	"github.com/payflow/payment-core/internal/models"
)

// Risk scoring constants. Amounts above the surcharge threshold add a flat
// penalty to the stored score; an adjusted score above the block threshold
// blocks the payment.
const (
	highAmountThreshold = 10000.0
	highAmountSurcharge = 20
	blockScoreThreshold = 80
	defaultRiskScore    = 10
)

var stepsV1 = []models.Step{
	models.StepCreatePaymentRequest,
	models.StepValidateAccount,
	models.StepDebitAccount,
	models.StepCreditAccount,
	models.StepComplete,
}

var stepsV2 = []models.Step{
	models.StepCreatePaymentRequest,
	models.StepValidateAccount,
	models.StepFraudCheck,
	models.StepDebitAccount,
	models.StepCreditAccount,
	models.StepComplete,
}

// StepsFor returns the canonical step ordering of a variant. The two flows
// differ only by the fraud check inserted before the debit.
func StepsFor(variant models.Variant) []models.Step {
	if variant == models.VariantV2 {
		return stepsV2
	}
	return stepsV1
}

// ValidateAccount applies the debit preconditions to a looked-up source
// account. It returns the rejection reason, or "" when the debit may
// proceed. The reason strings are contract: they surface verbatim in
// PaymentResult.Error and the audit trail.
func ValidateAccount(acct *models.Account, accountNumber string, amount float64) string {
	if acct == nil {
		return fmt.Sprintf("Account %s not found", accountNumber)
	}
	if acct.Status != models.AccountStatusActive {
		return fmt.Sprintf("Account %s is not active (status %s)", accountNumber, acct.Status)
	}
	if acct.Balance < amount {
		return fmt.Sprintf("Insufficient funds: balance %.2f is less than amount %.2f", acct.Balance, amount)
	}
	return ""
}

// AssessFraud turns a stored fraud record and the requested amount into a
// per-run verdict. A missing record means a baseline score and never blocks.
func AssessFraud(record *models.FraudRecord, amount float64) models.FraudAssessment {
	if record == nil {
		return models.FraudAssessment{RiskScore: defaultRiskScore}
	}

	score := record.RiskScore
	if amount > highAmountThreshold {
		score += highAmountSurcharge
	}

	assessment := models.FraudAssessment{RiskScore: score}
	switch {
	case record.IsBlocked:
		assessment.IsBlocked = true
		assessment.Reason = record.Reason
		if assessment.Reason == "" {
			assessment.Reason = "account is flagged as blocked"
		}
	case score > blockScoreThreshold:
		assessment.IsBlocked = true
		assessment.Reason = fmt.Sprintf("risk score %d exceeds threshold %d", score, blockScoreThreshold)
	}
	return assessment
}
