package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/payflow/payment-core/internal/models"
)

// PaymentClient manages externally owned payment records in the mock
// banking backend.
type PaymentClient struct {
	baseURL string
	client  *http.Client
}

func NewPaymentClient(baseURL string, timeout time.Duration) *PaymentClient {
	return &PaymentClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type createPaymentBody struct {
	FromAccount string  `json:"from_account"`
	ToAccount   string  `json:"to_account"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Description string  `json:"description"`
	RunID       string  `json:"run_id"`
	Status      string  `json:"status"`
}

type createPaymentResponse struct {
	ID string `json:"id"`
}

func (c *PaymentClient) CreatePaymentRecord(ctx context.Context, pr models.PaymentRequest, runID string) (string, error) {
	body, err := json.Marshal(createPaymentBody{
		FromAccount: pr.FromAccount,
		ToAccount:   pr.ToAccount,
		Amount:      pr.Amount,
		Currency:    pr.Currency,
		Description: pr.Description,
		RunID:       runID,
		Status:      string(models.PaymentStatusPending),
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("payment backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("payment backend returned status %d", resp.StatusCode)
	}

	var created createPaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decoding payment record: %w", err)
	}
	return created.ID, nil
}

func (c *PaymentClient) UpdatePaymentStatus(ctx context.Context, paymentID string, status models.PaymentStatus, detail string) error {
	body, err := json.Marshal(map[string]string{
		"status": string(status),
		"detail": detail,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/payments/%s/status", c.baseURL, paymentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("payment backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("payment backend rejected status update for %s: status %d", paymentID, resp.StatusCode)
	}
	return nil
}
