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

// LedgerClient talks to the account side of the mock banking backend over
// HTTP JSON.
type LedgerClient struct {
	baseURL string
	client  *http.Client
}

func NewLedgerClient(baseURL string, timeout time.Duration) *LedgerClient {
	return &LedgerClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// FindAccount returns (nil, nil) when the backend answers 404.
func (c *LedgerClient) FindAccount(ctx context.Context, accountNumber string) (*models.Account, error) {
	url := fmt.Sprintf("%s/accounts/%s", c.baseURL, accountNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ledger request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ledger returned status %d for account %s", resp.StatusCode, accountNumber)
	}

	var acct models.Account
	if err := json.NewDecoder(resp.Body).Decode(&acct); err != nil {
		return nil, fmt.Errorf("decoding account %s: %w", accountNumber, err)
	}
	return &acct, nil
}

func (c *LedgerClient) SetBalance(ctx context.Context, accountID string, newBalance float64) error {
	body, err := json.Marshal(map[string]float64{"balance": newBalance})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/accounts/%s/balance", c.baseURL, accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ledger request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("ledger rejected balance update for account %s: status %d", accountID, resp.StatusCode)
	}
	return nil
}
