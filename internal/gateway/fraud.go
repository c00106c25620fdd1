package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/payflow/payment-core/internal/models"
)

// FraudCheckSubject is the NATS request/reply subject of the fraud service.
const FraudCheckSubject = "fraud.check"

// FraudClient looks up stored risk profiles via NATS request/reply.
type FraudClient struct {
	nc      *nats.Conn
	timeout time.Duration
}

func NewFraudClient(nc *nats.Conn, timeout time.Duration) *FraudClient {
	return &FraudClient{nc: nc, timeout: timeout}
}

type fraudLookupRequest struct {
	AccountNumber string `json:"account_number"`
}

type fraudLookupResponse struct {
	Found  bool                `json:"found"`
	Record *models.FraudRecord `json:"record,omitempty"`
}

// GetFraudRecord returns (nil, nil) when the fraud service has no record
// for the account.
func (c *FraudClient) GetFraudRecord(ctx context.Context, accountNumber string) (*models.FraudRecord, error) {
	payload, err := json.Marshal(fraudLookupRequest{AccountNumber: accountNumber})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.nc.RequestWithContext(ctx, FraudCheckSubject, payload)
	if err != nil {
		return nil, fmt.Errorf("fraud service request failed: %w", err)
	}

	var resp fraudLookupResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("decoding fraud response: %w", err)
	}
	if !resp.Found {
		return nil, nil
	}
	return resp.Record, nil
}
