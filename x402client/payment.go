package x402client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	sponsorgate "github.com/x402-foundation/sponsorgate"
)

const (
	defaultSettleTimeout = 30 * time.Second

	headerContentType   = "Content-Type"
	mimeApplicationJSON = "application/json"
)

// PaymentSubmitter executes the actual upstream payment. The orchestrator
// calls it exactly once per completed validation and treats any non-success
// as requiring a balance refund.
type PaymentSubmitter interface {
	Settle(ctx context.Context, req SettleRequest) (*SettleResult, error)
}

// PaymentClient submits payments to an HTTP payment rail (a facilitator-style
// service exposing a settle endpoint).
type PaymentClient struct {
	URL        string
	HTTPClient *http.Client
}

// NewPaymentClient creates a payment client for the given rail URL.
func NewPaymentClient(railURL string) *PaymentClient {
	return &PaymentClient{
		URL: railURL,
		HTTPClient: &http.Client{
			Timeout: defaultSettleTimeout,
		},
	}
}

// Settle sends a settlement request to the payment rail.
//
// Transport or decoding failures return an error; the rail's own rejection
// comes back as a SettleResult with Success=false. Both end in the same
// refund path for the caller, but the distinction keeps rail errors
// reportable.
func (c *PaymentClient) Settle(ctx context.Context, settleReq SettleRequest) (*SettleResult, error) {
	reqBody := map[string]any{
		"amount":   sponsorgate.FormatAmount(settleReq.Amount),
		"currency": settleReq.Currency,
		"network":  settleReq.Network,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/settle", c.URL), bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create settle request: %w", err)
	}
	req.Header.Set(headerContentType, mimeApplicationJSON)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send settle request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to settle payment: %s", resp.Status)
	}

	var result SettleResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode settle response: %w", err)
	}
	return &result, nil
}

var _ PaymentSubmitter = (*PaymentClient)(nil)
