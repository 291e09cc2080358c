package x402client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	sponsorgate "github.com/x402-foundation/sponsorgate"
	"github.com/x402-foundation/sponsorgate/pkg/logger"
)

const defaultUpstreamTimeout = 15 * time.Second

// ChallengeClient elicits the x402 payment requirement from an upstream
// resource by replaying the original request and parsing the resulting 402
// response.
type ChallengeClient struct {
	httpClient *http.Client
	logger     *logger.Logger
}

// ChallengeOption configures the client.
type ChallengeOption func(*ChallengeClient)

// WithHTTPClient sets a custom HTTP client, mainly for tests.
func WithHTTPClient(client *http.Client) ChallengeOption {
	return func(c *ChallengeClient) {
		c.httpClient = client
	}
}

// WithTimeout caps the upstream round trip. The challenge fetch is one of
// only two network calls in the proxy flow and must never hang a request.
func WithTimeout(timeout time.Duration) ChallengeOption {
	return func(c *ChallengeClient) {
		c.httpClient.Timeout = timeout
	}
}

// NewChallengeClient creates a challenge client.
func NewChallengeClient(log *logger.Logger, opts ...ChallengeOption) *ChallengeClient {
	if log == nil {
		log = logger.NewNopLogger()
	}
	c := &ChallengeClient{
		httpClient: &http.Client{Timeout: defaultUpstreamTimeout},
		logger:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetChallenge replays a request against the upstream resource and returns
// the payment challenge it presents. Returns (nil, nil) when the upstream is
// unreachable or does not answer with a parseable 402: a missing challenge
// is a business outcome for the orchestrator, not a transport exception.
func (c *ChallengeClient) GetChallenge(ctx context.Context, upstreamURL, method string, headers map[string]string, body []byte) (*sponsorgate.Challenge, error) {
	var reqBody io.Reader
	if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, upstreamURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("upstream challenge fetch failed: ", err)
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPaymentRequired {
		c.logger.Debug("upstream did not present a challenge, status ", resp.StatusCode)
		return nil, nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn("failed to read 402 response body: ", err)
		return nil, nil
	}

	challenge, err := parseChallenge(respBody)
	if err != nil {
		c.logger.Warn("failed to parse x402 challenge: ", err)
		return nil, nil
	}
	return challenge, nil
}

// parseChallenge extracts the first payment option from a 402 body.
func parseChallenge(body []byte) (*sponsorgate.Challenge, error) {
	var required PaymentRequiredResponse
	if err := json.Unmarshal(body, &required); err != nil {
		return nil, fmt.Errorf("invalid payment required JSON: %w", err)
	}
	if len(required.Accepts) == 0 {
		return nil, fmt.Errorf("no payment requirements in 402 response")
	}
	req := required.Accepts[0]
	amount, err := sponsorgate.ParseAmount(req.MaxAmountRequired)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("challenge amount %d must be positive", amount)
	}
	currency := req.Asset
	if req.Network != "" {
		currency = fmt.Sprintf("%s:%s", req.Asset, req.Network)
	}
	return &sponsorgate.Challenge{
		Amount:   amount,
		Currency: currency,
		Network:  req.Network,
	}, nil
}
