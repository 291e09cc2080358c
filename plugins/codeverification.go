package plugins

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	sponsorgate "github.com/x402-foundation/sponsorgate"
)

const (
	codeLength     = 6
	codeAlphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	defaultCodeTTL = 15 * time.Minute
)

// CodeVerificationPlugin issues a short verification code at start and
// requires the user to submit it back. Codes live in an in-process store
// with a TTL; an expired or unknown instance fails validation.
type CodeVerificationPlugin struct {
	mu     sync.Mutex
	codes  map[string]string
	expiry map[string]time.Time
	ttl    time.Duration
}

func NewCodeVerificationPlugin() *CodeVerificationPlugin {
	return &CodeVerificationPlugin{
		codes:  make(map[string]string),
		expiry: make(map[string]time.Time),
		ttl:    defaultCodeTTL,
	}
}

func (p *CodeVerificationPlugin) ID() string   { return "code-verification" }
func (p *CodeVerificationPlugin) Name() string { return "Code Verification" }

func (p *CodeVerificationPlugin) Describe(_ sponsorgate.PluginConfig) sponsorgate.Description {
	return sponsorgate.Description{
		HumanInstructions: "Enter the verification code you were shown.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"code": map[string]interface{}{"type": "string"},
			},
			"required": []string{"code"},
		},
	}
}

func (p *CodeVerificationPlugin) Start(_ context.Context, _ sponsorgate.StartRequest) (sponsorgate.StartResult, error) {
	code, err := generateCode(codeLength)
	if err != nil {
		return sponsorgate.StartResult{}, fmt.Errorf("failed to generate verification code: %w", err)
	}
	instanceID := uuid.NewString()

	p.mu.Lock()
	p.codes[instanceID] = code
	p.expiry[instanceID] = time.Now().Add(p.ttl)
	p.cleanupExpiredLocked()
	p.mu.Unlock()

	return sponsorgate.StartResult{
		InstanceID:   instanceID,
		Instructions: "Enter the verification code to unlock this resource.",
		Metadata: map[string]interface{}{
			"code": code,
		},
	}, nil
}

func (p *CodeVerificationPlugin) Validate(_ context.Context, req sponsorgate.ValidateRequest) (sponsorgate.ValidateResult, error) {
	submitted, err := extractStringField(req.Input, "code")
	if err != nil {
		return sponsorgate.ValidateResult{
			Status: sponsorgate.StatusFailed,
			Reason: "missing verification code",
		}, nil
	}

	p.mu.Lock()
	code, ok := p.codes[req.InstanceID]
	expiry := p.expiry[req.InstanceID]
	p.mu.Unlock()

	if !ok || time.Now().After(expiry) {
		return sponsorgate.ValidateResult{
			Status: sponsorgate.StatusFailed,
			Reason: "verification code expired or unknown instance",
		}, nil
	}
	if submitted != code {
		return sponsorgate.ValidateResult{
			Status: sponsorgate.StatusFailed,
			Reason: "verification code does not match",
		}, nil
	}

	p.mu.Lock()
	delete(p.codes, req.InstanceID)
	delete(p.expiry, req.InstanceID)
	p.mu.Unlock()

	return sponsorgate.ValidateResult{
		Status:         sponsorgate.StatusCompleted,
		RewardEligible: true,
	}, nil
}

// cleanupExpiredLocked removes expired codes. Must be called with lock held.
func (p *CodeVerificationPlugin) cleanupExpiredLocked() {
	now := time.Now()
	for id, expiry := range p.expiry {
		if now.After(expiry) {
			delete(p.codes, id)
			delete(p.expiry, id)
		}
	}
}

func generateCode(length int) (string, error) {
	code := make([]byte, length)
	alphabetLen := big.NewInt(int64(len(codeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}
