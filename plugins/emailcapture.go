package plugins

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/google/uuid"

	sponsorgate "github.com/x402-foundation/sponsorgate"
)

// EmailCapturePlugin asks the user for an email address. Validation accepts
// any syntactically valid address; delivery verification belongs to the
// sponsor's own systems.
type EmailCapturePlugin struct{}

func NewEmailCapturePlugin() *EmailCapturePlugin {
	return &EmailCapturePlugin{}
}

func (p *EmailCapturePlugin) ID() string   { return "email-capture" }
func (p *EmailCapturePlugin) Name() string { return "Email Capture" }

func (p *EmailCapturePlugin) Describe(config sponsorgate.PluginConfig) sponsorgate.Description {
	instructions := "Provide your email address to unlock this resource."
	if prompt, ok := config["prompt"].(string); ok && prompt != "" {
		instructions = prompt
	}
	return sponsorgate.Description{
		HumanInstructions: instructions,
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"email": map[string]interface{}{"type": "string", "format": "email"},
			},
			"required": []string{"email"},
		},
	}
}

func (p *EmailCapturePlugin) Start(_ context.Context, req sponsorgate.StartRequest) (sponsorgate.StartResult, error) {
	return sponsorgate.StartResult{
		InstanceID:   uuid.NewString(),
		Instructions: p.Describe(req.Config).HumanInstructions,
	}, nil
}

func (p *EmailCapturePlugin) Validate(_ context.Context, req sponsorgate.ValidateRequest) (sponsorgate.ValidateResult, error) {
	email, err := extractStringField(req.Input, "email")
	if err != nil {
		return sponsorgate.ValidateResult{
			Status: sponsorgate.StatusFailed,
			Reason: err.Error(),
		}, nil
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return sponsorgate.ValidateResult{
			Status: sponsorgate.StatusFailed,
			Reason: fmt.Sprintf("invalid email address %q", email),
		}, nil
	}
	return sponsorgate.ValidateResult{
		Status:         sponsorgate.StatusCompleted,
		RewardEligible: true,
	}, nil
}

// extractStringField pulls a named string out of plugin input, accepting
// either a bare string or an object with that field.
func extractStringField(input interface{}, field string) (string, error) {
	switch v := input.(type) {
	case string:
		if v == "" {
			return "", fmt.Errorf("missing %s", field)
		}
		return v, nil
	case map[string]interface{}:
		s, ok := v[field].(string)
		if !ok || s == "" {
			return "", fmt.Errorf("missing %s", field)
		}
		return s, nil
	default:
		return "", fmt.Errorf("missing %s", field)
	}
}
