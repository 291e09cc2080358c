package plugins

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	sponsorgate "github.com/x402-foundation/sponsorgate"
)

// SurveyPlugin asks the user to answer a sponsor-defined questionnaire. The
// action config carries a JSON schema under "answerSchema"; submitted
// answers are validated against it.
type SurveyPlugin struct{}

func NewSurveyPlugin() *SurveyPlugin {
	return &SurveyPlugin{}
}

func (p *SurveyPlugin) ID() string   { return "survey" }
func (p *SurveyPlugin) Name() string { return "Survey" }

func (p *SurveyPlugin) Describe(config sponsorgate.PluginConfig) sponsorgate.Description {
	instructions := "Answer the sponsor's survey to unlock this resource."
	if prompt, ok := config["prompt"].(string); ok && prompt != "" {
		instructions = prompt
	}
	return sponsorgate.Description{
		HumanInstructions: instructions,
		Schema:            config["answerSchema"],
	}
}

func (p *SurveyPlugin) Start(_ context.Context, req sponsorgate.StartRequest) (sponsorgate.StartResult, error) {
	result := sponsorgate.StartResult{
		InstanceID:   uuid.NewString(),
		Instructions: p.Describe(req.Config).HumanInstructions,
	}
	if url, ok := req.Config["surveyUrl"].(string); ok {
		result.URL = url
	}
	return result, nil
}

func (p *SurveyPlugin) Validate(_ context.Context, req sponsorgate.ValidateRequest) (sponsorgate.ValidateResult, error) {
	schema, ok := req.Config["answerSchema"]
	if !ok {
		// No schema configured: any non-nil submission counts
		if req.Input == nil {
			return sponsorgate.ValidateResult{
				Status: sponsorgate.StatusFailed,
				Reason: "missing survey answers",
			}, nil
		}
		return sponsorgate.ValidateResult{
			Status:         sponsorgate.StatusCompleted,
			RewardEligible: true,
		}, nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(req.Input),
	)
	if err != nil {
		return sponsorgate.ValidateResult{}, fmt.Errorf("survey schema validation failed: %w", err)
	}
	if !result.Valid() {
		reason := "survey answers do not match the expected format"
		if errs := result.Errors(); len(errs) > 0 {
			reason = errs[0].String()
		}
		return sponsorgate.ValidateResult{
			Status: sponsorgate.StatusFailed,
			Reason: reason,
		}, nil
	}
	return sponsorgate.ValidateResult{
		Status:         sponsorgate.StatusCompleted,
		RewardEligible: true,
	}, nil
}
