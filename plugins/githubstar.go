package plugins

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	sponsorgate "github.com/x402-foundation/sponsorgate"
)

// GitHubStarPlugin asks the user to star a sponsor's repository. The repo
// URL comes from the action config; validation accepts the submitted GitHub
// username on trust, as proof-of-star verification runs outside this core.
type GitHubStarPlugin struct{}

func NewGitHubStarPlugin() *GitHubStarPlugin {
	return &GitHubStarPlugin{}
}

func (p *GitHubStarPlugin) ID() string   { return "github-star" }
func (p *GitHubStarPlugin) Name() string { return "GitHub Star" }

func (p *GitHubStarPlugin) Describe(config sponsorgate.PluginConfig) sponsorgate.Description {
	repo, _ := config["repoUrl"].(string)
	return sponsorgate.Description{
		HumanInstructions: fmt.Sprintf("Star the repository %s and submit your GitHub username.", repo),
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"username": map[string]interface{}{"type": "string"},
			},
			"required": []string{"username"},
		},
	}
}

// Supports opts out for actions missing a repo URL; such campaigns cannot
// give the user anything to star.
func (p *GitHubStarPlugin) Supports(_, _ string, config sponsorgate.PluginConfig) bool {
	repo, ok := config["repoUrl"].(string)
	return ok && repo != ""
}

func (p *GitHubStarPlugin) Start(_ context.Context, req sponsorgate.StartRequest) (sponsorgate.StartResult, error) {
	repo, ok := req.Config["repoUrl"].(string)
	if !ok || repo == "" {
		return sponsorgate.StartResult{}, fmt.Errorf("github-star action %s has no repoUrl configured", req.ActionID)
	}
	return sponsorgate.StartResult{
		InstanceID:   uuid.NewString(),
		Instructions: p.Describe(req.Config).HumanInstructions,
		URL:          repo,
	}, nil
}

func (p *GitHubStarPlugin) Validate(_ context.Context, req sponsorgate.ValidateRequest) (sponsorgate.ValidateResult, error) {
	username, err := extractStringField(req.Input, "username")
	if err != nil {
		return sponsorgate.ValidateResult{
			Status: sponsorgate.StatusFailed,
			Reason: "missing GitHub username",
		}, nil
	}
	return sponsorgate.ValidateResult{
		Status:         sponsorgate.StatusCompleted,
		RewardEligible: true,
		Reason:         fmt.Sprintf("star attributed to %s", username),
	}, nil
}

var _ sponsorgate.SupportsChecker = (*GitHubStarPlugin)(nil)
