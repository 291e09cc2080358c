package sponsorgate

import (
	"context"
	"sync"
)

// PluginConfig is the plugin-specific configuration attached to an action.
// It is opaque to the orchestrators; only the owning plugin interprets it.
type PluginConfig map[string]interface{}

// Description is a pure, side-effect-free rendering of an action for UI
// surfaces. It is not consulted by the orchestrator logic itself.
type Description struct {
	HumanInstructions string      `json:"humanInstructions"`
	Schema            interface{} `json:"schema,omitempty"`
}

// StartRequest carries the context for creating a new action instance.
type StartRequest struct {
	UserID     string
	ResourceID string
	ActionID   string
	Config     PluginConfig
}

// StartResult is returned by a plugin when an action instance is created.
// InstanceID must be fresh and globally unique per call; it is the
// idempotency key threaded through the rest of the flow.
type StartResult struct {
	InstanceID   string
	Instructions string
	URL          string
	Metadata     map[string]interface{}
}

// ValidateRequest carries the user-supplied input for judging completion of
// an action instance.
type ValidateRequest struct {
	InstanceID string
	UserID     string
	ResourceID string
	ActionID   string
	Config     PluginConfig
	Input      interface{}
}

// ValidateResult is a plugin's verdict on an action instance. Only
// StatusCompleted with RewardEligible set authorizes payment.
type ValidateResult struct {
	Status         ActionStatus
	Reason         string
	RewardEligible bool
}

// ActionPlugin is implemented by every action kind (survey, email capture,
// social-proof task, code verification). Start may create external state and
// Validate may consult it, so both take a context.
type ActionPlugin interface {
	// ID returns the plugin identifier actions reference in their config.
	ID() string

	// Name returns a human-readable plugin name.
	Name() string

	// Describe renders the action for UI surfaces. Pure.
	Describe(config PluginConfig) Description

	// Start creates a fresh action instance and returns user instructions.
	Start(ctx context.Context, req StartRequest) (StartResult, error)

	// Validate judges whether the input satisfies the instance's completion
	// criteria.
	Validate(ctx context.Context, req ValidateRequest) (ValidateResult, error)
}

// SupportsChecker is an optional interface for plugins that opt out of
// certain resources or sponsors. Plugins that do not implement it are
// treated as always supported.
type SupportsChecker interface {
	Supports(resourceID, sponsorID string, config PluginConfig) bool
}

// Registry maps plugin identifiers to implementations. It is populated at
// process start and injected into the orchestrators rather than held as
// global state, so tests can swap in doubles without monkey-patching.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]ActionPlugin
}

// NewRegistry creates a registry holding the given plugins.
func NewRegistry(plugins ...ActionPlugin) *Registry {
	r := &Registry{
		plugins: make(map[string]ActionPlugin),
	}
	for _, p := range plugins {
		r.Register(p)
	}
	return r
}

// Register adds a plugin, replacing any previous plugin with the same id.
func (r *Registry) Register(p ActionPlugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[p.ID()] = p
}

// Get looks up a plugin by id. An unregistered id is a fatal configuration
// error for the action referencing it; the orchestrator surfaces it as a
// server error, never a user error.
func (r *Registry) Get(pluginID string) (ActionPlugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[pluginID]
	return p, ok
}

// List returns all registered plugins.
func (r *Registry) List() []ActionPlugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ActionPlugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p)
	}
	return out
}

// PluginSupports reports whether a plugin supports the given resource and
// sponsor, honoring the optional SupportsChecker interface.
func PluginSupports(p ActionPlugin, resourceID, sponsorID string, config PluginConfig) bool {
	if checker, ok := p.(SupportsChecker); ok {
		return checker.Supports(resourceID, sponsorID, config)
	}
	return true
}
