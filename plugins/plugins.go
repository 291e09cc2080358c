// Package plugins provides the built-in action kinds: email capture, survey,
// GitHub star and code verification. Each one implements the ActionPlugin
// contract and is registered at process start.
package plugins

import sponsorgate "github.com/x402-foundation/sponsorgate"

// DefaultRegistry builds a registry with all built-in plugins.
func DefaultRegistry() *sponsorgate.Registry {
	return sponsorgate.NewRegistry(
		NewEmailCapturePlugin(),
		NewSurveyPlugin(),
		NewGitHubStarPlugin(),
		NewCodeVerificationPlugin(),
	)
}
