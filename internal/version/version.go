package version

import "fmt"

// These are populated at build time via -ldflags.
var (
	Version    = "devel"
	CommitHash = "unknown"
)

// GetVersionString renders the version for logs and the version subcommand.
func GetVersionString() string {
	return fmt.Sprintf("%s (commit %s)", Version, CommitHash)
}
