package sponsorgate

import (
	"fmt"
	"strconv"
)

// CoverageType selects how much of an upstream charge a sponsor covers.
type CoverageType string

const (
	// CoverageFull means the sponsor covers the entire challenge amount.
	CoverageFull CoverageType = "full"
	// CoveragePercent means the sponsor covers a fixed percentage of the
	// challenge amount, with the remainder owed by the user.
	CoveragePercent CoverageType = "percent"
)

// Recurrence controls how often a user may redeem the same action.
type Recurrence string

const (
	// RecurrenceOneTimePerUser allows a single completed redemption per user.
	RecurrenceOneTimePerUser Recurrence = "one_time_per_user"
	// RecurrencePerRequest allows a redemption on every proxy request.
	RecurrencePerRequest Recurrence = "per_request"
)

// ActionStatus represents the lifecycle state of a redemption or a plugin
// validation verdict. Transitions are monotonic: pending moves to completed
// or failed exactly once.
type ActionStatus string

const (
	StatusPending   ActionStatus = "pending"
	StatusCompleted ActionStatus = "completed"
	StatusFailed    ActionStatus = "failed"
)

// Challenge is the payment requirement elicited from an upstream x402
// resource. It is transient: sized once per proxy request and never persisted.
type Challenge struct {
	// Amount owed in the smallest currency unit
	Amount int64
	// Currency identifier, e.g. "USDC:base"
	Currency string
	// Network identifier, e.g. "base"
	Network string
}

// CoveragePolicy is an action's cost-split configuration.
type CoveragePolicy struct {
	Type CoverageType
	// Percent in 0-100, only meaningful for CoveragePercent
	Percent int64
	// MaxRedemptionPrice caps the sponsor contribution per redemption
	MaxRedemptionPrice int64
}

// Coverage is the computed split of a challenge amount between sponsor and
// user. SponsorContribution + UserContribution always equals the challenge
// amount exactly.
type Coverage struct {
	SponsorContribution int64
	UserContribution    int64
}

// FormatAmount renders an amount for the wire. Amounts cross the HTTP
// boundary as decimal strings to avoid JSON number precision issues.
func FormatAmount(amount int64) string {
	return strconv.FormatInt(amount, 10)
}

// ParseAmount parses a decimal-string amount from the wire.
func ParseAmount(s string) (int64, error) {
	amount, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if amount < 0 {
		return 0, fmt.Errorf("invalid amount %q: must not be negative", s)
	}
	return amount, nil
}
