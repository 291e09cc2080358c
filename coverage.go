package sponsorgate

import "fmt"

// ComputeCoverage splits a challenge amount between sponsor and user
// according to the action's coverage policy.
//
// The split is exact: SponsorContribution + UserContribution == amount, with
// no rounding loss to either side. For percent coverage the sponsor share is
// floor(amount * percent / 100) and the integer-division remainder is owed
// by the user. The sponsor contribution is then clamped to the action's
// MaxRedemptionPrice; any excess shifts back to the user, so a sponsor's
// stated ceiling is never exceeded even when the percent formula asks for
// more.
func ComputeCoverage(amount int64, policy CoveragePolicy) (Coverage, error) {
	if amount <= 0 {
		return Coverage{}, fmt.Errorf("%w: challenge amount %d must be positive", ErrInvalidCoverage, amount)
	}

	var sponsor int64
	switch policy.Type {
	case CoverageFull:
		sponsor = amount
	case CoveragePercent:
		if policy.Percent < 0 || policy.Percent > 100 {
			return Coverage{}, fmt.Errorf("%w: percent %d out of range 0-100", ErrInvalidCoverage, policy.Percent)
		}
		// Decomposed so amount*percent cannot overflow int64 for large
		// challenge amounts; still exactly floor(amount*percent/100).
		sponsor = amount/100*policy.Percent + amount%100*policy.Percent/100
	default:
		return Coverage{}, fmt.Errorf("%w: unknown coverage type %q", ErrInvalidCoverage, policy.Type)
	}

	if policy.MaxRedemptionPrice > 0 && sponsor > policy.MaxRedemptionPrice {
		sponsor = policy.MaxRedemptionPrice
	}

	return Coverage{
		SponsorContribution: sponsor,
		UserContribution:    amount - sponsor,
	}, nil
}

// CanRedeem enforces an action's recurrence policy against the count of the
// user's completed redemptions for that action.
//
// The check is advisory at proxy time: it reflects history as of the request
// and is not a locking mechanism. Storage-level guards (unique instance ids,
// conditional status updates) close the races it cannot.
func CanRedeem(recurrence Recurrence, completedCount int64) bool {
	switch recurrence {
	case RecurrenceOneTimePerUser:
		return completedCount == 0
	case RecurrencePerRequest:
		return true
	default:
		return false
	}
}
