package sponsorgate

import (
	"errors"
	"fmt"
)

// ProxyError represents a sponsorship-proxy specific error
type ProxyError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ProxyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes
const (
	ErrCodeUpstreamUnavailable    = "upstream_challenge_unavailable"
	ErrCodeNoSponsorAvailable     = "no_sponsor_available"
	ErrCodeAlreadyRedeemed        = "already_redeemed"
	ErrCodeUnknownPlugin          = "unknown_plugin"
	ErrCodeInvalidRedemptionState = "invalid_redemption_state"
	ErrCodeValidationRejected     = "validation_rejected"
	ErrCodeInsufficientBalance    = "insufficient_balance"
	ErrCodePaymentFailed          = "payment_submission_failed"
	ErrCodeDuplicateInstance      = "duplicate_instance"
)

// NewProxyError creates a new proxy error
func NewProxyError(code, message string, details map[string]interface{}) *ProxyError {
	return &ProxyError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Sentinel errors for flow-control decisions across package boundaries.
// Handlers map these onto HTTP statuses; stores raise them from constrained
// updates and unique-index violations.
var (
	ErrNoSponsorAvailable   = errors.New("no sponsor available for resource")
	ErrAlreadyRedeemed      = errors.New("action already redeemed for this user")
	ErrUnknownPlugin        = errors.New("unknown action plugin")
	ErrDuplicateInstance    = errors.New("action instance already exists")
	ErrRedemptionNotFound   = errors.New("redemption not found")
	ErrRedemptionFinalized  = errors.New("redemption already finalized")
	ErrInsufficientBalance  = errors.New("sponsor balance insufficient")
	ErrSponsorNotFound      = errors.New("sponsor not found")
	ErrActionNotFound       = errors.New("action not found")
	ErrFundingNotFound      = errors.New("funding transaction not found")
	ErrFundingNotPending    = errors.New("funding transaction not pending")
	ErrInvalidCoverage      = errors.New("invalid coverage policy")
	ErrChallengeUnavailable = errors.New("failed to get x402 challenge from upstream")
)
