package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	sponsorgate "github.com/x402-foundation/sponsorgate"
)

// CreateRedemptionParams identifies a new action-instance attempt. The
// SponsoredAmount is the coverage quoted to the caller at proxy time;
// settlement later debits exactly this value.
type CreateRedemptionParams struct {
	ActionID        string
	UserID          string
	ResourceID      string
	InstanceID      string
	SponsoredAmount int64
	Currency        string
	Network         string
}

// CreateRedemption persists a pending redemption. Instance-id uniqueness is
// a storage-level constraint: a second create with the same instance id
// fails with ErrDuplicateInstance, guarding re-entrant start calls.
func (s *Store) CreateRedemption(params CreateRedemptionParams) (*Redemption, error) {
	redemption := Redemption{
		ID:              uuid.NewString(),
		ActionID:        params.ActionID,
		UserID:          params.UserID,
		ResourceID:      params.ResourceID,
		InstanceID:      params.InstanceID,
		Status:          string(sponsorgate.StatusPending),
		SponsoredAmount: params.SponsoredAmount,
		Currency:        params.Currency,
		Network:         params.Network,
	}
	if err := s.db.Create(&redemption).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, sponsorgate.ErrDuplicateInstance
		}
		return nil, fmt.Errorf("failed to create redemption: %w", err)
	}
	return &redemption, nil
}

// GetRedemption fetches a redemption by its instance id.
func (s *Store) GetRedemption(instanceID string) (*Redemption, error) {
	var redemption Redemption
	if err := s.db.Where("instance_id = ?", instanceID).First(&redemption).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sponsorgate.ErrRedemptionNotFound
		}
		return nil, fmt.Errorf("failed to get redemption: %w", err)
	}
	return &redemption, nil
}

// FinalizeRedemption moves a pending redemption to a terminal state. The
// transition is a conditional update guarded by "current status = pending":
// if another request already finalized the record the write is rejected
// with ErrRedemptionFinalized, which prevents double settlement under
// retried validation calls.
func (s *Store) FinalizeRedemption(instanceID string, status sponsorgate.ActionStatus, sponsoredAmount int64, transactionHash string) error {
	if status != sponsorgate.StatusCompleted && status != sponsorgate.StatusFailed {
		return fmt.Errorf("status %q is not terminal", status)
	}
	now := time.Now()
	result := s.db.Model(&Redemption{}).
		Where("instance_id = ? AND status = ?", instanceID, string(sponsorgate.StatusPending)).
		Updates(map[string]interface{}{
			"status":           string(status),
			"sponsored_amount": sponsoredAmount,
			"transaction_hash": transactionHash,
			"completed_at":     &now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finalize redemption: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := s.GetRedemption(instanceID); err != nil {
			return err
		}
		return sponsorgate.ErrRedemptionFinalized
	}
	return nil
}

// CountCompletedRedemptions counts a user's completed redemptions for an
// action. Feeds the recurrence eligibility check.
func (s *Store) CountCompletedRedemptions(actionID, userID string) (int64, error) {
	var count int64
	err := s.db.Model(&Redemption{}).
		Where("action_id = ? AND user_id = ? AND status = ?",
			actionID, userID, string(sponsorgate.StatusCompleted)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count redemptions: %w", err)
	}
	return count, nil
}

// isUniqueViolation reports whether an error came from a unique index.
// gorm translates some dialect errors to ErrDuplicatedKey; the sqlite driver
// surfaces others as raw constraint messages.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(strings.ToUpper(err.Error()), "UNIQUE")
}
