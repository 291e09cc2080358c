package store

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	sponsorgate "github.com/x402-foundation/sponsorgate"
)

// CreateActionParams carries the configuration for a new sponsor campaign.
type CreateActionParams struct {
	SponsorID          string
	ResourceID         string
	PluginID           string
	Config             sponsorgate.PluginConfig
	CoverageType       sponsorgate.CoverageType
	CoveragePercent    int64
	Recurrence         sponsorgate.Recurrence
	MaxRedemptionPrice int64
}

// CreateAction registers a new active action for a sponsor.
func (s *Store) CreateAction(params CreateActionParams) (*Action, error) {
	action := Action{
		ID:                 uuid.NewString(),
		SponsorID:          params.SponsorID,
		ResourceID:         params.ResourceID,
		PluginID:           params.PluginID,
		Config:             JSONMap(params.Config),
		CoverageType:       string(params.CoverageType),
		CoveragePercent:    params.CoveragePercent,
		Recurrence:         string(params.Recurrence),
		MaxRedemptionPrice: params.MaxRedemptionPrice,
		Active:             true,
	}
	if err := s.db.Create(&action).Error; err != nil {
		return nil, fmt.Errorf("failed to create action: %w", err)
	}
	return &action, nil
}

// GetAction fetches an action by id.
func (s *Store) GetAction(id string) (*Action, error) {
	var action Action
	if err := s.db.Where("id = ?", id).First(&action).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sponsorgate.ErrActionNotFound
		}
		return nil, fmt.Errorf("failed to get action: %w", err)
	}
	return &action, nil
}

// DeactivateAction ends a campaign. Actions are flagged inactive rather than
// deleted so redemption history stays referenceable.
func (s *Store) DeactivateAction(id string) error {
	result := s.db.Model(&Action{}).
		Where("id = ?", id).
		Update("active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate action: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return sponsorgate.ErrActionNotFound
	}
	return nil
}

// ListActionsBySponsor returns all of a sponsor's actions, newest first.
func (s *Store) ListActionsBySponsor(sponsorID string) ([]Action, error) {
	var actions []Action
	if err := s.db.Where("sponsor_id = ?", sponsorID).
		Order("created_at DESC").
		Find(&actions).Error; err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	return actions, nil
}

// GetActionForResource resolves the eligible sponsor-funded action for a
// resource: the oldest active action scoped to the resource (or to any
// resource) whose sponsor still holds a positive balance. Returns
// ErrNoSponsorAvailable when nothing matches.
func (s *Store) GetActionForResource(resourceID string) (*Action, error) {
	var action Action
	err := s.db.
		Joins("JOIN sponsors ON sponsors.id = actions.sponsor_id").
		Where("actions.active = ?", true).
		Where("actions.resource_id = ? OR actions.resource_id = ''", resourceID).
		Where("sponsors.balance > 0").
		Order("actions.created_at ASC").
		First(&action).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sponsorgate.ErrNoSponsorAvailable
		}
		return nil, fmt.Errorf("failed to resolve action for resource: %w", err)
	}
	return &action, nil
}
