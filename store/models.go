package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	sponsorgate "github.com/x402-foundation/sponsorgate"
)

// JSONMap stores plugin configuration and metadata as a JSON text column.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported JSON column type %T", value)
	}
	if len(data) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(data, m)
}

// Sponsor is a third party paying upstream charges on behalf of users.
// Created on first funding; its balance is mutated only through the ledger
// operations and never goes negative.
type Sponsor struct {
	ID            string `gorm:"primaryKey"`
	WalletAddress string `gorm:"size:255;not null;uniqueIndex"`
	Balance       int64  `gorm:"not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (s *Sponsor) TableName() string {
	return "sponsors"
}

// Action is a sponsor-funded campaign: completing it earns the user a
// sponsored payment on a gated resource. Campaigns are deactivated rather
// than deleted when they end.
type Action struct {
	ID        string `gorm:"primaryKey"`
	SponsorID string `gorm:"index;not null"`
	// ResourceID scopes the action to one resource; empty means any resource
	ResourceID         string  `gorm:"index;size:500"`
	PluginID           string  `gorm:"size:100;not null"`
	Config             JSONMap `gorm:"type:text;not null"`
	CoverageType       string  `gorm:"size:20;not null"`
	CoveragePercent    int64
	Recurrence         string `gorm:"size:30;not null"`
	MaxRedemptionPrice int64  `gorm:"not null"`
	Active             bool   `gorm:"not null;default:true"`
	CreatedAt          time.Time
}

func (a *Action) TableName() string {
	return "actions"
}

// Policy returns the action's coverage policy for the calculator.
func (a *Action) Policy() sponsorgate.CoveragePolicy {
	return sponsorgate.CoveragePolicy{
		Type:               sponsorgate.CoverageType(a.CoverageType),
		Percent:            a.CoveragePercent,
		MaxRedemptionPrice: a.MaxRedemptionPrice,
	}
}

// RecurrencePolicy returns the action's typed recurrence policy.
func (a *Action) RecurrencePolicy() sponsorgate.Recurrence {
	return sponsorgate.Recurrence(a.Recurrence)
}

// PluginConfig returns the plugin-specific configuration.
func (a *Action) PluginConfig() sponsorgate.PluginConfig {
	return sponsorgate.PluginConfig(a.Config)
}

// Redemption records one action-instance attempt. InstanceID is the
// idempotency key for the whole flow: unique at the storage level, and
// status transitions are guarded so pending moves to a terminal state at
// most once. SponsoredAmount holds the coverage quoted at proxy time;
// settlement debits exactly this value, never a recomputed one.
type Redemption struct {
	ID              string `gorm:"primaryKey"`
	ActionID        string `gorm:"index;not null"`
	UserID          string `gorm:"index;size:255;not null"`
	ResourceID      string `gorm:"size:500;not null"`
	InstanceID      string `gorm:"size:255;not null;uniqueIndex"`
	Status          string `gorm:"size:20;index;not null"`
	SponsoredAmount int64  `gorm:"not null"`
	Currency        string `gorm:"size:100"`
	Network         string `gorm:"size:100"`
	TransactionHash string `gorm:"size:255"`
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

func (r *Redemption) TableName() string {
	return "redemptions"
}

// FundingTransaction records a sponsor's deposit attempt: initialized as
// pending with a treasury destination, completed once the caller confirms
// the on-chain transfer hash.
type FundingTransaction struct {
	ID              string `gorm:"primaryKey"`
	SponsorID       string `gorm:"index;not null"`
	Amount          int64  `gorm:"not null"`
	Currency        string `gorm:"size:100;not null"`
	Network         string `gorm:"size:100;not null"`
	TransactionHash string `gorm:"size:255"`
	Status          string `gorm:"size:20;not null"`
	TreasuryWallet  string `gorm:"size:255;not null"`
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

func (f *FundingTransaction) TableName() string {
	return "funding_transactions"
}

// MigrateModels is the list of models automigrated at store open.
var MigrateModels = []interface{}{
	&Sponsor{},
	&Action{},
	&Redemption{},
	&FundingTransaction{},
}
