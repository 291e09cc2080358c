package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	sponsorgate "github.com/x402-foundation/sponsorgate"
)

// GetSponsor fetches a sponsor by id.
func (s *Store) GetSponsor(id string) (*Sponsor, error) {
	var sponsor Sponsor
	if err := s.db.Where("id = ?", id).First(&sponsor).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sponsorgate.ErrSponsorNotFound
		}
		return nil, fmt.Errorf("failed to get sponsor: %w", err)
	}
	return &sponsor, nil
}

// GetOrCreateSponsorByWallet returns the sponsor owning the wallet address,
// creating one with a zero balance on first funding.
func (s *Store) GetOrCreateSponsorByWallet(walletAddress string) (*Sponsor, error) {
	var sponsor Sponsor
	err := s.db.Where("wallet_address = ?", walletAddress).First(&sponsor).Error
	if err == nil {
		return &sponsor, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up sponsor: %w", err)
	}
	sponsor = Sponsor{
		ID:            uuid.NewString(),
		WalletAddress: walletAddress,
		Balance:       0,
	}
	if err := s.db.Create(&sponsor).Error; err != nil {
		// Lost a race against a concurrent first funding for the same wallet
		if isUniqueViolation(err) {
			if err := s.db.Where("wallet_address = ?", walletAddress).First(&sponsor).Error; err != nil {
				return nil, fmt.Errorf("failed to look up sponsor after create race: %w", err)
			}
			return &sponsor, nil
		}
		return nil, fmt.Errorf("failed to create sponsor: %w", err)
	}
	return &sponsor, nil
}

// DebitSponsorBalance atomically decrements a sponsor's balance. The debit
// is a single constrained update ("decrement if balance >= amount"), so
// concurrent redemptions against the same sponsor can never drive the
// balance negative.
func (s *Store) DebitSponsorBalance(id string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("debit amount %d must not be negative", amount)
	}
	result := s.db.Model(&Sponsor{}).
		Where("id = ? AND balance >= ?", id, amount).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance - ?", amount),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to debit sponsor balance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := s.GetSponsor(id); err != nil {
			return err
		}
		return sponsorgate.ErrInsufficientBalance
	}
	return nil
}

// CreditSponsorBalance increments a sponsor's balance. Used both for funding
// credits and for the compensating refund after a failed upstream payment.
func (s *Store) CreditSponsorBalance(id string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("credit amount %d must not be negative", amount)
	}
	result := s.db.Model(&Sponsor{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance + ?", amount),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to credit sponsor balance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return sponsorgate.ErrSponsorNotFound
	}
	return nil
}
