package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	sponsorgate "github.com/x402-foundation/sponsorgate"
)

// CreateFundingParams carries the first phase of a deposit.
type CreateFundingParams struct {
	SponsorID      string
	Amount         int64
	Currency       string
	Network        string
	TreasuryWallet string
}

// CreateFundingTransaction opens the first phase of a deposit: a pending
// record naming the treasury wallet the sponsor should transfer to and the
// denomination the deposit is made in.
func (s *Store) CreateFundingTransaction(params CreateFundingParams) (*FundingTransaction, error) {
	if params.Amount <= 0 {
		return nil, fmt.Errorf("funding amount %d must be positive", params.Amount)
	}
	tx := FundingTransaction{
		ID:             uuid.NewString(),
		SponsorID:      params.SponsorID,
		Amount:         params.Amount,
		Currency:       params.Currency,
		Network:        params.Network,
		Status:         string(sponsorgate.StatusPending),
		TreasuryWallet: params.TreasuryWallet,
	}
	if err := s.db.Create(&tx).Error; err != nil {
		return nil, fmt.Errorf("failed to create funding transaction: %w", err)
	}
	return &tx, nil
}

// GetFundingTransaction fetches a funding transaction by id.
func (s *Store) GetFundingTransaction(id string) (*FundingTransaction, error) {
	var tx FundingTransaction
	if err := s.db.Where("id = ?", id).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sponsorgate.ErrFundingNotFound
		}
		return nil, fmt.Errorf("failed to get funding transaction: %w", err)
	}
	return &tx, nil
}

// CompleteFundingTransaction confirms the on-chain transfer and credits the
// sponsor. The pending-to-completed transition and the balance credit happen
// in one database transaction, and the transition is guarded by the current
// status so a replayed confirmation cannot credit twice.
func (s *Store) CompleteFundingTransaction(id, transactionHash string) (*FundingTransaction, error) {
	var tx FundingTransaction
	err := s.db.Transaction(func(dbtx *gorm.DB) error {
		if err := dbtx.Where("id = ?", id).First(&tx).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return sponsorgate.ErrFundingNotFound
			}
			return fmt.Errorf("failed to get funding transaction: %w", err)
		}
		now := time.Now()
		result := dbtx.Model(&FundingTransaction{}).
			Where("id = ? AND status = ?", id, string(sponsorgate.StatusPending)).
			Updates(map[string]interface{}{
				"status":           string(sponsorgate.StatusCompleted),
				"transaction_hash": transactionHash,
				"completed_at":     &now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to complete funding transaction: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return sponsorgate.ErrFundingNotPending
		}
		credit := dbtx.Model(&Sponsor{}).
			Where("id = ?", tx.SponsorID).
			Updates(map[string]interface{}{
				"balance":    gorm.Expr("balance + ?", tx.Amount),
				"updated_at": now,
			})
		if credit.Error != nil {
			return fmt.Errorf("failed to credit sponsor: %w", credit.Error)
		}
		if credit.RowsAffected == 0 {
			return sponsorgate.ErrSponsorNotFound
		}
		tx.Status = string(sponsorgate.StatusCompleted)
		tx.TransactionHash = transactionHash
		tx.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// ListFundingTransactions returns a sponsor's deposits, newest first.
func (s *Store) ListFundingTransactions(sponsorID string) ([]FundingTransaction, error) {
	var txs []FundingTransaction
	if err := s.db.Where("sponsor_id = ?", sponsorID).
		Order("created_at DESC").
		Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list funding transactions: %w", err)
	}
	return txs, nil
}
