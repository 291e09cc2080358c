package server

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	sponsorgate "github.com/x402-foundation/sponsorgate"
	"github.com/x402-foundation/sponsorgate/store"
)

// fundRequest is the union of both funding phases. Phase one announces a
// deposit intent ({walletAddress, amount, currency, network}); phase two
// confirms it landed on-chain ({fundingTransactionId, transactionHash}).
// Which phase applies is decided by which fields are present.
type fundRequest struct {
	WalletAddress        string `json:"walletAddress"`
	Amount               string `json:"amount"`
	Currency             string `json:"currency"`
	Network              string `json:"network"`
	FundingTransactionID string `json:"fundingTransactionId"`
	TransactionHash      string `json:"transactionHash"`
}

type fundingTransactionJSON struct {
	ID              string `json:"id"`
	SponsorID       string `json:"sponsorId"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Network         string `json:"network"`
	TreasuryWallet  string `json:"treasuryWallet"`
	Status          string `json:"status"`
	TransactionHash string `json:"transactionHash,omitempty"`
}

func fundingJSON(ft *store.FundingTransaction) fundingTransactionJSON {
	return fundingTransactionJSON{
		ID:              ft.ID,
		SponsorID:       ft.SponsorID,
		Amount:          sponsorgate.FormatAmount(ft.Amount),
		Currency:        ft.Currency,
		Network:         ft.Network,
		TreasuryWallet:  ft.TreasuryWallet,
		Status:          ft.Status,
		TransactionHash: ft.TransactionHash,
	}
}

func (s *Server) handleFund(c *gin.Context) {
	var req fundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	switch {
	case req.FundingTransactionID != "":
		s.confirmFunding(c, req)
	case req.WalletAddress != "":
		s.initiateFunding(c, req)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "walletAddress or fundingTransactionId is required"})
	}
}

// initiateFunding records a pending deposit and tells the sponsor where to
// send funds. No balance moves until the deposit is confirmed.
func (s *Server) initiateFunding(c *gin.Context, req fundRequest) {
	if !common.IsHexAddress(req.WalletAddress) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet address"})
		return
	}
	amount, err := sponsorgate.ParseAmount(req.Amount)
	if err != nil || amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a positive integer string"})
		return
	}
	if req.Currency == "" || req.Network == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "currency and network are required"})
		return
	}

	sponsor, err := s.cfg.Store.GetOrCreateSponsorByWallet(common.HexToAddress(req.WalletAddress).Hex())
	if err != nil {
		s.logger.Error("failed to resolve sponsor: ", err)
		serverError(c, "failed to resolve sponsor")
		return
	}
	ft, err := s.cfg.Store.CreateFundingTransaction(store.CreateFundingParams{
		SponsorID:      sponsor.ID,
		Amount:         amount,
		Currency:       req.Currency,
		Network:        req.Network,
		TreasuryWallet: s.cfg.TreasuryWallet,
	})
	if err != nil {
		s.logger.Error("failed to create funding transaction: ", err)
		serverError(c, "failed to create funding transaction")
		return
	}

	s.logger.Infow("funding initiated",
		"sponsorId", sponsor.ID,
		"fundingTransactionId", ft.ID,
		"amount", req.Amount,
		"currency", req.Currency,
		"network", req.Network,
	)
	c.JSON(http.StatusOK, gin.H{
		"fundingTransaction": fundingJSON(ft),
		"instructions":       "Send the amount to the treasury wallet, then confirm with the transaction hash.",
	})
}

// confirmFunding flips a pending deposit to completed and credits the
// sponsor balance. Re-confirming with the same transaction hash is
// idempotent; a different hash for an already-confirmed deposit is a
// conflict. A deposit is never credited twice either way.
func (s *Server) confirmFunding(c *gin.Context, req fundRequest) {
	raw, err := hexutil.Decode(req.TransactionHash)
	if err != nil || len(raw) != common.HashLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction hash"})
		return
	}

	ft, err := s.cfg.Store.CompleteFundingTransaction(req.FundingTransactionID, req.TransactionHash)
	if err != nil {
		switch {
		case errors.Is(err, sponsorgate.ErrFundingNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown funding transaction"})
		case errors.Is(err, sponsorgate.ErrFundingNotPending):
			s.confirmReplay(c, req)
		default:
			s.logger.Error("failed to confirm funding transaction: ", err)
			serverError(c, "failed to confirm funding transaction")
		}
		return
	}

	s.logger.Infow("funding confirmed", "fundingTransactionId", ft.ID, "sponsorId", ft.SponsorID, "transactionHash", req.TransactionHash)
	c.JSON(http.StatusOK, gin.H{"fundingTransaction": fundingJSON(ft)})
}

// confirmReplay answers a confirmation of an already-finalized deposit: the
// same hash means a retried call and gets the recorded transaction back,
// anything else is a conflict.
func (s *Server) confirmReplay(c *gin.Context, req fundRequest) {
	ft, err := s.cfg.Store.GetFundingTransaction(req.FundingTransactionID)
	if err != nil {
		s.logger.Error("failed to load funding transaction: ", err)
		serverError(c, "failed to load funding transaction")
		return
	}
	if ft.Status == string(sponsorgate.StatusCompleted) && ft.TransactionHash == req.TransactionHash {
		c.JSON(http.StatusOK, gin.H{"fundingTransaction": fundingJSON(ft)})
		return
	}
	c.JSON(http.StatusConflict, gin.H{"error": "funding transaction already confirmed"})
}

func (s *Server) handleGetSponsor(c *gin.Context) {
	sponsor, err := s.cfg.Store.GetSponsor(c.Param("id"))
	if err != nil {
		if errors.Is(err, sponsorgate.ErrSponsorNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown sponsor"})
			return
		}
		s.logger.Error("failed to load sponsor: ", err)
		serverError(c, "failed to load sponsor")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":            sponsor.ID,
		"walletAddress": sponsor.WalletAddress,
		"balance":       sponsorgate.FormatAmount(sponsor.Balance),
	})
}

func (s *Server) handleListFunding(c *gin.Context) {
	sponsorID := c.Param("id")
	if !s.requireSponsor(c, sponsorID) {
		return
	}
	fts, err := s.cfg.Store.ListFundingTransactions(sponsorID)
	if err != nil {
		s.logger.Error("failed to list funding transactions: ", err)
		serverError(c, "failed to list funding transactions")
		return
	}
	out := make([]fundingTransactionJSON, 0, len(fts))
	for i := range fts {
		out = append(out, fundingJSON(&fts[i]))
	}
	c.JSON(http.StatusOK, gin.H{"fundingTransactions": out})
}

type actionJSON struct {
	ID                 string `json:"id"`
	ResourceID         string `json:"resourceId,omitempty"`
	PluginID           string `json:"pluginId"`
	CoverageType       string `json:"coverageType"`
	CoveragePercent    int64  `json:"coveragePercent,omitempty"`
	Recurrence         string `json:"recurrence"`
	MaxRedemptionPrice string `json:"maxRedemptionPrice"`
	Active             bool   `json:"active"`
}

// handleListActions is the dashboard readout of a sponsor's campaigns.
func (s *Server) handleListActions(c *gin.Context) {
	sponsorID := c.Param("id")
	if !s.requireSponsor(c, sponsorID) {
		return
	}
	actions, err := s.cfg.Store.ListActionsBySponsor(sponsorID)
	if err != nil {
		s.logger.Error("failed to list actions: ", err)
		serverError(c, "failed to list actions")
		return
	}
	out := make([]actionJSON, 0, len(actions))
	for _, a := range actions {
		out = append(out, actionJSON{
			ID:                 a.ID,
			ResourceID:         a.ResourceID,
			PluginID:           a.PluginID,
			CoverageType:       a.CoverageType,
			CoveragePercent:    a.CoveragePercent,
			Recurrence:         a.Recurrence,
			MaxRedemptionPrice: sponsorgate.FormatAmount(a.MaxRedemptionPrice),
			Active:             a.Active,
		})
	}
	c.JSON(http.StatusOK, gin.H{"actions": out})
}

// requireSponsor 404s unknown sponsor ids for the per-sponsor listings.
func (s *Server) requireSponsor(c *gin.Context, sponsorID string) bool {
	if _, err := s.cfg.Store.GetSponsor(sponsorID); err != nil {
		if errors.Is(err, sponsorgate.ErrSponsorNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown sponsor"})
			return false
		}
		s.logger.Error("failed to load sponsor: ", err)
		serverError(c, "failed to load sponsor")
		return false
	}
	return true
}
