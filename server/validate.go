package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	sponsorgate "github.com/x402-foundation/sponsorgate"
	"github.com/x402-foundation/sponsorgate/x402client"
)

type validateRequest struct {
	ActionInstanceID string      `json:"actionInstanceId" binding:"required"`
	Input            interface{} `json:"input"`
}

// handleValidate judges a pending action instance and, on success, settles
// the sponsor's quoted contribution: debit the ledger, pay the upstream
// challenge through the payment rail, and finalize the redemption. A failed
// settlement refunds the debit so the ledger never loses funds to a payment
// that did not happen.
func (s *Server) handleValidate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "actionInstanceId is required"})
		return
	}
	ctx := c.Request.Context()

	// Serialize concurrent validations of the same instance in-process. The
	// conditional finalize below is the cross-process defense.
	if !s.guard.begin(req.ActionInstanceID) {
		respondFailed(c, http.StatusBadRequest, sponsorgate.ErrCodeInvalidRedemptionState,
			"validation already in progress for this action instance")
		return
	}
	defer s.guard.end(req.ActionInstanceID)

	redemption, err := s.cfg.Store.GetRedemption(req.ActionInstanceID)
	if err != nil {
		if errors.Is(err, sponsorgate.ErrRedemptionNotFound) {
			respondFailed(c, http.StatusBadRequest, sponsorgate.ErrCodeInvalidRedemptionState,
				"unknown action instance")
			return
		}
		s.logger.Error("failed to load redemption: ", err)
		serverError(c, "failed to load redemption")
		return
	}
	if redemption.Status != string(sponsorgate.StatusPending) {
		respondFailed(c, http.StatusBadRequest, sponsorgate.ErrCodeInvalidRedemptionState,
			"action instance already finalized")
		return
	}

	action, err := s.cfg.Store.GetAction(redemption.ActionID)
	if err != nil {
		s.logger.Error("failed to load action for redemption: ", err)
		serverError(c, "failed to load action")
		return
	}
	plugin, ok := s.cfg.Plugins.Get(action.PluginID)
	if !ok {
		s.logger.Errorw("unknown plugin", "pluginId", action.PluginID, "actionId", action.ID)
		respondError(c, http.StatusInternalServerError, sponsorgate.NewProxyError(
			sponsorgate.ErrCodeUnknownPlugin,
			"Unknown plugin",
			nil,
		))
		return
	}

	verdict, err := plugin.Validate(ctx, sponsorgate.ValidateRequest{
		InstanceID: redemption.InstanceID,
		UserID:     redemption.UserID,
		ResourceID: redemption.ResourceID,
		ActionID:   action.ID,
		Config:     action.PluginConfig(),
		Input:      req.Input,
	})
	if err != nil {
		s.logger.Errorw("plugin validation errored", "pluginId", action.PluginID, "instanceId", redemption.InstanceID, "err", err)
		serverError(c, "validation failed")
		return
	}
	if verdict.Status != sponsorgate.StatusCompleted || !verdict.RewardEligible {
		if err := s.cfg.Store.FinalizeRedemption(redemption.InstanceID, sponsorgate.StatusFailed, 0, ""); err != nil {
			s.logger.Error("failed to finalize rejected redemption: ", err)
		}
		reason := verdict.Reason
		if reason == "" {
			reason = "action not completed"
		}
		respondFailed(c, http.StatusBadRequest, sponsorgate.ErrCodeValidationRejected, reason)
		return
	}

	// Settle exactly what was quoted when the redemption was created.
	amount := redemption.SponsoredAmount
	if amount == 0 {
		if err := s.cfg.Store.FinalizeRedemption(redemption.InstanceID, sponsorgate.StatusCompleted, 0, ""); err != nil {
			s.finalizeConflict(c, err, 0, action.SponsorID)
			return
		}
		s.metrics.Settlement("skipped")
		c.JSON(http.StatusOK, gin.H{"status": "completed"})
		return
	}

	if err := s.cfg.Store.DebitSponsorBalance(action.SponsorID, amount); err != nil {
		if errors.Is(err, sponsorgate.ErrInsufficientBalance) {
			if ferr := s.cfg.Store.FinalizeRedemption(redemption.InstanceID, sponsorgate.StatusFailed, 0, ""); ferr != nil {
				s.logger.Error("failed to finalize underfunded redemption: ", ferr)
			}
			s.metrics.Settlement("insufficient_balance")
			respondFailed(c, http.StatusPaymentRequired, sponsorgate.ErrCodeInsufficientBalance,
				"sponsor balance exhausted")
			return
		}
		s.logger.Error("failed to debit sponsor balance: ", err)
		serverError(c, "failed to debit sponsor")
		return
	}

	result, err := s.cfg.Payments.Settle(ctx, x402client.SettleRequest{
		Amount:   amount,
		Currency: redemption.Currency,
		Network:  redemption.Network,
	})
	if err != nil || !result.Success {
		s.refund(action.SponsorID, amount)
		if ferr := s.cfg.Store.FinalizeRedemption(redemption.InstanceID, sponsorgate.StatusFailed, 0, ""); ferr != nil {
			s.logger.Error("failed to finalize unsettled redemption: ", ferr)
		}
		s.metrics.Settlement("failure")
		reason := "payment settlement failed"
		if err != nil {
			s.logger.Errorw("payment rail unreachable", "instanceId", redemption.InstanceID, "err", err)
		} else if result.ErrorReason != "" {
			reason = result.ErrorReason
		}
		respondFailed(c, http.StatusInternalServerError, sponsorgate.ErrCodePaymentFailed, reason)
		return
	}

	if err := s.cfg.Store.FinalizeRedemption(redemption.InstanceID, sponsorgate.StatusCompleted, amount, result.TransactionHash); err != nil {
		s.finalizeConflict(c, err, amount, action.SponsorID)
		return
	}

	s.metrics.Settlement("success")
	s.logger.Infow("redemption settled",
		"instanceId", redemption.InstanceID,
		"sponsorId", action.SponsorID,
		"amount", sponsorgate.FormatAmount(amount),
		"transactionHash", result.TransactionHash,
	)
	c.JSON(http.StatusOK, gin.H{
		"status":          "completed",
		"transactionHash": result.TransactionHash,
	})
}

// finalizeConflict handles losing the finalize race after money may already
// have moved: the winning validation owns the settlement, so this one backs
// its debit out.
func (s *Server) finalizeConflict(c *gin.Context, err error, amount int64, sponsorID string) {
	if errors.Is(err, sponsorgate.ErrRedemptionFinalized) {
		if amount > 0 {
			s.refund(sponsorID, amount)
		}
		respondFailed(c, http.StatusBadRequest, sponsorgate.ErrCodeInvalidRedemptionState,
			"action instance already finalized")
		return
	}
	s.logger.Error("failed to finalize redemption: ", err)
	serverError(c, "failed to finalize redemption")
}

func (s *Server) refund(sponsorID string, amount int64) {
	if err := s.cfg.Store.CreditSponsorBalance(sponsorID, amount); err != nil {
		// Ledger now under-credits the sponsor; loud log for manual repair.
		s.logger.Errorw("refund credit failed", "sponsorId", sponsorID, "amount", amount, "err", err)
		return
	}
	s.metrics.Refund()
}
