package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	sponsorgate "github.com/x402-foundation/sponsorgate"
	"github.com/x402-foundation/sponsorgate/store"
)

// challengeJSON is the raw challenge echoed back in 402 responses so the
// caller can still pay directly when no sponsorship applies.
type challengeJSON struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// proxyResponse is the deferred-payment offer returned on a sponsored
// request. It does not grant access yet: the caller must complete the
// action and come back through the validate endpoint.
type proxyResponse struct {
	Type             string       `json:"type"`
	ActionInstanceID string       `json:"actionInstanceId"`
	Instructions     string       `json:"instructions"`
	URL              string       `json:"url,omitempty"`
	Coverage         coverageJSON `json:"coverage"`
}

type coverageJSON struct {
	SponsorContribution string `json:"sponsorContribution"`
	UserContribution    string `json:"userContribution"`
}

// resolveSponsorship finds an action and plugin willing to sponsor a request,
// reporting through sentinel errors why none can: ErrNoSponsorAvailable and
// ErrAlreadyRedeemed are expected business outcomes, ErrUnknownPlugin is a
// campaign misconfiguration.
func (s *Server) resolveSponsorship(resourceID, user string) (*store.Action, sponsorgate.ActionPlugin, error) {
	action, err := s.cfg.Store.GetActionForResource(resourceID)
	if err != nil {
		return nil, nil, err
	}
	completed, err := s.cfg.Store.CountCompletedRedemptions(action.ID, user)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to count redemptions: %w", err)
	}
	if !sponsorgate.CanRedeem(action.RecurrencePolicy(), completed) {
		return nil, nil, sponsorgate.ErrAlreadyRedeemed
	}
	plugin, ok := s.cfg.Plugins.Get(action.PluginID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s (action %s)", sponsorgate.ErrUnknownPlugin, action.PluginID, action.ID)
	}
	if !sponsorgate.PluginSupports(plugin, resourceID, action.SponsorID, action.PluginConfig()) {
		return nil, nil, sponsorgate.ErrNoSponsorAvailable
	}
	return action, plugin, nil
}

// handleProxy intercepts a resource request: it elicits the upstream's x402
// challenge, resolves a sponsor-funded action, starts it, persists the
// pending redemption with the quoted coverage, and returns the offer.
func (s *Server) handleProxy(c *gin.Context) {
	resourceID := c.Param("resourceId")
	user := userID(c)
	ctx := c.Request.Context()

	resource, ok := s.cfg.Resources.Get(resourceID)
	if !ok {
		s.metrics.ProxyOutcome("unknown_resource")
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown resource"})
		return
	}

	var body []byte
	switch c.Request.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		var err error
		body, err = io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}
	}
	headers := make(map[string]string)
	for k, v := range c.Request.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	upstreamURL := resource.UpstreamURL
	if path := c.Param("proxyPath"); path != "" && path != "/" {
		upstreamURL = strings.TrimSuffix(upstreamURL, "/") + path
	}

	challenge, err := s.cfg.Challenges.GetChallenge(ctx, upstreamURL, c.Request.Method, headers, body)
	if err != nil || challenge == nil {
		s.metrics.ProxyOutcome("upstream_unavailable")
		s.logger.Warnw("upstream challenge unavailable", "resourceId", resourceID, "err", err)
		respondError(c, http.StatusBadGateway, sponsorgate.NewProxyError(
			sponsorgate.ErrCodeUpstreamUnavailable,
			sponsorgate.ErrChallengeUnavailable.Error(),
			nil,
		))
		return
	}
	rawChallenge := challengeJSON{
		Amount:   sponsorgate.FormatAmount(challenge.Amount),
		Currency: challenge.Currency,
	}

	action, plugin, err := s.resolveSponsorship(resourceID, user)
	if err != nil {
		switch {
		case errors.Is(err, sponsorgate.ErrNoSponsorAvailable):
			s.metrics.ProxyOutcome("no_sponsor")
			respondError(c, http.StatusPaymentRequired, sponsorgate.NewProxyError(
				sponsorgate.ErrCodeNoSponsorAvailable,
				"No sponsor available",
				map[string]interface{}{"challenge": rawChallenge},
			))
		case errors.Is(err, sponsorgate.ErrAlreadyRedeemed):
			s.metrics.ProxyOutcome("already_redeemed")
			respondError(c, http.StatusPaymentRequired, sponsorgate.NewProxyError(
				sponsorgate.ErrCodeAlreadyRedeemed,
				"Action already redeemed for this user",
				map[string]interface{}{"challenge": rawChallenge},
			))
		case errors.Is(err, sponsorgate.ErrUnknownPlugin):
			s.metrics.ProxyOutcome("unknown_plugin")
			s.logger.Errorw("unknown plugin", "resourceId", resourceID, "err", err)
			respondError(c, http.StatusInternalServerError, sponsorgate.NewProxyError(
				sponsorgate.ErrCodeUnknownPlugin,
				"Unknown plugin",
				nil,
			))
		default:
			s.logger.Error("failed to resolve sponsor: ", err)
			serverError(c, "failed to resolve sponsor")
		}
		return
	}

	coverage, err := sponsorgate.ComputeCoverage(challenge.Amount, action.Policy())
	if err != nil {
		s.logger.Errorw("coverage computation failed", "actionId", action.ID, "err", err)
		serverError(c, "invalid coverage configuration")
		return
	}

	startResult, err := plugin.Start(ctx, sponsorgate.StartRequest{
		UserID:     user,
		ResourceID: resourceID,
		ActionID:   action.ID,
		Config:     action.PluginConfig(),
	})
	if err != nil {
		s.logger.Errorw("plugin start failed", "pluginId", action.PluginID, "err", err)
		serverError(c, "failed to start action")
		return
	}

	// The quoted sponsor contribution is persisted here and settled as-is at
	// validation time; recomputing it later could diverge from this quote.
	_, err = s.cfg.Store.CreateRedemption(store.CreateRedemptionParams{
		ActionID:        action.ID,
		UserID:          user,
		ResourceID:      resourceID,
		InstanceID:      startResult.InstanceID,
		SponsoredAmount: coverage.SponsorContribution,
		Currency:        challenge.Currency,
		Network:         challenge.Network,
	})
	if err != nil {
		s.logger.Errorw("failed to persist redemption", "instanceId", startResult.InstanceID, "err", err)
		if errors.Is(err, sponsorgate.ErrDuplicateInstance) {
			// The plugin re-issued an instance id; a server fault, not a
			// caller mistake.
			respondError(c, http.StatusInternalServerError, sponsorgate.NewProxyError(
				sponsorgate.ErrCodeDuplicateInstance,
				"action instance already exists",
				nil,
			))
			return
		}
		serverError(c, "failed to persist redemption")
		return
	}

	s.metrics.ProxyOutcome("action_required")
	c.JSON(http.StatusOK, proxyResponse{
		Type:             "action_required",
		ActionInstanceID: startResult.InstanceID,
		Instructions:     startResult.Instructions,
		URL:              startResult.URL,
		Coverage: coverageJSON{
			SponsorContribution: sponsorgate.FormatAmount(coverage.SponsorContribution),
			UserContribution:    sponsorgate.FormatAmount(coverage.UserContribution),
		},
	})
}
