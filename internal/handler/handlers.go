package handler

import (
	"crypto/ed25519"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentoauth/evaluator/internal/apierr"
	"github.com/agentoauth/evaluator/internal/middleware"
	"github.com/agentoauth/evaluator/internal/ratelimit"
	"github.com/agentoauth/evaluator/internal/state"
	"github.com/agentoauth/evaluator/internal/token"
	"github.com/agentoauth/evaluator/internal/validator"
)

// Verify handles POST /verify: full evaluation, mutating.
func (h *Handler) Verify(c *gin.Context) { h.evaluate(c, true) }

// Simulate handles POST /simulate: identical evaluation, no mutation.
func (h *Handler) Simulate(c *gin.Context) { h.evaluate(c, false) }

type revokeRequest struct {
	JTI      string `json:"jti"`
	PolicyID string `json:"policy_id"`
}

// Revoke handles POST /revoke. At least one of jti/policy_id is required;
// revoking an already-revoked identifier is a no-op success.
func (h *Handler) Revoke(c *gin.Context) {
	var req revokeRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}
	if req.JTI == "" && req.PolicyID == "" {
		middleware.AbortWithError(c, apierr.InvalidPayload("at least one of jti or policy_id is required"))
		return
	}
	if err := h.State.Revoke(c.Request.Context(), req.JTI, req.PolicyID); err != nil {
		middleware.AbortWithError(c, apierr.VerifierUnavailable().WithDetails(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": true})
}

// GetRevocation handles GET /revocations/:id, the read-side counterpart to
// POST /revoke: decode-only check of whether id (interpreted as a jti first,
// then as a policy_id) is currently shadowed. Pairs a writer with a checker
// the way the teacher's session management always does.
func (h *Handler) GetRevocation(c *gin.Context) {
	id := c.Param("id")
	revoked, which, err := h.State.CheckRevocation(c.Request.Context(), id, id)
	if err != nil {
		middleware.AbortWithError(c, apierr.VerifierUnavailable().WithDetails(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": revoked, "matched": which})
}

// GetReceipt handles GET /receipts/:id, returning the stored signed
// receipt as a raw compact JWS with content-type application/jwt.
func (h *Handler) GetReceipt(c *gin.Context) {
	id := c.Param("id")
	signed, err := h.Receipts.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			c.JSON(http.StatusNotFound, apierr.Response{Error: "receipt not found", Code: "NOT_FOUND"})
			return
		}
		middleware.AbortWithError(c, apierr.VerifierUnavailable().WithDetails(err.Error()))
		return
	}
	c.Data(http.StatusOK, "application/jwt", []byte(signed))
}

// JWKS handles GET /.well-known/jwks.json, publishing the receipt-signing
// key. Issuer keys are out of scope: this deployment never issues agent
// tokens, only verifies and signs receipts for them.
func (h *Handler) JWKS(c *gin.Context) {
	pub, ok := h.Config.SigningPrivateKey.Public().(ed25519.PublicKey)
	if !ok {
		middleware.AbortWithError(c, apierr.VerifierUnavailable())
		return
	}
	set := token.KeySet(map[string]ed25519.PublicKey{h.Config.SigningKid: pub})
	c.JSON(http.StatusOK, set)
}

// Usage handles GET /usage: per-tenant counters, requires an authenticated
// (API-key) tenant — there is no token to fall back to an iss claim here.
func (h *Handler) Usage(c *gin.Context) {
	raw := apiKeyFromRequest(c)
	if raw == "" {
		middleware.AbortWithError(c, apierr.InvalidAPIKey())
		return
	}
	claims, err := token.VerifyCapability(c.Request.Context(), raw, h.Resolver)
	if err != nil {
		if appErr, ok := err.(*apierr.Error); ok {
			middleware.AbortWithError(c, appErr)
			return
		}
		middleware.AbortWithError(c, apierr.InvalidAPIKey())
		return
	}

	now := time.Now()
	subject := "tenant:" + claims.Sub
	daily, _ := h.RateLimit.Peek(c.Request.Context(), subject, ratelimit.WindowDay, now)
	monthly, _ := h.RateLimit.Peek(c.Request.Context(), subject, ratelimit.WindowMonth, now)

	c.JSON(http.StatusOK, gin.H{
		"tenant_id": claims.Sub,
		"tier":      claims.Tier,
		"daily":     gin.H{"used": daily, "limit": claims.Quotas.Daily},
		"monthly":   gin.H{"used": monthly, "limit": claims.Quotas.Monthly},
	})
}

// Health handles GET /health. ?verbose=1 additionally reports backend
// reachability diagnostics, not a public metrics surface.
func (h *Handler) Health(c *gin.Context) {
	body := gin.H{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}
	if c.Query("verbose") != "" {
		body["state_backend"] = h.State.Stats(c.Request.Context())
	}
	c.JSON(http.StatusOK, body)
}

// Terms handles GET /terms.
func (h *Handler) Terms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"terms": "AgentOAuth evaluator: verification and policy evaluation only. " +
			"No authentication of the end user beyond the intent block, no payment settlement.",
	})
}
