package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentoauth/evaluator/internal/apierr"
	"github.com/agentoauth/evaluator/internal/audit"
	"github.com/agentoauth/evaluator/internal/canon"
	"github.com/agentoauth/evaluator/internal/middleware"
	"github.com/agentoauth/evaluator/internal/model"
	"github.com/agentoauth/evaluator/internal/policy"
	"github.com/agentoauth/evaluator/internal/state"
	"github.com/agentoauth/evaluator/internal/token"
	"github.com/agentoauth/evaluator/internal/validator"
)

type evaluateRequest struct {
	Token   string               `json:"token" validate:"required"`
	Context model.RequestContext `json:"context"`
}

// evaluate runs the full Received→Authenticated→RateChecked→Decoded→
// Verified→PolicyHashed→Revoked?→StatelessEvaluated→StatefulApplied→
// ReceiptSigned→Responded state machine from spec §4.7, shared between
// POST /verify (mutating) and POST /simulate (mutating=false).
func (h *Handler) evaluate(c *gin.Context, mutating bool) {
	var req evaluateRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}
	if req.Token == "" {
		middleware.AbortWithError(c, apierr.MissingToken())
		return
	}

	// Decoded ahead of schedule: Decode performs no I/O, and the keyless
	// tenant-attribution path needs the token's iss before rate limiting.
	decoded, derr := token.Decode(req.Token)
	if derr != nil {
		respondTokenError(c, derr)
		return
	}

	tenant, terr := h.resolveTenant(c, decoded.Payload.Iss)
	if terr != nil {
		middleware.AbortWithError(c, terr)
		return
	}
	c.Set("tenant_id", tenant.ID)

	if !h.checkRateLimits(c, tenant) {
		return
	}

	verified, verr := token.Verify(c.Request.Context(), req.Token, h.Resolver)
	if verr != nil {
		respondTokenError(c, verr)
		return
	}
	payload := verified.Payload
	if h.Audit != nil {
		c.Set("user_hash", h.Audit.HashField(payload.User))
		c.Set("agent_hash", h.Audit.HashField(payload.Agent))
		if req.Context.Amount != nil {
			amt, _ := req.Context.Amount.Float64()
			c.Set("amount_band", audit.BandAmount(amt))
		}
	}

	if payload.Ver != model.VersionV02 && payload.Ver != model.VersionV03 {
		middleware.AbortWithError(c, apierr.UnsupportedVersion(payload.Ver))
		return
	}

	now := time.Now().UTC()
	if req.Context.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, req.Context.Timestamp); err == nil {
			now = parsed.UTC()
		}
	}

	if payload.Exp > 0 && now.Unix() > payload.Exp {
		middleware.AbortWithError(c, apierr.Expired())
		return
	}

	// Canonicalize the issuer's raw policy bytes, not the typed Payload.Policy
	// re-encoding: model.Policy drops unknown fields and normalizes amounts,
	// so hashing it instead of what the issuer actually hashed would reject
	// legitimately-issued tokens (see token.Decoded.RawPolicy).
	hashOK, cerr := canon.VerifyHash(verified.RawPolicy, payload.PolicyHash)
	if cerr != nil {
		middleware.AbortWithError(c, apierr.InvalidPayload(cerr.Error()))
		return
	}
	if !hashOK {
		middleware.AbortWithError(c, apierr.PolicyHashMismatch())
		return
	}

	var intentVerified *bool
	var intentValidUntil, intentApprovedAt string
	if payload.Ver == model.VersionV03 {
		if payload.Intent == nil {
			middleware.AbortWithError(c, apierr.IntentInvalid("missing intent block"))
			return
		}
		result, ierr := h.Intent.Validate(payload.Intent, payload.PolicyHash, now)
		if ierr != nil {
			middleware.AbortWithError(c, ierr)
			return
		}
		v := result.Verified
		intentVerified = &v
		intentValidUntil = payload.Intent.ValidUntil
		intentApprovedAt = payload.Intent.ApprovedAt
	}

	revoked, which, rerr := h.State.CheckRevocation(c.Request.Context(), payload.JTI, payload.Policy.ID)
	if rerr != nil {
		h.respondVerifierUnavailable(c)
		return
	}
	if revoked {
		reason, code := "Token revoked", apierr.CodeRevoked
		if which == "policy" {
			reason, code = "Policy revoked", apierr.CodePolicyRevoked
		}
		h.respondDeny(c, reason, code)
		return
	}

	presult := policy.Evaluate(payload.Policy, req.Context, now)
	if !presult.Allowed {
		h.respondDeny(c, presult.Reason, "")
		return
	}

	applyReq := state.ApplyRequest{
		PolicyID:       payload.Policy.ID,
		JTI:            payload.JTI,
		Exp:            payload.Exp,
		IdempotencyKey: req.Context.IdempotencyKey,
		Amount:         req.Context.Amount,
		Currency:       req.Context.Currency,
		PerPeriod:      payload.Policy.Limits,
		Now:            now,
	}

	var outcome *state.Outcome
	var err error
	if mutating {
		outcome, err = h.State.Apply(c.Request.Context(), applyReq)
	} else {
		outcome, err = h.State.Simulate(c.Request.Context(), applyReq)
	}
	if err != nil {
		h.respondVerifierUnavailable(c)
		return
	}

	if !outcome.Allowed {
		code := ""
		if outcome.Replayed {
			code = apierr.CodeReplay
		}
		h.respondDeny(c, outcome.Reason, code)
		return
	}

	h.respondAllow(c, mutating, payload, now, outcome, intentVerified, intentValidUntil, intentApprovedAt)
}

func respondTokenError(c *gin.Context, err error) {
	if appErr, ok := err.(*apierr.Error); ok {
		middleware.AbortWithError(c, appErr)
		return
	}
	middleware.AbortWithError(c, apierr.InvalidToken(err.Error()))
}

func (h *Handler) respondDeny(c *gin.Context, reason, code string) {
	c.Set("decision", model.DecisionDeny)
	if code != "" {
		c.Set("decision_code", code)
	}
	c.JSON(http.StatusForbidden, apierr.DenyResponse{Decision: model.DecisionDeny, Reason: reason, Code: code})
}

func (h *Handler) respondVerifierUnavailable(c *gin.Context) {
	c.Set("decision", model.DecisionDeny)
	c.Set("decision_code", apierr.CodeVerifierUnavailable)
	err := apierr.VerifierUnavailable()
	c.JSON(err.Status, apierr.DenyResponse{Decision: model.DecisionDeny, Reason: err.Message, Code: err.Code})
}

func (h *Handler) respondAllow(c *gin.Context, mutating bool, payload model.Token, now time.Time, outcome *state.Outcome, intentVerified *bool, intentValidUntil, intentApprovedAt string) {
	c.Set("decision", model.DecisionAllow)

	body := gin.H{
		"decision":    model.DecisionAllow,
		"policy_hash": payload.PolicyHash,
		"timestamp":   now.Format(time.RFC3339),
	}
	if !mutating {
		body["simulation"] = true
	}
	if outcome.Remaining != nil {
		body["remaining_budget"] = outcome.Remaining
	}

	// Receipts are minted only for real (mutating) verifications; a
	// signing/storage failure never turns an ALLOW into an error (spec §4.6).
	if mutating {
		rec := model.Receipt{
			PolicyID:         payload.Policy.ID,
			Decision:         model.DecisionAllow,
			Timestamp:        now.Format(time.RFC3339),
			Remaining:        outcome.Remaining,
			IntentVerified:   intentVerified,
			IntentValidUntil: intentValidUntil,
			IntentApprovedAt: intentApprovedAt,
		}
		id, _, err := h.Receipts.Mint(c.Request.Context(), rec)
		if err == nil && id != "" {
			body["receipt_id"] = id
			c.Header("X-ACT-Receipt-Id", id)
		}
	}

	c.JSON(http.StatusOK, body)
}
