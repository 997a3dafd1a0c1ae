package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"

	"github.com/agentoauth/evaluator/internal/apierr"
	"github.com/agentoauth/evaluator/internal/canon"
	"github.com/agentoauth/evaluator/internal/middleware"
	"github.com/agentoauth/evaluator/internal/model"
	"github.com/agentoauth/evaluator/internal/token"
	"github.com/agentoauth/evaluator/internal/validator"
)

// htmlSanitizer strips HTML from string fields that /lint/token echoes
// back unverified. Lint decodes without checking a signature, so an
// attacker can hand it a token carrying arbitrary strings in user/agent/
// policy.id; anything that reaches the response is sanitized before
// echoing in case a caller renders it directly.
var htmlSanitizer = bluemonday.StrictPolicy()

func sanitizeDecoded(d *token.Decoded) {
	d.Payload.User = htmlSanitizer.Sanitize(d.Payload.User)
	d.Payload.Agent = htmlSanitizer.Sanitize(d.Payload.Agent)
	d.Payload.Iss = htmlSanitizer.Sanitize(d.Payload.Iss)
	d.Payload.Policy.ID = htmlSanitizer.Sanitize(d.Payload.Policy.ID)
	for i := range d.Payload.Policy.Resources {
		r := &d.Payload.Policy.Resources[i]
		for j, id := range r.Match.IDs {
			r.Match.IDs[j] = htmlSanitizer.Sanitize(id)
		}
		for j, p := range r.Match.Prefixes {
			r.Match.Prefixes[j] = htmlSanitizer.Sanitize(p)
		}
	}
}

type lintPolicyRequest struct {
	Policy model.Policy `json:"policy"`
}

// LintPolicy handles POST /lint/policy: a decode-only validator that
// returns the canonical form and hash of a policy, or a structured error.
// It never touches a token or any state — canonicalization is pure.
func (h *Handler) LintPolicy(c *gin.Context) {
	bodyBytes, err := io.ReadAll(c.Request.Body)
	if err != nil {
		middleware.AbortWithError(c, apierr.InvalidPayload("unable to read request body"))
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	var req lintPolicyRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}

	if req.Policy.Version != model.PolicyVersion {
		middleware.AbortWithError(c, apierr.InvalidPayload("policy.version must be "+model.PolicyVersion))
		return
	}
	if len(req.Policy.Actions) == 0 {
		middleware.AbortWithError(c, apierr.InvalidPayload("policy.actions must be non-empty"))
		return
	}

	if req.Policy.Strict {
		var wrap struct {
			Policy json.RawMessage `json:"policy"`
		}
		if err := json.Unmarshal(bodyBytes, &wrap); err == nil && len(wrap.Policy) > 0 {
			if err := model.CheckUnknownFields(wrap.Policy); err != nil {
				middleware.AbortWithError(c, apierr.InvalidPayload("strict policy lint failed: "+err.Error()))
				return
			}
		}
	}

	canonical, err := canon.Canonicalize(req.Policy)
	if err != nil {
		middleware.AbortWithError(c, apierr.InvalidPayload(err.Error()))
		return
	}
	hash, err := canon.Hash(req.Policy)
	if err != nil {
		middleware.AbortWithError(c, apierr.InvalidPayload(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":     true,
		"canonical": string(canonical),
		"hash":      hash,
	})
}

type lintTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// LintToken handles POST /lint/token: a decode-only validator. It parses
// header and payload without verifying the signature — exactly the
// decode-only path C2 guarantees requires no I/O.
func (h *Handler) LintToken(c *gin.Context) {
	var req lintTokenRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}

	decoded, err := token.Decode(req.Token)
	if err != nil {
		if appErr, ok := err.(*apierr.Error); ok {
			c.JSON(appErr.Status, gin.H{"valid": false, "error": appErr.Message, "code": appErr.Code})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": err.Error(), "code": apierr.CodeInvalidToken})
		return
	}

	// Checked against the issuer's raw policy bytes, not the lossy typed
	// re-encoding — see token.Decoded.RawPolicy.
	hashOK, _ := canon.VerifyHash(decoded.RawPolicy, decoded.Payload.PolicyHash)
	sanitizeDecoded(decoded)

	c.JSON(http.StatusOK, gin.H{
		"valid":             true,
		"header":            decoded.Header,
		"payload":           decoded.Payload,
		"policy_hash_valid": hashOK,
	})
}
