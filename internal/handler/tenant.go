package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/agentoauth/evaluator/internal/apierr"
	"github.com/agentoauth/evaluator/internal/token"
)

// Tenant is the attributed caller of a request, resolved per spec §4.7's
// precedence: an API-key capability token first, the agent token's iss
// claim ("keyless" free tier) second.
type Tenant struct {
	ID           string
	Tier         string
	DailyLimit   int64
	MonthlyLimit int64
	Keyless      bool
}

// apiKeyFromRequest extracts a capability token from X-API-Key or a bearer
// Authorization header, returning "" when neither is present.
func apiKeyFromRequest(c *gin.Context) string {
	if v := c.GetHeader("X-API-Key"); v != "" {
		return v
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// resolveTenant implements the Authenticated state: an API-key credential
// takes precedence over the token's iss claim. iss is read from a
// decode-only parse of the agent token (no signature verification yet, so
// this never blocks on I/O).
func (h *Handler) resolveTenant(c *gin.Context, iss string) (Tenant, *apierr.Error) {
	if raw := apiKeyFromRequest(c); raw != "" {
		claims, err := token.VerifyCapability(c.Request.Context(), raw, h.Resolver)
		if err != nil {
			if appErr, ok := err.(*apierr.Error); ok {
				return Tenant{}, appErr
			}
			return Tenant{}, apierr.InvalidAPIKey()
		}
		return Tenant{
			ID:           claims.Sub,
			Tier:         claims.Tier,
			DailyLimit:   claims.Quotas.Daily,
			MonthlyLimit: claims.Quotas.Monthly,
		}, nil
	}

	if iss == "" {
		return Tenant{}, apierr.MissingIssuer()
	}

	return Tenant{
		ID:           iss,
		Tier:         "free",
		DailyLimit:   h.Config.FreeTierDaily,
		MonthlyLimit: h.Config.FreeTierMonthly,
		Keyless:      true,
	}, nil
}

// setRateLimitHeaders renders the X-RateLimit-* response headers for one
// band, replacing any values set for an earlier band.
func setRateLimitHeaders(c *gin.Context, limit, remaining, resetUnix int64) {
	c.Header("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(resetUnix, 10))
}
