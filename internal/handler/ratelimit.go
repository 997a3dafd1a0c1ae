package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentoauth/evaluator/internal/apierr"
	"github.com/agentoauth/evaluator/internal/middleware"
	"github.com/agentoauth/evaluator/internal/ratelimit"
)

// checkRateLimits implements the RateChecked state: per-IP minute/hour
// bands followed by per-tenant daily/monthly bands, per spec §4.7. Each band
// overwrites the X-RateLimit-* headers of the one before it: on deny the
// response carries the first violated band's headers; on allow it carries
// the last band checked (the per-tenant monthly band).
func (h *Handler) checkRateLimits(c *gin.Context, tenant Tenant) bool {
	now := time.Now()
	ip := c.ClientIP()

	ipBands := []struct {
		window ratelimit.Window
		limit  int64
	}{
		{ratelimit.WindowMinute, h.Config.IPLimitMinute},
		{ratelimit.WindowHour, h.Config.IPLimitHour},
	}
	for _, band := range ipBands {
		res, err := h.RateLimit.Check(c.Request.Context(), "ip:"+ip, band.window, band.limit, now)
		if err != nil {
			middleware.AbortWithError(c, apierr.VerifierUnavailable())
			return false
		}
		setRateLimitHeaders(c, res.Limit, res.Remaining, res.ResetUnix)
		if !res.Allowed {
			middleware.AbortWithError(c, apierr.IPRateLimit())
			return false
		}
	}

	tenantBands := []struct {
		window ratelimit.Window
		limit  int64
	}{
		{ratelimit.WindowDay, tenant.DailyLimit},
		{ratelimit.WindowMonth, tenant.MonthlyLimit},
	}
	for _, band := range tenantBands {
		res, err := h.RateLimit.Check(c.Request.Context(), "tenant:"+tenant.ID, band.window, band.limit, now)
		if err != nil {
			middleware.AbortWithError(c, apierr.VerifierUnavailable())
			return false
		}
		setRateLimitHeaders(c, res.Limit, res.Remaining, res.ResetUnix)
		if !res.Allowed {
			middleware.AbortWithError(c, apierr.QuotaExceeded())
			return false
		}
	}

	return true
}
