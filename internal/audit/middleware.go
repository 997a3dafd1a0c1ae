package audit

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware records one Record per request after the handler completes,
// mirroring the teacher's capture-timing-then-emit-async shape. Handlers
// populate "tenant_id", "decision", "decision_code", "user_hash",
// "agent_hash", and "amount_band" via c.Set when known; anything left unset
// is simply omitted from the record.
func (l *Logger) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		rec := Record{
			Timestamp:       start.UTC(),
			Method:          c.Request.Method,
			Path:            c.Request.URL.Path,
			Status:          c.Writer.Status(),
			LatencyMS:       time.Since(start).Milliseconds(),
			PeerFingerprint: l.HashField(c.ClientIP()),
		}
		if v, ok := c.Get("tenant_id"); ok {
			if s, ok := v.(string); ok {
				rec.TenantID = s
			}
		}
		if v, ok := c.Get("decision"); ok {
			if s, ok := v.(string); ok {
				rec.Decision = s
			}
		}
		if v, ok := c.Get("decision_code"); ok {
			if s, ok := v.(string); ok {
				rec.DecisionCode = s
			}
		}
		if v, ok := c.Get("user_hash"); ok {
			if s, ok := v.(string); ok {
				rec.UserHash = s
			}
		}
		if v, ok := c.Get("agent_hash"); ok {
			if s, ok := v.(string); ok {
				rec.AgentHash = s
			}
		}
		if v, ok := c.Get("amount_band"); ok {
			if s, ok := v.(string); ok {
				rec.AmountBand = s
			}
		}
		if len(c.Errors) > 0 {
			rec.Error = c.Errors.String()
		}

		l.Emit(rec)
	}
}
