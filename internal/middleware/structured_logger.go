// This file implements structured request logging for the evaluator's HTTP
// surface: request id, method, path, status, duration, tenant, and decision,
// via the shared zerolog logger rather than stdlib log.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentoauth/evaluator/internal/logger"
)

// StructuredLoggerConfig controls which paths are skipped and which
// optional fields are logged.
type StructuredLoggerConfig struct {
	SkipPaths       []string
	SkipHealthCheck bool
	LogQuery        bool
}

// DefaultStructuredLoggerConfig skips /health and logs query strings.
func DefaultStructuredLoggerConfig() StructuredLoggerConfig {
	return StructuredLoggerConfig{SkipHealthCheck: true, LogQuery: true}
}

// StructuredLoggerWithConfigFunc logs one structured entry per request,
// attributing the log level to the response status class.
func StructuredLoggerWithConfigFunc(config StructuredLoggerConfig) gin.HandlerFunc {
	skipMap := make(map[string]bool)
	for _, path := range config.SkipPaths {
		skipMap[path] = true
	}
	if config.SkipHealthCheck {
		skipMap["/health"] = true
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skipMap[path] {
			c.Next()
			return
		}

		start := time.Now()
		raw := c.Request.URL.RawQuery
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()

		evt := logger.HTTP().Info()
		switch {
		case status >= 500:
			evt = logger.HTTP().Error()
		case status >= 400:
			evt = logger.HTTP().Warn()
		}

		evt = evt.
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP())

		if config.LogQuery && raw != "" {
			evt = evt.Str("query", raw)
		}
		if tenant, exists := c.Get("tenant_id"); exists {
			evt = evt.Interface("tenant_id", tenant)
		}
		if decision, exists := c.Get("decision"); exists {
			evt = evt.Interface("decision", decision)
		}
		if len(c.Errors) > 0 {
			evt = evt.Str("errors", c.Errors.String())
		}
		evt.Msg("request handled")
	}
}
