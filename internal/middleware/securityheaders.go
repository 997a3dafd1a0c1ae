// Package middleware - securityheaders.go
//
// HTTP security headers for the evaluator's JSON API surface. Unlike the
// session platform this pattern is adapted from, there is no HTML ever
// rendered here — no templates, no iframe-embeddable proxy routes, no
// WebSocket upgrade — so the CSP has no nonce to carry and no per-path
// relaxation, and Cache-Control applies uniformly rather than exempting
// specific routes.
package middleware

import (
	"github.com/gin-gonic/gin"
)

// SecurityHeaders adds baseline security headers to every response. Since
// the API never serves HTML, the policy blocks all content sources rather
// than allowlisting a self origin plus a nonce.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Content-Security-Policy",
			"default-src 'none'; frame-ancestors 'none'; base-uri 'none'")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy",
			"geolocation=(), "+
				"microphone=(), "+
				"camera=(), "+
				"payment=(), "+
				"usb=(), "+
				"magnetometer=(), "+
				"gyroscope=(), "+
				"accelerometer=()")
		c.Header("X-Permitted-Cross-Domain-Policies", "none")
		c.Header("X-Download-Options", "noopen")
		c.Header("Cache-Control", "no-store, no-cache, must-revalidate, private")
		c.Header("Pragma", "no-cache")

		// Hide server version information.
		c.Header("Server", "")

		c.Next()
	}
}
