package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doSecurityHeadersRequest(t *testing.T) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(SecurityHeaders())
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "test")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSecurityHeadersSetsBaselineHeaders(t *testing.T) {
	w := doSecurityHeadersRequest(t)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
	assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=31536000")
	assert.Contains(t, w.Header().Get("Referrer-Policy"), "strict-origin-when-cross-origin")
}

func TestSecurityHeadersCSPBlocksAllSources(t *testing.T) {
	w := doSecurityHeadersRequest(t)

	csp := w.Header().Get("Content-Security-Policy")
	require.NotEmpty(t, csp)
	assert.Contains(t, csp, "default-src 'none'")
	assert.Contains(t, csp, "frame-ancestors 'none'")
}

func TestSecurityHeadersPermissionsPolicyDisablesSensors(t *testing.T) {
	w := doSecurityHeadersRequest(t)

	pp := w.Header().Get("Permissions-Policy")
	require.NotEmpty(t, pp)
	assert.Contains(t, pp, "geolocation=()")
	assert.Contains(t, pp, "microphone=()")
	assert.Contains(t, pp, "camera=()")
}

func TestSecurityHeadersNoStoreOnEveryResponse(t *testing.T) {
	w := doSecurityHeadersRequest(t)

	assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")
	assert.Equal(t, "no-cache", w.Header().Get("Pragma"))
}

func TestSecurityHeadersHidesServerHeader(t *testing.T) {
	w := doSecurityHeadersRequest(t)

	assert.Empty(t, w.Header().Get("Server"))
}
