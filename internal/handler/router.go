package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/agentoauth/evaluator/internal/middleware"
)

// NewRouter builds the evaluator's Gin engine: the ordered middleware
// chain from the teacher's cmd/main.go, generalized to the evaluator's
// surface, followed by the spec §4.7 routes.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()

	// A cheap per-IP token bucket sitting in front of the backend-based
	// limiter: it costs no round trip, so it absorbs an obviously abusive
	// burst before a single IP can drive up IncrementBy traffic against the
	// state backend. Deliberately generous — checkRateLimits enforces the
	// real §4.7 bands; this only protects the backend itself.
	flood := middleware.NewRateLimiter(50, 100)

	router.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.StructuredLoggerWithConfigFunc(middleware.DefaultStructuredLoggerConfig()),
		middleware.Timeout(middleware.TimeoutConfig{
			Timeout:      h.Config.RequestTimeout,
			ErrorMessage: "evaluation timed out",
		}),
		middleware.AllowedHTTPMethods(),
		middleware.CORS(h.Config.CORSAllowedOrigins),
		middleware.SecurityHeaders(),
		middleware.RequestSizeLimiter(middleware.MaxJSONPayloadSize),
		flood.Middleware(),
		h.Audit.Middleware(),
	)

	router.GET("/health", h.Health)
	router.GET("/terms", h.Terms)
	router.GET("/.well-known/jwks.json", h.JWKS)

	router.POST("/verify", h.Verify)
	router.POST("/simulate", h.Simulate)
	router.POST("/revoke", h.Revoke)
	router.GET("/receipts/:id", h.GetReceipt)
	router.GET("/revocations/:id", h.GetRevocation)
	router.POST("/lint/policy", h.LintPolicy)
	router.POST("/lint/token", h.LintToken)
	router.GET("/usage", h.Usage)

	return router
}
