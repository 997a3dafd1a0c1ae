package main

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/agentoauth/evaluator/internal/audit"
	"github.com/agentoauth/evaluator/internal/config"
	"github.com/agentoauth/evaluator/internal/handler"
	"github.com/agentoauth/evaluator/internal/intent"
	"github.com/agentoauth/evaluator/internal/logger"
	"github.com/agentoauth/evaluator/internal/ratelimit"
	"github.com/agentoauth/evaluator/internal/receipt"
	"github.com/agentoauth/evaluator/internal/state"
	"github.com/agentoauth/evaluator/internal/token"
)

func main() {
	cfg := config.Load()

	logger.Initialize(cfg.LogLevel, cfg.LogPretty)
	log := logger.GetLogger()
	log.Info().Str("port", cfg.Port).Str("intent_mode", string(cfg.IntentMode)).Msg("starting evaluator")

	backend, err := newStateBackend(cfg.StateBackendURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize state backend")
	}

	resolver := token.NewJWKSResolver(cfg.JWKSURLs, 10*time.Minute)
	if signingPub, ok := cfg.SigningPrivateKey.Public().(ed25519.PublicKey); ok {
		resolver.Static(cfg.SigningKid, signingPub)
	}

	// Background JWKS refresh, grounded on the teacher's cron-driven
	// session-cleanup job: refresh every 5 minutes, logging failures without
	// ever blocking a request on the outcome.
	c := cron.New()
	if _, err := c.AddFunc("@every 5m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		resolver.Refresh(ctx)
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule jwks refresh")
	}
	c.Start()
	defer c.Stop()

	intentValidator := intent.NewValidator(cfg.RPID, cfg.IntentMode, nil)
	stateManager := state.NewManager(backend)
	receiptSigner := receipt.NewSigner(cfg.SigningPrivateKey, cfg.SigningKid, backend)
	rateLimiter := ratelimit.NewLimiter(backend)
	auditLogger := audit.NewLogger(audit.NewLogSink(), cfg.AuditSalt)

	h := handler.New(cfg, resolver, intentValidator, stateManager, receiptSigner, rateLimiter, auditLogger)
	router := handler.NewRouter(h)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,

		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
}

// newStateBackend selects the Redis-backed state.Backend when
// STATE_BACKEND_URL is configured, falling back to the in-memory backend
// for local development and tests.
func newStateBackend(url string) (state.Backend, error) {
	if url == "" {
		return state.NewMemoryBackend(), nil
	}
	return state.NewRedisBackend(state.RedisConfig{Addr: url})
}
