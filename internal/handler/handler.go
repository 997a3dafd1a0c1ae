// Package handler implements the AgentOAuth Request Handler (C7): the HTTP
// surface wiring together the Canonicalizer, Token Codec, Intent Validator,
// Policy Engine, State Manager, and Receipt Signer behind rate limiting,
// tenant attribution, and the audit hook, per spec §4.7.
package handler

import (
	"time"

	"github.com/agentoauth/evaluator/internal/audit"
	"github.com/agentoauth/evaluator/internal/config"
	"github.com/agentoauth/evaluator/internal/intent"
	"github.com/agentoauth/evaluator/internal/ratelimit"
	"github.com/agentoauth/evaluator/internal/receipt"
	"github.com/agentoauth/evaluator/internal/state"
	"github.com/agentoauth/evaluator/internal/token"
)

// Handler holds every component the Request Handler wires together. It is
// built once at startup and is read-only for the lifetime of the process
// except through the components it holds (state.Manager, ratelimit.Limiter),
// which own their own concurrency.
type Handler struct {
	Config    config.Config
	Resolver  token.Resolver
	Intent    *intent.Validator
	State     *state.Manager
	Receipts  *receipt.Signer
	RateLimit *ratelimit.Limiter
	Audit     *audit.Logger

	startedAt time.Time
}

// New constructs a Handler from its fully-wired components.
func New(cfg config.Config, resolver token.Resolver, iv *intent.Validator, sm *state.Manager, rs *receipt.Signer, rl *ratelimit.Limiter, al *audit.Logger) *Handler {
	return &Handler{
		Config:    cfg,
		Resolver:  resolver,
		Intent:    iv,
		State:     sm,
		Receipts:  rs,
		RateLimit: rl,
		Audit:     al,
		startedAt: time.Now(),
	}
}
