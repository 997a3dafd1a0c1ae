// Package receipt implements the AgentOAuth Receipt Signer (C6): minting a
// signed, storable proof of an ALLOW decision.
package receipt

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agentoauth/evaluator/internal/logger"
	"github.com/agentoauth/evaluator/internal/model"
	"github.com/agentoauth/evaluator/internal/state"
)

// TTL is the minimum retention for a stored receipt, per spec §4.6
// ("TTL>=400 days").
const TTL = 400 * 24 * time.Hour

// Signer mints and stores receipts for ALLOW decisions. Its private key is
// a process-wide secret loaded once at startup (spec §5) and only ever read
// in the request path, never mutated.
type Signer struct {
	privateKey ed25519.PrivateKey
	kid        string
	backend    state.Backend
}

// NewSigner constructs a Signer bound to a dedicated EdDSA signing key and
// the State Manager's rcpt: namespace.
func NewSigner(privateKey ed25519.PrivateKey, kid string, backend state.Backend) *Signer {
	return &Signer{privateKey: privateKey, kid: kid, backend: backend}
}

// generateID produces an id of the form "rcpt_<32-hex>", mirroring the
// teacher's crypto/rand-backed id-generation idiom (GenerateAPIKey,
// GenerateSessionID).
func generateID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("receipt: failed to generate id: %w", err)
	}
	return "rcpt_" + hex.EncodeToString(b), nil
}

// Mint builds a receipt.v0.2 payload for an ALLOW decision, signs it as a
// compact EdDSA JWS, and persists it under rcpt:<id>.
//
// Per spec §4.6, a signing or storage failure must NOT fail the ALLOW
// outcome: Mint returns an empty token and id (with the underlying error for audit
// purposes) rather than an error the caller must propagate as a DENY.
func (s *Signer) Mint(ctx context.Context, r model.Receipt) (id string, token string, mintErr error) {
	id, err := generateID()
	if err != nil {
		logger.Receipt().Warn().Err(err).Msg("failed to generate receipt id; omitting receipt")
		return "", "", err
	}
	r.ID = id
	r.Version = model.ReceiptVersion

	claims := jwt.MapClaims{
		"version":   r.Version,
		"id":        r.ID,
		"policy_id": r.PolicyID,
		"decision":  r.Decision,
		"timestamp": r.Timestamp,
	}
	if r.Reason != "" {
		claims["reason"] = r.Reason
	}
	if r.Remaining != nil {
		claims["remaining"] = map[string]interface{}{
			"amount":      r.Remaining.Amount.String(),
			"currency":    r.Remaining.Currency,
			"period_ends": r.Remaining.PeriodEnds,
		}
	}
	if r.IntentVerified != nil {
		claims["intent_verified"] = *r.IntentVerified
		claims["intent_valid_until"] = r.IntentValidUntil
		claims["intent_approved_at"] = r.IntentApprovedAt
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = s.kid

	signed, err := tok.SignedString(s.privateKey)
	if err != nil {
		logger.Receipt().Warn().Err(err).Str("receipt_id", id).Msg("failed to sign receipt; omitting receipt")
		return "", "", err
	}

	if err := s.backend.Put(ctx, state.ReceiptKey(id), signed, TTL); err != nil {
		logger.Receipt().Warn().Err(err).Str("receipt_id", id).Msg("failed to persist receipt; omitting receipt")
		return "", "", err
	}

	return id, signed, nil
}

// Get retrieves a previously minted receipt's compact JWS by id, or
// state.ErrNotFound if unknown.
func (s *Signer) Get(ctx context.Context, id string) (string, error) {
	return s.backend.Get(ctx, state.ReceiptKey(id))
}
