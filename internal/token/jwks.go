package token

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	josejwk "github.com/go-jose/go-jose/v4"

	"github.com/agentoauth/evaluator/internal/logger"
)

// JWKSResolver is a read-mostly, TTL-bounded cache of public keys resolved
// from one or more JWKS endpoints (spec §6 "JWKS resolver contract").
// Background refresh keeps the cache warm; cold-cache fetches on a lookup
// miss must complete within the caller's context deadline.
type JWKSResolver struct {
	urls []string
	ttl  time.Duration

	mu      sync.RWMutex
	keys    map[string]ed25519.PublicKey
	fetched time.Time

	httpClient *http.Client
}

// NewJWKSResolver builds a resolver over the given JWKS endpoint URLs.
func NewJWKSResolver(urls []string, ttl time.Duration) *JWKSResolver {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JWKSResolver{
		urls:       urls,
		ttl:        ttl,
		keys:       make(map[string]ed25519.PublicKey),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Static registers keys directly, bypassing HTTP fetch — used for tests and
// for the receipt-signing key's own kid, which the deployment always knows
// locally.
func (r *JWKSResolver) Static(kid string, key ed25519.PublicKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[kid] = key
}

// Resolve returns the Ed25519 public key for kid, refreshing from the
// configured JWKS URLs if the cache is stale or the kid is unknown.
func (r *JWKSResolver) Resolve(ctx context.Context, kid string) (ed25519.PublicKey, error) {
	r.mu.RLock()
	key, ok := r.keys[kid]
	stale := time.Since(r.fetched) > r.ttl
	r.mu.RUnlock()

	if ok && !stale {
		return key, nil
	}

	if err := r.refresh(ctx); err != nil && !ok {
		return nil, fmt.Errorf("kid %s not resolvable: %w", kid, err)
	}

	r.mu.RLock()
	key, ok = r.keys[kid]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("kid %s unknown", kid)
	}
	return key, nil
}

// Refresh forces a fetch of all configured JWKS endpoints. Intended to be
// called on a background ticker (see cmd/main.go's cron wiring).
func (r *JWKSResolver) Refresh(ctx context.Context) {
	if err := r.refresh(ctx); err != nil {
		logger.Codec().Warn().Err(err).Msg("JWKS background refresh failed; serving stale cache")
	}
}

func (r *JWKSResolver) refresh(ctx context.Context) error {
	fresh := make(map[string]ed25519.PublicKey)

	var lastErr error
	for _, u := range r.urls {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := r.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		var set josejwk.JSONWebKeySet
		if err := json.Unmarshal(body, &set); err != nil {
			lastErr = err
			continue
		}
		for _, k := range set.Keys {
			pub, ok := k.Key.(ed25519.PublicKey)
			if !ok {
				continue
			}
			fresh[k.KeyID] = pub
		}
	}

	if len(fresh) == 0 && lastErr != nil {
		return lastErr
	}

	r.mu.Lock()
	for kid, key := range fresh {
		r.keys[kid] = key
	}
	r.fetched = time.Now()
	r.mu.Unlock()
	return nil
}

// KeySet renders the given kid-to-key map as a public JWKS document, used
// by GET /.well-known/jwks.json for keys this deployment chooses to publish
// (typically just the receipt-signing key). It does not read the resolver's
// cache.
func KeySet(named map[string]ed25519.PublicKey) josejwk.JSONWebKeySet {
	set := josejwk.JSONWebKeySet{}
	for kid, pub := range named {
		set.Keys = append(set.Keys, josejwk.JSONWebKey{
			Key:       pub,
			KeyID:     kid,
			Algorithm: "EdDSA",
			Use:       "sig",
		})
	}
	return set
}
