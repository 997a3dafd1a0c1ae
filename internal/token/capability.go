package token

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agentoauth/evaluator/internal/apierr"
)

// CapabilityQuotas is the quota block of a tenant API-key capability token.
type CapabilityQuotas struct {
	Daily   int64 `json:"daily"`
	Monthly int64 `json:"monthly"`
}

// CapabilityClaims is the payload of a tenant API-key capability token: a
// signed credential carrying {sub, tier, quotas}, per spec §4.7's tenant
// attribution precedence. It is verified with the same EdDSA/kid machinery
// as an agent token, via CapabilityClaims implementing jwt.Claims through
// the embedded RegisteredClaims.
type CapabilityClaims struct {
	Sub    string           `json:"sub"`
	Tier   string           `json:"tier"`
	Quotas CapabilityQuotas `json:"quotas"`
	jwt.RegisteredClaims
}

// VerifyCapability verifies a compact-serialized tenant capability token,
// applying the same algorithm-confusion guard as Verify: the signing
// method is type-asserted before any key material is trusted. The header's
// typ must be "tenant-key", so an agent token cannot be presented as an API
// key.
func VerifyCapability(ctx context.Context, raw string, resolver Resolver) (*CapabilityClaims, error) {
	claims := &CapabilityClaims{}

	var resolveErr error
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unsupported alg %v", t.Header["alg"])
		}
		if typ, _ := t.Header["typ"].(string); typ != "tenant-key" {
			return nil, fmt.Errorf("unexpected typ %v for a capability token", t.Header["typ"])
		}
		kid, _ := t.Header["kid"].(string)
		key, err := resolver.Resolve(ctx, kid)
		if err != nil {
			resolveErr = err
			return nil, err
		}
		return key, nil
	}, jwt.WithTimeFunc(time.Now))

	if resolveErr != nil {
		return nil, apierr.InvalidAPIKey().WithDetails(resolveErr.Error())
	}
	if err != nil || !parsed.Valid {
		return nil, apierr.InvalidAPIKey()
	}

	return claims, nil
}
