// Package token implements the AgentOAuth Token Codec (C2): compact-JWS
// parse and EdDSA signature verification.
//
// Decoding never performs I/O — the lint endpoints rely on that. Verifying
// a signature requires a JWKSResolver, which may perform I/O lazily.
package token

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agentoauth/evaluator/internal/apierr"
	"github.com/agentoauth/evaluator/internal/model"
)

// Header is the decoded JWS header.
type Header struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	Typ string `json:"typ"`
}

// Decoded is a parsed token: header and payload, independent of signature
// verification.
type Decoded struct {
	Header  Header
	Payload model.Token
	Raw     string // original compact-serialized token

	// RawPolicy is the exact bytes of payload.policy as the issuer wrote
	// them, kept alongside the lossy typed decode into Payload.Policy.
	// model.Policy drops unknown fields (omitempty, no catch-all) and
	// renders amounts through shopspring/decimal, so re-marshaling
	// Payload.Policy will not reproduce the issuer's original bytes byte
	// for byte — an explicit "strict":false, an extra field, or a
	// non-canonical number literal (500.00 vs 500) all survive in
	// RawPolicy but not in Payload.Policy. policy_hash was computed by
	// the issuer over its own bytes, so the hash-binding check must
	// canonicalize RawPolicy, never Payload.Policy.
	RawPolicy json.RawMessage
}

// Resolver resolves a kid to the Ed25519 public key that signed it. Returns
// a non-nil error when the kid cannot be resolved; Verify reports any such
// error as apierr.UnknownKid.
type Resolver interface {
	Resolve(ctx context.Context, kid string) (ed25519.PublicKey, error)
}

// Decode parses a compact token into header and payload without verifying
// the signature. Used by the decode-only lint endpoints.
func Decode(raw string) (*Decoded, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, apierr.InvalidToken("token is not three dot-separated parts")
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, apierr.InvalidToken("invalid base64url header")
	}
	var hdr Header
	if err := json.Unmarshal(headerBytes, &hdr); err != nil {
		return nil, apierr.InvalidToken("invalid header JSON")
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, apierr.InvalidToken("invalid base64url payload")
	}
	var payload model.Token
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, apierr.InvalidToken("invalid payload JSON")
	}

	var rawFields struct {
		Policy json.RawMessage `json:"policy"`
	}
	if err := json.Unmarshal(payloadBytes, &rawFields); err != nil {
		return nil, apierr.InvalidToken("invalid payload JSON")
	}

	if _, err := base64.RawURLEncoding.DecodeString(parts[2]); err != nil {
		return nil, apierr.InvalidToken("invalid base64url signature")
	}

	return &Decoded{Header: hdr, Payload: payload, Raw: raw, RawPolicy: rawFields.Policy}, nil
}

// Verify decodes raw and verifies its EdDSA signature against the key
// resolved for its kid. Mirrors the teacher's algorithm-confusion guard in
// internal/auth/jwt.go (ValidateToken): the signing method is type-asserted
// before any key material is trusted, so a token cannot force verification
// down a different algorithm than the one the evaluator expects.
func Verify(ctx context.Context, raw string, resolver Resolver) (*Decoded, error) {
	decoded, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	var resolveErr error
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unsupported alg %v", t.Header["alg"])
		}
		kid, _ := t.Header["kid"].(string)
		key, err := resolver.Resolve(ctx, kid)
		if err != nil {
			resolveErr = err
			return nil, err
		}
		return key, nil
	})

	if resolveErr != nil {
		return nil, apierr.UnknownKid(decoded.Header.Kid).WithDetails(resolveErr.Error())
	}
	if err != nil {
		if decoded.Header.Alg != "EdDSA" {
			return nil, apierr.UnsupportedAlg(decoded.Header.Alg)
		}
		return nil, apierr.InvalidSignature()
	}
	if !token.Valid {
		return nil, apierr.InvalidSignature()
	}

	return decoded, nil
}
