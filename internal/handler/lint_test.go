package handler

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentoauth/evaluator/internal/canon"
)

func TestLintPolicyStrictRejectsUnknownField(t *testing.T) {
	h, _, _ := testHandler(t)

	rec := doRequest(h, http.MethodPost, "/lint/policy", map[string]interface{}{
		"policy": map[string]interface{}{
			"version": "pol.v0.2",
			"id":      "pol_1",
			"actions": []string{"payments.send"},
			"strict":  true,
			"notes":   "not part of the schema",
		},
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLintPolicyNonStrictAllowsUnknownField(t *testing.T) {
	h, _, _ := testHandler(t)

	rec := doRequest(h, http.MethodPost, "/lint/policy", map[string]interface{}{
		"policy": map[string]interface{}{
			"version": "pol.v0.2",
			"id":      "pol_1",
			"actions": []string{"payments.send"},
			"notes":   "not part of the schema",
		},
	})

	require.Equal(t, http.StatusOK, rec.Code)
}

// TestLintTokenHashSurvivesRawPolicyExtraField proves the hash-binding check
// canonicalizes the issuer's raw policy bytes rather than the typed,
// lossy re-encoding: a token whose policy carries a field model.Policy
// doesn't know about must still validate policy_hash_valid, since the
// issuer hashed the raw object, not the evaluator's internal struct.
func TestLintTokenHashSurvivesRawPolicyExtraField(t *testing.T) {
	h, priv, kid := testHandler(t)

	policy := map[string]interface{}{
		"version": "pol.v0.2",
		"id":      "pol_extra",
		"actions": []string{"payments.send"},
		"notes":   "issuer-added field model.Policy has no field for",
	}
	hash, err := canon.Hash(policy)
	require.NoError(t, err)

	claims := jwt.MapClaims{
		"ver":         "act.v0.2",
		"jti":         "jti-extra",
		"user":        "u1",
		"agent":       "a1",
		"scope":       []string{"payments.send"},
		"iss":         "issuer-1",
		"exp":         time.Now().Add(time.Hour).Unix(),
		"nonce":       "nonce-extra",
		"policy":      policy,
		"policy_hash": hash,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(priv)
	require.NoError(t, err)

	rec := doRequest(h, http.MethodPost, "/lint/token", map[string]interface{}{"token": signed})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["policy_hash_valid"])
}
