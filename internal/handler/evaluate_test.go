package handler

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentoauth/evaluator/internal/apierr"
	"github.com/agentoauth/evaluator/internal/audit"
	"github.com/agentoauth/evaluator/internal/canon"
	"github.com/agentoauth/evaluator/internal/config"
	"github.com/agentoauth/evaluator/internal/intent"
	"github.com/agentoauth/evaluator/internal/model"
	"github.com/agentoauth/evaluator/internal/ratelimit"
	"github.com/agentoauth/evaluator/internal/receipt"
	"github.com/agentoauth/evaluator/internal/state"
	"github.com/agentoauth/evaluator/internal/token"
)

func testHandler(t *testing.T) (*Handler, ed25519.PrivateKey, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	const kid = "test-kid"
	resolver := token.NewJWKSResolver(nil, time.Hour)
	resolver.Static(kid, pub)

	backend := state.NewMemoryBackend()

	cfg := config.Config{
		RPID:            "agentoauth.test",
		SigningKid:      kid,
		FreeTierDaily:   1000,
		FreeTierMonthly: 10000,
		IPLimitMinute:   1000,
		IPLimitHour:     10000,
		RequestTimeout:  5 * time.Second,
	}
	cfg.SigningPrivateKey = priv

	h := New(cfg, resolver,
		intent.NewValidator(cfg.RPID, intent.ModeStructural, nil),
		state.NewManager(backend),
		receipt.NewSigner(priv, kid, backend),
		ratelimit.NewLimiter(backend),
		audit.NewLogger(audit.NewLogSink(), "test-salt"))

	return h, priv, kid
}

func signToken(t *testing.T, priv ed25519.PrivateKey, kid string, payload model.Token) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"ver":         payload.Ver,
		"jti":         payload.JTI,
		"user":        payload.User,
		"agent":       payload.Agent,
		"scope":       []string(payload.Scope),
		"iss":         payload.Iss,
		"exp":         payload.Exp,
		"nonce":       payload.Nonce,
		"policy":      payload.Policy,
		"policy_hash": payload.PolicyHash,
	})
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(priv)
	require.NoError(t, err)
	return signed
}

func testPolicy(t *testing.T) model.Policy {
	t.Helper()
	pol := model.Policy{
		Version: model.PolicyVersion,
		ID:      "pol_123",
		Actions: []string{"payments.send"},
	}
	return pol
}

func tokenFor(t *testing.T, priv ed25519.PrivateKey, kid string, pol model.Policy) string {
	t.Helper()
	hash, err := canon.Hash(pol)
	require.NoError(t, err)
	return signToken(t, priv, kid, model.Token{
		Ver: model.VersionV02, JTI: "jti-1", User: "u1", Agent: "a1",
		Scope: model.Scope{"payments.send"}, Iss: "issuer-1",
		Exp: time.Now().Add(time.Hour).Unix(), Nonce: "nonce-1",
		Policy: pol, PolicyHash: hash,
	})
}

func doRequest(h *Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	router := NewRouter(h)
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestVerifyAllowsValidRequest(t *testing.T) {
	h, priv, kid := testHandler(t)
	pol := testPolicy(t)
	raw := tokenFor(t, priv, kid, pol)

	rec := doRequest(h, http.MethodPost, "/verify", map[string]interface{}{
		"token":   raw,
		"context": map[string]interface{}{"action": "payments.send"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, model.DecisionAllow, body["decision"])
	assert.NotEmpty(t, body["receipt_id"])
	assert.NotEmpty(t, rec.Header().Get("X-ACT-Receipt-Id"))
}

func TestVerifyDeniesActionNotInPolicy(t *testing.T) {
	h, priv, kid := testHandler(t)
	pol := testPolicy(t)
	raw := tokenFor(t, priv, kid, pol)

	rec := doRequest(h, http.MethodPost, "/verify", map[string]interface{}{
		"token":   raw,
		"context": map[string]interface{}{"action": "payments.refund"},
	})

	require.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, model.DecisionDeny, body["decision"])
}

func TestVerifyRejectsMissingToken(t *testing.T) {
	h, _, _ := testHandler(t)
	rec := doRequest(h, http.MethodPost, "/verify", map[string]interface{}{
		"context": map[string]interface{}{"action": "payments.send"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyRejectsBadPolicyHash(t *testing.T) {
	h, priv, kid := testHandler(t)
	pol := testPolicy(t)
	raw := signToken(t, priv, kid, model.Token{
		Ver: model.VersionV02, JTI: "jti-2", User: "u1", Agent: "a1",
		Scope: model.Scope{"payments.send"}, Iss: "issuer-1",
		Exp: time.Now().Add(time.Hour).Unix(), Nonce: "nonce-2",
		Policy: pol, PolicyHash: "sha256:0000",
	})

	rec := doRequest(h, http.MethodPost, "/verify", map[string]interface{}{
		"token":   raw,
		"context": map[string]interface{}{"action": "payments.send"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, apierr.CodePolicyHashMismatch, body["code"])
}

func TestSimulateDoesNotMintReceiptOrMutateState(t *testing.T) {
	h, priv, kid := testHandler(t)
	pol := testPolicy(t)
	raw := tokenFor(t, priv, kid, pol)

	rec := doRequest(h, http.MethodPost, "/simulate", map[string]interface{}{
		"token":   raw,
		"context": map[string]interface{}{"action": "payments.send"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["simulation"])
	assert.Nil(t, body["receipt_id"])

	revoked, _, err := h.State.CheckRevocation(context.Background(), "jti-1", pol.ID)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestVerifyRejectsReplayedJTI(t *testing.T) {
	h, priv, kid := testHandler(t)
	pol := testPolicy(t)
	raw := tokenFor(t, priv, kid, pol)

	body := map[string]interface{}{
		"token":   raw,
		"context": map[string]interface{}{"action": "payments.send"},
	}
	first := doRequest(h, http.MethodPost, "/verify", body)
	require.Equal(t, http.StatusOK, first.Code)

	second := doRequest(h, http.MethodPost, "/verify", body)
	require.Equal(t, http.StatusForbidden, second.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.Equal(t, apierr.CodeReplay, resp["code"])
}

func TestRevokeIsIdempotent(t *testing.T) {
	h, _, _ := testHandler(t)

	first := doRequest(h, http.MethodPost, "/revoke", map[string]interface{}{"jti": "jti-9"})
	require.Equal(t, http.StatusOK, first.Code)

	second := doRequest(h, http.MethodPost, "/revoke", map[string]interface{}{"jti": "jti-9"})
	require.Equal(t, http.StatusOK, second.Code)
}

func TestVerifyDeniesRevokedToken(t *testing.T) {
	h, priv, kid := testHandler(t)
	pol := testPolicy(t)
	raw := tokenFor(t, priv, kid, pol)

	require.NoError(t, h.State.Revoke(context.Background(), "jti-1", ""))

	rec := doRequest(h, http.MethodPost, "/verify", map[string]interface{}{
		"token":   raw,
		"context": map[string]interface{}{"action": "payments.send"},
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, apierr.CodeRevoked, body["code"])
}

func TestHealthAndTerms(t *testing.T) {
	h, _, _ := testHandler(t)

	rec := doRequest(h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(h, http.MethodGet, "/terms", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthVerboseReportsBackend(t *testing.T) {
	h, _, _ := testHandler(t)

	rec := doRequest(h, http.MethodGet, "/health?verbose=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	backend, ok := body["state_backend"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "true", backend["backend_reachable"])
}

func TestGetRevocationReflectsRevokeState(t *testing.T) {
	h, _, _ := testHandler(t)

	rec := doRequest(h, http.MethodGet, "/revocations/jti-42", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["revoked"])

	require.NoError(t, h.State.Revoke(context.Background(), "jti-42", ""))

	rec = doRequest(h, http.MethodGet, "/revocations/jti-42", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["revoked"])
}

func TestJWKSPublishesSigningKey(t *testing.T) {
	h, _, kid := testHandler(t)
	rec := doRequest(h, http.MethodGet, "/.well-known/jwks.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), kid)
}
