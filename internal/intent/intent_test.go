package intent

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentoauth/evaluator/internal/apierr"
	"github.com/agentoauth/evaluator/internal/model"
)

const testRPID = "agentoauth.example"

func b64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

func sampleIntent(policyHash string, validUntil time.Time) *model.Intent {
	clientData, _ := json.Marshal(map[string]interface{}{
		"type":      "webauthn.get",
		"challenge": policyHash,
		"origin":    "https://agentoauth.example",
	})
	// Minimal authenticator_data: 32-byte rpIdHash + 1-byte flags + 4-byte counter.
	authData := make([]byte, 37)
	return &model.Intent{
		Type:              model.IntentType,
		CredentialID:      b64([]byte("cred-1")),
		Signature:         b64([]byte("sig-bytes")),
		ClientDataJSON:    b64(clientData),
		AuthenticatorData: b64(authData),
		ApprovedAt:        time.Now().UTC().Format(time.RFC3339),
		ValidUntil:        validUntil.Format(time.RFC3339),
		Challenge:         policyHash,
		RPID:              testRPID,
	}
}

func TestValidateAcceptsStructurallyValidIntent(t *testing.T) {
	v := NewValidator(testRPID, ModeStructural, nil)
	now := time.Date(2025, 11, 5, 12, 0, 0, 0, time.UTC)
	it := sampleIntent("sha256:abc", now.Add(time.Hour))

	res, errResp := v.Validate(it, "sha256:abc", now)
	require.Nil(t, errResp)
	assert.False(t, res.Verified)
}

func TestValidateRejectsWrongType(t *testing.T) {
	v := NewValidator(testRPID, ModeStructural, nil)
	now := time.Date(2025, 11, 5, 12, 0, 0, 0, time.UTC)
	it := sampleIntent("sha256:abc", now.Add(time.Hour))
	it.Type = "password.v0"

	_, errResp := v.Validate(it, "sha256:abc", now)
	require.NotNil(t, errResp)
	assert.Equal(t, apierr.CodeIntentInvalid, errResp.Code)
}

func TestValidateRejectsExpiredIntentWithNoGracePeriod(t *testing.T) {
	v := NewValidator(testRPID, ModeStructural, nil)
	now := time.Date(2025, 11, 5, 12, 0, 0, 0, time.UTC)
	it := sampleIntent("sha256:abc", now.Add(-1*time.Second))

	_, errResp := v.Validate(it, "sha256:abc", now)
	require.NotNil(t, errResp)
	assert.Equal(t, apierr.CodeIntentExpired, errResp.Code)
}

func TestValidateRejectsPolicyHashMismatch(t *testing.T) {
	v := NewValidator(testRPID, ModeStructural, nil)
	now := time.Date(2025, 11, 5, 12, 0, 0, 0, time.UTC)
	it := sampleIntent("sha256:abc", now.Add(time.Hour))

	_, errResp := v.Validate(it, "sha256:different", now)
	require.NotNil(t, errResp)
	assert.Equal(t, apierr.CodeIntentPolicyMismatch, errResp.Code)
}

func TestValidateRejectsWrongRPID(t *testing.T) {
	v := NewValidator("other-rp.example", ModeStructural, nil)
	now := time.Date(2025, 11, 5, 12, 0, 0, 0, time.UTC)
	it := sampleIntent("sha256:abc", now.Add(time.Hour))

	_, errResp := v.Validate(it, "sha256:abc", now)
	require.NotNil(t, errResp)
	assert.Equal(t, apierr.CodeIntentInvalid, errResp.Code)
}

func TestValidateRejectsNonWebauthnGetCeremony(t *testing.T) {
	v := NewValidator(testRPID, ModeStructural, nil)
	now := time.Date(2025, 11, 5, 12, 0, 0, 0, time.UTC)
	it := sampleIntent("sha256:abc", now.Add(time.Hour))

	clientData, _ := json.Marshal(map[string]interface{}{
		"type":      "webauthn.create",
		"challenge": "sha256:abc",
		"origin":    "https://agentoauth.example",
	})
	it.ClientDataJSON = b64(clientData)

	_, errResp := v.Validate(it, "sha256:abc", now)
	require.NotNil(t, errResp)
	assert.Equal(t, apierr.CodeIntentInvalid, errResp.Code)
}

func TestValidateStrictModeRejectsUnregisteredCredential(t *testing.T) {
	v := NewValidator(testRPID, ModeStrict, nil)
	now := time.Date(2025, 11, 5, 12, 0, 0, 0, time.UTC)
	it := sampleIntent("sha256:abc", now.Add(time.Hour))

	_, errResp := v.Validate(it, "sha256:abc", now)
	require.NotNil(t, errResp)
	assert.Equal(t, apierr.CodeIntentInvalid, errResp.Code)
}
