// Package intent implements the AgentOAuth Intent Validator (C3): binding a
// v0.3 token to a human-approved WebAuthn assertion (webauthn.v0).
//
// Validation runs as the fixed ordered sequence from spec §4.3 — the first
// failing step determines the error, and expiry carries no grace period.
package intent

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/agentoauth/evaluator/internal/apierr"
	"github.com/agentoauth/evaluator/internal/logger"
	"github.com/agentoauth/evaluator/internal/model"
)

// VerificationMode selects how far intent validation goes when no
// registered authenticator key is available for a credential_id. The spec
// (§9, Open Question b) requires deployments to choose one mode and apply
// it uniformly rather than silently downgrading per-request.
type VerificationMode string

const (
	// ModeStrict requires a registered authenticator public key for every
	// credential_id and performs full WebAuthn signature verification;
	// unknown credentials fail closed.
	ModeStrict VerificationMode = "strict"

	// ModeStructural performs every structural check (steps 1-5) and, when
	// no registered key is available, accepts the intent but reports
	// intent_verified:false in the resulting receipt.
	ModeStructural VerificationMode = "structural"
)

// CredentialResolver looks up the registered public key for a WebAuthn
// credential_id, when the deployment maintains one. Returning ok=false
// means "no registered key" rather than an error.
type CredentialResolver interface {
	Resolve(credentialID string) (key []byte, ok bool)
}

// Validator runs the C3 ordered checks.
type Validator struct {
	RPID       string
	Mode       VerificationMode
	Credential CredentialResolver
}

// NewValidator constructs a Validator bound to a fixed rp_id.
func NewValidator(rpID string, mode VerificationMode, resolver CredentialResolver) *Validator {
	if mode == "" {
		mode = ModeStructural
	}
	return &Validator{RPID: rpID, Mode: mode, Credential: resolver}
}

// Result carries the outcome of a successful validation: whether a full
// cryptographic signature check was performed.
type Result struct {
	Verified bool
}

// Validate runs the six-step sequence from spec §4.3 against intent, bound
// to policyHash (the token's policy_hash, which the intent's challenge must
// equal per I2).
func (v *Validator) Validate(it *model.Intent, policyHash string, now time.Time) (*Result, *apierr.Error) {
	// Step 1: type.
	if it.Type != model.IntentType {
		return nil, apierr.IntentInvalid("unsupported intent type")
	}

	// Step 2: expiry, no grace period.
	validUntil, err := time.Parse(time.RFC3339, it.ValidUntil)
	if err != nil {
		return nil, apierr.IntentInvalid("valid_until is not a valid timestamp")
	}
	if now.After(validUntil) {
		return nil, apierr.IntentExpired()
	}

	// Step 3: challenge must equal the token's policy_hash (I2).
	if it.Challenge != policyHash {
		return nil, apierr.IntentPolicyMismatch()
	}

	// Step 4: rp_id must equal this deployment's configured value.
	if it.RPID != v.RPID {
		return nil, apierr.IntentInvalid("rp_id does not match configured relying party")
	}

	// Step 5: every base64url field must decode, and client_data_json must
	// describe a "webauthn.get" ceremony.
	sig, err := base64.RawURLEncoding.DecodeString(it.Signature)
	if err != nil {
		return nil, apierr.IntentInvalid("signature is not valid base64url")
	}
	clientDataRaw, err := base64.RawURLEncoding.DecodeString(it.ClientDataJSON)
	if err != nil {
		return nil, apierr.IntentInvalid("client_data_json is not valid base64url")
	}
	authDataRaw, err := base64.RawURLEncoding.DecodeString(it.AuthenticatorData)
	if err != nil {
		return nil, apierr.IntentInvalid("authenticator_data is not valid base64url")
	}
	if _, err := base64.RawURLEncoding.DecodeString(it.CredentialID); err != nil {
		return nil, apierr.IntentInvalid("credential_id is not valid base64url")
	}

	var clientData protocol.CollectedClientData
	if err := json.Unmarshal(clientDataRaw, &clientData); err != nil {
		return nil, apierr.IntentInvalid("client_data_json is not valid JSON")
	}
	if clientData.Type != protocol.AssertCeremony {
		return nil, apierr.IntentInvalid("client_data_json.type is not webauthn.get")
	}

	if _, err := protocol.ParseAuthenticatorData(authDataRaw); err != nil {
		return nil, apierr.IntentInvalid("authenticator_data could not be parsed")
	}

	// Step 6: full signature verification when a registered key exists,
	// else structural-only per Mode.
	if v.Credential != nil {
		if key, ok := v.Credential.Resolve(it.CredentialID); ok {
			if err := verifyAssertionSignature(key, clientDataRaw, authDataRaw, sig); err != nil {
				return nil, apierr.IntentInvalid("signature verification failed")
			}
			return &Result{Verified: true}, nil
		}
	}

	if v.Mode == ModeStrict {
		return nil, apierr.IntentInvalid("no registered credential for strict verification")
	}

	logger.Intent().Warn().
		Str("credential_id", it.CredentialID).
		Msg("no registered authenticator key; accepting intent structurally")
	return &Result{Verified: false}, nil
}
