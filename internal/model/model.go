// Package model defines the AgentOAuth wire types shared across the
// evaluator's components: the token payload, policy, intent, request
// context, and receipt shapes from spec §3.
package model

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Supported token versions.
const (
	VersionV02 = "act.v0.2"
	VersionV03 = "act.v0.3"
)

// PolicyVersion is the only supported policy schema version.
const PolicyVersion = "pol.v0.2"

// IntentType is the only supported intent type.
const IntentType = "webauthn.v0"

// ReceiptVersion is the only supported receipt schema version.
const ReceiptVersion = "receipt.v0.2"

// Period enumerates the per_period accounting windows.
type Period string

const (
	PeriodHour  Period = "hour"
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// Amount is a currency amount with an opaque currency code. Comparisons and
// additions always go through decimal.Decimal to avoid floating-point
// drift; currency is never converted, only compared for equality.
type Amount struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// ResourceMatch describes one entry of policy.resources.
type ResourceMatch struct {
	Type  string `json:"type"`
	Match struct {
		IDs      []string `json:"ids,omitempty"`
		Prefixes []string `json:"prefixes,omitempty"`
	} `json:"match"`
}

// TimeConstraints describes policy.constraints.time.
type TimeConstraints struct {
	DOW   []string `json:"dow,omitempty"`
	Start string   `json:"start,omitempty"`
	End   string   `json:"end,omitempty"`
	TZ    string   `json:"tz,omitempty"`
}

// Limits describes policy.limits.
type Limits struct {
	PerTxn    *Amount `json:"per_txn,omitempty"`
	PerPeriod *struct {
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
		Period   Period          `json:"period"`
	} `json:"per_period,omitempty"`
}

// Constraints wraps policy.constraints.
type Constraints struct {
	Time *TimeConstraints `json:"time,omitempty"`
}

// Policy is the structured authorization contract embedded in a token
// (pol.v0.2).
type Policy struct {
	Version     string          `json:"version"`
	ID          string          `json:"id"`
	Actions     []string        `json:"actions"`
	Resources   []ResourceMatch `json:"resources,omitempty"`
	Limits      *Limits         `json:"limits,omitempty"`
	Constraints *Constraints    `json:"constraints,omitempty"`
	Strict      bool            `json:"strict,omitempty"`
}

// CheckUnknownFields re-decodes raw against the Policy schema with unknown
// fields disallowed, returning encoding/json's "unknown field" error naming
// the offending field if the policy (or any nested object — resources,
// limits, constraints) carries one the schema doesn't define. Used only for
// policy.strict == true, where spec §3 requires unknown fields to fail
// linting rather than be silently dropped.
func CheckUnknownFields(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var p Policy
	return dec.Decode(&p)
}

// Intent is the WebAuthn-backed approval block (webauthn.v0), present when
// Token.Ver == VersionV03.
type Intent struct {
	Type               string `json:"type"`
	CredentialID       string `json:"credential_id"`
	Signature          string `json:"signature"`
	ClientDataJSON     string `json:"client_data_json"`
	AuthenticatorData  string `json:"authenticator_data"`
	ApprovedAt         string `json:"approved_at"`
	ValidUntil         string `json:"valid_until"`
	Challenge          string `json:"challenge"`
	RPID               string `json:"rp_id"`
}

// Token is the decoded JWS payload (the header is handled by the Codec).
type Token struct {
	Ver        string  `json:"ver"`
	JTI        string  `json:"jti"`
	User       string  `json:"user"`
	Agent      string  `json:"agent"`
	Scope      Scope   `json:"scope"`
	Iss        string  `json:"iss,omitempty"`
	Aud        string  `json:"aud,omitempty"`
	Exp        int64   `json:"exp"`
	Nonce      string  `json:"nonce"`
	Policy     Policy  `json:"policy"`
	PolicyHash string  `json:"policy_hash"`
	Intent     *Intent `json:"intent,omitempty"`
}

// Scope accepts either a single action string or an array of action names,
// per spec §3 ("scope: string or array of action names").
type Scope []string

// RequestContext is the caller-supplied evaluation context for verify/simulate.
type RequestContext struct {
	Action         string           `json:"action"`
	Resource       *ResourceContext `json:"resource,omitempty"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	Currency       string           `json:"currency,omitempty"`
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
	Timestamp      string           `json:"timestamp,omitempty"`
}

// ResourceContext is context.resource.
type ResourceContext struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Remaining describes the remaining per-period budget in a receipt.
type Remaining struct {
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	PeriodEnds string          `json:"period_ends"`
}

// Receipt is the evaluator-signed decision record (receipt.v0.2).
type Receipt struct {
	Version           string     `json:"version"`
	ID                string     `json:"id"`
	PolicyID          string     `json:"policy_id"`
	Decision          string     `json:"decision"`
	Reason            string     `json:"reason,omitempty"`
	Timestamp         string     `json:"timestamp"`
	Remaining         *Remaining `json:"remaining,omitempty"`
	IntentVerified    *bool      `json:"intent_verified,omitempty"`
	IntentValidUntil  string     `json:"intent_valid_until,omitempty"`
	IntentApprovedAt  string     `json:"intent_approved_at,omitempty"`
}

const (
	DecisionAllow = "ALLOW"
	DecisionDeny  = "DENY"
)
