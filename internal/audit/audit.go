// Package audit implements the evaluator's audit trail: one record per
// request, emitted best-effort and never blocking or failing the response,
// per spec §4.7 and §6 ("Audit sink contract ... best-effort, non-blocking,
// failures logged locally").
//
// Adapted from the teacher's internal/middleware/auditlog.go: same
// async-goroutine emission and field-name redaction idiom, rebuilt around a
// pluggable Sink instead of a direct Postgres dependency (AgentOAuth has no
// audit schema of its own) and AgentOAuth's sanitization rules (hash
// user/agent, band amounts, never record nonce/signature/full tokens).
package audit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/agentoauth/evaluator/internal/logger"
)

// Record is one audit entry, per spec §4.7: method/path, tenant id, hashed
// peer fingerprint, status, latency, sanitized fields, decision code. It
// never carries secrets, nonces, signatures, or full token bytes.
type Record struct {
	Timestamp      time.Time `json:"timestamp"`
	Method         string    `json:"method"`
	Path           string    `json:"path"`
	TenantID       string    `json:"tenant_id,omitempty"`
	PeerFingerprint string   `json:"peer_fingerprint"`
	Status         int       `json:"status"`
	LatencyMS      int64     `json:"latency_ms"`
	Decision       string    `json:"decision,omitempty"`
	DecisionCode   string    `json:"decision_code,omitempty"`
	UserHash       string    `json:"user_hash,omitempty"`
	AgentHash      string    `json:"agent_hash,omitempty"`
	AmountBand     string    `json:"amount_band,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// Sink persists or forwards audit records. Append must be best-effort: a
// failing sink logs locally and must never affect the HTTP response already
// sent to the caller.
type Sink interface {
	Append(ctx context.Context, rec Record) error
}

// LogSink emits records to the structured logger. It is the evaluator's
// default sink when no external audit store is configured — logs are
// themselves durable in any deployment that centralizes them, and the spec
// does not mandate a particular store, only the contract in §6.
type LogSink struct{}

// NewLogSink constructs the default logging sink.
func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) Append(_ context.Context, rec Record) error {
	logger.Audit().Info().
		Time("timestamp", rec.Timestamp).
		Str("method", rec.Method).
		Str("path", rec.Path).
		Str("tenant_id", rec.TenantID).
		Str("peer_fingerprint", rec.PeerFingerprint).
		Int("status", rec.Status).
		Int64("latency_ms", rec.LatencyMS).
		Str("decision", rec.Decision).
		Str("decision_code", rec.DecisionCode).
		Str("user_hash", rec.UserHash).
		Str("agent_hash", rec.AgentHash).
		Str("amount_band", rec.AmountBand).
		Str("error", rec.Error).
		Msg("audit")
	return nil
}

// Logger wraps a Sink with the salted hashing/banding sanitization rules.
// The salt is a process-wide secret (AUDIT_SALT) loaded once at startup and
// read-only in the request path, per spec §5.
type Logger struct {
	sink Sink
	salt []byte
}

// NewLogger constructs a Logger over sink, keyed with salt.
func NewLogger(sink Sink, salt string) *Logger {
	return &Logger{sink: sink, salt: []byte(salt)}
}

// HashField produces a salted, deterministic fingerprint for a sensitive
// field (user, agent, peer IP) without revealing the raw value in the
// audit trail.
func (l *Logger) HashField(value string) string {
	if value == "" {
		return ""
	}
	mac := hmac.New(sha256.New, l.salt)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// BandAmount buckets a monetary amount into a coarse band instead of
// recording the exact figure, per spec §4.7 ("amount banded").
func BandAmount(amount float64) string {
	switch {
	case amount <= 0:
		return "0"
	case amount < 10:
		return "<10"
	case amount < 100:
		return "10-100"
	case amount < 1000:
		return "100-1000"
	case amount < 10000:
		return "1000-10000"
	default:
		return ">=10000"
	}
}

// Emit asynchronously appends rec via the underlying sink. Append failures
// are logged locally and never propagated — an audit failure must never
// fail the HTTP response already sent (spec §4.7).
func (l *Logger) Emit(rec Record) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.sink.Append(ctx, rec); err != nil {
			logger.Audit().Warn().Err(err).Msg("failed to append audit record")
		}
	}()
}
