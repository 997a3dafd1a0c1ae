package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agentoauth/evaluator/internal/logger"
	"github.com/agentoauth/evaluator/internal/model"
)

// ReplayTTLFloor is the minimum TTL applied to a replay entry when a token's
// exp has already passed by the time Apply runs (spec §4.5: "TTL=max(exp-now,0)").
const ReplayTTLFloor = 0

// IdempotencyTTL is the fixed TTL for idem: entries, per spec §3.
const IdempotencyTTL = 1 * time.Hour

// RevocationTTL is the minimum TTL for rev: entries, per spec §4.5 ("TTL>=365 days").
const RevocationTTL = 365 * 24 * time.Hour

// ErrReplay is returned by Apply when the same jti has already been applied.
var ErrReplay = errors.New("state: replay detected")

// ApplyRequest carries everything the State Manager needs to perform the
// stateful half of a verify/simulate request, after stateless policy checks
// have already passed.
type ApplyRequest struct {
	PolicyID       string
	JTI            string
	Exp            int64 // unix seconds, zero if token carries no exp
	IdempotencyKey string
	Amount         *decimal.Decimal
	Currency       string
	PerPeriod      *model.Limits // nil if policy sets no limits; PerPeriod.PerPeriod is nil without a per_period limit
	Now            time.Time
}

// Outcome is the result of Apply or Simulate.
type Outcome struct {
	Allowed   bool
	Reason    string
	Remaining *model.Remaining
	// Replayed is true when Allowed is false because of replay detection
	// (I4), distinguishing it from a budget denial for callers that need
	// to pick a different HTTP status / error code.
	Replayed bool
	// FromIdempotency is true when this Outcome was served verbatim from a
	// prior idem: entry rather than freshly computed.
	FromIdempotency bool
}

// Manager is the State Manager (C5): the exclusive owner of all mutating
// evaluator state. All methods are safe for concurrent use; atomicity of the
// budget check-and-increment is delegated to Backend.CompareAndSet, which
// the Redis implementation backs with a Lua script and the in-memory
// implementation backs with a mutex.
type Manager struct {
	backend Backend
}

// NewManager constructs a Manager over the given Backend.
func NewManager(backend Backend) *Manager {
	return &Manager{backend: backend}
}

// Stats reports lightweight backend reachability diagnostics, grounded on
// the teacher's cache.GetStats, for the verbose mode of GET /health. It
// never blocks normal request handling and is not on any evaluation path.
func (m *Manager) Stats(ctx context.Context) map[string]string {
	const probeKey = "health:probe"
	start := time.Now()
	if err := m.backend.Put(ctx, probeKey, "1", time.Second); err != nil {
		return map[string]string{"backend_reachable": "false"}
	}
	return map[string]string{
		"backend_reachable": "true",
		"probe_latency_ms":  fmt.Sprintf("%d", time.Since(start).Milliseconds()),
	}
}

// CheckRevocation reports whether jti or policyID has been revoked, and
// which one, per spec §4.5 ("look up rev:jti:<jti> and rev:pol:<policy_id>").
// Checked once by the Request Handler after signature/intent/hash checks
// and before stateless policy evaluation.
func (m *Manager) CheckRevocation(ctx context.Context, jti, policyID string) (revoked bool, which string, err error) {
	if jti != "" {
		ok, err := m.backend.Exists(ctx, RevJTIKey(jti))
		if err != nil {
			return false, "", err
		}
		if ok {
			return true, "jti", nil
		}
	}
	if policyID != "" {
		ok, err := m.backend.Exists(ctx, RevPolicyKey(policyID))
		if err != nil {
			return false, "", err
		}
		if ok {
			return true, "policy", nil
		}
	}
	return false, "", nil
}

// Revoke creates a revocation entry for jti and/or policyID. Idempotent:
// revoking an already-revoked jti/policy succeeds and reports revoked:true.
func (m *Manager) Revoke(ctx context.Context, jti, policyID string) error {
	if jti == "" && policyID == "" {
		return fmt.Errorf("state: revoke requires jti or policy_id")
	}
	if jti != "" {
		if err := m.backend.Put(ctx, RevJTIKey(jti), "1", RevocationTTL); err != nil {
			return err
		}
	}
	if policyID != "" {
		if err := m.backend.Put(ctx, RevPolicyKey(policyID), "1", RevocationTTL); err != nil {
			return err
		}
	}
	return nil
}

// Apply runs the mutating six-step flow from spec §4.5. It is the only path
// that writes to the budget/replay/idem namespaces.
func (m *Manager) Apply(ctx context.Context, req ApplyRequest) (*Outcome, error) {
	return m.apply(ctx, req, true)
}

// Simulate runs the identical accounting logic as Apply but performs no
// writes to any namespace (I5: simulate isolation) and ignores replay and
// idempotency entirely, per spec §4.5.
func (m *Manager) Simulate(ctx context.Context, req ApplyRequest) (*Outcome, error) {
	return m.apply(ctx, req, false)
}

func (m *Manager) apply(ctx context.Context, req ApplyRequest, mutating bool) (*Outcome, error) {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	if mutating && req.JTI != "" {
		replayKey := ReplayKey(req.JTI)
		ttl := ReplayTTLFloor
		if req.Exp > 0 {
			if secs := req.Exp - now.Unix(); secs > 0 {
				ttl = int(secs)
			}
		}
		won, err := m.backend.SetNX(ctx, replayKey, "1", time.Duration(ttl)*time.Second)
		if err != nil {
			return nil, fmt.Errorf("%w", err)
		}
		if !won {
			return &Outcome{Allowed: false, Reason: "Replay detected", Replayed: true}, nil
		}
	}

	if mutating && req.IdempotencyKey != "" {
		stored, err := m.backend.Get(ctx, IdemKey(req.IdempotencyKey))
		if err == nil {
			return decodeStoredOutcome(stored), nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	if req.PerPeriod == nil || req.PerPeriod.PerPeriod == nil || req.Amount == nil {
		// No per-period limit configured, or request carries no monetary
		// amount: nothing to meter, allow with no remaining figure.
		out := &Outcome{Allowed: true}
		if mutating && req.IdempotencyKey != "" {
			m.persistIdempotent(ctx, req.IdempotencyKey, out)
		}
		return out, nil
	}

	limit := req.PerPeriod.PerPeriod
	if req.Currency != limit.Currency {
		out := &Outcome{Allowed: false, Reason: fmt.Sprintf(
			"Currency mismatch: request %s, limit %s", req.Currency, limit.Currency)}
		if mutating && req.IdempotencyKey != "" {
			m.persistIdempotent(ctx, req.IdempotencyKey, out)
		}
		return out, nil
	}

	budgetKey := BudgetKey(req.PolicyID, limit.Period, now)
	periodEnd := PeriodEnd(limit.Period, now)

	const maxRetries = 5
	for attempt := 0; attempt < maxRetries; attempt++ {
		spent := decimal.Zero
		stored, err := m.backend.Get(ctx, budgetKey)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if err == nil {
			spent, err = decimal.NewFromString(stored)
			if err != nil {
				spent = decimal.Zero
			}
		}

		remaining := limit.Amount.Sub(spent)
		if req.Amount.GreaterThan(remaining) {
			out := &Outcome{
				Allowed: false,
				Reason: fmt.Sprintf("Amount %s %s exceeds remaining budget %s %s",
					req.Amount.String(), req.Currency, remaining.String(), limit.Currency),
				Remaining: &model.Remaining{Amount: remaining, Currency: limit.Currency, PeriodEnds: periodEnd.Format(time.RFC3339)},
			}
			if mutating && req.IdempotencyKey != "" {
				m.persistIdempotent(ctx, req.IdempotencyKey, out)
			}
			return out, nil
		}

		if !mutating {
			newRemaining := remaining.Sub(*req.Amount)
			return &Outcome{
				Allowed:   true,
				Remaining: &model.Remaining{Amount: newRemaining, Currency: limit.Currency, PeriodEnds: periodEnd.Format(time.RFC3339)},
			}, nil
		}

		newSpent := spent.Add(*req.Amount)
		expected := ""
		if err == nil {
			expected = stored
		}
		casErr := m.backend.CompareAndSet(ctx, budgetKey, expected, newSpent.String(), periodEnd.Sub(now))
		if casErr == nil {
			newRemaining := limit.Amount.Sub(newSpent)
			out := &Outcome{
				Allowed:   true,
				Remaining: &model.Remaining{Amount: newRemaining, Currency: limit.Currency, PeriodEnds: periodEnd.Format(time.RFC3339)},
			}
			if req.IdempotencyKey != "" {
				m.persistIdempotent(ctx, req.IdempotencyKey, out)
			}
			return out, nil
		}
		if errors.Is(casErr, ErrConflict) {
			continue // contention on the budget key: retry the read-compare-write
		}
		return nil, casErr
	}

	return nil, fmt.Errorf("state: exhausted retries applying budget for %s", budgetKey)
}

// persistIdempotent stores a successful-or-failed decision verbatim under
// idem:<key>, best-effort — a failure here must not change the outcome
// already being returned to the caller.
func (m *Manager) persistIdempotent(ctx context.Context, key string, out *Outcome) {
	encoded := encodeStoredOutcome(out)
	if err := m.backend.Put(ctx, IdemKey(key), encoded, IdempotencyTTL); err != nil {
		logger.State().Warn().Err(err).Str("idempotency_key", key).Msg("failed to persist idempotent decision")
	}
}

// encodeStoredOutcome/decodeStoredOutcome serialize an Outcome to the
// compact form stored under idem: keys: five fields joined by the 0x1F
// unit-separator byte. A full JSON envelope
// would also work; this mirrors the teacher's preference for small,
// grep-able cache values over a generic serialization layer.
func encodeStoredOutcome(out *Outcome) string {
	allowed := "0"
	if out.Allowed {
		allowed = "1"
	}
	remAmount, remCurrency, remEnds := "", "", ""
	if out.Remaining != nil {
		remAmount = out.Remaining.Amount.String()
		remCurrency = out.Remaining.Currency
		remEnds = out.Remaining.PeriodEnds
	}
	return fmt.Sprintf("%s\x1f%s\x1f%s\x1f%s\x1f%s", allowed, out.Reason, remAmount, remCurrency, remEnds)
}

func decodeStoredOutcome(stored string) *Outcome {
	parts := splitStoredOutcome(stored)
	out := &Outcome{FromIdempotency: true}
	if len(parts) > 0 {
		out.Allowed = parts[0] == "1"
	}
	if len(parts) > 1 {
		out.Reason = parts[1]
	}
	if len(parts) > 4 && parts[2] != "" {
		amt, err := decimal.NewFromString(parts[2])
		if err == nil {
			out.Remaining = &model.Remaining{Amount: amt, Currency: parts[3], PeriodEnds: parts[4]}
		}
	}
	return out
}

func splitStoredOutcome(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\x1f' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}
