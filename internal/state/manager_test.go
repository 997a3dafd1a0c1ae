package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentoauth/evaluator/internal/model"
)

// frozenClock matches spec §8's concrete scenarios: 2025-11-05T12:00:00Z.
var frozenClock = time.Date(2025, 11, 5, 12, 0, 0, 0, time.UTC)

func dailyLimit(amount, currency string) *model.Limits {
	l := &model.Limits{}
	l.PerPeriod = &struct {
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
		Period   model.Period    `json:"period"`
	}{Amount: decimal.RequireFromString(amount), Currency: currency, Period: model.PeriodDay}
	return l
}

func amt(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

// Scenario 1: within-limits v0.2 ALLOW remaining=1700 (limit 2000, spend 300).
func TestApplyWithinLimitsAllows(t *testing.T) {
	m := NewManager(NewMemoryBackend())
	req := ApplyRequest{
		PolicyID: "pol1", JTI: "jti-1", Exp: frozenClock.Add(time.Hour).Unix(),
		Amount: amt("300"), Currency: "USD", PerPeriod: dailyLimit("2000", "USD"), Now: frozenClock,
	}
	out, err := m.Apply(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, out.Allowed)
	require.NotNil(t, out.Remaining)
	assert.True(t, out.Remaining.Amount.Equal(decimal.RequireFromString("1700")))
}

// Scenario 2, per-period variant: an amount beyond the remaining budget
// DENYs without mutating the budget.
func TestApplyExceedsPeriodDeniesWithoutMutating(t *testing.T) {
	backend := NewMemoryBackend()
	m := NewManager(backend)
	req := ApplyRequest{
		PolicyID: "pol2", JTI: "jti-2", Exp: frozenClock.Add(time.Hour).Unix(),
		Amount: amt("2500"), Currency: "USD", PerPeriod: dailyLimit("2000", "USD"), Now: frozenClock,
	}
	out, err := m.Apply(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, out.Allowed)
	assert.Contains(t, out.Reason, "exceeds remaining budget")

	_, getErr := backend.Get(context.Background(), BudgetKey("pol2", model.PeriodDay, frozenClock))
	assert.ErrorIs(t, getErr, ErrNotFound)
}

// Scenario 3: exhausts per-period budget across two calls, the second DENYs.
func TestApplyExhaustsPeriodBudget(t *testing.T) {
	m := NewManager(NewMemoryBackend())
	limit := dailyLimit("2000", "USD")

	first, err := m.Apply(context.Background(), ApplyRequest{
		PolicyID: "pol3", JTI: "jti-3a", Exp: frozenClock.Add(time.Hour).Unix(),
		Amount: amt("2000"), Currency: "USD", PerPeriod: limit, Now: frozenClock,
	})
	require.NoError(t, err)
	require.True(t, first.Allowed)
	assert.True(t, first.Remaining.Amount.IsZero())

	second, err := m.Apply(context.Background(), ApplyRequest{
		PolicyID: "pol3", JTI: "jti-3b", Exp: frozenClock.Add(time.Hour).Unix(),
		Amount: amt("1"), Currency: "USD", PerPeriod: limit, Now: frozenClock,
	})
	require.NoError(t, err)
	assert.False(t, second.Allowed)
	assert.Contains(t, second.Reason, "exceeds remaining budget")
}

// Scenario 7 (I4): two concurrent Apply calls sharing a jti produce exactly
// one ALLOW and one replay DENY.
func TestApplyReplayExclusion(t *testing.T) {
	m := NewManager(NewMemoryBackend())
	limit := dailyLimit("2000", "USD")

	var wg sync.WaitGroup
	results := make([]*Outcome, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			out, err := m.Apply(context.Background(), ApplyRequest{
				PolicyID: "pol4", JTI: "jti-shared", Exp: frozenClock.Add(time.Hour).Unix(),
				Amount: amt("100"), Currency: "USD", PerPeriod: limit, Now: frozenClock,
			})
			require.NoError(t, err)
			results[idx] = out
		}(i)
	}
	wg.Wait()

	allowCount, replayCount := 0, 0
	for _, r := range results {
		if r.Allowed {
			allowCount++
		}
		if r.Replayed {
			replayCount++
		}
	}
	assert.Equal(t, 1, allowCount)
	assert.Equal(t, 1, replayCount)
}

// I5: Simulate never mutates the budget, even when it would allow.
func TestSimulateDoesNotMutate(t *testing.T) {
	backend := NewMemoryBackend()
	m := NewManager(backend)
	limit := dailyLimit("2000", "USD")

	out, err := m.Simulate(context.Background(), ApplyRequest{
		PolicyID: "pol5", Amount: amt("500"), Currency: "USD", PerPeriod: limit, Now: frozenClock,
	})
	require.NoError(t, err)
	assert.True(t, out.Allowed)

	_, getErr := backend.Get(context.Background(), BudgetKey("pol5", model.PeriodDay, frozenClock))
	assert.ErrorIs(t, getErr, ErrNotFound)
}

// Idempotency: a second Apply with the same idempotency_key returns the
// original decision verbatim without spending budget twice.
func TestApplyIdempotencyReplaysDecision(t *testing.T) {
	backend := NewMemoryBackend()
	m := NewManager(backend)
	limit := dailyLimit("2000", "USD")

	first, err := m.Apply(context.Background(), ApplyRequest{
		PolicyID: "pol6", JTI: "jti-6a", Exp: frozenClock.Add(time.Hour).Unix(),
		IdempotencyKey: "idem-key-1", Amount: amt("100"), Currency: "USD", PerPeriod: limit, Now: frozenClock,
	})
	require.NoError(t, err)
	require.True(t, first.Allowed)

	second, err := m.Apply(context.Background(), ApplyRequest{
		PolicyID: "pol6", JTI: "jti-6b", Exp: frozenClock.Add(time.Hour).Unix(),
		IdempotencyKey: "idem-key-1", Amount: amt("999"), Currency: "USD", PerPeriod: limit, Now: frozenClock,
	})
	require.NoError(t, err)
	assert.True(t, second.FromIdempotency)
	assert.True(t, second.Allowed)
	assert.True(t, second.Remaining.Amount.Equal(first.Remaining.Amount))
}

// Revocation: Revoke is idempotent and CheckRevocation reports the source.
func TestRevokeAndCheckRevocation(t *testing.T) {
	m := NewManager(NewMemoryBackend())
	ctx := context.Background()

	revoked, which, err := m.CheckRevocation(ctx, "jti-7", "pol7")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, m.Revoke(ctx, "jti-7", ""))
	revoked, which, err = m.CheckRevocation(ctx, "jti-7", "pol7")
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Equal(t, "jti", which)

	// Idempotent: revoking again must not error.
	require.NoError(t, m.Revoke(ctx, "jti-7", ""))
}

func TestAlignedPeriodID(t *testing.T) {
	now := time.Date(2025, 11, 5, 12, 30, 0, 0, time.UTC) // Wednesday, ISO week 45
	assert.Equal(t, "2025-11-05-12", AlignedPeriodID(model.PeriodHour, now))
	assert.Equal(t, "2025-11-05", AlignedPeriodID(model.PeriodDay, now))
	assert.Equal(t, "2025-W45", AlignedPeriodID(model.PeriodWeek, now))
	assert.Equal(t, "2025-11", AlignedPeriodID(model.PeriodMonth, now))
}
