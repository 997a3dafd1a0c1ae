package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentoauth/evaluator/internal/state"
)

func TestCheckAllowsWithinLimit(t *testing.T) {
	l := NewLimiter(state.NewMemoryBackend())
	now := time.Date(2025, 11, 5, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		res, err := l.Check(context.Background(), "1.2.3.4", WindowMinute, 5, now)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
}

func TestCheckDeniesOverLimit(t *testing.T) {
	l := NewLimiter(state.NewMemoryBackend())
	now := time.Date(2025, 11, 5, 12, 0, 0, 0, time.UTC)

	var last Result
	for i := 0; i < 4; i++ {
		res, err := l.Check(context.Background(), "1.2.3.4", WindowMinute, 3, now)
		require.NoError(t, err)
		last = res
	}
	assert.False(t, last.Allowed)
	assert.Equal(t, int64(0), last.Remaining)
}

func TestCheckSeparatesSubjectsAndWindows(t *testing.T) {
	l := NewLimiter(state.NewMemoryBackend())
	now := time.Date(2025, 11, 5, 12, 0, 0, 0, time.UTC)

	res, err := l.Check(context.Background(), "1.2.3.4", WindowMinute, 1, now)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = l.Check(context.Background(), "5.6.7.8", WindowMinute, 1, now)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = l.Check(context.Background(), "1.2.3.4", WindowHour, 5, now)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestPeekDoesNotIncrement(t *testing.T) {
	l := NewLimiter(state.NewMemoryBackend())
	now := time.Date(2025, 11, 5, 12, 0, 0, 0, time.UTC)

	count, err := l.Peek(context.Background(), "tenant-1", WindowDay, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	_, err = l.Check(context.Background(), "tenant-1", WindowDay, 1000, now)
	require.NoError(t, err)
	_, err = l.Check(context.Background(), "tenant-1", WindowDay, 1000, now)
	require.NoError(t, err)

	count, err = l.Peek(context.Background(), "tenant-1", WindowDay, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = l.Peek(context.Background(), "tenant-1", WindowDay, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
