// Package ratelimit implements the per-IP and per-tenant request quotas
// from spec §4.7, as fixed-window counters over the State Manager's
// IncrementBy primitive, adapted from the teacher's in-memory token-bucket
// limiter (internal/middleware/ratelimit.go). Windows are aligned to UTC
// calendar boundaries (minute, hour, day, month) and a count resets when a
// new window starts; the windows do not slide.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/agentoauth/evaluator/internal/state"
)

// Window names a fixed counting window.
type Window string

const (
	WindowMinute  Window = "minute"
	WindowHour    Window = "hour"
	WindowDay     Window = "day"
	WindowMonth   Window = "month"
)

func (w Window) duration() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	case WindowMonth:
		return 30 * 24 * time.Hour
	default:
		return time.Minute
	}
}

func (w Window) bucket(now time.Time) string {
	now = now.UTC()
	switch w {
	case WindowMinute:
		return now.Format("2006-01-02T15:04")
	case WindowHour:
		return now.Format("2006-01-02T15")
	case WindowDay:
		return now.Format("2006-01-02")
	case WindowMonth:
		return now.Format("2006-01")
	default:
		return now.Format("2006-01-02T15:04")
	}
}

// Result reports the outcome of a Check and the values needed to populate
// the X-RateLimit-* response headers.
type Result struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetUnix int64
}

// Limiter checks and increments fixed-window counters keyed by an arbitrary
// subject (an IP address or a tenant id) and window.
type Limiter struct {
	backend state.Backend
}

// NewLimiter constructs a Limiter over the given Backend.
func NewLimiter(backend state.Backend) *Limiter {
	return &Limiter{backend: backend}
}

// Check increments the counter for (subject, window) at now and reports
// whether the request is within limit. The counter is incremented
// unconditionally (even over limit) so a sustained burst keeps reporting
// Remaining=0 rather than resetting early.
func (l *Limiter) Check(ctx context.Context, subject string, window Window, limit int64, now time.Time) (Result, error) {
	if limit <= 0 {
		return Result{Allowed: true}, nil
	}
	key := fmt.Sprintf("ratelimit:%s:%s:%s", subject, window, window.bucket(now))
	count, err := l.backend.IncrementBy(ctx, key, 1, window.duration())
	if err != nil {
		return Result{}, err
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	reset := windowReset(window, now)

	return Result{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetUnix: reset.Unix(),
	}, nil
}

// Peek reports the current count for (subject, window) at now without
// incrementing it, used by GET /usage to report counters without consuming
// a request's worth of quota in the read itself.
func (l *Limiter) Peek(ctx context.Context, subject string, window Window, now time.Time) (int64, error) {
	key := fmt.Sprintf("ratelimit:%s:%s:%s", subject, window, window.bucket(now))
	stored, err := l.backend.Get(ctx, key)
	if errors.Is(err, state.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	count, err := strconv.ParseInt(stored, 10, 64)
	if err != nil {
		return 0, nil
	}
	return count, nil
}

func windowReset(window Window, now time.Time) time.Time {
	now = now.UTC()
	switch window {
	case WindowMinute:
		return now.Truncate(time.Minute).Add(time.Minute)
	case WindowHour:
		return now.Truncate(time.Hour).Add(time.Hour)
	case WindowDay:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return start.Add(24 * time.Hour)
	case WindowMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start.AddDate(0, 1, 0)
	default:
		return now.Add(time.Minute)
	}
}
