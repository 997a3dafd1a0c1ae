// Package state implements the AgentOAuth State Manager (C5): the
// exclusive owner of all mutating state — per-period budgets, replay
// detection, idempotency, and revocations.
//
// All four namespaces sit behind the Backend interface, the evaluator's
// rendering of the state back-end contract in spec §6 (get/put/
// compare_and_set/increment_by). There is no serialize_on_key operation;
// the State Manager serializes budget updates with CAS retry loops
// instead. Two implementations are
// provided: Redis (production) and an in-memory map (tests, and the
// graceful-degradation dev mode the teacher's own cache package supports).
package state

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("state: key not found")

// ErrConflict is returned by CompareAndSet when the observed value did not
// match expected.
var ErrConflict = errors.New("state: compare-and-set conflict")

// ErrUnavailable is returned when the backend cannot be reached at all —
// the evaluator's Apply flow must fail closed on this (spec §4.5 "Back-end
// availability").
var ErrUnavailable = errors.New("state: backend unavailable")

// Backend is the key-value contract consumed by the State Manager.
type Backend interface {
	// Get returns the stored value, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Put unconditionally stores value with an optional ttl (zero means no
	// expiry).
	Put(ctx context.Context, key, value string, ttl time.Duration) error

	// CompareAndSet stores newValue only if the currently stored value
	// equals expected (an empty expected means "key must not exist").
	// Returns ErrConflict if the comparison fails.
	CompareAndSet(ctx context.Context, key, expected, newValue string, ttl time.Duration) error

	// SetNX stores value only if the key does not already exist, reporting
	// whether it won the race. Used for the replay cache's first-use check
	// and mirrors the teacher's cache.SetNX "for distributed locks" idiom.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key if present.
	Delete(ctx context.Context, key string) error

	// IncrementBy atomically adds delta to the integer stored at key
	// (treating a missing key as zero) and returns the new value. ttl is
	// applied only the first time the key is created, mirroring Redis's
	// INCRBY+EXPIRE-on-create idiom; it is the evaluator's rendering of the
	// state back-end contract's increment_by operation (spec §6), used by
	// the rate limiter's fixed-window counters.
	IncrementBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
}
