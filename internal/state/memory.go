package state

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memEntry struct {
	value   string
	expires time.Time // zero means no expiry
}

// MemoryBackend is an in-process Backend used by tests and by deployments
// that run without STATE_BACKEND_URL configured. It is not shared across
// replicas — the teacher's cache.go accepts the same tradeoff when Redis is
// disabled ("if Redis is disabled... acceptable for development but not
// recommended for production").
type MemoryBackend struct {
	mu   sync.Mutex
	data map[string]memEntry
}

// NewMemoryBackend constructs an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string]memEntry)}
}

func (m *MemoryBackend) expired(e memEntry) bool {
	return !e.expires.IsZero() && time.Now().After(e.expires)
}

func (m *MemoryBackend) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[key]
	if !ok || m.expired(e) {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (m *MemoryBackend) Put(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	m.data[key] = memEntry{value: value, expires: exp}
	return nil
}

func (m *MemoryBackend) CompareAndSet(_ context.Context, key, expected, newValue string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.data[key]
	if ok && m.expired(e) {
		ok = false
	}

	cur := ""
	if ok {
		cur = e.value
	}
	if cur != expected {
		return ErrConflict
	}

	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	m.data[key] = memEntry{value: newValue, expires: exp}
	return nil
}

func (m *MemoryBackend) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.data[key]; ok && !m.expired(e) {
		return false, nil
	}

	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	m.data[key] = memEntry{value: value, expires: exp}
	return true, nil
}

func (m *MemoryBackend) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[key]
	if !ok || m.expired(e) {
		return false, nil
	}
	return true, nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryBackend) IncrementBy(_ context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.data[key]
	if ok && m.expired(e) {
		ok = false
	}

	var current int64
	if ok {
		current, _ = strconv.ParseInt(e.value, 10, 64)
	}
	next := current + delta

	exp := e.expires
	if !ok {
		exp = time.Time{}
		if ttl > 0 {
			exp = time.Now().Add(ttl)
		}
	}
	m.data[key] = memEntry{value: strconv.FormatInt(next, 10), expires: exp}
	return next, nil
}
