package redis

import (
	"context"
	"sync"
	"time"
)

// InMem is an in-process Client used by tests and local development.
// It honours the same contract as the real client: lazy TTL expiry,
// atomic SetNX and Rename.
type InMem struct {
	mu      sync.Mutex
	strings map[string]string
	sets    map[string]map[string]struct{}
	expiry  map[string]time.Time

	// now is swappable so tests can control the clock.
	now func() time.Time
}

func NewInMem() *InMem {
	return &InMem{
		strings: make(map[string]string),
		sets:    make(map[string]map[string]struct{}),
		expiry:  make(map[string]time.Time),
		now:     time.Now,
	}
}

// SetClock overrides the time source.
func (m *InMem) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// expired must be called under mu.
func (m *InMem) expired(key string) bool {
	exp, ok := m.expiry[key]
	if !ok {
		return false
	}
	if m.now().Before(exp) {
		return false
	}
	delete(m.strings, key)
	delete(m.sets, key)
	delete(m.expiry, key)
	return true
}

func (m *InMem) setTTL(key string, ttl time.Duration) {
	if ttl > 0 {
		m.expiry[key] = m.now().Add(ttl)
	} else if ttl != KeepTTL {
		delete(m.expiry, key)
	}
}

func (m *InMem) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return nil, ErrKeyNotFound
	}
	v, ok := m.strings[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return []byte(v), nil
}

func (m *InMem) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired(key)
	m.strings[key] = string(value)
	m.setTTL(key, ttl)
	return nil
}

func (m *InMem) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.expired(key) {
		if _, ok := m.strings[key]; ok {
			return false, nil
		}
	}
	m.strings[key] = string(value)
	m.setTTL(key, ttl)
	return true, nil
}

func (m *InMem) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.strings, key)
		delete(m.sets, key)
		delete(m.expiry, key)
	}
	return nil
}

func (m *InMem) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return false, nil
	}
	_, s := m.strings[key]
	_, st := m.sets[key]
	return s || st, nil
}

func (m *InMem) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired(key)
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	for _, member := range members {
		set[member] = struct{}{}
	}
	return nil
}

func (m *InMem) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return nil
	}
	set, ok := m.sets[key]
	if !ok {
		return nil
	}
	for _, member := range members {
		delete(set, member)
	}
	if len(set) == 0 {
		delete(m.sets, key)
		delete(m.expiry, key)
	}
	return nil
}

func (m *InMem) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return nil, nil
	}
	set := m.sets[key]
	out := make([]string, 0, len(set))
	for member := range set {
		out = append(out, member)
	}
	return out, nil
}

func (m *InMem) SUnion(_ context.Context, keys ...string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{})
	for _, key := range keys {
		if m.expired(key) {
			continue
		}
		for member := range m.sets[key] {
			seen[member] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for member := range seen {
		out = append(out, member)
	}
	return out, nil
}

func (m *InMem) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return nil
	}
	_, s := m.strings[key]
	_, st := m.sets[key]
	if s || st {
		m.setTTL(key, ttl)
	}
	return nil
}

func (m *InMem) Rename(_ context.Context, src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(src) {
		return ErrKeyNotFound
	}
	moved := false
	if v, ok := m.strings[src]; ok {
		delete(m.strings, dst)
		delete(m.sets, dst)
		m.strings[dst] = v
		moved = true
	}
	if s, ok := m.sets[src]; ok {
		delete(m.strings, dst)
		delete(m.sets, dst)
		m.sets[dst] = s
		moved = true
	}
	if !moved {
		return ErrKeyNotFound
	}
	if exp, ok := m.expiry[src]; ok {
		m.expiry[dst] = exp
	} else {
		delete(m.expiry, dst)
	}
	delete(m.strings, src)
	delete(m.sets, src)
	delete(m.expiry, src)
	return nil
}

func (m *InMem) Ping(context.Context) error { return nil }
func (m *InMem) Close() error               { return nil }
