package kv

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"time"
)

// MemoryStore is the degraded in-process fallback used when Redis is
// unreachable at startup (spec.md §4.1). It preserves the Store semantics
// minus persistence and TTL enforcement: entries never expire on their own.
// Grounded on the teacher's sync.RWMutex-guarded map store and on
// original_source's FallbackRedis, which the same way trades durability for
// availability when the real backend cannot be reached.
type MemoryStore struct {
	mu      sync.RWMutex
	strings map[string]string
	hashes  map[string]map[string]string
	lists   map[string][]string
	sets    map[string]map[string]struct{}
}

// NewMemoryStore constructs an empty fallback store. Callers MUST log a
// clear warning when switching to this backend (spec.md §4.1); the
// construction itself does not log since it is also used directly in tests.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		strings: make(map[string]string),
		hashes:  make(map[string]map[string]string),
		lists:   make(map[string][]string),
		sets:    make(map[string]map[string]struct{}),
	}
}

func (m *MemoryStore) GetString(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.strings[key]
	return v, ok, nil
}

func (m *MemoryStore) SetString(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strings[key] = value
	return nil
}

func (m *MemoryStore) SetStringIfAbsent(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.strings[key]; ok {
		return false, nil
	}
	m.strings[key] = value
	return true, nil
}

func (m *MemoryStore) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.strings, key)
	delete(m.hashes, key)
	delete(m.lists, key)
	delete(m.sets, key)
	return nil
}

func (m *MemoryStore) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, _ := strconv.ParseInt(m.strings[key], 10, 64)
	cur += delta
	m.strings[key] = strconv.FormatInt(cur, 10)
	return cur, nil
}

func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.strings[key]; ok {
		return true, nil
	}
	if _, ok := m.hashes[key]; ok {
		return true, nil
	}
	if _, ok := m.lists[key]; ok {
		return true, nil
	}
	if _, ok := m.sets[key]; ok {
		return true, nil
	}
	return false, nil
}

// Expire is a no-op: the degraded backend provides no TTL enforcement.
func (m *MemoryStore) Expire(_ context.Context, _ string, _ time.Duration) error {
	return nil
}

func (m *MemoryStore) KeysMatching(_ context.Context, pattern string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix, suffix, hasStar := strings.Cut(pattern, "*")
	matches := func(key string) bool {
		if !hasStar {
			return key == pattern
		}
		return strings.HasPrefix(key, prefix) && strings.HasSuffix(key, suffix)
	}
	seen := map[string]struct{}{}
	var out []string
	add := func(key string) {
		if _, ok := seen[key]; ok {
			return
		}
		if matches(key) {
			seen[key] = struct{}{}
			out = append(out, key)
		}
	}
	for k := range m.strings {
		add(k)
	}
	for k := range m.hashes {
		add(k)
	}
	for k := range m.lists {
		add(k)
	}
	for k := range m.sets {
		add(k)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) HashGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.hashes[key]))
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) HashGet(_ context.Context, key, field string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hashes[key]
	if !ok {
		return "", false, nil
	}
	v, ok := h[field]
	return v, ok, nil
}

func (m *MemoryStore) HashSet(_ context.Context, key string, mapping map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	for k, v := range mapping {
		h[k] = v
	}
	return nil
}

func (m *MemoryStore) HashIncrBy(_ context.Context, key, field string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	cur, _ := strconv.ParseInt(h[field], 10, 64)
	cur += delta
	h[field] = strconv.FormatInt(cur, 10)
	return cur, nil
}

func (m *MemoryStore) ListPushRight(_ context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[key] = append(m.lists[key], value)
	return nil
}

func (m *MemoryStore) ListRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l := m.lists[key]
	n := int64(len(l))
	if n == 0 {
		return []string{}, nil
	}
	s, e := normalizeRange(start, stop, n)
	if s > e {
		return []string{}, nil
	}
	out := make([]string, e-s+1)
	copy(out, l[s:e+1])
	return out, nil
}

func (m *MemoryStore) ListTrim(_ context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.lists[key]
	n := int64(len(l))
	if n == 0 {
		return nil
	}
	s, e := normalizeRange(start, stop, n)
	if s > e {
		m.lists[key] = nil
		return nil
	}
	trimmed := make([]string, e-s+1)
	copy(trimmed, l[s:e+1])
	m.lists[key] = trimmed
	return nil
}

func (m *MemoryStore) ListLen(_ context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.lists[key])), nil
}

func (m *MemoryStore) SetAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[key]
	if !ok {
		s = make(map[string]struct{})
		m.sets[key] = s
	}
	for _, mem := range members {
		s[mem] = struct{}{}
	}
	return nil
}

func (m *MemoryStore) SetMembers(_ context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sets[key]))
	for mem := range m.sets[key] {
		out = append(out, mem)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) SetRemove(_ context.Context, key string, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sets[key], member)
	return nil
}

func (m *MemoryStore) Info(_ context.Context) string {
	return "in-memory (degraded, no persistence/TTL)"
}

// normalizeRange maps Redis-style (possibly negative) LRANGE/LTRIM indices
// onto a slice of length n, clamped to bounds.
func normalizeRange(start, stop, n int64) (int64, int64) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop
}
