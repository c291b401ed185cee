package kvstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemStore is an in-process Store used by numberpool/attribution unit
// tests so their concurrency and state-machine logic can be exercised
// without a live Redis. TTLs are honored lazily, on read.
type MemStore struct {
	mu      sync.Mutex
	strings map[string]memEntry
	sets    map[string]map[string]struct{}
	zsets   map[string]map[string]float64
	hashes  map[string]map[string]string
	locks   map[string]string

	subsMu sync.Mutex
	subs   map[string][]func([]byte)
}

type memEntry struct {
	value   []byte
	expires time.Time // zero means no expiry
}

func NewMemStore() *MemStore {
	return &MemStore{
		strings: map[string]memEntry{},
		sets:    map[string]map[string]struct{}{},
		zsets:   map[string]map[string]float64{},
		hashes:  map[string]map[string]string{},
		locks:   map[string]string{},
		subs:    map[string][]func([]byte){},
	}
}

func (m *MemStore) Close() error { return nil }

func (m *MemStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.strings[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(m.strings, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *MemStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	cp := append([]byte(nil), value...)
	m.strings[key] = memEntry{value: cp, expires: exp}
	return nil
}

func (m *MemStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.strings, k)
	}
	return nil
}

func (m *MemStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.strings[key]; ok {
		return true, nil
	}
	if set, ok := m.sets[key]; ok && len(set) > 0 {
		return true, nil
	}
	if z, ok := m.zsets[key]; ok && len(z) > 0 {
		return true, nil
	}
	if h, ok := m.hashes[key]; ok && len(h) > 0 {
		return true, nil
	}
	return false, nil
}

func (m *MemStore) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok {
		set = map[string]struct{}{}
		m.sets[key] = set
	}
	for _, mem := range members {
		set[mem] = struct{}{}
	}
	return nil
}

func (m *MemStore) SRem(_ context.Context, key string, members ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok {
		return 0, nil
	}
	var removed int64
	for _, mem := range members {
		if _, ok := set[mem]; ok {
			delete(set, mem)
			removed++
		}
	}
	return removed, nil
}

func (m *MemStore) SPop(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok || len(set) == 0 {
		return "", false, nil
	}
	for mem := range set {
		delete(set, mem)
		return mem, true, nil
	}
	return "", false, nil
}

func (m *MemStore) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.sets[key]
	out := make([]string, 0, len(set))
	for mem := range set {
		out = append(out, mem)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemStore) SScanMatch(_ context.Context, key, pattern string, _ int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	set := m.sets[key]
	var out []string
	for mem := range set {
		if strings.HasPrefix(mem, prefix) {
			out = append(out, mem)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemStore) zset(key string) map[string]float64 {
	z, ok := m.zsets[key]
	if !ok {
		z = map[string]float64{}
		m.zsets[key] = z
	}
	return z
}

func (m *MemStore) ZAddXX(_ context.Context, key, member string, score float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z := m.zset(key)
	if _, exists := z[member]; !exists {
		return false, nil
	}
	changed := z[member] != score
	z[member] = score
	return changed, nil
}

func (m *MemStore) ZAddNX(_ context.Context, key, member string, score float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z := m.zset(key)
	if _, exists := z[member]; exists {
		return false, nil
	}
	z[member] = score
	return true, nil
}

func (m *MemStore) ZRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zsets[key]
	if !ok {
		return nil
	}
	for _, mem := range members {
		delete(z, mem)
	}
	return nil
}

func (m *MemStore) ZRange(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z := m.zsets[key]
	members := make([]ScoredMember, 0, len(z))
	for mem, score := range z {
		members = append(members, ScoredMember{Member: mem, Score: score})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Score < members[j].Score })
	out := make([]string, len(members))
	for i, sm := range members {
		out[i] = sm.Member
	}
	return out, nil
}

func (m *MemStore) ZRangeByScoreWithScores(_ context.Context, key string, limit int64) ([]ScoredMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z := m.zsets[key]
	members := make([]ScoredMember, 0, len(z))
	for mem, score := range z {
		members = append(members, ScoredMember{Member: mem, Score: score})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Score < members[j].Score })
	if limit > 0 && int64(len(members)) > limit {
		members = members[:limit]
	}
	return members, nil
}

func (m *MemStore) HSet(_ context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = map[string]string{}
		m.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (m *MemStore) HGet(_ context.Context, key, field string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		return "", false, nil
	}
	v, ok := h[field]
	return v, ok, nil
}

func (m *MemStore) HDel(_ context.Context, key string, fields ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		return nil
	}
	for _, f := range fields {
		delete(h, f)
	}
	return nil
}

func (m *MemStore) Publish(_ context.Context, channel string, payload []byte) error {
	m.subsMu.Lock()
	handlers := append([]func([]byte){}, m.subs[channel]...)
	m.subsMu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
	return nil
}

func (m *MemStore) Subscribe(ctx context.Context, channel string, ready chan<- struct{}, handler func([]byte)) error {
	m.subsMu.Lock()
	m.subs[channel] = append(m.subs[channel], handler)
	m.subsMu.Unlock()
	if ready != nil {
		ready <- struct{}{}
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *MemStore) NewLock(name string, holdTimeout, waitTimeout time.Duration) Lock {
	return &memLock{store: m, name: name, holdTimeout: holdTimeout, waitTimeout: waitTimeout}
}

type memLock struct {
	store       *MemStore
	name        string
	holdTimeout time.Duration
	waitTimeout time.Duration
	held        bool
}

func (l *memLock) Acquire(ctx context.Context) error {
	deadline := time.Now().Add(l.waitTimeout)
	for {
		l.store.mu.Lock()
		_, taken := l.store.locks[l.name]
		if !taken {
			l.store.locks[l.name] = l.name
			l.held = true
		}
		l.store.mu.Unlock()
		if l.held {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLockWaitTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (l *memLock) Release(_ context.Context) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	if !l.held {
		return ErrLockNotOwned
	}
	delete(l.store.locks, l.name)
	l.held = false
	return nil
}
