package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type memEntry struct {
	value []byte
	order int64
}

// Memory is an in-process Store. It backs tests and the "memory" driver.
type Memory struct {
	mu       sync.RWMutex
	entries  map[string]*memEntry
	counters map[string]int64
	order    int64
}

func NewMemory() *Memory {
	return &Memory{
		entries:  map[string]*memEntry{},
		counters: map[string]int64{},
	}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, unavailable(err, "get")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	return clone(e.value), true, nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err, "set")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.put(key, value)
	return nil
}

func (m *Memory) SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, unavailable(err, "setnx")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; ok {
		return false, nil
	}
	m.put(key, value)
	return true, nil
}

func (m *Memory) put(key string, value []byte) {
	if e, ok := m.entries[key]; ok {
		e.value = clone(value)
		return
	}
	m.order++
	m.entries[key] = &memEntry{value: clone(value), order: m.order}
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err, "delete")
	}
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetByPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err, "scan")
	}
	m.mu.RLock()
	type ordered struct {
		Entry
		order int64
	}
	var hits []ordered
	for k, e := range m.entries {
		if strings.HasPrefix(k, prefix) {
			hits = append(hits, ordered{Entry{Key: k, Value: clone(e.value)}, e.order})
		}
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool { return hits[i].order < hits[j].order })
	out := make([]Entry, len(hits))
	for i, h := range hits {
		out[i] = h.Entry
	}
	return out, nil
}

func (m *Memory) Next(ctx context.Context, counter string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable(err, "incr")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters[counter]++
	return m.counters[counter], nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
