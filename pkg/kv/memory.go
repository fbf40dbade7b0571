package kv

import (
	"context"
	"errors"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"
)

var _ Store = (*Memory)(nil)

// Memory is an in-memory Store. It is safe for concurrent use and is what
// the tests run on.
type Memory struct {
	mu   sync.RWMutex
	data map[string]memEntry
	opts *Options

	// now is swapped by tests that exercise expiry.
	now func() time.Time
}

type memEntry struct {
	val     []byte
	expires time.Time
}

func (e memEntry) alive(now time.Time) bool {
	return e.expires.IsZero() || now.Before(e.expires)
}

// NewMemory creates a new in-memory Store. Pass nil for default options.
func NewMemory(opts *Options) *Memory {
	return &Memory{
		data: make(map[string]memEntry),
		opts: opts,
		now:  time.Now,
	}
}

// SetClock overrides the clock used to evaluate entry TTLs.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func (m *Memory) Get(_ context.Context, key Key) ([]byte, error) {
	k := string(m.opts.encode(key))
	m.mu.RLock()
	e, ok := m.data[k]
	now := m.now()
	m.mu.RUnlock()
	if !ok || !e.alive(now) {
		return nil, ErrNotFound
	}
	return slices.Clone(e.val), nil
}

func (m *Memory) Set(_ context.Context, key Key, value []byte) error {
	k := string(m.opts.encode(key))
	m.mu.Lock()
	m.data[k] = memEntry{val: slices.Clone(value)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Update(_ context.Context, key Key, fn UpdateFunc) error {
	k := string(m.opts.encode(key))
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		old    []byte
		exists bool
	)
	if e, ok := m.data[k]; ok && e.alive(m.now()) {
		old, exists = slices.Clone(e.val), true
	}
	val, err := fn(old, exists)
	if errors.Is(err, ErrAbort) {
		return nil
	}
	if err != nil {
		return err
	}
	m.data[k] = memEntry{val: slices.Clone(val)}
	return nil
}

func (m *Memory) Delete(_ context.Context, key Key) error {
	k := string(m.opts.encode(key))
	m.mu.Lock()
	delete(m.data, k)
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(_ context.Context, prefix Key) iter.Seq2[Entry, error] {
	p := string(m.opts.prefix(prefix))

	m.mu.RLock()
	now := m.now()
	var keys []string
	snapshot := make(map[string][]byte)
	for k, e := range m.data {
		if strings.HasPrefix(k, p) && e.alive(now) {
			keys = append(keys, k)
			snapshot[k] = slices.Clone(e.val)
		}
	}
	m.mu.RUnlock()
	slices.Sort(keys)

	return func(yield func(Entry, error) bool) {
		for _, k := range keys {
			if !yield(Entry{Key: m.opts.decode([]byte(k)), Value: snapshot[k]}, nil) {
				return
			}
		}
	}
}

func (m *Memory) BatchSet(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, e := range entries {
		me := memEntry{val: slices.Clone(e.Value)}
		if e.TTL > 0 {
			me.expires = now.Add(e.TTL)
		}
		m.data[string(m.opts.encode(e.Key))] = me
	}
	return nil
}

func (m *Memory) BatchDelete(_ context.Context, keys []Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, string(m.opts.encode(key)))
	}
	return nil
}

func (m *Memory) Close() error {
	return nil
}
