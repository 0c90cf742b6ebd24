package store

import (
	"context"
	"sync"
	"time"
)

// Memory implements Store with a process-local map. A transaction executes
// under a single mutex, which gives it the same all-or-nothing, in-order
// semantics the engine relies on from Redis.
//
// State is local to the process, so Memory cannot enforce a global limit
// across replicas. It exists for unit tests and single-instance deployments.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// entry holds one counter. A zero expiry means the key never expires.
type entry struct {
	value  int64
	expiry time.Time
}

// NewMemory creates an empty in-process counter store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*entry)}
}

func (m *Memory) Tx() Tx {
	return &memoryTx{store: m}
}

// ExpireAt attaches an absolute expiry to key. Missing or expired keys are
// left alone.
func (m *Memory) ExpireAt(ctx context.Context, key string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.live(key, time.Now()); e != nil {
		e.expiry = at
	}
	return nil
}

// PurgeExpired drops every expired key and reports how many were removed.
// Expiry is otherwise evaluated lazily on access, so long-idle keys linger
// until this is called; the janitor in cmd/throttle runs it on a schedule.
func (m *Memory) PurgeExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	purged := 0
	for key, e := range m.entries {
		if !e.expiry.IsZero() && !e.expiry.After(now) {
			delete(m.entries, key)
			purged++
		}
	}
	return purged
}

// Len reports the number of live keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	n := 0
	for key := range m.entries {
		if m.live(key, now) != nil {
			n++
		}
	}
	return n
}

func (m *Memory) Close() error { return nil }

// live returns the entry for key, deleting it first when its expiry has
// passed. Caller must hold the lock.
func (m *Memory) live(key string, now time.Time) *entry {
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if !e.expiry.IsZero() && !e.expiry.After(now) {
		delete(m.entries, key)
		return nil
	}
	return e
}

// memoryTx queues operations as closures and applies them in order under the
// store lock.
type memoryTx struct {
	store *Memory
	ops   []func(now time.Time) Result
	done  bool
}

func (t *memoryTx) Get(key string) {
	t.ops = append(t.ops, func(now time.Time) Result {
		e := t.store.live(key, now)
		if e == nil {
			return Result{}
		}
		return Result{Value: e.value, OK: true}
	})
}

func (t *memoryTx) Set(key string, value int64) {
	t.ops = append(t.ops, func(now time.Time) Result {
		t.store.entries[key] = &entry{value: value}
		return Result{OK: true}
	})
}

func (t *memoryTx) ExpireAt(key string, at time.Time) {
	t.ops = append(t.ops, func(now time.Time) Result {
		e := t.store.live(key, now)
		if e == nil {
			return Result{}
		}
		e.expiry = at
		return Result{OK: true}
	})
}

func (t *memoryTx) RenameNX(src, dst string) {
	t.ops = append(t.ops, func(now time.Time) Result {
		se := t.store.live(src, now)
		if se == nil {
			return Result{}
		}
		if t.store.live(dst, now) != nil {
			// Target exists: the rename does not apply and src is kept.
			return Result{}
		}
		t.store.entries[dst] = se
		delete(t.store.entries, src)
		return Result{OK: true}
	})
}

func (t *memoryTx) Incr(key string) {
	t.ops = append(t.ops, func(now time.Time) Result {
		e := t.store.live(key, now)
		if e == nil {
			e = &entry{}
			t.store.entries[key] = e
		}
		e.value++
		return Result{Value: e.value, OK: true}
	})
}

func (t *memoryTx) TTL(key string) {
	t.ops = append(t.ops, func(now time.Time) Result {
		e := t.store.live(key, now)
		switch {
		case e == nil:
			return Result{Value: TTLMissing, OK: true}
		case e.expiry.IsZero():
			return Result{Value: TTLNone, OK: true}
		}
		remaining := e.expiry.Sub(now)
		// Whole seconds, rounded up, to match the Redis TTL command.
		return Result{Value: int64((remaining + time.Second - 1) / time.Second), OK: true}
	})
}

func (t *memoryTx) Exec(ctx context.Context) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.done {
		return nil, errTxReused
	}
	t.done = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	now := time.Now()
	results := make([]Result, 0, len(t.ops))
	for _, op := range t.ops {
		results = append(results, op(now))
	}
	return results, nil
}
