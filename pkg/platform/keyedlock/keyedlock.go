// Package keyedlock provides per-key mutual exclusion. The transfer
// coordinator uses it to serialize all mutating operations on a product so a
// transfer and a verification cannot race, and batch operations acquire
// member locks in a fixed order to avoid deadlock.
package keyedlock

import (
	"sort"
	"sync"
)

// Mutex serializes critical sections per key. Keys are never evicted; entries
// are a bare sync.Mutex so memory cost is small relative to the mirrored
// records they guard.
type Mutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an empty keyed mutex.
func New() *Mutex {
	return &Mutex{locks: make(map[string]*sync.Mutex)}
}

func (m *Mutex) lockFor(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// Lock acquires the exclusive section for key.
func (m *Mutex) Lock(key string) {
	m.lockFor(key).Lock()
}

// Unlock releases the exclusive section for key. Calling Unlock for a key
// that was never locked panics, same as sync.Mutex.
func (m *Mutex) Unlock(key string) {
	m.lockFor(key).Unlock()
}

// LockAll acquires every key in ascending key order and returns a release
// function. The fixed ordering prevents deadlock between overlapping
// multi-key holders. Duplicate keys are collapsed.
func (m *Mutex) LockAll(keys []string) (release func()) {
	uniq := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			uniq = append(uniq, k)
		}
	}
	sort.Strings(uniq)

	for _, k := range uniq {
		m.Lock(k)
	}
	return func() {
		for i := len(uniq) - 1; i >= 0; i-- {
			m.Unlock(uniq[i])
		}
	}
}
