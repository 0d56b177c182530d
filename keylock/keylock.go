package keylock

import (
	"slices"
	"sync"
	"time"

	"gitlab.com/slon/sharedmutex/rwmutex"
)

// pollInterval is how long a blocked LockKeys sleeps between TryLock rounds.
const pollInterval = time.Millisecond

type entry struct {
	mu   *rwmutex.RWMutex
	refs int
}

// KeyLock hands out reader/writer locks on string keys.
// Entries live only while somebody holds or waits for them.
type KeyLock struct {
	mu    sync.Mutex
	muMap map[string]*entry
}

func New() *KeyLock {
	return &KeyLock{
		muMap: make(map[string]*entry),
	}
}

// Len returns the number of keys currently tracked.
func (l *KeyLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.muMap)
}

// LockKeys locks every key for writing. Keys are taken in sorted order, so
// overlapping calls cannot deadlock each other. Waiting is done by polling
// TryLock, so writers here never register as waiting on the per-key lock.
//
// If cancel fires first, the keys taken so far are released and canceled is
// true; unlock is nil in that case.
func (l *KeyLock) LockKeys(keys []string, cancel <-chan struct{}) (canceled bool, unlock func()) {
	return l.lockKeys(keys, cancel, false)
}

// RLockKeys is LockKeys for reading.
func (l *KeyLock) RLockKeys(keys []string, cancel <-chan struct{}) (canceled bool, unlock func()) {
	return l.lockKeys(keys, cancel, true)
}

func (l *KeyLock) lockKeys(keys []string, cancel <-chan struct{}, shared bool) (bool, func()) {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	entries := l.acquire(keys)
	for i, e := range entries {
		if !wait(e.mu, shared, cancel) {
			release(entries[:i], shared)
			l.drop(keys)
			return true, nil
		}
	}

	var once sync.Once
	return false, func() {
		once.Do(func() {
			release(entries, shared)
			l.drop(keys)
		})
	}
}

func (l *KeyLock) acquire(keys []string) []*entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]*entry, 0, len(keys))
	for _, key := range keys {
		e, ok := l.muMap[key]
		if !ok {
			e = &entry{mu: rwmutex.New()}
			l.muMap[key] = e
		}
		e.refs++
		entries = append(entries, e)
	}
	return entries
}

func (l *KeyLock) drop(keys []string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, key := range keys {
		e := l.muMap[key]
		e.refs--
		if e.refs == 0 {
			delete(l.muMap, key)
		}
	}
}

func wait(mu *rwmutex.RWMutex, shared bool, cancel <-chan struct{}) bool {
	try := mu.TryLock
	if shared {
		try = mu.TryRLock
	}
	if try() {
		return true
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-cancel:
			return false
		case <-ticker.C:
			if try() {
				return true
			}
		}
	}
}

func release(entries []*entry, shared bool) {
	for _, e := range entries {
		if shared {
			e.mu.RUnlock()
		} else {
			e.mu.Unlock()
		}
	}
}
