// Package guard ties a value to the lock that protects it, so callers only
// reach the value while holding the right mode.
package guard

import (
	"sync"

	"gitlab.com/slon/sharedmutex/rwmutex"
)

// Value holds a T behind a reader/writer lock.
type Value[T any] struct {
	mu rwmutex.Locker
	v  T
}

// Option configures a Value.
type Option func(*options)

type options struct {
	mu rwmutex.Locker
}

// WithLocker replaces the default rwmutex.New() lock.
func WithLocker(mu rwmutex.Locker) Option {
	return func(o *options) {
		o.mu = mu
	}
}

// New creates *Value holding v.
func New[T any](v T, opts ...Option) *Value[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.mu == nil {
		o.mu = rwmutex.New()
	}
	return &Value[T]{mu: o.mu, v: v}
}

// Read calls fn with the value under the shared lock.
// fn must not retain pointers into the value.
func (g *Value[T]) Read(fn func(v T)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fn(g.v)
}

// Write calls fn with a pointer to the value under the exclusive lock.
func (g *Value[T]) Write(fn func(v *T)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.v)
}

// TryRead is Read that gives up instead of waiting for a writer.
func (g *Value[T]) TryRead(fn func(v T)) bool {
	if !g.mu.TryRLock() {
		return false
	}
	defer g.mu.RUnlock()
	fn(g.v)
	return true
}

// TryWrite is Write that gives up instead of waiting.
func (g *Value[T]) TryWrite(fn func(v *T)) bool {
	if !g.mu.TryLock() {
		return false
	}
	defer g.mu.Unlock()
	fn(&g.v)
	return true
}

// Load returns a copy of the value.
func (g *Value[T]) Load() T {
	var v T
	g.Read(func(cur T) { v = cur })
	return v
}

// Store replaces the value.
func (g *Value[T]) Store(v T) {
	g.Write(func(cur *T) { *cur = v })
}

// Locked runs fn while l is held. Pass rw.RLocker() for shared access.
func Locked(l sync.Locker, fn func()) {
	l.Lock()
	defer l.Unlock()
	fn()
}
