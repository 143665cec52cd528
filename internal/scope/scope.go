// Package scope serializes index mutations per knowledge base.
//
// Each knowledge base owns one Lock. Writers (add, remove, replace chunk
// set) hold it exclusively; readers share it, so a search never observes a
// half-applied mutation. Different knowledge bases never contend.
package scope

import (
	"sync"
	"sync/atomic"

	bankerrors "github.com/Aman-CERP/kbank/internal/errors"
)

// Lock is a reader/writer lock that knows whether its write side is held.
type Lock struct {
	kb   string
	mu   sync.RWMutex
	held atomic.Bool
}

// NewLock creates a standalone lock for kb. Most callers use a Registry.
func NewLock(kb string) *Lock {
	return &Lock{kb: kb}
}

// KB returns the knowledge base this lock guards.
func (l *Lock) KB() string { return l.kb }

// Lock acquires the write side.
func (l *Lock) Lock() {
	l.mu.Lock()
	l.held.Store(true)
}

// Unlock releases the write side.
func (l *Lock) Unlock() {
	l.held.Store(false)
	l.mu.Unlock()
}

// RLock acquires the read side.
func (l *Lock) RLock() { l.mu.RLock() }

// RUnlock releases the read side.
func (l *Lock) RUnlock() { l.mu.RUnlock() }

// Held reports whether the write side is currently held.
func (l *Lock) Held() bool { return l.held.Load() }

// AssertHeld panics with a ConcurrencyViolation when the write side is not
// held. Every *Locked index method calls it first.
func (l *Lock) AssertHeld(op string) {
	if !l.held.Load() {
		panic(bankerrors.ConcurrencyViolation(l.kb, op))
	}
}

// WithLock runs fn under the write side.
func (l *Lock) WithLock(fn func() error) error {
	l.Lock()
	defer l.Unlock()
	return fn()
}

// Registry hands out one Lock per knowledge base.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*Lock
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]*Lock)}
}

// For returns the lock for kb, creating it on first use.
func (r *Registry) For(kb string) *Lock {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[kb]
	if !ok {
		l = NewLock(kb)
		r.locks[kb] = l
	}
	return l
}
