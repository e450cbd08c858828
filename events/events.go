// Package events implements the process-wide listener registry described
// in the engine's documented event model: named write operations emit
// once, listeners fire in registration order, and a scoped silent mode
// suppresses emission for selected or all listeners during a callback.
// Grounded in the teacher's event/hook shape (before/after instrumentation
// around database operations) generalized to a standalone pub/sub bus.
package events

import (
	"sync"

	"github.com/forbearing/docdb/consts"
	"github.com/forbearing/docdb/logger"
)

// Listener receives the collection an operation ran against and whatever
// payload the emitting call chose to pass (typically a *document.Document,
// []*document.Document, or a plain map for collection/attribute/index events).
type Listener func(event, collection string, payload any)

// Bus is a process-wide (or, for tests, per-Engine) listener registry.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]Listener

	silentMu   sync.Mutex
	silentAll  bool
	silentOnly map[string]bool
}

// New returns an empty bus ready to register listeners against.
func New() *Bus {
	return &Bus{listeners: make(map[string][]Listener)}
}

// On registers fn against event. Pass consts.EventWildcard to subscribe to
// every event the engine emits.
func (b *Bus) On(event string, fn Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[event] = append(b.listeners[event], fn)
}

// Emit invokes every listener registered for event, then every wildcard
// listener, in registration order. A currently active Silent scope
// suppresses delivery per its own rules.
func (b *Bus) Emit(event, collection string, payload any) {
	b.silentMu.Lock()
	suppressed := b.silentAll || (b.silentOnly != nil && b.silentOnly[event])
	b.silentMu.Unlock()
	if suppressed {
		return
	}

	b.mu.RLock()
	direct := append([]Listener(nil), b.listeners[event]...)
	wild := append([]Listener(nil), b.listeners[consts.EventWildcard]...)
	b.mu.RUnlock()

	for _, fn := range direct {
		fn(event, collection, payload)
	}
	for _, fn := range wild {
		fn(event, collection, payload)
	}

	if logger.Events != nil {
		logger.Events.Debugw("event emitted", "event", event, "collection", collection)
	}
}

// Silent suppresses event delivery for the duration of fn. With no events
// named, every listener is suppressed; with events named, only those are.
// The previous silent state is restored on exit, so nested Silent calls
// compose correctly.
func (b *Bus) Silent(fn func(), events ...string) {
	b.silentMu.Lock()
	prevAll, prevOnly := b.silentAll, b.silentOnly
	if len(events) == 0 {
		b.silentAll = true
	} else {
		only := make(map[string]bool, len(events))
		for k, v := range prevOnly {
			only[k] = v
		}
		for _, e := range events {
			only[e] = true
		}
		b.silentOnly = only
	}
	b.silentMu.Unlock()

	defer func() {
		b.silentMu.Lock()
		b.silentAll, b.silentOnly = prevAll, prevOnly
		b.silentMu.Unlock()
	}()

	fn()
}

// BeforeHook is the adapter-level pre-execution interceptor described in
// spec section 6: invoked with the raw SQL and its bound arguments just
// before a statement executes. adapter.Adapter.Before takes the equivalent
// unnamed function type directly; this alias exists for callers building
// hooks outside an adapter-aware package.
type BeforeHook func(sql string, args []any)
