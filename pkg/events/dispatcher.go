// Package events provides a small synchronous publish/subscribe primitive.
// Every stateful entity owns its own Dispatcher; there is no global bus.
package events

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Type names an event, e.g. "ended" or "mute".
type Type string

// Token identifies a registered handler and is used to remove it.
type Token uint64

// Handler receives one emitted event.
type Handler[E any] func(E)

type entry[E any] struct {
	token   Token
	typ     Type
	handler Handler[E]
	removed bool
}

// Dispatcher delivers events to handlers synchronously, in registration
// order, before Emit returns. Handlers are snapshotted when Emit starts:
// handlers added during an emission do not see it, and handlers removed
// during an emission are skipped if they have not run yet.
type Dispatcher[E any] struct {
	mu       sync.Mutex
	next     Token
	handlers map[Type][]*entry[E]
	byToken  map[Token]*entry[E]
	logger   *zap.SugaredLogger
}

// NewDispatcher creates an empty dispatcher. A nil logger disables logging
// of recovered handler panics.
func NewDispatcher[E any](logger *zap.SugaredLogger) *Dispatcher[E] {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Dispatcher[E]{
		handlers: make(map[Type][]*entry[E]),
		byToken:  make(map[Token]*entry[E]),
		logger:   logger,
	}
}

// On registers handler for events of type t.
func (d *Dispatcher[E]) On(t Type, handler Handler[E]) Token {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.next++
	e := &entry[E]{token: d.next, typ: t, handler: handler}
	d.handlers[t] = append(d.handlers[t], e)
	d.byToken[e.token] = e
	return e.token
}

// Off removes the handler registered under tok. It reports whether a
// handler was removed.
func (d *Dispatcher[E]) Off(tok Token) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.byToken[tok]
	if !ok {
		return false
	}
	e.removed = true
	delete(d.byToken, tok)

	list := d.handlers[e.typ]
	kept := make([]*entry[E], 0, len(list))
	for _, h := range list {
		if h != e {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		delete(d.handlers, e.typ)
	} else {
		d.handlers[e.typ] = kept
	}
	return true
}

// Emit delivers ev to every handler registered for t and returns the number
// of handlers invoked. A panicking handler is recovered and logged; later
// handlers still run.
func (d *Dispatcher[E]) Emit(t Type, ev E) int {
	d.mu.Lock()
	snapshot := make([]*entry[E], len(d.handlers[t]))
	copy(snapshot, d.handlers[t])
	d.mu.Unlock()

	delivered := 0
	for _, e := range snapshot {
		d.mu.Lock()
		removed := e.removed
		d.mu.Unlock()
		if removed {
			continue
		}
		d.invoke(t, e, ev)
		delivered++
	}
	return delivered
}

// Count returns the number of handlers registered for t.
func (d *Dispatcher[E]) Count(t Type) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers[t])
}

// Clear removes every handler.
func (d *Dispatcher[E]) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.byToken {
		e.removed = true
	}
	d.handlers = make(map[Type][]*entry[E])
	d.byToken = make(map[Token]*entry[E])
}

func (d *Dispatcher[E]) invoke(t Type, e *entry[E], ev E) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorw("event handler panicked",
				"event", string(t),
				"token", uint64(e.token),
				"panic", fmt.Sprint(r),
			)
		}
	}()
	e.handler(ev)
}
