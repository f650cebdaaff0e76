package bus

import "sync"

// Handler receives every event emitted for the session it subscribed to
// (or every event, for global handlers). Handlers are assumed unreliable:
// a panicking handler never affects other handlers or the emitter.
type Handler func(sessionID string, event Event)

type entry struct {
	fn Handler
}

// EventBus fans session events out to per-session and global subscribers.
// Global subscribers belong to long-lived cross-cutting services and have
// a lifetime independent of any session's cleanup.
type EventBus struct {
	mu       sync.Mutex
	sessions map[string][]*entry
	global   []*entry
}

func NewEventBus() *EventBus {
	return &EventBus{sessions: map[string][]*entry{}}
}

// Subscribe registers a per-session handler and returns its unsubscribe
// function. Multiple handlers per session are allowed.
func (b *EventBus) Subscribe(sessionID string, fn Handler) func() {
	e := &entry{fn: fn}
	b.mu.Lock()
	b.sessions[sessionID] = append(b.sessions[sessionID], e)
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		b.sessions[sessionID] = removeEntry(b.sessions[sessionID], e)
		if len(b.sessions[sessionID]) == 0 {
			delete(b.sessions, sessionID)
		}
		b.mu.Unlock()
	}
}

// SubscribeAll registers a handler for every session's events.
func (b *EventBus) SubscribeAll(fn Handler) func() {
	e := &entry{fn: fn}
	b.mu.Lock()
	b.global = append(b.global, e)
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		b.global = removeEntry(b.global, e)
		b.mu.Unlock()
	}
}

// Emit invokes every handler subscribed to sessionID, then every global
// handler. Each invocation is isolated: a handler that panics does not
// prevent delivery to the remaining handlers and nothing propagates to
// the emitter.
func (b *EventBus) Emit(sessionID string, event Event) {
	b.mu.Lock()
	targets := make([]*entry, 0, len(b.sessions[sessionID])+len(b.global))
	targets = append(targets, b.sessions[sessionID]...)
	targets = append(targets, b.global...)
	b.mu.Unlock()
	for _, e := range targets {
		invoke(e.fn, sessionID, event)
	}
}

func invoke(fn Handler, sessionID string, event Event) {
	defer func() {
		_ = recover()
	}()
	fn(sessionID, event)
}

// RemoveSessionSubscribers drops every handler for one ended session.
func (b *EventBus) RemoveSessionSubscribers(sessionID string) {
	b.mu.Lock()
	delete(b.sessions, sessionID)
	b.mu.Unlock()
}

// ClearAllSessionSubscribers drops every per-session handler. Global
// handlers are untouched.
func (b *EventBus) ClearAllSessionSubscribers() {
	b.mu.Lock()
	b.sessions = map[string][]*entry{}
	b.mu.Unlock()
}

// PruneSubscribers removes entries for sessions the caller judges stale.
// Defends against leaks when a session-end event was missed.
func (b *EventBus) PruneSubscribers(stale func(sessionID string) bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	pruned := 0
	for id := range b.sessions {
		if stale(id) {
			delete(b.sessions, id)
			pruned++
		}
	}
	return pruned
}

// SessionCount reports the number of sessions with at least one handler.
func (b *EventBus) SessionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// GlobalCount reports the number of global handlers.
func (b *EventBus) GlobalCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.global)
}

func removeEntry(entries []*entry, target *entry) []*entry {
	for i, e := range entries {
		if e != target {
			continue
		}
		last := len(entries) - 1
		entries[i] = entries[last]
		entries[last] = nil
		return entries[:last]
	}
	return entries
}
