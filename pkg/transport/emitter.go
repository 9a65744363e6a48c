package transport

import (
	"sync"

	"github.com/rs/zerolog"
)

// Listener receives the payload of one event.
type Listener func(payload any)

// ListenerID is returned by On and identifies the registration for Off.
type ListenerID uint64

type listenerEntry struct {
	id ListenerID
	fn Listener
}

// emitter is a synchronous per-event fan-out. A panicking listener is logged
// and skipped; the remaining listeners still run.
type emitter struct {
	mu        sync.RWMutex
	nextID    ListenerID
	listeners map[string][]listenerEntry
	logger    zerolog.Logger
}

// On registers fn for event.
func (e *emitter) On(event string, fn Listener) ListenerID {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[string][]listenerEntry)
	}
	e.nextID++
	e.listeners[event] = append(e.listeners[event], listenerEntry{id: e.nextID, fn: fn})
	return e.nextID
}

// Off removes a registration. Unknown ids are ignored.
func (e *emitter) Off(event string, id ListenerID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entries := e.listeners[event]
	for i, entry := range entries {
		if entry.id == id {
			e.listeners[event] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(e.listeners[event]) == 0 {
		delete(e.listeners, event)
	}
}

// Emit calls every listener of event in registration order.
func (e *emitter) Emit(event string, payload any) {
	e.mu.RLock()
	entries := append([]listenerEntry(nil), e.listeners[event]...)
	e.mu.RUnlock()

	for _, entry := range entries {
		e.invoke(event, entry, payload)
	}
}

func (e *emitter) invoke(event string, entry listenerEntry, payload any) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Str("event", event).
				Uint64("listener_id", uint64(entry.id)).
				Interface("panic", r).
				Msg("Transport listener panicked")
		}
	}()
	entry.fn(payload)
}
