package yapper

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Event is a named server event with its undecoded payload.
type Event struct {
	Name string
	Data json.RawMessage
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return UnmarshalData(e.Data, v)
}

// Listener is a registered event handler. Identity is the pointer, so the same
// *Listener registered twice for one event is delivered once.
type Listener struct {
	id string
	fn func(Event) error
}

// NewListener wraps fn as a Listener.
func NewListener(fn func(Event)) *Listener {
	return &Listener{
		id: uuid.NewString(),
		fn: func(ev Event) error {
			fn(ev)
			return nil
		},
	}
}

// Handle returns a Listener that decodes the payload into T before calling fn.
// Undecodable payloads are reported to the socket logger and fn is not called.
func Handle[T any](fn func(T)) *Listener {
	return &Listener{
		id: uuid.NewString(),
		fn: func(ev Event) error {
			var v T
			if err := ev.Decode(&v); err != nil {
				return WrapError(ErrorSerialization, "failed to unmarshal "+ev.Name+" event", err)
			}
			fn(v)
			return nil
		},
	}
}

// ID identifies the listener in logs.
func (l *Listener) ID() string { return l.id }

// Deliver runs the listener for ev. Sockets call it for every matching
// frame; custom event sources can call it too.
func (l *Listener) Deliver(ev Event) error {
	return l.fn(ev)
}

// EventSource registers and removes named-event listeners.
type EventSource interface {
	On(event string, l *Listener)
	Off(event string, l *Listener)
}

// Registry keeps the listener set independently of any socket and replays it
// onto every socket it is bound to. Listeners for one event fire in
// registration order.
type Registry struct {
	mu       sync.Mutex
	handlers map[string][]*Listener
	sock     *Socket
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string][]*Listener)}
}

// On registers l for event and attaches it to the bound socket, if any.
// Registering the same listener twice is a no-op.
func (r *Registry) On(event string, l *Listener) {
	if l == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.handlers[event] {
		if existing == l {
			return
		}
	}
	r.handlers[event] = append(r.handlers[event], l)
	if r.sock != nil {
		r.sock.attach(event, l)
	}
}

// Off removes l from event and detaches it from the bound socket.
// Removing an unknown listener is a no-op.
func (r *Registry) Off(event string, l *Listener) {
	if l == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.handlers[event]
	for i, existing := range list {
		if existing == l {
			r.handlers[event] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(r.handlers[event]) == 0 {
		delete(r.handlers, event)
	}
	if r.sock != nil {
		r.sock.detach(event, l)
	}
}

// Bind attaches every registered listener to s and makes s the target of
// later On/Off calls. It must run on every (re)connection because a new
// socket starts with no attachments.
func (r *Registry) Bind(s *Socket) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sock = s
	if s == nil {
		return
	}
	for event, list := range r.handlers {
		for _, l := range list {
			s.attach(event, l)
		}
	}
}

// Unbind forgets s if it is the bound socket.
func (r *Registry) Unbind(s *Socket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sock == s {
		r.sock = nil
	}
}

// Len returns the number of listeners registered for event.
func (r *Registry) Len(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers[event])
}
