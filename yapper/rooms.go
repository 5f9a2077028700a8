package yapper

import (
	"slices"
	"sync"
)

// RoomTracker joins and leaves per-chat rooms.
type RoomTracker interface {
	JoinChat(chatID string)
	LeaveChat(chatID string)
}

// Rooms tracks which chat rooms this client asked to be in. Joins and leaves
// are fire-and-forget; the set is replayed on every new socket because the
// server forgets membership when a connection ends.
type Rooms struct {
	emitter Emitter

	mu     sync.Mutex
	joined map[string]struct{}
}

// NewRooms creates a tracker that emits through e.
func NewRooms(e Emitter) *Rooms {
	return &Rooms{emitter: e, joined: make(map[string]struct{})}
}

// JoinChat subscribes to chatID's events. Joining a joined room is a no-op.
func (r *Rooms) JoinChat(chatID string) {
	if chatID == "" {
		return
	}
	r.mu.Lock()
	if _, ok := r.joined[chatID]; ok {
		r.mu.Unlock()
		return
	}
	r.joined[chatID] = struct{}{}
	r.mu.Unlock()

	r.emitter.Emit(EventJoinChat, ChatPayload{ChatID: chatID})
}

// LeaveChat unsubscribes from chatID. Leaving a room that was never joined
// emits nothing.
func (r *Rooms) LeaveChat(chatID string) {
	if chatID == "" {
		return
	}
	r.mu.Lock()
	if _, ok := r.joined[chatID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.joined, chatID)
	r.mu.Unlock()

	r.emitter.Emit(EventLeaveChat, ChatPayload{ChatID: chatID})
}

// Joined reports whether chatID is tracked.
func (r *Rooms) Joined(chatID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.joined[chatID]
	return ok
}

// List returns the tracked rooms in sorted order.
func (r *Rooms) List() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.joined))
	for id := range r.joined {
		out = append(out, id)
	}
	r.mu.Unlock()
	slices.Sort(out)
	return out
}

// Resync re-emits a join for every tracked room through e, normally the
// socket that just connected.
func (r *Rooms) Resync(e Emitter) {
	for _, id := range r.List() {
		e.Emit(EventJoinChat, ChatPayload{ChatID: id})
	}
}

// Reset forgets every room without emitting.
func (r *Rooms) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.joined)
}
