package chatlist

import (
	"sync"

	"github.com/vovakirdan/yapper-sdk-go/yapper"
	"github.com/vovakirdan/yapper-sdk-go/yapper/pagination"
)

// Aggregator keeps the chat list server-authoritative: every new message and
// every unread summary invalidates the whole list, so the final state does
// not depend on which of the two arrives first.
type Aggregator struct {
	host yapper.Host

	onNewMessage *yapper.Listener
	onSummary    *yapper.Listener

	mu      sync.Mutex
	started bool
	summary yapper.UnreadChatsSummary
	seen    bool
}

// NewAggregator creates a stopped aggregator.
func NewAggregator(host yapper.Host) *Aggregator {
	a := &Aggregator{host: host}
	a.onNewMessage = yapper.Handle(a.handleNewMessage)
	a.onSummary = yapper.Handle(a.handleSummary)
	return a
}

// Start registers the listeners. Calling it twice is harmless.
func (a *Aggregator) Start() {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.started = true
	a.mu.Unlock()

	events := a.host.Events()
	events.On(yapper.EventNewMessage, a.onNewMessage)
	events.On(yapper.EventUnreadChatsSummary, a.onSummary)
}

// Stop removes the listeners.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return
	}
	a.started = false
	a.mu.Unlock()

	events := a.host.Events()
	events.Off(yapper.EventNewMessage, a.onNewMessage)
	events.Off(yapper.EventUnreadChatsSummary, a.onSummary)
}

// Summary returns the last unread summary and whether one was received.
func (a *Aggregator) Summary() (yapper.UnreadChatsSummary, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.summary, a.seen
}

func (a *Aggregator) handleNewMessage(yapper.NewMessageEvent) {
	a.host.Queries().Invalidate(pagination.KeyChats)
}

func (a *Aggregator) handleSummary(s yapper.UnreadChatsSummary) {
	a.mu.Lock()
	a.summary = s
	a.seen = true
	a.mu.Unlock()

	a.host.Queries().Invalidate(pagination.KeyChats)
	a.host.Changes().Notify(Topic)
}
