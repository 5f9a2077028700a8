package conversation_test

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/yapper-sdk-go/yapper"
	"github.com/vovakirdan/yapper-sdk-go/yapper/internal/bus"
	"github.com/vovakirdan/yapper-sdk-go/yapper/pagination"
	"github.com/vovakirdan/yapper-sdk-go/yapper/rest"
)

const me = "u1"

// fakeEvents delivers events synchronously to registered listeners, the way
// a socket read loop would.
type fakeEvents struct {
	mu       sync.Mutex
	handlers map[string][]*yapper.Listener
}

func (e *fakeEvents) On(event string, l *yapper.Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, x := range e.handlers[event] {
		if x == l {
			return
		}
	}
	e.handlers[event] = append(e.handlers[event], l)
}

func (e *fakeEvents) Off(event string, l *yapper.Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.handlers[event]
	for i, x := range list {
		if x == l {
			e.handlers[event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func (e *fakeEvents) count(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers[event])
}

func (e *fakeEvents) emit(t *testing.T, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)

	e.mu.Lock()
	list := append([]*yapper.Listener(nil), e.handlers[event]...)
	e.mu.Unlock()
	for _, l := range list {
		require.NoError(t, l.Deliver(yapper.Event{Name: event, Data: raw}))
	}
}

type emitted struct {
	Event   string
	Payload any
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recordingEmitter) Emit(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{Event: event, Payload: payload})
}

func (r *recordingEmitter) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Event
	}
	return out
}

func (r *recordingEmitter) all() []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]emitted(nil), r.events...)
}

func (r *recordingEmitter) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// fakeAPI serves messages from memory with offset cursors.
type fakeAPI struct {
	mu       sync.Mutex
	messages map[string][]rest.Message
	sender   *rest.Participant
	err      error
	gate     chan struct{}
	calls    map[string]int
	chats    int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		messages: make(map[string][]rest.Message),
		sender:   &rest.Participant{ID: "u2", Username: "bob"},
		calls:    make(map[string]int),
	}
}

func (a *fakeAPI) seed(chatID string, n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	msgs := make([]rest.Message, n)
	for i := range msgs {
		msgs[i] = rest.Message{
			ID:        chatID + "-m" + strconv.Itoa(i),
			ChatID:    chatID,
			Content:   "message " + strconv.Itoa(i),
			CreatedAt: time.Date(2024, 5, 1, 10, i, 0, 0, time.UTC),
		}
	}
	a.messages[chatID] = msgs
}

func (a *fakeAPI) setErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

func (a *fakeAPI) setGate(ch chan struct{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gate = ch
}

func (a *fakeAPI) count(chatID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[chatID]
}

func (a *fakeAPI) chatFetches() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chats
}

func (a *fakeAPI) GetChats(context.Context, rest.ChatsParams) (*rest.ChatsPage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chats++
	return &rest.ChatsPage{Chats: []rest.Chat{}}, nil
}

func (a *fakeAPI) GetChat(_ context.Context, chatID string) (*rest.Chat, error) {
	return &rest.Chat{ID: chatID}, nil
}

func (a *fakeAPI) GetMessages(ctx context.Context, p rest.MessagesParams) (*rest.MessagesPage, error) {
	a.mu.Lock()
	a.calls[p.ChatID]++
	gate, err := a.gate, a.err
	all := a.messages[p.ChatID]
	sender := a.sender
	a.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	off := 0
	if p.Cursor != "" {
		off, _ = strconv.Atoi(p.Cursor)
	}
	end := min(off+p.Limit, len(all))
	page := &rest.MessagesPage{
		ChatID:     p.ChatID,
		Sender:     sender,
		Messages:   append([]rest.Message(nil), all[off:end]...),
		Pagination: rest.Pagination{HasMore: end < len(all)},
	}
	if page.Pagination.HasMore {
		page.Pagination.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

type fakeHost struct {
	ctx     context.Context
	cfg     yapper.Config
	events  *fakeEvents
	emitter *recordingEmitter
	rooms   *yapper.Rooms
	api     *fakeAPI
	queries *pagination.Store
	bus     *bus.Bus
}

func newFakeHost(t *testing.T) *fakeHost {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cfg := yapper.DefaultConfig()
	cfg.MessagesPerPage = 50
	cfg.TypingTimeout = 0
	cfg.FetchRetries = 0

	b := bus.New()
	em := &recordingEmitter{}
	h := &fakeHost{
		ctx:     ctx,
		cfg:     cfg,
		events:  &fakeEvents{handlers: make(map[string][]*yapper.Listener)},
		emitter: em,
		rooms:   yapper.NewRooms(em),
		api:     newFakeAPI(),
		queries: pagination.NewStore(ctx, time.Minute, pagination.Options{}, b),
		bus:     b,
	}
	t.Cleanup(func() {
		cancel()
		_ = b.Close()
	})
	return h
}

func (h *fakeHost) Context() context.Context   { return h.ctx }
func (h *fakeHost) Config() yapper.Config      { return h.cfg }
func (h *fakeHost) Logger() yapper.Logger      { return yapper.NopLogger() }
func (h *fakeHost) UserID() string             { return me }
func (h *fakeHost) Events() yapper.EventSource { return h.events }
func (h *fakeHost) Emitter() yapper.Emitter    { return h.emitter }
func (h *fakeHost) Rooms() yapper.RoomTracker  { return h.rooms }
func (h *fakeHost) API() yapper.ChatAPI        { return h.api }
func (h *fakeHost) Queries() *pagination.Store { return h.queries }
func (h *fakeHost) Changes() yapper.Changes    { return h.bus }

var errUnavailable = errors.New("service unavailable")
