package chatlist_test

import (
	"context"
	"encoding/json"
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

type nopEmitter struct{}

func (nopEmitter) Emit(string, any) {}

// chatServer is the server's view of the chat list, served in offset pages.
type chatServer struct {
	mu     sync.Mutex
	chats  []rest.Chat
	err    error
	gate   chan struct{}
	calls  int
	params []rest.ChatsParams
}

func (s *chatServer) set(chats []rest.Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = chats
}

func (s *chatServer) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *chatServer) setGate(ch chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = ch
}

func (s *chatServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *chatServer) GetChats(ctx context.Context, p rest.ChatsParams) (*rest.ChatsPage, error) {
	s.mu.Lock()
	s.calls++
	s.params = append(s.params, p)
	all, err, gate := s.chats, s.err, s.gate
	s.mu.Unlock()

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
	page := &rest.ChatsPage{
		Chats:      append([]rest.Chat(nil), all[off:end]...),
		Pagination: rest.Pagination{HasMore: end < len(all)},
	}
	if page.Pagination.HasMore {
		page.Pagination.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func (s *chatServer) GetChat(_ context.Context, chatID string) (*rest.Chat, error) {
	return &rest.Chat{ID: chatID}, nil
}

func (s *chatServer) GetMessages(context.Context, rest.MessagesParams) (*rest.MessagesPage, error) {
	return &rest.MessagesPage{}, nil
}

func chat(id, name, username string, unread int) rest.Chat {
	return rest.Chat{
		ID:          id,
		Participant: rest.Participant{ID: "p-" + id, Name: name, Username: username},
		UnreadCount: unread,
	}
}

type fakeHost struct {
	ctx     context.Context
	cfg     yapper.Config
	events  *fakeEvents
	api     *chatServer
	queries *pagination.Store
	bus     *bus.Bus
}

func newFakeHost(t *testing.T) *fakeHost {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cfg := yapper.DefaultConfig()
	cfg.ChatsPerPage = 2
	cfg.FetchRetries = 0

	b := bus.New()
	h := &fakeHost{
		ctx:     ctx,
		cfg:     cfg,
		events:  &fakeEvents{handlers: make(map[string][]*yapper.Listener)},
		api:     &chatServer{},
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
func (h *fakeHost) UserID() string             { return "u1" }
func (h *fakeHost) Events() yapper.EventSource { return h.events }
func (h *fakeHost) Emitter() yapper.Emitter    { return nopEmitter{} }
func (h *fakeHost) Rooms() yapper.RoomTracker  { return yapper.NewRooms(nopEmitter{}) }
func (h *fakeHost) API() yapper.ChatAPI        { return h.api }
func (h *fakeHost) Queries() *pagination.Store { return h.queries }
func (h *fakeHost) Changes() yapper.Changes    { return h.bus }

var _ yapper.Host = (*fakeHost)(nil)
