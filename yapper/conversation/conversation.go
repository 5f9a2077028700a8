// Package conversation is the view model of one open chat. It keeps the
// message pages in sync with realtime events, tracks whether the other side
// is typing, and turns input edits into edge-triggered typing signals.
package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vovakirdan/yapper-sdk-go/yapper"
	"github.com/vovakirdan/yapper-sdk-go/yapper/pagination"
	"github.com/vovakirdan/yapper-sdk-go/yapper/rest"
)

// State is the load state of a conversation.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Topic is the change topic of the conversation with chatID.
func Topic(chatID string) string { return "conversation/" + chatID }

// Snapshot is what a presentation layer renders.
type Snapshot struct {
	ChatID             string
	Messages           []rest.Message
	Sender             *rest.Participant
	CurrentUserID      string
	State              State
	Err                error
	IsFetchingNextPage bool
	HasNextPage        bool
	InputText          string
	IsTyping           bool
	OtherUserTyping    bool
}

// Conversation binds one chat's message collection to the realtime stream.
// Open mounts it and Close unmounts it; a closed Conversation cannot be
// reopened.
type Conversation struct {
	host          yapper.Host
	chatID        string
	logger        yapper.Logger
	limit         int
	typingTimeout time.Duration

	onNewMessage    *yapper.Listener
	onMessageSent   *yapper.Listener
	onTyping        *yapper.Listener
	onStoppedTyping *yapper.Listener

	mu          sync.Mutex
	coll        *pagination.Collection[rest.Message]
	ctx         context.Context
	cancel      context.CancelFunc
	opened      bool
	closed      bool
	state       State
	err         error
	input       string
	typing      bool
	otherTyping bool
	typingUser  string
	typingTimer *time.Timer
	typingGen   uint64
	loadGen     uint64
}

// New creates an unmounted conversation for chatID.
func New(host yapper.Host, chatID string) *Conversation {
	cfg := host.Config()
	c := &Conversation{
		host:          host,
		chatID:        chatID,
		logger:        host.Logger(),
		limit:         cfg.MessagesPerPage,
		typingTimeout: cfg.TypingTimeout,
	}
	c.onNewMessage = yapper.Handle(c.handleNewMessage)
	c.onMessageSent = yapper.Handle(c.handleMessageSent)
	c.onTyping = yapper.Handle(c.handleUserTyping)
	c.onStoppedTyping = yapper.Handle(c.handleUserStoppedTyping)
	return c
}

// ChatID returns the chat this conversation shows.
func (c *Conversation) ChatID() string { return c.chatID }

// Open registers the event listeners, joins the chat room and loads the
// first page unless a fresh cached copy exists. A failed load leaves the
// conversation in StateError but still mounted and reactive; the error is
// returned as well.
func (c *Conversation) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return yapper.ErrClosed
	}
	if c.opened || c.chatID == "" {
		c.mu.Unlock()
		return nil
	}
	c.opened = true
	c.ctx, c.cancel = context.WithCancel(c.host.Context())
	c.coll = pagination.Use(c.host.Queries(), pagination.MessagesKey(c.chatID), c.fetchPage, messageID)
	needFetch := c.coll.Observe()
	c.mu.Unlock()

	events := c.host.Events()
	events.On(yapper.EventNewMessage, c.onNewMessage)
	events.On(yapper.EventMessageSent, c.onMessageSent)
	events.On(yapper.EventUserTyping, c.onTyping)
	events.On(yapper.EventUserStoppedTyping, c.onStoppedTyping)
	c.host.Rooms().JoinChat(c.chatID)

	c.logger.Debug("conversation opened", map[string]any{"chat_id": c.chatID, "fetch": needFetch})

	if !needFetch {
		c.mu.Lock()
		c.state = StateReady
		c.mu.Unlock()
		c.changed()
		return nil
	}
	return c.reload(ctx)
}

// Close detaches the listeners, leaves the room and drops the typing flag.
// Fetches still in flight finish without touching this conversation.
func (c *Conversation) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	wasOpen := c.opened
	wasTyping := c.typing
	c.typing = false
	c.otherTyping = false
	c.typingUser = ""
	c.typingGen++
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	cancel := c.cancel
	coll := c.coll
	c.mu.Unlock()

	if wasOpen {
		events := c.host.Events()
		events.Off(yapper.EventNewMessage, c.onNewMessage)
		events.Off(yapper.EventMessageSent, c.onMessageSent)
		events.Off(yapper.EventUserTyping, c.onTyping)
		events.Off(yapper.EventUserStoppedTyping, c.onStoppedTyping)
		if wasTyping {
			c.host.Emitter().Emit(yapper.EventTypingStop, yapper.ChatPayload{ChatID: c.chatID})
		}
		c.host.Rooms().LeaveChat(c.chatID)
		cancel()
		coll.Release()
		c.logger.Debug("conversation closed", map[string]any{"chat_id": c.chatID})
	}
	c.changed()
	return nil
}

// Refetch reloads the conversation from the first page.
func (c *Conversation) Refetch(ctx context.Context) error {
	return c.reload(ctx)
}

// HandleTextChange records the draft and emits typingStart when it becomes
// non-empty and typingStop when it becomes empty again. Other edits emit
// nothing.
func (c *Conversation) HandleTextChange(text string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.input = text
	switch {
	case c.chatID == "":
	case text != "" && !c.typing:
		c.typing = true
		c.host.Emitter().Emit(yapper.EventTypingStart, yapper.ChatPayload{ChatID: c.chatID})
	case text == "" && c.typing:
		c.typing = false
		c.host.Emitter().Emit(yapper.EventTypingStop, yapper.ChatPayload{ChatID: c.chatID})
	}
	c.mu.Unlock()
	c.changed()
}

// HandleSend emits the trimmed draft, then typingStop if typing was
// signalled, then clears the draft. A blank draft is left untouched. The
// message shows up once the server echoes it; there is no local insert.
func (c *Conversation) HandleSend() {
	c.mu.Lock()
	content := strings.TrimSpace(c.input)
	if c.closed || content == "" || c.chatID == "" {
		c.mu.Unlock()
		return
	}
	emitter := c.host.Emitter()
	emitter.Emit(yapper.EventSendMessage, yapper.SendMessagePayload{ChatID: c.chatID, Content: content})
	if c.typing {
		c.typing = false
		emitter.Emit(yapper.EventTypingStop, yapper.ChatPayload{ChatID: c.chatID})
	}
	c.input = ""
	c.mu.Unlock()
	c.changed()
}

// HandleLoadMore fetches older messages when there are any and no such
// fetch is running.
func (c *Conversation) HandleLoadMore(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || c.coll == nil {
		c.mu.Unlock()
		return nil
	}
	coll := c.coll
	c.mu.Unlock()

	snap := coll.Snapshot()
	if !snap.HasMore || snap.FetchingNext {
		return nil
	}
	if err := coll.LoadMore(ctx); err != nil {
		werr := yapper.WrapError(yapper.ErrorFetch, "load older messages", err)
		c.mu.Lock()
		if !c.closed {
			c.err = werr
		}
		c.mu.Unlock()
		c.logger.Warn("load more failed", map[string]any{"chat_id": c.chatID, "error": err.Error()})
		return werr
	}
	return nil
}

// IsOwn reports whether m was written by the current user.
func (c *Conversation) IsOwn(m rest.Message) bool {
	var sender *rest.Participant
	c.mu.Lock()
	if c.coll != nil {
		sender, _ = c.coll.Snapshot().Meta.(*rest.Participant)
	}
	c.mu.Unlock()
	return IsOwn(m, sender, c.host.UserID())
}

// IsOwn decides message ownership. A message that names its sender is own
// when that sender is the current user. Otherwise it falls back to the
// conversation-level sender, which the API reports as the other participant.
func IsOwn(m rest.Message, sender *rest.Participant, currentUserID string) bool {
	if m.SenderID != "" {
		return m.SenderID == currentUserID
	}
	senderID := ""
	if sender != nil {
		senderID = sender.ID
	}
	return senderID != currentUserID
}

// Snapshot returns the current view state.
func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		ChatID:          c.chatID,
		CurrentUserID:   c.host.UserID(),
		State:           c.state,
		Err:             c.err,
		InputText:       c.input,
		IsTyping:        c.typing,
		OtherUserTyping: c.otherTyping,
	}
	if c.coll != nil {
		cs := c.coll.Snapshot()
		s.Messages = cs.Items
		s.Sender, _ = cs.Meta.(*rest.Participant)
		s.IsFetchingNextPage = cs.FetchingNext
		s.HasNextPage = cs.HasMore
	}
	return s
}

// Watch signals whenever the snapshot may have changed. The channel closes
// when ctx is done.
func (c *Conversation) Watch(ctx context.Context) (<-chan struct{}, error) {
	changes := c.host.Changes()
	own, err := changes.Subscribe(ctx, Topic(c.chatID))
	if err != nil {
		return nil, err
	}
	msgs, err := changes.Subscribe(ctx, pagination.MessagesKey(c.chatID))
	if err != nil {
		return nil, err
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for own != nil || msgs != nil {
			select {
			case _, ok := <-own:
				if !ok {
					own = nil
					continue
				}
			case _, ok := <-msgs:
				if !ok {
					msgs = nil
					continue
				}
			}
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()
	return out, nil
}

func (c *Conversation) reload(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || !c.opened {
		c.mu.Unlock()
		return nil
	}
	c.loadGen++
	gen := c.loadGen
	c.state = StateLoading
	coll := c.coll
	c.mu.Unlock()
	c.changed()

	err := coll.Refetch(ctx)

	c.mu.Lock()
	if c.closed || gen != c.loadGen {
		c.mu.Unlock()
		c.logger.Debug("stale messages result discarded", map[string]any{"chat_id": c.chatID})
		return nil
	}
	if err != nil {
		c.state = StateError
		c.err = yapper.WrapError(yapper.ErrorFetch, "load messages", err)
		err = c.err
	} else {
		c.state = StateReady
		c.err = nil
	}
	c.mu.Unlock()
	c.changed()

	if err != nil {
		c.logger.Warn("load messages failed", map[string]any{"chat_id": c.chatID, "error": err.Error()})
	}
	return err
}

// reloadInBackground refetches without blocking the socket read loop.
func (c *Conversation) reloadInBackground() {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()
	go func() {
		_ = c.reload(ctx)
	}()
}

func (c *Conversation) handleNewMessage(ev yapper.NewMessageEvent) {
	if ev.ChatID != c.chatID {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	// The typing user just sent; the stop event may still be on its way.
	if c.otherTyping && ev.Message.SenderID != "" && ev.Message.SenderID == c.typingUser {
		c.clearTypingLocked()
	}
	c.mu.Unlock()

	c.reloadInBackground()
	c.host.Queries().Invalidate(pagination.KeyChats)
}

func (c *Conversation) handleMessageSent(ev yapper.MessageSentEvent) {
	if ev.ChatID != "" && ev.ChatID != c.chatID {
		return
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	c.reloadInBackground()
	c.host.Queries().Invalidate(pagination.KeyChats)
}

func (c *Conversation) handleUserTyping(ev yapper.TypingEvent) {
	if ev.ChatID != c.chatID || ev.UserID == c.host.UserID() {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.otherTyping = true
	c.typingUser = ev.UserID
	c.typingGen++
	gen := c.typingGen
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	if c.typingTimeout > 0 {
		c.typingTimer = time.AfterFunc(c.typingTimeout, func() { c.expireTyping(gen) })
	}
	c.mu.Unlock()
	c.changed()
}

func (c *Conversation) handleUserStoppedTyping(ev yapper.TypingEvent) {
	if ev.ChatID != c.chatID || ev.UserID == c.host.UserID() {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.clearTypingLocked()
	c.mu.Unlock()
	c.changed()
}

func (c *Conversation) expireTyping(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.typingGen || !c.otherTyping {
		c.mu.Unlock()
		return
	}
	c.clearTypingLocked()
	c.mu.Unlock()
	c.logger.Debug("typing indicator expired", map[string]any{"chat_id": c.chatID})
	c.changed()
}

func (c *Conversation) clearTypingLocked() {
	c.otherTyping = false
	c.typingUser = ""
	c.typingGen++
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
}

func (c *Conversation) fetchPage(ctx context.Context, cursor string) (pagination.Page[rest.Message], error) {
	page, err := c.host.API().GetMessages(ctx, rest.MessagesParams{
		ChatID: c.chatID,
		Limit:  c.limit,
		Cursor: cursor,
	})
	if err != nil {
		return pagination.Page[rest.Message]{}, err
	}
	return pagination.Page[rest.Message]{
		Items:      page.Messages,
		HasMore:    page.Pagination.HasMore,
		NextCursor: page.Pagination.NextCursor,
		Meta:       page.Sender,
	}, nil
}

func (c *Conversation) changed() {
	c.host.Changes().Notify(Topic(c.chatID))
}

func messageID(m rest.Message) string { return m.ID }
