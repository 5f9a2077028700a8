package yapper

import (
	"context"
	"net/http"
	"sync"

	"github.com/vovakirdan/yapper-sdk-go/yapper/internal/bus"
	"github.com/vovakirdan/yapper-sdk-go/yapper/pagination"
	"github.com/vovakirdan/yapper-sdk-go/yapper/rest"
)

// TopicConnection is notified on every connection state change.
const TopicConnection = "connection"

// Identity yields the signed-in user's id.
type Identity interface {
	CurrentUserID() string
}

// StaticIdentity is a fixed user id.
type StaticIdentity string

func (id StaticIdentity) CurrentUserID() string { return string(id) }

// ChatAPI is the REST surface the view models read from.
type ChatAPI interface {
	GetChats(ctx context.Context, params rest.ChatsParams) (*rest.ChatsPage, error)
	GetChat(ctx context.Context, chatID string) (*rest.Chat, error)
	GetMessages(ctx context.Context, params rest.MessagesParams) (*rest.MessagesPage, error)
}

// Changes fans out change signals by topic.
type Changes interface {
	Notify(topic string)
	Subscribe(ctx context.Context, topic string) (<-chan struct{}, error)
}

// Host is what a view model needs from the session. Views may emit, listen
// and join rooms, but never open or close the connection.
type Host interface {
	Context() context.Context
	Config() Config
	Logger() Logger
	UserID() string
	Events() EventSource
	Emitter() Emitter
	Rooms() RoomTracker
	API() ChatAPI
	Queries() *pagination.Store
	Changes() Changes
}

// Session ties the connection, listener registry, room set and query cache
// to one authenticated user. Create it on login and Close it on logout.
type Session struct {
	cfg      Config
	logger   Logger
	tokens   TokenSource
	identity Identity

	transport *Transport
	registry  *Registry
	rooms     *Rooms
	api       *rest.Client
	queries   *pagination.Store
	bus       *bus.Bus

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	onError   *Listener
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHTTPClient sets the HTTP client used for REST calls.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) {
		s.api.SetHTTPClient(c)
	}
}

// NewSession wires a session. It does not connect; call Start.
func NewSession(cfg Config, tokens TokenSource, identity Identity, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:      cfg,
		logger:   noopLogger{},
		tokens:   tokens,
		identity: identity,
		registry: NewRegistry(),
		api:      rest.NewClient(cfg.RESTBaseURL),
		bus:      bus.New(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.transport = NewTransport(cfg, tokens)
	s.transport.SetLogger(s.logger)
	s.rooms = NewRooms(s.transport)
	s.queries = pagination.NewStore(ctx, cfg.CacheTime, pagination.Options{
		Retries:    cfg.FetchRetries,
		RetryDelay: cfg.FetchRetryDelay,
	}, s.bus)
	if tokens != nil {
		s.api.SetTokenFunc(tokens.Token)
	}

	s.transport.OnConnect(func(sock *Socket) {
		s.registry.Bind(sock)
		s.rooms.Resync(sock)
	})
	s.transport.OnStateChanged(func(ev StateEvent) {
		fields := map[string]any{"from": ev.OldState.String(), "to": ev.NewState.String()}
		if ev.Error != nil {
			fields["error"] = ev.Error.Error()
		}
		switch {
		case ev.Lost():
			s.logger.Warn("connection lost", fields)
		case ev.NewState.Idle() && ev.Error != nil:
			s.logger.Warn("connection given up", fields)
		default:
			s.logger.Debug("connection state changed", fields)
		}
		s.bus.Notify(TopicConnection)
	})

	s.onError = Handle(func(pe ProtocolError) {
		err := FromProtocolError(&pe)
		s.logger.Warn("server error", map[string]any{"code": err.Code.String(), "message": err.Message})
	})
	s.registry.On(EventError, s.onError)

	return s, nil
}

// Start opens the realtime connection. ErrAuthMissing means nobody is signed
// in; a connection error means the first dial failed and reconnection
// continues in the background.
func (s *Session) Start(ctx context.Context) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	_, err := s.transport.Connect(ctx)
	return err
}

// Close disconnects and stops all background work. Views should be closed
// first.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.registry.Off(EventError, s.onError)
		err = s.transport.Disconnect()
		s.rooms.Reset()
		s.queries.Clear()
		s.cancel()
		if cerr := s.bus.Close(); err == nil {
			err = cerr
		}
	})
	return err
}

// State returns the connection state.
func (s *Session) State() ConnectionState { return s.transport.State() }

// Transport returns the connection manager.
func (s *Session) Transport() *Transport { return s.transport }

// Registry returns the listener registry.
func (s *Session) Registry() *Registry { return s.registry }

// RoomSet returns the room tracker with its inspection methods.
func (s *Session) RoomSet() *Rooms { return s.rooms }

// REST returns the REST client.
func (s *Session) REST() *rest.Client { return s.api }

// Host implementation.

func (s *Session) Context() context.Context   { return s.ctx }
func (s *Session) Config() Config             { return s.cfg }
func (s *Session) Logger() Logger             { return s.logger }
func (s *Session) Events() EventSource        { return s.registry }
func (s *Session) Emitter() Emitter           { return s.transport }
func (s *Session) Rooms() RoomTracker         { return s.rooms }
func (s *Session) API() ChatAPI               { return s.api }
func (s *Session) Queries() *pagination.Store { return s.queries }
func (s *Session) Changes() Changes           { return s.bus }

func (s *Session) UserID() string {
	if s.identity == nil {
		return ""
	}
	return s.identity.CurrentUserID()
}

var _ Host = (*Session)(nil)
