package yapper

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/vovakirdan/yapper-sdk-go/yapper/internal"
)

// TokenSource yields the current auth token. An empty token means the user
// is signed out.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Emitter sends fire-and-forget client events.
type Emitter interface {
	Emit(event string, payload any)
}

// Transport owns the single realtime connection. It dials lazily on Connect,
// reconnects a bounded number of times after an unexpected drop, and runs the
// OnConnect hooks against every new socket.
type Transport struct {
	cfg      Config
	tokens   TokenSource
	logger   Logger
	clientID string
	dial     func(ctx context.Context, token string) (*Socket, error)

	// connectMu serializes dial attempts from Connect and the reconnect loop.
	connectMu sync.Mutex

	mu           sync.Mutex
	sock         *Socket
	state        ConnectionState
	stateFns     []func(StateEvent)
	connectFns   []func(*Socket)
	runCtx       context.Context
	cancelRun    context.CancelFunc
	reconnecting bool
	reconnectGen uint64
}

// NewTransport creates a disconnected transport.
func NewTransport(cfg Config, tokens TokenSource) *Transport {
	t := &Transport{
		cfg:      cfg,
		tokens:   tokens,
		logger:   noopLogger{},
		clientID: uuid.NewString(),
		state:    StateDisconnected,
	}
	t.dial = t.dialSocket
	return t
}

// SetLogger sets a custom logger.
func (t *Transport) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	t.logger = l
}

// OnStateChanged registers fn for connection state transitions.
func (t *Transport) OnStateChanged(fn func(StateEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stateFns = append(t.stateFns, fn)
}

// OnConnect registers fn to run against every new socket before it starts
// reading, so listeners bound there see the first server frame.
func (t *Transport) OnConnect(fn func(*Socket)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connectFns = append(t.connectFns, fn)
}

// State returns the current connection state.
func (t *Transport) State() ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Socket returns the live socket or nil. Diagnostics only.
func (t *Transport) Socket() *Socket {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sock != nil && t.sock.Connected() {
		return t.sock
	}
	return nil
}

// Connect returns the live socket, dialing a new one if needed. Without a
// token it returns ErrAuthMissing and does not touch the network. A failed
// dial is returned and also starts background reconnection.
func (t *Transport) Connect(ctx context.Context) (*Socket, error) {
	token, err := t.token(ctx)
	if err != nil {
		t.logger.Warn("no auth token, connection not attempted", map[string]any{"error": err.Error()})
		return nil, err
	}

	t.connectMu.Lock()
	defer t.connectMu.Unlock()

	t.mu.Lock()
	if t.sock != nil && t.sock.Connected() {
		s := t.sock
		t.mu.Unlock()
		return s, nil
	}
	stale := t.sock
	t.sock = nil
	t.reconnecting = false
	t.reconnectGen++
	if t.runCtx == nil {
		t.runCtx, t.cancelRun = context.WithCancel(context.Background())
	}
	notify := t.setStateLocked(StateConnecting, nil)
	t.mu.Unlock()
	notify()

	if stale != nil {
		_ = stale.close("replaced")
	}

	s, err := t.dial(ctx, token)
	if err != nil {
		werr := WrapError(ErrorConnection, "connect failed", err)
		t.logger.Error("connect failed", map[string]any{"url": t.cfg.URL, "error": err.Error()})
		t.scheduleReconnect(werr)
		return nil, werr
	}
	if err := t.install(s); err != nil {
		return nil, err
	}
	t.logger.Info("connected", map[string]any{"socket": s.ID(), "url": t.cfg.URL})
	return s, nil
}

// Disconnect closes the socket and stops reconnection. A later Connect
// starts over.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	if t.cancelRun != nil {
		t.cancelRun()
	}
	t.runCtx, t.cancelRun = nil, nil
	s := t.sock
	t.sock = nil
	t.reconnecting = false
	t.reconnectGen++
	notify := t.setStateLocked(StateClosed, nil)
	t.mu.Unlock()
	notify()

	if s == nil {
		return nil
	}
	t.logger.Info("disconnected", map[string]any{"socket": s.ID()})
	return s.close("client disconnect")
}

// Emit queues a client event on the live socket. Without one, or when the send
// buffer is full, the event is dropped with a warning.
func (t *Transport) Emit(event string, payload any) {
	t.mu.Lock()
	s := t.sock
	t.mu.Unlock()

	if s == nil || !s.Connected() {
		t.logger.Warn("socket not connected, event dropped", map[string]any{"event": event, "code": ErrorEmitDropped.String()})
		return
	}
	if !s.enqueue(Inbound{Event: event, Data: payload}) {
		t.logger.Warn("send buffer full, event dropped", map[string]any{"event": event, "socket": s.ID(), "code": ErrorEmitDropped.String()})
	}
}

func (t *Transport) token(ctx context.Context) (string, error) {
	if t.tokens == nil {
		return "", ErrAuthMissing
	}
	token, err := t.tokens.Token(ctx)
	if err != nil {
		return "", WrapError(ErrorAuthMissing, "read auth token", err)
	}
	if token == "" {
		return "", ErrAuthMissing
	}
	return token, nil
}

func (t *Transport) dialSocket(ctx context.Context, token string) (*Socket, error) {
	u, err := url.Parse(t.cfg.URL)
	if err != nil {
		return nil, WrapError(ErrorInvalidConfig, "invalid socket url", err)
	}
	q := u.Query()
	q.Set("auth", token)
	u.RawQuery = q.Encode()

	if t.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.HandshakeTimeout)
		defer cancel()
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, err := internal.Dial(ctx, u.String(), header, t.cfg.ReadTimeout, t.cfg.WriteTimeout)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, WrapError(ErrorTimeout, "handshake timed out", err)
		}
		return nil, err
	}

	hello := Inbound{
		Event: eventHello,
		Data: HelloPayload{
			Protocol: ProtocolVersion,
			ClientID: t.clientID,
			Auth:     HelloAuth{Token: token},
		},
	}
	if err := conn.Write(ctx, hello); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "handshake failed")
		return nil, WrapError(ErrorConnection, "send hello", err)
	}
	return newSocket(conn, t.cfg.SendBuffer, t.logger), nil
}

// install makes s the live socket, runs the connect hooks and starts its loops.
func (t *Transport) install(s *Socket) error {
	t.mu.Lock()
	if t.runCtx == nil {
		// Disconnect won the race with the dial.
		t.mu.Unlock()
		_ = s.close("client disconnect")
		return ErrClosed
	}
	t.sock = s
	t.reconnecting = false
	runCtx := t.runCtx
	hooks := append([]func(*Socket){}, t.connectFns...)
	notify := t.setStateLocked(StateConnected, nil)
	t.mu.Unlock()

	for _, fn := range hooks {
		fn(s)
	}
	s.start(runCtx, t.cfg.PingInterval, t.handleDrop)
	notify()
	return nil
}

func (t *Transport) handleDrop(s *Socket, err error) {
	t.mu.Lock()
	if t.sock != s {
		t.mu.Unlock()
		return
	}
	t.sock = nil
	t.mu.Unlock()

	t.scheduleReconnect(WrapError(ErrorDisconnected, "connection lost", err))
}

func (t *Transport) scheduleReconnect(cause error) {
	t.mu.Lock()
	if !t.cfg.AutoReconnect || t.cfg.MaxReconnectAttempts <= 0 || t.runCtx == nil {
		notify := t.setStateLocked(StateDisconnected, cause)
		t.mu.Unlock()
		notify()
		return
	}
	if t.reconnecting {
		t.mu.Unlock()
		return
	}
	t.reconnecting = true
	t.reconnectGen++
	gen := t.reconnectGen
	ctx := t.runCtx
	notify := t.setStateLocked(StateReconnecting, cause)
	t.mu.Unlock()
	notify()

	go t.reconnectLoop(ctx, gen)
}

func (t *Transport) reconnectLoop(ctx context.Context, gen uint64) {
	delay := t.cfg.ReconnectDelay
	if delay <= 0 {
		delay = time.Millisecond
	}
	maxAttempts := t.cfg.MaxReconnectAttempts

	// The first attempt waits too; retry.Do only delays between attempts.
	timer := time.NewTimer(delay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return
	case <-timer.C:
	}

	attempt := 0
	backoff := retry.WithMaxRetries(uint64(maxAttempts-1), retry.NewConstant(delay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if !t.ownsReconnect(gen) {
			return nil
		}
		t.logger.Info("reconnecting", map[string]any{"attempt": attempt, "max": maxAttempts})

		token, err := t.token(ctx)
		if err != nil {
			return err
		}

		t.connectMu.Lock()
		defer t.connectMu.Unlock()
		if !t.ownsReconnect(gen) {
			return nil
		}
		s, err := t.dial(ctx, token)
		if err != nil {
			t.logger.Warn("reconnect attempt failed", map[string]any{"attempt": attempt, "error": err.Error()})
			return retry.RetryableError(err)
		}
		if err := t.install(s); err != nil {
			return err
		}
		t.logger.Info("reconnected", map[string]any{"socket": s.ID(), "attempt": attempt})
		return nil
	})
	if err == nil || ctx.Err() != nil {
		return
	}

	t.mu.Lock()
	if t.reconnectGen != gen || t.sock != nil {
		t.mu.Unlock()
		return
	}
	t.reconnecting = false
	notify := t.setStateLocked(StateDisconnected, WrapError(ErrorConnection, "reconnect attempts exhausted", err))
	t.mu.Unlock()
	notify()
	t.logger.Error("giving up reconnecting", map[string]any{"attempts": attempt, "error": err.Error()})
}

// ownsReconnect reports whether the loop started as gen is still the current one.
func (t *Transport) ownsReconnect(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reconnecting && t.reconnectGen == gen && t.runCtx != nil
}

// setStateLocked records the transition and returns a func that notifies
// observers; call it after releasing t.mu.
func (t *Transport) setStateLocked(s ConnectionState, err error) func() {
	if t.state == s {
		return func() {}
	}
	ev := StateEvent{OldState: t.state, NewState: s, Error: err}
	t.state = s
	fns := append([]func(StateEvent){}, t.stateFns...)
	return func() {
		for _, fn := range fns {
			fn(ev)
		}
	}
}
