package yapper

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/vovakirdan/yapper-sdk-go/yapper/internal"
)

// wire is the framed connection a Socket runs on.
type wire interface {
	Read(ctx context.Context, v any) error
	Write(ctx context.Context, v any) error
	Ping(ctx context.Context) error
	Close(code websocket.StatusCode, reason string) error
}

var _ wire = (*internal.Conn)(nil)

// Socket is one live connection. A reconnect produces a new Socket that starts
// with no listeners attached. Consumers get it for diagnostics only.
type Socket struct {
	id          string
	conn        wire
	logger      Logger
	writeCh     chan Inbound
	connectedAt time.Time

	mu        sync.RWMutex
	listeners map[string][]*Listener
	closed    bool
	cancel    context.CancelFunc
}

func newSocket(conn wire, sendBuffer int, logger Logger) *Socket {
	if sendBuffer < 1 {
		sendBuffer = 1
	}
	return &Socket{
		id:          uuid.NewString(),
		conn:        conn,
		logger:      logger,
		writeCh:     make(chan Inbound, sendBuffer),
		connectedAt: time.Now(),
		listeners:   make(map[string][]*Listener),
	}
}

// ID identifies this connection in logs.
func (s *Socket) ID() string { return s.id }

// ConnectedAt reports when the handshake completed.
func (s *Socket) ConnectedAt() time.Time { return s.connectedAt }

// Connected reports whether the socket is still open.
func (s *Socket) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed
}

// Attached returns the number of listeners attached for event.
func (s *Socket) Attached(event string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners[event])
}

func (s *Socket) attach(event string, l *Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.listeners[event] {
		if existing == l {
			return
		}
	}
	s.listeners[event] = append(s.listeners[event], l)
}

func (s *Socket) detach(event string, l *Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.listeners[event]
	for i, existing := range list {
		if existing == l {
			s.listeners[event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func (s *Socket) dispatch(out Outbound) {
	s.mu.RLock()
	list := append([]*Listener(nil), s.listeners[out.Event]...)
	s.mu.RUnlock()

	ev := Event{Name: out.Event, Data: out.Data}
	for _, l := range list {
		s.invoke(l, ev)
	}
}

func (s *Socket) invoke(l *Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("listener panicked", map[string]any{"event": ev.Name, "listener": l.id, "panic": r})
		}
	}()
	if err := l.Deliver(ev); err != nil {
		s.logger.Warn("listener failed", map[string]any{"event": ev.Name, "listener": l.id, "error": err.Error()})
	}
}

// Emit writes a client event straight to the connection instead of queueing
// it, waiting at most the write timeout. Connect hooks use it to replay room
// joins, which may outnumber the send buffer.
func (s *Socket) Emit(event string, payload any) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		s.logger.Warn("socket closed, event dropped", map[string]any{"event": event, "socket": s.id, "code": ErrorEmitDropped.String()})
		return
	}
	if err := s.conn.Write(context.Background(), Inbound{Event: event, Data: payload}); err != nil {
		s.logger.Warn("write failed, event dropped", map[string]any{"event": event, "socket": s.id, "code": ErrorEmitDropped.String(), "error": err.Error()})
	}
}

// enqueue hands a frame to the write loop without blocking.
func (s *Socket) enqueue(in Inbound) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.writeCh <- in:
		return true
	default:
		return false
	}
}

func (s *Socket) start(parent context.Context, pingInterval time.Duration, onDrop func(*Socket, error)) {
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return
	}
	s.cancel = cancel
	s.mu.Unlock()

	go s.readLoop(ctx, onDrop)
	go s.writeLoop(ctx)
	if pingInterval > 0 {
		go s.pingLoop(ctx, pingInterval)
	}
}

// close shuts the socket down on purpose; the drop callback does not fire.
func (s *Socket) close(reason string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return s.conn.Close(websocket.StatusNormalClosure, reason)
}

// markDropped closes a socket that failed underneath us. It returns false
// when the socket had already been closed on purpose.
func (s *Socket) markDropped() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	_ = s.conn.Close(websocket.StatusGoingAway, "connection lost")
	return true
}

func (s *Socket) readLoop(ctx context.Context, onDrop func(*Socket, error)) {
	for {
		var out Outbound
		if err := s.conn.Read(ctx, &out); err != nil {
			if !s.markDropped() {
				return
			}
			fields := map[string]any{"socket": s.id, "error": err.Error()}
			if isExpectedDisconnect(err) {
				s.logger.Info("socket closed by server", fields)
			} else {
				s.logger.Warn("read loop exit", fields)
			}
			if onDrop != nil {
				onDrop(s, err)
			}
			return
		}
		s.dispatch(out)
	}
}

func (s *Socket) writeLoop(ctx context.Context) {
	for {
		select {
		case in := <-s.writeCh:
			if err := s.conn.Write(ctx, in); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("write loop exit", map[string]any{"socket": s.id, "event": in.Event, "error": err.Error()})
				// Closing the conn fails the pending read, which reports the drop.
				_ = s.conn.Close(websocket.StatusInternalError, "write error")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Socket) pingLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.conn.Ping(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("heartbeat failed", map[string]any{"socket": s.id, "error": err.Error()})
				_ = s.conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				return
			}
		}
	}
}

func isExpectedDisconnect(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}
