package yapper_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/yapper-sdk-go/yapper"
)

const baseTimeout = 2 * time.Second

// wireFrame is a frame as the server sees it.
type wireFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// fakeServer is a realtime endpoint that records every frame it receives and
// lets the test push events and drop connections.
type fakeServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	dials     atomic.Int32
	rejecting atomic.Bool

	mu      sync.Mutex
	conns   []*fakeConn
	queries []url.Values

	connected chan *fakeConn
	frames    chan wireFrame
}

type fakeConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{
		t:         t,
		connected: make(chan *fakeConn, 16),
		frames:    make(chan wireFrame, 256),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(func() {
		f.mu.Lock()
		for _, c := range f.conns {
			_ = c.ws.Close()
		}
		f.mu.Unlock()
		f.srv.Close()
	})
	return f
}

func (f *fakeServer) URL() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/messages"
}

func (f *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	f.dials.Add(1)
	if f.rejecting.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	ws, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &fakeConn{ws: ws}
	f.mu.Lock()
	f.conns = append(f.conns, c)
	f.queries = append(f.queries, r.URL.Query())
	f.mu.Unlock()
	f.connected <- c

	for {
		var fr wireFrame
		if err := ws.ReadJSON(&fr); err != nil {
			return
		}
		f.frames <- fr
	}
}

// waitConn returns the next accepted connection.
func (f *fakeServer) waitConn() *fakeConn {
	f.t.Helper()
	select {
	case c := <-f.connected:
		return c
	case <-time.After(baseTimeout):
		f.t.Fatal("timeout waiting for connection")
		return nil
	}
}

// expect skips frames until one named event arrives.
func (f *fakeServer) expect(event string) wireFrame {
	f.t.Helper()
	deadline := time.After(baseTimeout)
	for {
		select {
		case fr := <-f.frames:
			if fr.Event == event {
				return fr
			}
		case <-deadline:
			f.t.Fatalf("timeout waiting for %q frame", event)
			return wireFrame{}
		}
	}
}

// quiet asserts that no frame named event arrives within d.
func (f *fakeServer) quiet(event string, d time.Duration) {
	f.t.Helper()
	deadline := time.After(d)
	for {
		select {
		case fr := <-f.frames:
			if fr.Event == event {
				f.t.Fatalf("unexpected %q frame: %s", event, fr.Data)
			}
		case <-deadline:
			return
		}
	}
}

func (f *fakeServer) query(i int) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[i]
}

func (c *fakeConn) send(t *testing.T, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	require.NoError(t, c.ws.WriteJSON(wireFrame{Event: event, Data: raw}))
}

// drop kills the TCP connection without a close handshake.
func (c *fakeConn) drop() {
	_ = c.ws.UnderlyingConn().Close()
}

func testConfig(wsURL string) yapper.Config {
	cfg := yapper.DefaultConfig()
	cfg.URL = wsURL
	cfg.RESTBaseURL = "http://127.0.0.1:1/api"
	cfg.HandshakeTimeout = baseTimeout
	cfg.PingInterval = 0
	cfg.ReconnectDelay = 20 * time.Millisecond
	cfg.MaxReconnectAttempts = 5
	cfg.FetchRetries = 0
	cfg.TypingTimeout = 0
	return cfg
}
