package internal

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// MaxFrameSize caps a single inbound frame. Unread summaries for large
// accounts exceed the library default of 32KiB.
const MaxFrameSize = 1 << 20

// Conn is a JSON frame connection. Every operation is bounded by its own
// timeout on top of the caller's context.
type Conn struct {
	ws           *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// Dial opens a websocket to rawURL. The handshake is bounded by ctx.
func Dial(ctx context.Context, rawURL string, header http.Header, readTimeout, writeTimeout time.Duration) (*Conn, error) {
	ws, _, err := websocket.Dial(ctx, rawURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, err
	}
	ws.SetReadLimit(MaxFrameSize)
	return &Conn{ws: ws, readTimeout: readTimeout, writeTimeout: writeTimeout}, nil
}

// Read decodes the next text frame into v.
func (c *Conn) Read(ctx context.Context, v any) error {
	ctx, cancel := bounded(ctx, c.readTimeout)
	defer cancel()
	return wsjson.Read(ctx, c.ws, v)
}

// Write encodes v as one text frame.
func (c *Conn) Write(ctx context.Context, v any) error {
	ctx, cancel := bounded(ctx, c.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.ws, v)
}

// Ping blocks until the peer answers or ctx expires. A concurrent Read is
// required for the pong to be observed.
func (c *Conn) Ping(ctx context.Context) error {
	ctx, cancel := bounded(ctx, c.writeTimeout)
	defer cancel()
	return c.ws.Ping(ctx)
}

// Close sends a close frame with code and reason.
func (c *Conn) Close(code websocket.StatusCode, reason string) error {
	return c.ws.Close(code, reason)
}

func bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
