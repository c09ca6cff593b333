package signaling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/relay"
)

const wsWriteWait = 1 * time.Second

// wsConn adapts a gorilla connection to relay.Conn.
type wsConn struct {
	id   string
	conn *websocket.Conn
	// identity is set when the upgrade was authenticated.
	identity string

	// writeLock is a one-slot semaphore rather than a mutex so a sender can
	// give up waiting when its context expires.
	writeLock chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{
		id:        uuid.NewString(),
		conn:      conn,
		writeLock: make(chan struct{}, 1),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) IsOpen() bool { return !c.closed.Load() }

func (c *wsConn) Send(ctx context.Context, data []byte) error {
	if c.closed.Load() {
		return relay.ErrConnClosed
	}

	select {
	case c.writeLock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-c.writeLock }()

	if c.closed.Load() {
		return relay.ErrConnClosed
	}

	deadline := time.Now().Add(wsWriteWait)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed) {
			c.Close()
			return fmt.Errorf("%w: %v", relay.ErrConnClosed, err)
		}
		// gorilla fails every write after the first error, so the stream is
		// unusable. Closing it ends the read loop, which unregisters the
		// identity; later sends report ErrConnClosed.
		c.Close()
		return err
	}
	return nil
}

// closeWith sends a close frame. Control frames may be written concurrently
// with data frames.
func (c *wsConn) closeWith(code int, reason string) {
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

func (c *wsConn) ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (c *wsConn) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		_ = c.conn.Close()
	})
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
