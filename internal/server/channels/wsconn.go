package channels

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024 * 1024
	sendBuffer     = 64
)

var ErrConnClosed = errors.New("connection closed")

// WSConn adapts a websocket connection to Conn. Writes go through a
// buffered queue drained by WritePump.
type WSConn struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// Send queues data without blocking. It fails once the connection is
// closed or when the peer is too slow to drain the queue.
func (c *WSConn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return errors.New("send queue full")
	}
}

// Close stops both pumps and closes the socket. It is safe to call more
// than once.
func (c *WSConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// Done is closed once the connection is closed.
func (c *WSConn) Done() <-chan struct{} {
	return c.done
}

// ReadPump delivers inbound text frames to handle until the socket fails.
func (c *WSConn) ReadPump(handle func(data []byte)) error {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		handle(data)
	}
}

// WritePump writes queued frames and keeps the connection alive with pings.
func (c *WSConn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

// ServeWS runs a local server channel on conn until it closes.
func (r *Relay) ServeWS(ctx context.Context, conn *websocket.Conn) {
	ws := NewWSConn(conn)
	ch := NewChannel(ws)

	go ws.WritePump()
	r.Open(ctx, ch)

	err := ws.ReadPump(func(data []byte) {
		r.HandleMessage(ctx, ch, data)
	})
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		r.logger.Debug(ctx, "channel read ended", "mac", ch.Identity(), "error", err)
	}

	_ = ws.Close()
	r.Close(ctx, ch)
}
