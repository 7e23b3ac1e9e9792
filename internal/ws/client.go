package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 64 << 10
	sendBufferSize = 64
)

// Client is one event channel connection. Frames are written only by its
// write pump; everything else enqueues.
type Client struct {
	conn *websocket.Conn
	info ConnInfo
	send chan []byte
	link trace.Link

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, info ConnInfo) *Client {
	return &Client{
		conn: conn,
		info: info,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

func (c *Client) UserID() string { return c.info.UserID }

// enqueue hands a frame to the write pump without blocking. It returns false
// when the client is closed or its buffer is full.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which sends a close frame and closes the socket.
// Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
