package stream

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Outbound queue size per connection.
	sendQueueSize = 256
)

// Send pings to peer with this period. Must be less than pongWait.
var pingPeriod = (pongWait * 9) / 10

// ErrConnClosed is returned by Send on a connection that is no longer open.
var ErrConnClosed = errors.New("connection closed")

// errSendQueueFull is returned when a slow consumer's outbound queue is
// saturated. The message is dropped; the client notices the seq gap and
// recovers through resume.
var errSendQueueFull = errors.New("send queue full")

// wsConn adapts a gorilla websocket connection to the Conn capability the
// registry depends on. All writes to the underlying socket happen on the
// writePump goroutine; Send only enqueues.
type wsConn struct {
	id   string
	raw  *websocket.Conn
	send chan []byte
	log  *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func newWSConn(raw *websocket.Conn, log *slog.Logger) *wsConn {
	return &wsConn{
		id:   uuid.NewString(),
		raw:  raw,
		send: make(chan []byte, sendQueueSize),
		log:  log,
		done: make(chan struct{}),
	}
}

func (c *wsConn) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return errSendQueueFull
	}
}

func (c *wsConn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(code, reason)
		c.raw.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.raw.WriteMessage(websocket.CloseMessage, msg)
		_ = c.raw.Close()
	})
	return nil
}

func (c *wsConn) IsOpen() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// writePump pumps queued messages to the websocket connection.
//
// A goroutine running writePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close(websocket.CloseNormalClosure, "")
	}()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			c.raw.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.raw.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.raw.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.raw.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps frames from the websocket connection into the session.
//
// There is at most one reader on a connection; all reads happen from this
// goroutine.
func (c *wsConn) readPump(sess *session) {
	defer func() {
		sess.closed()
		c.Close(websocket.CloseNormalClosure, "")
	}()

	c.raw.SetReadLimit(maxMessageSize)
	c.raw.SetReadDeadline(time.Now().Add(pongWait))
	c.raw.SetPongHandler(func(string) error {
		c.raw.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn("websocket connection closed unexpectedly", "conn", c.id, "error", err)
			} else {
				c.log.Debug("websocket connection closed", "conn", c.id)
			}
			return
		}
		sess.HandleFrame(frame)
	}
}
