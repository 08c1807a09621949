package signal

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/daxaudio/dax-server/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// sender is what the hub fans out to. WsConn is the only production
// implementation; tests hand the hub recording fakes.
type sender interface {
	TrySend(data []byte) error
	Close()
}

// WsConn wraps a websocket with a buffered outbound queue. Sends never
// block: a full queue drops the frame and reports backpressure.
type WsConn struct {
	id   domain.ConnID
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func NewWsConn(id domain.ConnID, conn *websocket.Conn) *WsConn {
	return &WsConn{
		id:   id,
		conn: conn,
		send: make(chan []byte, 32),
	}
}

func (c *WsConn) ID() domain.ConnID { return c.id }

func (c *WsConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}
