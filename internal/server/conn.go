package server

import (
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
)

// writeWait bounds every frame write.
const writeWait = 10 * time.Second

// maxCloseReason is the payload limit for a close frame's reason text.
const maxCloseReason = 123

var errConnClosed = errors.New("connection closed")

// wsConn adapts a gorilla connection to room.Conn. gorilla allows one
// concurrent writer, so every write holds mu.
type wsConn struct {
	ws *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

// Send writes one text frame.
func (c *wsConn) Send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, []byte(text))
}

// Close starts the closing handshake. Later sends fail with
// errConnClosed.
func (c *wsConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	msg := websocket.FormatCloseMessage(code, truncateReason(reason))
	return c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// markClosed stops further sends after the peer went away.
func (c *wsConn) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// truncateReason cuts s to fit a close frame without splitting a rune.
func truncateReason(s string) string {
	if len(s) <= maxCloseReason {
		return s
	}
	cut := maxCloseReason
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// closeInfo extracts the close code and reason from a read error. Errors
// that are not a close frame count as an abnormal closure.
func closeInfo(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, ""
}
