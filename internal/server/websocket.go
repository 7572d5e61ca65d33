package server

import (
	"context"
	"net/http"
	"time"
)

// closeGrace is how long a refused socket waits for the peer to answer
// the close frame before the connection is dropped.
const closeGrace = time.Second

// handleChat upgrades /ws?name=&secret= and hands the socket to the room
// for its lifetime.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	// The room's bookkeeping must finish even after the request ends.
	ctx := context.WithoutCancel(r.Context())

	q := r.URL.Query()
	conn := newWSConn(ws)
	sess, err := s.room.Join(ctx, conn, q.Get("name"), q.Get("secret"))
	if err != nil {
		// The room already sent the notice and the close frame.
		_ = ws.SetReadDeadline(time.Now().Add(closeGrace))
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}

	ws.SetReadLimit(maxFrameSize)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			conn.markClosed()
			code, reason := closeInfo(err)
			s.room.Leave(ctx, sess, code, reason)
			return
		}
		s.room.HandleMessage(ctx, sess, string(data))
	}
}

// handleEvents streams bus events as JSON text frames until the client
// goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "event stream not configured")
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	ch := s.bus.Subscribe(64)
	defer s.bus.Unsubscribe(ch)

	// Reading is only for noticing the close; clients send nothing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.logger.Debug("event stream opened", "remote", r.RemoteAddr)
	for {
		select {
		case <-gone:
			s.logger.Debug("event stream closed", "remote", r.RemoteAddr)
			return
		case e := <-ch:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(e); err != nil {
				s.logger.Debug("event stream write failed", "error", err)
				return
			}
		}
	}
}

