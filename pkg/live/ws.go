package live

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsFrame is the wire format in both directions.
//
// Server to client: "snapshot" (full state on connect), "change" (one cell
// updated), "error". Client to server: "set" (one cell), "batch" (several
// cells applied in one batch).
type wsFrame struct {
	Type  string         `json:"type"`
	Key   string         `json:"key,omitempty"`
	Value any            `json:"value,omitempty"`
	Cells map[string]any `json:"cells,omitempty"`
	Error string         `json:"error,omitempty"`
}

// client is one WebSocket consumer. Outbound frames go through a buffered
// channel drained by a dedicated writer goroutine, so the run loop never
// blocks on a slow connection.
type client struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}

// enqueue queues a frame for the writer. A full buffer means the client
// cannot keep up; the connection is dropped rather than stalling the loop.
func (c *client) enqueue(b []byte) bool {
	select {
	case c.send <- b:
		return true
	default:
		c.close()
		return false
	}
}

func (c *client) writeLoop(timeout time.Duration) {
	defer c.close()
	for b := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(timeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, s.config.SendBuffer),
	}

	// Snapshot and observer registration happen in one loop operation, so
	// the feed never misses or duplicates a change around connect.
	var dispose func()
	err = s.do(r.Context(), "ws.attach", func() {
		s.sendFrame(c, wsFrame{Type: "snapshot", Cells: s.store.Snapshot()})
		dispose = s.store.ObserveAll(func(key string, v any) {
			s.sendFrame(c, wsFrame{Type: "change", Key: key, Value: v})
		})
	})
	if err != nil {
		conn.Close()
		return
	}
	s.logger.Info("websocket client connected", "remote", conn.RemoteAddr())

	go c.writeLoop(s.config.WriteTimeout)
	s.readLoop(c)

	// Detach on the loop; afterwards nothing enqueues, so the writer can
	// drain and exit.
	_ = s.do(context.Background(), "ws.detach", func() {
		dispose()
	})
	close(c.send)
	c.close()
	s.logger.Info("websocket client disconnected", "remote", conn.RemoteAddr())
}

func (s *Server) sendFrame(c *client, f wsFrame) {
	b, err := json.Marshal(f)
	if err != nil {
		s.logger.Error("frame marshal failed", "type", f.Type, "error", err)
		return
	}
	if !c.enqueue(b) {
		s.logger.Warn("dropping slow websocket client", "remote", c.conn.RemoteAddr())
	}
}

// readLoop applies inbound frames until the connection closes.
func (s *Server) readLoop(c *client) {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Error("websocket read error", "error", err)
			}
			return
		}

		var f wsFrame
		if err := json.Unmarshal(msg, &f); err != nil {
			s.logger.Error("frame decode error", "error", err)
			s.sendFrame(c, wsFrame{Type: "error", Error: "invalid frame"})
			continue
		}

		switch f.Type {
		case "set":
			if f.Key == "" {
				s.sendFrame(c, wsFrame{Type: "error", Error: "set frame requires a key"})
				continue
			}
			if err := s.do(context.Background(), "ws.set", func() {
				s.store.Set(f.Key, f.Value)
			}); err != nil {
				return
			}

		case "batch":
			if err := s.do(context.Background(), "ws.batch", func() {
				s.store.SetMany(f.Cells)
			}); err != nil {
				return
			}

		default:
			s.logger.Warn("unknown frame type", "type", f.Type)
			s.sendFrame(c, wsFrame{Type: "error", Error: "unknown frame type: " + f.Type})
		}
	}
}
