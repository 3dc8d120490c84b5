package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	fbio "github.com/matzehuels/flowboard/pkg/io"
	"github.com/matzehuels/flowboard/pkg/workflow"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBufferSize = 256
)

// Message is one frame on the /api/events stream. The first frame of every
// connection is a snapshot; every store change after it is an event.
type Message struct {
	Type     string          `json:"type"` // "snapshot" or "event"
	Event    *workflow.Event `json:"event,omitempty"`
	Document *fbio.Document  `json:"document,omitempty"`
	Selected string          `json:"selected,omitempty"`
}

// hub fans store events out to websocket clients. A client that cannot
// keep up is disconnected rather than allowed to block the store.
type hub struct {
	logger *log.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	cancel  func()
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newHub(store *workflow.Store, logger *log.Logger) *hub {
	h := &hub{logger: logger, clients: make(map[*client]struct{})}
	h.cancel = store.Subscribe(h.broadcast)
	return h
}

func (h *hub) broadcast(ev workflow.Event) {
	data, err := json.Marshal(Message{Type: "event", Event: &ev})
	if err != nil {
		h.logger.Error("encode event", "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping slow event client", "remote", c.conn.RemoteAddr())
			h.removeLocked(c)
		}
	}
}

func (h *hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// close unsubscribes from the store and ends every connection.
func (h *hub) close() {
	h.cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The editor is served from the same process; any origin may watch.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleEvents upgrades to a websocket, sends a snapshot, then streams
// store events until either side closes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "err", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}

	// Registering before taking the snapshot means no event can fall between
	// the two; a client may see an event already reflected in the snapshot.
	if !s.hub.add(c) {
		conn.Close()
		return
	}
	g := s.store.Snapshot()
	doc := fbio.FromGraph(g)
	hello, err := json.Marshal(Message{Type: "snapshot", Document: &doc, Selected: g.Selected})
	if err != nil {
		s.logger.Error("encode snapshot", "err", err)
		s.hub.remove(c)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "snapshot unavailable"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go s.writePump(c, hello)
	s.readPump(c)
}

func (s *Server) readPump(c *client) {
	defer func() {
		s.hub.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read", "err", err)
			}
			return
		}
	}
}

func (s *Server) writePump(c *client, hello []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		return
	}
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
