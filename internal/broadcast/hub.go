// Package broadcast delivers game messages to participants. The Hub pushes
// them to websocket clients; LogSink records them in the log; Fanout
// combines sinks.
package broadcast

import (
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roundtable-games/roundtable/internal/logging"
	"github.com/roundtable-games/roundtable/internal/orchestrator"
)

const (
	wsReadBufferSize    = 1024
	wsWriteBufferSize   = 1024
	defaultWriteTimeout = 10 * time.Second
	defaultSendBuffer   = 64
)

// Message kinds carried in Envelope.Type.
const (
	TypeBroadcast = "broadcast"
	TypeDirect    = "direct"
)

// Envelope is the JSON frame sent to websocket clients.
type Envelope struct {
	Type      string    `json:"type"`
	GameID    string    `json:"game_id"`
	Sender    string    `json:"sender,omitempty"`
	Receiver  string    `json:"receiver,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// HubOptions configure a Hub.
type HubOptions struct {
	WriteTimeout time.Duration
	// SendBuffer is the per-client queue; a full queue drops messages.
	SendBuffer int
	// CheckOrigin overrides the upgrader's origin check.
	CheckOrigin func(r *http.Request) bool
}

type client struct {
	gameID        string
	participantID string // empty for spectators
	conn          *websocket.Conn
	send          chan Envelope
	done          chan struct{}
	closeOnce     sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// wants reports whether the client should see a message to recipients.
func (c *client) wants(recipients ...string) bool {
	return c.participantID == "" || slices.Contains(recipients, c.participantID)
}

// Hub is a MessageSink that pushes messages to websocket clients connected
// through ServeHTTP. Delivery never blocks the caller.
type Hub struct {
	opts     HubOptions
	upgrader websocket.Upgrader
	logger   *logging.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	dropped atomic.Int64
}

var _ orchestrator.MessageSink = (*Hub)(nil)

// NewHub creates a hub with no clients.
func NewHub(opts HubOptions, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	return &Hub{
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  wsReadBufferSize,
			WriteBufferSize: wsWriteBufferSize,
			CheckOrigin:     opts.CheckOrigin,
		},
		logger:  logger.WithPhase("broadcast-hub"),
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the connection. The query
// parameter game is required; participant selects whose messages the
// client receives, and its absence makes the client a spectator.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("game")
	if gameID == "" {
		http.Error(w, "missing game parameter", http.StatusBadRequest)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	c := &client{
		gameID:        gameID,
		participantID: r.URL.Query().Get("participant"),
		conn:          conn,
		send:          make(chan Envelope, h.opts.SendBuffer),
		done:          make(chan struct{}),
	}
	h.register(c)

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("client connected", "game_id", c.gameID, "participant_id", c.participantID)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
	if ok {
		h.logger.Info("client disconnected", "game_id", c.gameID, "participant_id", c.participantID)
	}
}

// readLoop discards client frames and returns when the connection closes.
func (h *Hub) readLoop(c *client) {
	defer h.unregister(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for {
		select {
		case env := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if err := c.conn.WriteJSON(env); err != nil {
				h.logger.Debug("websocket write failed", "game_id", c.gameID, "error", err)
				h.unregister(c)
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Broadcast sends text to the clients of recipients and to spectators.
func (h *Hub) Broadcast(gameID, text string, recipients []string) {
	h.deliver(Envelope{
		Type:      TypeBroadcast,
		GameID:    gameID,
		Text:      text,
		Timestamp: time.Now(),
	}, recipients...)
}

// SendDirect sends text to receiver's clients and to spectators.
func (h *Hub) SendDirect(gameID, sender, receiver, text string) {
	h.deliver(Envelope{
		Type:      TypeDirect,
		GameID:    gameID,
		Sender:    sender,
		Receiver:  receiver,
		Text:      text,
		Timestamp: time.Now(),
	}, receiver)
}

func (h *Hub) deliver(env Envelope, recipients ...string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.gameID != env.GameID || !c.wants(recipients...) {
			continue
		}
		select {
		case c.send <- env:
		default:
			h.dropped.Add(1)
			h.logger.Warn("client queue full, message dropped",
				"game_id", c.gameID, "participant_id", c.participantID)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns the number of messages discarded for full client queues.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}
