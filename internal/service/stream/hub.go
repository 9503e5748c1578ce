package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"RiskGate/internal/domain/models"
	"RiskGate/internal/domain/repository"
	"RiskGate/pkg/logger"

	"github.com/gorilla/websocket"
)

// Hub pushes stage events to websocket subscribers. A subscriber may filter
// by user_id or transaction_id; an empty filter receives everything.
type Hub struct {
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	writeTimeout time.Duration
	bufferSize   int
	log          *logger.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn   *websocket.Conn
	userID string
	txID   string
	send   chan []byte
	once   sync.Once
	done   chan struct{}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *client) wants(ev models.StageEvent) bool {
	if c.userID != "" && c.userID != ev.UserID {
		return false
	}
	if c.txID != "" && c.txID != ev.TransactionID {
		return false
	}
	return true
}

func NewHub(pingInterval, writeTimeout time.Duration, bufferSize int, log *logger.Logger) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
		bufferSize:   bufferSize,
		log:          log,
		clients:      make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and streams events until the peer leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logger.Error(err))
		return
	}
	c := &client{
		conn:   conn,
		userID: r.URL.Query().Get("user_id"),
		txID:   r.URL.Query().Get("transaction_id"),
		send:   make(chan []byte, h.bufferSize),
		done:   make(chan struct{}),
	}
	h.add(c)
	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("stream subscriber joined", logger.String("user_id", c.userID), logger.Int("subscribers", n))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// readLoop only drains control frames; subscribers never send data.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	defer h.remove(c)
	for {
		select {
		case <-c.done:
			return
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// PublishStage never blocks: a subscriber whose buffer is full misses the event.
func (h *Hub) PublishStage(_ context.Context, ev models.StageEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(ev) {
			continue
		}
		select {
		case c.send <- b:
		default:
			// drop on backpressure
		}
	}
	return nil
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"), time.Now().Add(time.Second))
		c.close()
	}
}

var _ repository.EventPublisher = (*Hub)(nil)
