package portfolio

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nivesha/portfolio/internal/auth"
	"github.com/nivesha/portfolio/internal/metrics"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// HoldingEvent is a JSON message sent to a user's WebSocket clients after a
// transaction changes one of their holdings. Quantity and AverageCost are
// zero when the holding was closed.
type HoldingEvent struct {
	Type        string  `json:"type"` // holding_opened, holding_increased, holding_reduced, holding_closed, ...
	UserID      string  `json:"userId"`
	Symbol      string  `json:"symbol"`
	Quantity    int64   `json:"quantity"`
	AverageCost float64 `json:"averageCost"`
	Version     int64   `json:"version"`
}

type wsClient struct {
	conn   *websocket.Conn
	userID string
}

// WSHub manages WebSocket connections and delivers each HoldingEvent only
// to the connections of the user it belongs to.
type WSHub struct {
	clients    map[string]map[*wsClient]struct{} // userID → clients
	broadcast  chan HoldingEvent
	register   chan *wsClient
	unregister chan *wsClient
	stopped    chan struct{}
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[string]map[*wsClient]struct{}),
		broadcast:  make(chan HoldingEvent, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		stopped:    make(chan struct{}),
	}
}

// Run starts the hub's main event loop until ctx is done. Must be called in
// a goroutine. All client bookkeeping and data writes happen on this
// goroutine.
func (h *WSHub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					c.conn.Close()
				}
			}
			h.clients = make(map[string]map[*wsClient]struct{})
			metrics.WebSocketClients.Set(0)
			return

		case c := <-h.register:
			set, ok := h.clients[c.userID]
			if !ok {
				set = make(map[*wsClient]struct{})
				h.clients[c.userID] = set
			}
			set[c] = struct{}{}
			metrics.WebSocketClients.Inc()
			slog.Info("ws client connected", "user", c.userID, "user_clients", len(set))

		case c := <-h.unregister:
			h.remove(c)

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			for c := range h.clients[event.UserID] {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
					h.remove(c)
				}
			}
		}
	}
}

func (h *WSHub) remove(c *wsClient) {
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	c.conn.Close()
	metrics.WebSocketClients.Dec()
}

// Publish queues an event for delivery.
func (h *WSHub) Publish(event HoldingEvent) {
	select {
	case h.broadcast <- event:
	default:
		// Drop if buffer full to avoid blocking transaction handling.
		slog.Warn("ws broadcast buffer full, dropping event", "user", event.UserID, "type", event.Type)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // CORS is open for the dashboard origin.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /api/portfolio/ws.
// It must sit behind auth.Middleware.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	c := &wsClient{conn: conn, userID: userID}
	select {
	case h.register <- c:
	case <-h.stopped:
		conn.Close()
		return
	}

	// Ping ticker to keep connection alive through proxies. WriteControl
	// may run concurrently with the hub's writes.
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() {
			close(done)
			select {
			case h.unregister <- c:
			case <-h.stopped:
			}
		}()
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}
