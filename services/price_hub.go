package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Constants for hub configuration
const (
	MaxWebSocketClients   = 100 // Maximum concurrent WebSocket clients
	WebSocketWriteTimeout = 10 * time.Second
	WebSocketPongTimeout  = 60 * time.Second
	WebSocketPingInterval = 30 * time.Second
)

var ErrHubClosed = errors.New("price hub closed")

// PriceMessage is the frame pushed to clients after each refresh round
type PriceMessage struct {
	Type string             `json:"type"`
	Data map[string]float64 `json:"data"`
	Time string             `json:"time"`
}

// hubClient represents a WebSocket client
type hubClient struct {
	conn       *websocket.Conn
	send       chan []byte
	subscribed map[string]bool
	mu         sync.RWMutex
}

// wants filters prices down to the client's subscriptions; no subscriptions means everything.
func (c *hubClient) wants(prices map[string]decimal.Decimal) map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]float64, len(prices))
	for ticker, price := range prices {
		if len(c.subscribed) > 0 && !c.subscribed[ticker] {
			continue
		}
		out[ticker] = price.InexactFloat64()
	}
	return out
}

// PriceHub pushes refreshed prices to connected WebSocket clients.
type PriceHub struct {
	clients    map[*hubClient]bool
	broadcast  chan map[string]decimal.Decimal
	register   chan *hubClient
	unregister chan *hubClient
	shutdown   chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
	count      atomic.Int64
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

var _ PriceSink = (*PriceHub)(nil)

// NewPriceHub creates the hub and starts its event loop.
func NewPriceHub(logger *zap.Logger) *PriceHub {
	h := &PriceHub{
		clients:    make(map[*hubClient]bool),
		broadcast:  make(chan map[string]decimal.Decimal, 16),
		register:   make(chan *hubClient),
		unregister: make(chan *hubClient),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
	go h.run()
	return h
}

// ClientCount returns the number of registered clients.
func (h *PriceHub) ClientCount() int {
	return int(h.count.Load())
}

// Publish queues prices for broadcast.
func (h *PriceHub) Publish(ctx context.Context, prices map[string]decimal.Decimal) error {
	select {
	case <-h.shutdown:
		return ErrHubClosed
	default:
	}

	select {
	case h.broadcast <- prices:
		return nil
	case <-h.shutdown:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown disconnects every client and stops the event loop.
func (h *PriceHub) Shutdown() {
	h.closeOnce.Do(func() {
		close(h.shutdown)
	})
	<-h.done
	h.logger.Info("Price hub shutdown complete")
}

// run owns the client set; every mutation happens on this goroutine.
func (h *PriceHub) run() {
	defer close(h.done)

	for {
		select {
		case <-h.shutdown:
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.count.Store(0)
			return

		case client := <-h.register:
			if len(h.clients) >= MaxWebSocketClients {
				client.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "Server at capacity"))
				client.conn.Close()
				close(client.send)
				h.logger.Warn("WebSocket client rejected: max clients reached", zap.Int("max", MaxWebSocketClients))
				continue
			}
			h.clients[client] = true
			h.count.Store(int64(len(h.clients)))
			h.logger.Info("WebSocket client connected", zap.Int("clients", len(h.clients)))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.count.Store(int64(len(h.clients)))
			h.logger.Info("WebSocket client disconnected", zap.Int("clients", len(h.clients)))

		case prices := <-h.broadcast:
			now := time.Now().UTC().Format(time.RFC3339)
			for client := range h.clients {
				data, err := json.Marshal(PriceMessage{Type: "prices", Data: client.wants(prices), Time: now})
				if err != nil {
					h.logger.Error("Error marshaling broadcast message", zap.Error(err))
					continue
				}
				select {
				case client.send <- data:
				default:
					// Client buffer full, drop it
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.count.Store(int64(len(h.clients)))
		}
	}
}

// HandleWebSocket upgrades the request and attaches the client to the hub
func (h *PriceHub) HandleWebSocket(c *gin.Context) {
	if h.ClientCount() >= MaxWebSocketClients {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server at capacity"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade error", zap.Error(err))
		return
	}

	client := &hubClient{
		conn:       conn,
		send:       make(chan []byte, 256),
		subscribed: make(map[string]bool),
	}

	select {
	case h.register <- client:
	case <-h.shutdown:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

// writePump writes messages to the WebSocket connection
func (c *hubClient) writePump() {
	ticker := time.NewTicker(WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WebSocketWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WebSocketWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles subscribe/unsubscribe commands until the connection drops
func (c *hubClient) readPump(h *PriceHub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(WebSocketPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(WebSocketPongTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}

		var cmd struct {
			Action  string   `json:"action"`
			Tickers []string `json:"tickers"`
		}
		if err := json.Unmarshal(message, &cmd); err != nil {
			continue
		}

		c.mu.Lock()
		switch cmd.Action {
		case "subscribe":
			for _, ticker := range cmd.Tickers {
				c.subscribed[ticker] = true
			}
		case "unsubscribe":
			for _, ticker := range cmd.Tickers {
				delete(c.subscribed, ticker)
			}
		}
		c.mu.Unlock()
	}
}
