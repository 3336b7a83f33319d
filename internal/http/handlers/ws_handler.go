package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/custody-escrow/backend/internal/auth"
	"github.com/custody-escrow/backend/internal/config"
	"github.com/custody-escrow/backend/internal/events"
	"github.com/custody-escrow/backend/internal/models"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// EscrowLookup resolves the parties of an escrow event.
type EscrowLookup func(ctx context.Context, id uint64) (*models.Escrow, error)

// WSHub pushes escrow events to the connected parties of that escrow and account
// events to the account owner.
type WSHub struct {
	cfg         *config.Config
	subscriber  events.Subscriber
	lookup      EscrowLookup
	log         *zap.Logger
	mu          sync.RWMutex
	connections map[string][]*wsClient
}

type messageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// wsClient serialises writes to one socket: events arrive from several
// subscriber goroutines and the connection allows a single writer.
type wsClient struct {
	mu   sync.Mutex
	conn messageWriter
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func NewWSHub(cfg *config.Config, subscriber events.Subscriber, lookup EscrowLookup, log *zap.Logger) *WSHub {
	return &WSHub{
		cfg:         cfg,
		subscriber:  subscriber,
		lookup:      lookup,
		log:         log,
		connections: make(map[string][]*wsClient),
	}
}

func (h *WSHub) Start(ctx context.Context) error {
	if err := h.subscriber.Subscribe(ctx, events.StreamEscrow, func(event events.Event) {
		h.routeEscrowEvent(ctx, event)
	}); err != nil {
		return err
	}
	return h.subscriber.Subscribe(ctx, events.StreamAccount, func(event events.Event) {
		if account, ok := event.Payload["account"].(string); ok {
			h.SendToAddress(account, event)
		}
	})
}

func (h *WSHub) routeEscrowEvent(ctx context.Context, event events.Event) {
	id, ok := events.EscrowID(event)
	if !ok {
		return
	}
	e, err := h.lookup(ctx, id)
	if err != nil {
		h.log.Debug("ws: escrow lookup failed", zap.Uint64("escrow_id", id), zap.Error(err))
		return
	}
	for _, addr := range Parties(e) {
		h.SendToAddress(addr, event)
	}
}

// Parties lists the distinct addresses involved in e.
func Parties(e *models.Escrow) []string {
	seen := make(map[string]bool, 4)
	var out []string
	for _, addr := range []string{e.Creator, deref(e.Depositor), e.Recipient, e.Mediator} {
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}

func (h *WSHub) SendToAddress(addr string, event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.connections[addr] {
		_ = c.write(data)
	}
}

func (h *WSHub) register(addr string, conn messageWriter) *wsClient {
	c := &wsClient{conn: conn}
	h.mu.Lock()
	h.connections[addr] = append(h.connections[addr], c)
	h.mu.Unlock()
	return c
}

func (h *WSHub) unregister(addr string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.connections[addr]
	for i, cur := range conns {
		if cur == c {
			h.connections[addr] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.connections[addr]) == 0 {
		delete(h.connections, addr)
	}
}

// Connected reports how many sockets addr has open.
func (h *WSHub) Connected(addr string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[addr])
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	// Extract token from query
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	claims, err := auth.ParseJWT(h.cfg.JWTSecret, tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}

	addr := claims.Address

	client := h.register(addr, conn)
	defer func() {
		h.unregister(addr, client)
		conn.Close()
	}()

	// Read loop (keep alive / pings)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
