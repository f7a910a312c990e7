package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	coreconfig "github.com/AzielCF/az-crm/core/config"
	"github.com/AzielCF/az-crm/domains/realtime"
	"github.com/AzielCF/az-crm/infrastructure/valkey"
	"github.com/AzielCF/az-crm/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	valkeylib "github.com/valkey-io/valkey-go"
)

const (
	// channelPrefix is shared with out-of-process publishers (workers that
	// want a dashboard notification without holding a hub reference).
	channelPrefix = "ws_org_"

	pingInterval = 30 * time.Second
)

// Socket is the write surface the hub needs from an upgraded connection.
// *websocket.Conn satisfies it.
type Socket interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Conn is one tracked dashboard connection. Writes are serialized because
// the underlying websocket does not allow concurrent writers.
type Conn struct {
	tenantID string
	sock     Socket
	mu       sync.Mutex
}

func (c *Conn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.sock.WriteMessage(websocket.CloseMessage, []byte{})
	_ = c.sock.Close()
}

// eventEnvelope is the frame every dashboard event travels in.
type eventEnvelope struct {
	Type       string `json:"type"`
	Timestamp  string `json:"timestamp"`
	UpdateType string `json:"update_type,omitempty"`
	Data       any    `json:"data"`
}

// bridgeFrame is the envelope events travel in on the Valkey channels.
// Origin lets a hub discard the echo of its own publishes.
type bridgeFrame struct {
	Origin string          `json:"origin"`
	Event  json.RawMessage `json:"event"`
}

// Hub keeps the dashboard connections of every tenant and fans events out to
// them. Events never cross tenants. With a Valkey client every broadcast is
// mirrored onto the tenant channel so sibling replicas deliver it too.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[*Conn]bool

	vk       *valkey.Client
	serverID string
}

// NewHub creates a hub. vk may be nil for single-process deployments; the
// Valkey bridge is skipped in that case.
func NewHub(vk *valkey.Client) *Hub {
	storages := "storages"
	if coreconfig.Global != nil {
		storages = coreconfig.Global.Paths.Storages
	}
	return &Hub{
		conns:    make(map[string]map[*Conn]bool),
		vk:       vk,
		serverID: utils.GetPersistentServerID(os.Getenv("SERVER_ID"), storages),
	}
}

// Run starts the background loops. It returns immediately; the loops stop
// when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	if h.vk != nil {
		go h.runValkeyBridge(ctx)
	}
	go h.runPingLoop(ctx)
}

// Attach registers a connection under a tenant and acknowledges it right
// away, so the browser knows the socket is live before any event arrives.
func (h *Hub) Attach(tenantID string, sock Socket) *Conn {
	conn := &Conn{tenantID: tenantID, sock: sock}

	h.mu.Lock()
	if h.conns[tenantID] == nil {
		h.conns[tenantID] = make(map[*Conn]bool)
	}
	h.conns[tenantID][conn] = true
	total := len(h.conns[tenantID])
	h.mu.Unlock()

	logrus.Debugf("[WS] Connection registered: tenant=%s total=%d", tenantID, total)

	h.SendPersonal(conn, map[string]any{
		"type":             "connection_established",
		"message":          fmt.Sprintf("Connected to organization %s", tenantID),
		"connection_count": total,
	})
	return conn
}

// Detach removes a connection and closes its socket. Detaching twice is
// harmless; the socket is only closed on the first call.
func (h *Hub) Detach(conn *Conn) {
	h.mu.Lock()
	tracked := h.conns[conn.tenantID][conn]
	if tracked {
		delete(h.conns[conn.tenantID], conn)
		if len(h.conns[conn.tenantID]) == 0 {
			delete(h.conns, conn.tenantID)
		}
	}
	remaining := len(h.conns[conn.tenantID])
	h.mu.Unlock()

	if !tracked {
		return
	}

	conn.close()
	logrus.Debugf("[WS] Connection detached: tenant=%s remaining=%d", conn.tenantID, remaining)
}

// SendPersonal delivers a payload to a single connection. A connection that
// cannot be written to is detached.
func (h *Hub) SendPersonal(conn *Conn, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logrus.Errorf("[WS] Marshal error: %v", err)
		return
	}
	if err := conn.write(data); err != nil {
		logrus.Errorf("[WS] Write error: %v", err)
		h.Detach(conn)
	}
}

// Broadcast delivers a payload to every local connection of a tenant and
// mirrors it onto the Valkey channel for sibling replicas.
func (h *Hub) Broadcast(tenantID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logrus.Errorf("[WS] Marshal error: %v", err)
		return
	}
	h.broadcastRaw(tenantID, data)
	h.publishToSiblings(tenantID, data)
}

func (h *Hub) publishToSiblings(tenantID string, data []byte) {
	if h.vk == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := PublishEvent(ctx, h.vk, h.serverID, tenantID, json.RawMessage(data)); err != nil {
		logrus.Debugf("[WS] Sibling publish failed: %v", err)
	}
}

// BroadcastNewMessage implementa realtime.IBroadcaster para los mensajes
// entrantes del pipeline y del router.
func (h *Hub) BroadcastNewMessage(tenantID string, payload realtime.NewMessagePayload) {
	h.Broadcast(tenantID, eventEnvelope{
		Type:      "new_message",
		Timestamp: nowRFC3339(),
		Data:      payload,
	})
}

// BroadcastChatUpdate notifies state transitions of a chat (escalated,
// resolved, ticket_created, ...). The data map carries the chat_id.
func (h *Hub) BroadcastChatUpdate(tenantID string, updateType string, data map[string]any) {
	h.Broadcast(tenantID, eventEnvelope{
		Type:       "chat_update",
		Timestamp:  nowRFC3339(),
		UpdateType: updateType,
		Data:       data,
	})
}

// ConnectionCount returns the number of live connections of one tenant.
func (h *Hub) ConnectionCount(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[tenantID])
}

// TotalConnections returns the number of live connections across tenants.
func (h *Hub) TotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.conns {
		total += len(conns)
	}
	return total
}

// ActiveTenants lists the tenants that currently hold at least one
// connection.
func (h *Hub) ActiveTenants() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	tenants := make([]string, 0, len(h.conns))
	for tenantID := range h.conns {
		tenants = append(tenants, tenantID)
	}
	return tenants
}

func (h *Hub) broadcastRaw(tenantID string, data []byte) {
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.conns[tenantID]))
	for conn := range h.conns[tenantID] {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	var failed []*Conn
	for _, conn := range targets {
		if err := conn.write(data); err != nil {
			logrus.Errorf("[WS] Write error: %v", err)
			failed = append(failed, conn)
		}
	}
	for _, conn := range failed {
		h.Detach(conn)
	}

	logrus.Debugf("[WS] Broadcast tenant=%s sent=%d failed=%d", tenantID, len(targets)-len(failed), len(failed))
}

// relay routes a bridged event to the tenant encoded in the channel name.
// Frames carrying this hub's own origin are echoes of publishToSiblings and
// are dropped; payloads without a frame go out verbatim so bare publishers
// keep working.
func (h *Hub) relay(channel string, payload []byte) {
	tenantID := strings.TrimPrefix(channel, channelPrefix)
	if tenantID == "" || tenantID == channel {
		return
	}

	var frame bridgeFrame
	if err := json.Unmarshal(payload, &frame); err != nil || len(frame.Event) == 0 {
		h.broadcastRaw(tenantID, payload)
		return
	}
	if frame.Origin == h.serverID {
		return
	}
	h.broadcastRaw(tenantID, frame.Event)
}

func (h *Hub) runValkeyBridge(ctx context.Context) {
	logrus.Infof("[WS] Starting Valkey bridge on %s*", channelPrefix)

	backoff := time.Second
	for {
		started := time.Now()
		err := h.vk.Inner().Receive(ctx, h.vk.Inner().B().Psubscribe().Pattern(channelPrefix+"*").Build(), func(msg valkeylib.PubSubMessage) {
			h.relay(msg.Channel, []byte(msg.Message))
		})
		if ctx.Err() != nil {
			return
		}

		// A subscription that survived a while earns a fresh backoff.
		if time.Since(started) > time.Minute {
			backoff = time.Second
		}
		logrus.Errorf("[WS] Valkey bridge lost, retrying in %s: %v", backoff, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (h *Hub) runPingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.pingAll()
		}
	}
}

// pingAll sends an application-level keepalive to every connection. A
// connection that rejects the ping is dead and gets detached.
func (h *Hub) pingAll() {
	data, err := json.Marshal(map[string]any{
		"type":      "ping",
		"timestamp": nowRFC3339(),
		"message":   "keepalive",
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	targets := make([]*Conn, 0)
	for _, conns := range h.conns {
		for conn := range conns {
			targets = append(targets, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		if err := conn.write(data); err != nil {
			h.Detach(conn)
		}
	}
}

// handleClientFrame answers the few frames browsers send: ping gets a pong,
// pong is the reply to our keepalive, anything else is echoed back.
func (h *Hub) handleClientFrame(conn *Conn, raw []byte) {
	var frame struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.SendPersonal(conn, map[string]any{"type": "echo", "data": string(raw)})
		return
	}

	switch frame.Type {
	case "ping":
		h.SendPersonal(conn, map[string]any{"type": "pong", "timestamp": nowRFC3339()})
	case "pong":
		logrus.Debugf("[WS] Pong received: tenant=%s", conn.tenantID)
	default:
		h.SendPersonal(conn, map[string]any{"type": "echo", "data": string(raw)})
	}
}

// RegisterRoutes mounts the stats endpoint and the per-tenant socket.
func (h *Hub) RegisterRoutes(app fiber.Router) {
	app.Get("/ws/stats", func(c *fiber.Ctx) error {
		h.mu.RLock()
		byTenant := make(map[string]int, len(h.conns))
		total := 0
		for tenantID, conns := range h.conns {
			byTenant[tenantID] = len(conns)
			total += len(conns)
		}
		h.mu.RUnlock()

		return c.JSON(fiber.Map{
			"total_connections":              total,
			"organizations_with_connections": len(byTenant),
			"connections_by_organization":    byTenant,
		})
	})

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})

	app.Get("/ws/:tenantID", websocket.New(func(sock *websocket.Conn) {
		tenantID := sock.Params("tenantID")
		if tenantID == "" {
			_ = sock.Close()
			return
		}

		conn := h.Attach(tenantID, sock)
		defer h.Detach(conn)

		for {
			messageType, raw, err := sock.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logrus.Errorf("[WS] Read error: %v", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			h.handleClientFrame(conn, raw)
		}
	}))
}

// ChannelFor returns the pub/sub channel that carries hub events for a
// tenant.
func ChannelFor(tenantID string) string {
	return channelPrefix + tenantID
}

// PublishEvent pushes an event onto a tenant channel so hubs in other
// processes fan it out. origin names the publishing process; a hub whose
// server ID matches it drops the frame as its own echo.
func PublishEvent(ctx context.Context, vk *valkey.Client, origin, tenantID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(bridgeFrame{Origin: origin, Event: data})
	if err != nil {
		return err
	}
	return vk.Publish(ctx, ChannelFor(tenantID), string(frame))
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
