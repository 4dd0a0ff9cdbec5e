// Package gateway is the realtime edge: it upgrades clients to WebSocket,
// fans room events out to every subscriber of a room, and turns inbound
// client messages into roster joins, clicks, heartbeats and time probes.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/brightwell/liveroom/go/internal/events"
)

// ConnectionConfig holds WebSocket tuning.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket tuning.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// ConnectionManager owns every live WebSocket, pooled per room.
type ConnectionManager struct {
	mu              sync.RWMutex
	roomConnections map[uuid.UUID]map[*Connection]bool

	upgrader    websocket.Upgrader
	config      ConnectionConfig
	clock       clockwork.Clock
	broadcastCh chan *events.Envelope

	// onMessage handles inbound client messages; wired by the Service.
	// A closing socket needs no hook: roster claims survive the drop so
	// the identity can rebind, and liveness timeouts own disconnect
	// detection.
	onMessage func(c *Connection, data []byte)
}

// Connection is one client's WebSocket attached to one room.
type Connection struct {
	ID     string
	RoomID uuid.UUID

	// ParticipantID is set once the client joins the roster; zero for
	// clients that only watch.
	ParticipantID uuid.UUID

	Conn    *websocket.Conn
	Send    chan []byte
	manager *ConnectionManager

	ConnectedAt time.Time
}

// NewConnectionManager creates a manager.
func NewConnectionManager(config ConnectionConfig, clock clockwork.Clock) *ConnectionManager {
	return &ConnectionManager{
		roomConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		clock:       clock,
		broadcastCh: make(chan *events.Envelope, 1000),
	}
}

// Start fans queued envelopes out to room subscribers until ctx is
// cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case env := <-cm.broadcastCh:
			cm.fanOut(env)
		}
	}
}

// Broadcast queues an envelope for delivery to a room's connections.
// Non-blocking: under backpressure the envelope is dropped with a warning,
// and reconnect replay covers the gap.
func (cm *ConnectionManager) Broadcast(env *events.Envelope) {
	select {
	case cm.broadcastCh <- env:
	default:
		log.Warn().
			Str("room_id", env.RoomID.String()).
			Str("event_type", string(env.Type)).
			Msg("broadcast channel full, dropping envelope")
	}
}

// Upgrade promotes an HTTP request to a WebSocket subscribed to roomID.
func (cm *ConnectionManager) Upgrade(w http.ResponseWriter, r *http.Request, roomID uuid.UUID) (*Connection, error) {
	ws, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	c := &Connection{
		ID:          uuid.New().String(),
		RoomID:      roomID,
		Conn:        ws,
		Send:        make(chan []byte, 256),
		manager:     cm,
		ConnectedAt: cm.clock.Now(),
	}
	cm.register(c)

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("connection_id", c.ID).
		Str("room_id", roomID.String()).
		Msg("websocket connection established")
	return c, nil
}

func (cm *ConnectionManager) register(c *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.roomConnections[c.RoomID] == nil {
		cm.roomConnections[c.RoomID] = make(map[*Connection]bool)
	}
	cm.roomConnections[c.RoomID][c] = true
}

func (cm *ConnectionManager) unregister(c *Connection) {
	cm.mu.Lock()
	pool := cm.roomConnections[c.RoomID]
	_, live := pool[c]
	if live {
		delete(pool, c)
		close(c.Send)
		if len(pool) == 0 {
			delete(cm.roomConnections, c.RoomID)
		}
	}
	cm.mu.Unlock()

	if !live {
		return
	}
	log.Info().
		Str("connection_id", c.ID).
		Str("room_id", c.RoomID.String()).
		Msg("websocket connection closed")
}

// fanOut delivers one envelope to every connection in its room.
func (cm *ConnectionManager) fanOut(env *events.Envelope) {
	cm.mu.RLock()
	pool := cm.roomConnections[env.RoomID]
	targets := make([]*Connection, 0, len(pool))
	for c := range pool {
		targets = append(targets, c)
	}
	cm.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal envelope for fan-out")
		return
	}

	for _, c := range targets {
		select {
		case c.Send <- data:
		default:
			// A slow client loses its socket, never the room's cadence.
			log.Warn().
				Str("connection_id", c.ID).
				Msg("send buffer full, closing connection")
			cm.unregister(c)
			c.Conn.Close()
		}
	}
}

// Stats reports live connection counts per room.
func (cm *ConnectionManager) Stats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	total := 0
	rooms := make(map[string]int, len(cm.roomConnections))
	for roomID, pool := range cm.roomConnections {
		total += len(pool)
		rooms[roomID.String()] = len(pool)
	}
	return map[string]interface{}{
		"total_connections": total,
		"active_rooms":      len(cm.roomConnections),
		"room_connections":  rooms,
	}
}

// Reply sends one message to this connection only.
func (c *Connection) Reply(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal reply")
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Warn().Str("connection_id", c.ID).Msg("send buffer full, dropping reply")
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.manager.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.manager.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close")
			}
			return
		}
		if c.manager.onMessage != nil {
			c.manager.onMessage(c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}
