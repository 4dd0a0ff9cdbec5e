package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/brightwell/liveroom/go/internal/cluetimer"
	"github.com/brightwell/liveroom/go/internal/models"
	"github.com/brightwell/liveroom/go/internal/room"
	"github.com/brightwell/liveroom/go/internal/roster"
	"github.com/brightwell/liveroom/go/internal/session"
)

// clientMessage is the inbound WebSocket protocol. Type selects the
// operation; the remaining fields are per-type.
type clientMessage struct {
	Type string `json:"type"`

	// join
	UserID      string `json:"user_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Spectate    bool   `json:"spectate,omitempty"`

	// click
	ClueNumber int         `json:"clue_number,omitempty"`
	Cell       models.Cell `json:"cell"`

	// heartbeat
	LastSeenSeq uint64 `json:"last_seen_seq,omitempty"`

	// time_probe / timer_check
	ClientSentAt      time.Time `json:"client_sent_at,omitempty"`
	ClientRemainingMs int64     `json:"client_remaining_ms,omitempty"`
}

// Service routes client messages to room schedulers and live sessions.
type Service struct {
	cm    *ConnectionManager
	clock clockwork.Clock

	mu    sync.RWMutex
	rooms map[uuid.UUID]*room.Scheduler
}

// NewService wires a connection manager to a set of rooms.
func NewService(cm *ConnectionManager, clock clockwork.Clock) *Service {
	s := &Service{
		cm:    cm,
		clock: clock,
		rooms: make(map[uuid.UUID]*room.Scheduler),
	}
	cm.onMessage = s.handleClientMessage
	return s
}

// AddRoom registers a running room with the gateway.
func (s *Service) AddRoom(sched *room.Scheduler) {
	rm := sched.Room()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[rm.ID] = sched
}

// SchedulerFor returns the scheduler owning a room.
func (s *Service) SchedulerFor(roomID uuid.UUID) (*room.Scheduler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.rooms[roomID]
	return sched, ok
}

// Rooms lists the registered rooms.
func (s *Service) Rooms() []models.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Room, 0, len(s.rooms))
	for _, sched := range s.rooms {
		out = append(out, sched.Room())
	}
	return out
}

func (s *Service) handleClientMessage(c *Connection, data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.Reply(errorReply("", "malformed message"))
		return
	}

	sched, ok := s.SchedulerFor(c.RoomID)
	if !ok {
		c.Reply(errorReply(msg.Type, "unknown room"))
		return
	}

	switch msg.Type {
	case "join":
		s.handleJoin(c, sched, msg)
	case "click":
		s.handleClick(c, sched, msg)
	case "heartbeat":
		s.handleHeartbeat(c, sched, msg)
	case "time_probe":
		// Round-trip probe for client clock-offset estimation. The client
		// pairs server_now with its own send/receive times.
		c.Reply(map[string]interface{}{
			"type":           "time_probe_ack",
			"client_sent_at": msg.ClientSentAt,
			"server_now":     s.clock.Now(),
		})
	case "timer_check":
		s.handleTimerCheck(c, sched, msg)
	case "leave":
		if c.ParticipantID != uuid.Nil {
			sched.Leave(c.ParticipantID)
			c.ParticipantID = uuid.Nil
		}
	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("type", msg.Type).
			Msg("ignoring unknown client message")
	}
}

func (s *Service) handleJoin(c *Connection, sched *room.Scheduler, msg clientMessage) {
	identity := models.Identity{UserID: msg.UserID, DisplayName: msg.DisplayName}

	var p *models.Participant
	var err error
	if msg.Spectate {
		p, err = sched.JoinSpectator(identity)
	} else {
		p, err = sched.Join(identity)
	}
	if errors.Is(err, roster.ErrCapacityExceeded) {
		// The room is full; the client may retry with spectate set.
		c.Reply(map[string]interface{}{
			"type":               "join_rejected",
			"reason":             "room_full",
			"spectate_available": true,
		})
		return
	}
	if errors.Is(err, roster.ErrDuplicateIdentity) {
		// The identity still holds a roster claim: the previous socket
		// dropped. Reattach this connection instead of locking the
		// client out.
		s.handleRejoin(c, sched, msg)
		return
	}
	if err != nil {
		c.Reply(errorReply("join", err.Error()))
		return
	}

	c.ParticipantID = p.ID
	c.Reply(map[string]interface{}{
		"type":        "joined",
		"participant": p,
		"room":        sched.Room(),
	})
}

// handleRejoin binds a fresh connection to the participant an identity
// already holds, and catches the client up on what it missed while offline.
// The heartbeat restarts the liveness clock so the session announces the
// reconnect.
func (s *Service) handleRejoin(c *Connection, sched *room.Scheduler, msg clientMessage) {
	p, ok := sched.Rebind(models.Identity{UserID: msg.UserID, DisplayName: msg.DisplayName})
	if !ok {
		c.Reply(errorReply("join", "identity not found"))
		return
	}
	c.ParticipantID = p.ID

	out := map[string]interface{}{
		"type":        "joined",
		"rejoined":    true,
		"participant": p,
		"room":        sched.Room(),
	}
	if sess, err := sched.Current(); err == nil {
		sess.Heartbeat(p.ID, msg.LastSeenSeq)
		if missed, err := sess.MissedEvents(p.ID, msg.LastSeenSeq); err == nil {
			out["missed"] = missed
		}
	}

	log.Info().
		Str("connection_id", c.ID).
		Str("participant_id", p.ID.String()).
		Str("user_id", msg.UserID).
		Msg("connection rebound to existing participant")
	c.Reply(out)
}

func (s *Service) handleClick(c *Connection, sched *room.Scheduler, msg clientMessage) {
	if c.ParticipantID == uuid.Nil {
		c.Reply(errorReply("click", "join before clicking"))
		return
	}
	sess, err := sched.Current()
	if err != nil {
		c.Reply(errorReply("click", "room is in intermission"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply := sess.SubmitClick(ctx, c.ParticipantID, msg.ClueNumber, msg.Cell)

	out := map[string]interface{}{
		"type":            "click_result",
		"clue_number":     reply.ClueNumber,
		"is_correct":      reply.Outcome.IsCorrect,
		"unlocked":        reply.Outcome.NewlyUnlocked,
		"completed_lines": reply.Outcome.CompletedLines,
		"won_slot":        reply.WonSlot,
	}
	if reply.Err != nil {
		out["error"] = reply.Err.Error()
		out["slots_exhausted"] = errors.Is(reply.Err, session.ErrSlotsExhausted)
	}
	c.Reply(out)
}

func (s *Service) handleHeartbeat(c *Connection, sched *room.Scheduler, msg clientMessage) {
	if c.ParticipantID == uuid.Nil {
		return
	}
	sess, err := sched.Current()
	if err != nil {
		return // heartbeats between sessions carry no state
	}
	sess.Heartbeat(c.ParticipantID, msg.LastSeenSeq)
}

// handleTimerCheck validates the client's interpolated countdown and forces
// a resync with the authoritative ends_at when it drifted.
func (s *Service) handleTimerCheck(c *Connection, sched *room.Scheduler, msg clientMessage) {
	sess, err := sched.Current()
	if err != nil {
		return
	}
	driftErr := sess.TimerDriftCheck(time.Duration(msg.ClientRemainingMs) * time.Millisecond)
	c.Reply(map[string]interface{}{
		"type":       "timer_check_ack",
		"in_sync":    driftErr == nil,
		"resync":     errors.Is(driftErr, cluetimer.ErrTimerDesync),
		"server_now": s.clock.Now(),
	})
}

func errorReply(op, reason string) map[string]interface{} {
	return map[string]interface{}{
		"type":   "error",
		"op":     op,
		"reason": reason,
	}
}
