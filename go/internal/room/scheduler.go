// Package room runs the perpetual session cycle for one themed arena:
// active session, intermission, next session, forever. One scheduler
// goroutine owns the room lifecycle; the roster registry and the live
// session handle their own concurrency.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/brightwell/liveroom/go/internal/content"
	"github.com/brightwell/liveroom/go/internal/events"
	"github.com/brightwell/liveroom/go/internal/liveness"
	"github.com/brightwell/liveroom/go/internal/models"
	"github.com/brightwell/liveroom/go/internal/roster"
	"github.com/brightwell/liveroom/go/internal/session"
)

var (
	// ErrSchedulerConflict means another scheduler instance is already
	// advancing this room. Fatal only to the losing caller; the room
	// continues under the winner.
	ErrSchedulerConflict = errors.New("room already being advanced by another scheduler")

	// ErrNoActiveSession means the room is in intermission.
	ErrNoActiveSession = errors.New("no active session in room")
)

var aiNames = []string{"Nova", "Quill", "Byte", "Echo", "Pixel", "Rune"}

// Config holds scheduler tuning shared across a room's sessions.
type Config struct {
	TickCadence time.Duration
	Liveness    liveness.Config
	SeedBase    int64 // non-zero pins session seeds for reproducibility
}

// Scheduler owns one room's lifecycle.
type Scheduler struct {
	room     *models.Room
	registry *roster.Registry
	pack     ClueSource
	clock    clockwork.Clock
	sink     session.EventSink
	store    session.Persister
	cfg      Config

	seq       atomic.Uint64 // per-room envelope counter
	advanceMu sync.Mutex    // session-advance guard

	mu         sync.Mutex
	current    *session.Session
	sessionSeq int
	paused     bool
}

// ClueSource hands the scheduler a clue pack per session, letting rooms
// rotate packs between sessions.
type ClueSource interface {
	NextPack() (*content.Pack, error)
}

// StaticPack is a ClueSource serving one fixed pack.
type StaticPack struct {
	Pack *content.Pack
}

func (s StaticPack) NextPack() (*content.Pack, error) {
	return s.Pack, nil
}

// LibrarySource draws a room theme's pack from the content library.
type LibrarySource struct {
	Library *content.Library
	Theme   string
}

func (l LibrarySource) NextPack() (*content.Pack, error) {
	return l.Library.PackForTheme(l.Theme)
}

// NewScheduler builds a scheduler for one room.
func NewScheduler(
	rm *models.Room,
	registry *roster.Registry,
	pack ClueSource,
	clock clockwork.Clock,
	sink session.EventSink,
	store session.Persister,
	cfg Config,
) *Scheduler {
	return &Scheduler{
		room:     rm,
		registry: registry,
		pack:     pack,
		clock:    clock,
		sink:     sink,
		store:    store,
		cfg:      cfg,
	}
}

// Run cycles sessions until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	log.Info().
		Str("room_id", s.room.ID.String()).
		Str("theme", s.room.Theme).
		Msg("room scheduler starting")

	for {
		sess, err := s.startSession(ctx)
		if err != nil {
			if errors.Is(err, ErrSchedulerConflict) {
				log.Error().Err(err).Str("room_id", s.room.ID.String()).Msg("scheduler lost advance race, exiting")
				return
			}
			log.Error().Err(err).Str("room_id", s.room.ID.String()).Msg("failed to start session")
			if !s.sleep(ctx, s.room.Settings.Intermission) {
				return
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-sess.Done():
		}

		s.enterIntermission(sess.ID())
		if !s.sleep(ctx, s.room.Settings.Intermission) {
			return
		}
	}
}

// startSession confirms the roster and launches the next session. The
// advance guard makes concurrent advancement attempts lose loudly instead
// of double-starting a session.
func (s *Scheduler) startSession(ctx context.Context) (*session.Session, error) {
	if !s.advanceMu.TryLock() {
		return nil, ErrSchedulerConflict
	}
	defer s.advanceMu.Unlock()

	pack, err := s.pack.NextPack()
	if err != nil {
		return nil, fmt.Errorf("no clue pack for room %s: %w", s.room.ID, err)
	}

	s.mu.Lock()
	s.sessionSeq++
	sessionSeq := s.sessionSeq
	s.mu.Unlock()

	// Roster confirmation happens against a provisional id; the session
	// overwrites it with its own once built.
	rosterID := uuid.New()
	if _, err := s.registry.PromoteSpectators(rosterID); err != nil {
		return nil, err
	}
	s.registry.BackfillAI(rosterID, func(i int) models.Identity {
		name := aiNames[i%len(aiNames)]
		return models.Identity{
			UserID:      fmt.Sprintf("ai:%s:%d-%d", s.room.ID, sessionSeq, i),
			DisplayName: fmt.Sprintf("%s (bot)", name),
		}
	})

	players := s.registry.Players()
	quota := s.room.Settings.SlotQuota(len(players))

	seed := s.cfg.SeedBase
	if seed == 0 {
		seed = s.clock.Now().UnixNano()
	}
	seed += int64(sessionSeq) * 7919

	sess, err := session.New(s.room.ID, sessionSeq, pack, players, session.Config{
		CluesPerSession: s.room.Settings.CluesPerSession,
		ClueDuration:    s.room.Settings.ClueDuration,
		TickCadence:     s.cfg.TickCadence,
		SlotQuota:       quota,
		Seed:            seed,
		AITakeover:      s.room.Settings.AITakeoverOnDrop,
		Liveness:        s.cfg.Liveness,
	}, s.clock, s.sink, s.store, s.nextSeq)
	if err != nil {
		return nil, err
	}

	id := sess.ID()
	s.mu.Lock()
	s.current = sess
	s.room.Status = models.RoomStatusActive
	s.room.CurrentSessionID = &id
	s.room.NextSessionAt = nil
	s.mu.Unlock()

	log.Info().
		Str("room_id", s.room.ID.String()).
		Str("session_id", id.String()).
		Int("session_seq", sessionSeq).
		Int("players", len(players)).
		Int("slot_quota", quota).
		Msg("session scheduled")

	go sess.Run(ctx)
	return sess, nil
}

// enterIntermission flips the room to intermission and announces when the
// next session starts. AI players leave between sessions so humans get
// first claim on the next roster.
func (s *Scheduler) enterIntermission(sessionID uuid.UUID) {
	nextAt := s.clock.Now().Add(s.room.Settings.Intermission)

	s.mu.Lock()
	s.current = nil
	s.room.Status = models.RoomStatusIntermission
	s.room.CurrentSessionID = nil
	s.room.NextSessionAt = &nextAt
	s.mu.Unlock()

	s.registry.RemoveAIPlayers()

	s.broadcast(sessionID, events.EventTypeRoomIntermission, events.RoomIntermissionPayload{
		RoomID:        s.room.ID.String(),
		NextSessionAt: nextAt,
	})

	log.Info().
		Str("room_id", s.room.ID.String()).
		Time("next_session_at", nextAt).
		Msg("room entered intermission")
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	timer := s.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

// Join admits an identity under the room's current lifecycle state and
// announces the arrival.
func (s *Scheduler) Join(identity models.Identity) (*models.Participant, error) {
	s.mu.Lock()
	status := s.room.Status
	s.mu.Unlock()

	p, err := s.registry.Join(status, identity)
	if err != nil {
		return nil, err
	}

	s.broadcast(uuid.Nil, events.EventTypeParticipantJoined, events.ParticipantJoinedPayload{
		ParticipantID: p.ID.String(),
		DisplayName:   p.Identity.DisplayName,
		Kind:          p.Kind,
		JoinedAt:      p.JoinedAt,
	})
	return p, nil
}

// JoinSpectator queues an identity for the next session. Fallback after
// roster.ErrCapacityExceeded.
func (s *Scheduler) JoinSpectator(identity models.Identity) (*models.Participant, error) {
	return s.registry.JoinSpectator(identity)
}

// Rebind resolves an identity that is already active in the room, so a
// client arriving on a fresh connection can reattach to its participant
// instead of being locked out as a duplicate.
func (s *Scheduler) Rebind(identity models.Identity) (*models.Participant, bool) {
	return s.registry.ResolveIdentity(identity.UserID)
}

// Leave removes a participant from the room.
func (s *Scheduler) Leave(id uuid.UUID) {
	s.registry.Leave(id)
}

// Current returns the live session.
func (s *Scheduler) Current() (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, ErrNoActiveSession
	}
	return s.current, nil
}

// Room returns a snapshot of the room's lifecycle state.
func (s *Scheduler) Room() models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.room
}

// Pause freezes the live session's clue countdown. Admin surface; the
// scheduler keeps the room active while paused.
func (s *Scheduler) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNoActiveSession
	}
	if !s.paused {
		s.paused = true
		s.current.Pause()
	}
	return nil
}

// Resume restarts a paused countdown from the captured remainder.
func (s *Scheduler) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNoActiveSession
	}
	if s.paused {
		s.paused = false
		s.current.Resume()
	}
	return nil
}

func (s *Scheduler) nextSeq() uint64 {
	return s.seq.Add(1)
}

// broadcast emits a room-scoped envelope outside any session.
func (s *Scheduler) broadcast(sessionID uuid.UUID, t events.EventType, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(t)).Msg("failed to marshal room event")
		return
	}
	s.sink.Enqueue(&events.Envelope{
		ID:        uuid.New(),
		RoomID:    s.room.ID,
		SessionID: sessionID,
		Seq:       s.nextSeq(),
		Type:      t,
		Timestamp: s.clock.Now(),
		Data:      data,
	})
}
