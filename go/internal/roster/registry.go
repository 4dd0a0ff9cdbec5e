// Package roster holds the authoritative in-memory participant registry for
// one room. Joins arrive from gateway goroutines, so the registry guards its
// state with a mutex; everything else in a session is single-writer.
package roster

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/brightwell/liveroom/go/internal/models"
)

var (
	// ErrCapacityExceeded means the room is full. Callers offer spectator
	// mode as the fallback.
	ErrCapacityExceeded = errors.New("room capacity exceeded")

	// ErrDuplicateIdentity means the human identity is already active in
	// this room.
	ErrDuplicateIdentity = errors.New("identity already active in room")

	// ErrAlreadyPromoted means spectators were already promoted for this
	// session. Promotion runs exactly once per intermission->active
	// transition.
	ErrAlreadyPromoted = errors.New("spectators already promoted for session")
)

// Registry is the per-room roster of players and queued spectators.
type Registry struct {
	roomID     uuid.UUID
	capacity   int
	minPlayers int
	clock      clockwork.Clock

	mu              sync.Mutex
	players         map[uuid.UUID]*models.Participant
	spectators      []*models.Participant
	activeIdentity  map[string]uuid.UUID // human user ID -> participant
	promotedSession uuid.UUID
}

// New creates a registry for one room.
func New(roomID uuid.UUID, capacity, minPlayers int, clock clockwork.Clock) *Registry {
	return &Registry{
		roomID:         roomID,
		capacity:       capacity,
		minPlayers:     minPlayers,
		clock:          clock,
		players:        make(map[uuid.UUID]*models.Participant),
		activeIdentity: make(map[string]uuid.UUID),
	}
}

// Join admits an identity into the room. While the room is active, joiners
// become spectators queued for the next session. During intermission they
// join the upcoming roster directly, subject to capacity; beyond capacity
// the join is rejected with ErrCapacityExceeded and the caller offers
// spectator mode instead.
func (r *Registry) Join(roomStatus models.RoomStatus, identity models.Identity) (*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.activeIdentity[identity.UserID]; dup {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateIdentity, identity.UserID)
	}

	if roomStatus == models.RoomStatusActive {
		return r.enqueueSpectatorLocked(identity), nil
	}

	if len(r.players) >= r.capacity {
		return nil, fmt.Errorf("%w: capacity %d", ErrCapacityExceeded, r.capacity)
	}

	p := r.newParticipantLocked(identity, models.ParticipantKindHuman)
	r.players[p.ID] = p
	r.activeIdentity[identity.UserID] = p.ID

	log.Info().
		Str("room_id", r.roomID.String()).
		Str("participant_id", p.ID.String()).
		Str("user_id", identity.UserID).
		Msg("participant joined roster")
	return p, nil
}

// JoinSpectator queues an identity for the next session regardless of room
// state. This is the fallback offered after ErrCapacityExceeded.
func (r *Registry) JoinSpectator(identity models.Identity) (*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.activeIdentity[identity.UserID]; dup {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateIdentity, identity.UserID)
	}
	return r.enqueueSpectatorLocked(identity), nil
}

func (r *Registry) enqueueSpectatorLocked(identity models.Identity) *models.Participant {
	p := r.newParticipantLocked(identity, models.ParticipantKindSpectator)
	r.spectators = append(r.spectators, p)
	r.activeIdentity[identity.UserID] = p.ID

	log.Info().
		Str("room_id", r.roomID.String()).
		Str("participant_id", p.ID.String()).
		Str("user_id", identity.UserID).
		Msg("spectator queued for next session")
	return p
}

func (r *Registry) newParticipantLocked(identity models.Identity, kind models.ParticipantKind) *models.Participant {
	now := r.clock.Now()
	return &models.Participant{
		ID:            uuid.New(),
		Kind:          kind,
		Identity:      identity,
		Connection:    models.ConnectionStatusConnected,
		LastHeartbeat: now,
		JoinedAt:      now,
	}
}

// PromoteSpectators moves queued spectators onto the player roster for the
// given session, oldest first, up to capacity. It runs exactly once per
// intermission->active transition; a second call for the same session is
// rejected with ErrAlreadyPromoted.
func (r *Registry) PromoteSpectators(sessionID uuid.UUID) ([]*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.promotedSession == sessionID {
		return nil, fmt.Errorf("%w: session %s", ErrAlreadyPromoted, sessionID)
	}
	r.promotedSession = sessionID

	promoted := make([]*models.Participant, 0, len(r.spectators))
	remaining := r.spectators[:0]
	for _, p := range r.spectators {
		if len(r.players) >= r.capacity {
			remaining = append(remaining, p)
			continue
		}
		p.Kind = models.ParticipantKindHuman
		p.SessionID = sessionID
		r.players[p.ID] = p
		promoted = append(promoted, p)
	}
	r.spectators = remaining

	for _, p := range r.players {
		p.SessionID = sessionID
	}

	log.Info().
		Str("room_id", r.roomID.String()).
		Str("session_id", sessionID.String()).
		Int("promoted", len(promoted)).
		Int("still_queued", len(r.spectators)).
		Msg("spectators promoted to players")
	return promoted, nil
}

// BackfillAI adds simulated players until the roster reaches minPlayers, so
// a session never starts solo or empty. Returns the added agents.
func (r *Registry) BackfillAI(sessionID uuid.UUID, nameFor func(i int) models.Identity) []*models.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	var added []*models.Participant
	for i := 0; len(r.players) < r.minPlayers && len(r.players) < r.capacity; i++ {
		identity := nameFor(i)
		p := r.newParticipantLocked(identity, models.ParticipantKindAI)
		p.SessionID = sessionID
		r.players[p.ID] = p
		added = append(added, p)
	}

	if len(added) > 0 {
		log.Info().
			Str("room_id", r.roomID.String()).
			Str("session_id", sessionID.String()).
			Int("added", len(added)).
			Msg("backfilled roster with AI players")
	}
	return added
}

// ResolveIdentity returns the participant already holding a user identity,
// whether on the active roster or in the spectator queue. Lets a client on
// a fresh connection reattach after a socket drop.
func (r *Registry) ResolveIdentity(userID string) (*models.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.activeIdentity[userID]
	if !ok {
		return nil, false
	}
	if p, ok := r.players[id]; ok {
		return p, true
	}
	for _, p := range r.spectators {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// Leave removes a participant from the roster or spectator queue.
func (r *Registry) Leave(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.players[id]; ok {
		delete(r.players, id)
		delete(r.activeIdentity, p.Identity.UserID)
		return
	}
	for i, p := range r.spectators {
		if p.ID == id {
			r.spectators = append(r.spectators[:i], r.spectators[i+1:]...)
			delete(r.activeIdentity, p.Identity.UserID)
			return
		}
	}
}

// RemoveAIPlayers drops simulated players between sessions so humans get
// first claim on the next roster.
func (r *Registry) RemoveAIPlayers() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, p := range r.players {
		if p.Kind == models.ParticipantKindAI {
			delete(r.players, id)
			delete(r.activeIdentity, p.Identity.UserID)
		}
	}
}

// Players returns a snapshot of the active roster.
func (r *Registry) Players() []*models.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*models.Participant, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p)
	}
	return out
}

// Player looks up one active participant.
func (r *Registry) Player(id uuid.UUID) (*models.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	return p, ok
}

// PlayerCount returns the active roster size.
func (r *Registry) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// SpectatorCount returns the queue length.
func (r *Registry) SpectatorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.spectators)
}
