// Package liveness watches participant heartbeats independently of the game
// loop: connected -> grace after a missed heartbeat, grace -> disconnected
// after the grace window, and back to connected on the next heartbeat. It
// talks to the session only to fetch replay data for reconnecting clients.
package liveness

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/brightwell/liveroom/go/internal/models"
)

// Config holds heartbeat tuning. All three windows are configuration, not
// hardcoded policy.
type Config struct {
	HeartbeatInterval time.Duration // expected client cadence
	Timeout           time.Duration // silence before entering grace
	GraceWindow       time.Duration // further silence before disconnected
	SweepInterval     time.Duration // how often the monitor scans
}

// DefaultConfig returns the default liveness windows.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 5 * time.Second,
		Timeout:           10 * time.Second,
		GraceWindow:       20 * time.Second,
		SweepInterval:     time.Second,
	}
}

// ReplaySource produces the catch-up summary for a reconnecting
// participant. Implemented by the game session.
type ReplaySource interface {
	MissedEvents(participantID uuid.UUID, sinceSeq uint64) (*models.MissedEventsSummary, error)
}

// Transition is a liveness state change. Disconnections are state changes,
// not errors; the UI surfaces them as a banner.
type Transition struct {
	ParticipantID uuid.UUID
	From, To      models.ConnectionStatus
	At            time.Time
}

type tracked struct {
	lastHeartbeat time.Time
	status        models.ConnectionStatus
	lastKnownSeq  uint64 // last event seq the client acknowledged
}

// Monitor runs the heartbeat state machine for one session's participants.
type Monitor struct {
	clock      clockwork.Clock
	config     Config
	replay     ReplaySource
	transition func(Transition)

	mu      sync.Mutex
	tracked map[uuid.UUID]*tracked
}

// NewMonitor creates a monitor. transition fires outside the monitor lock
// for every state change.
func NewMonitor(clock clockwork.Clock, cfg Config, replay ReplaySource, transition func(Transition)) *Monitor {
	return &Monitor{
		clock:      clock,
		config:     cfg,
		replay:     replay,
		transition: transition,
		tracked:    make(map[uuid.UUID]*tracked),
	}
}

// Track starts watching a participant. AI participants are never tracked.
func (m *Monitor) Track(participantID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracked[participantID] = &tracked{
		lastHeartbeat: m.clock.Now(),
		status:        models.ConnectionStatusConnected,
	}
}

// Untrack stops watching a participant.
func (m *Monitor) Untrack(participantID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tracked, participantID)
}

// Status returns a participant's liveness state.
func (m *Monitor) Status(participantID uuid.UUID) (models.ConnectionStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tracked[participantID]
	if !ok {
		return "", false
	}
	return t.status, true
}

// Heartbeat records a client heartbeat. lastSeenSeq is the highest event
// sequence the client has processed; it becomes the replay floor if the
// client later reconnects. A heartbeat from a disconnected participant
// resolves into a reconnection: the missed-events summary is returned to
// the caller (the session loop), which broadcasts ParticipantReconnected
// itself. The transition callback fires only from the async sweep, so a
// caller inside the session loop can never deadlock on its own queue.
func (m *Monitor) Heartbeat(participantID uuid.UUID, lastSeenSeq uint64) (*models.MissedEventsSummary, bool, error) {
	m.mu.Lock()
	t, ok := m.tracked[participantID]
	if !ok {
		m.mu.Unlock()
		return nil, false, nil // unknown participants are ignored, not errors
	}

	t.lastHeartbeat = m.clock.Now()
	if lastSeenSeq > t.lastKnownSeq {
		t.lastKnownSeq = lastSeenSeq
	}

	from := t.status
	if from == models.ConnectionStatusConnected {
		m.mu.Unlock()
		return nil, false, nil
	}

	// Grace resolves silently; a full disconnect replays missed events.
	t.status = models.ConnectionStatusConnected
	sinceSeq := t.lastKnownSeq
	m.mu.Unlock()

	if from != models.ConnectionStatusDisconnected {
		return nil, false, nil
	}

	summary, err := m.replay.MissedEvents(participantID, sinceSeq)
	if err != nil {
		log.Error().
			Err(err).
			Str("participant_id", participantID.String()).
			Msg("failed to build missed events summary")
		return nil, true, err
	}
	return summary, true, nil
}

// Run sweeps heartbeats until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.sweep()
		}
	}
}

// sweep advances the state machine for every tracked participant.
func (m *Monitor) sweep() {
	now := m.clock.Now()

	var fired []Transition
	m.mu.Lock()
	for id, t := range m.tracked {
		silence := now.Sub(t.lastHeartbeat)
		switch t.status {
		case models.ConnectionStatusConnected:
			if silence >= m.config.Timeout {
				t.status = models.ConnectionStatusGrace
				fired = append(fired, Transition{
					ParticipantID: id,
					From:          models.ConnectionStatusConnected,
					To:            models.ConnectionStatusGrace,
					At:            now,
				})
			}
		case models.ConnectionStatusGrace:
			if silence >= m.config.Timeout+m.config.GraceWindow {
				t.status = models.ConnectionStatusDisconnected
				fired = append(fired, Transition{
					ParticipantID: id,
					From:          models.ConnectionStatusGrace,
					To:            models.ConnectionStatusDisconnected,
					At:            now,
				})
			}
		}
	}
	m.mu.Unlock()

	for _, tr := range fired {
		log.Info().
			Str("participant_id", tr.ParticipantID.String()).
			Str("from", string(tr.From)).
			Str("to", string(tr.To)).
			Msg("liveness transition")
		m.transition(tr)
	}
}
