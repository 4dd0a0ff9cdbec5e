// Package session implements one played round: the clue sequence, slot
// quota and winners. Exactly one goroutine owns all session state; every
// inbound action (human clicks, AI clicks, heartbeats, timer expiries) is
// serialized through the session's action queue, which eliminates races on
// slot allocation and line detection.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/brightwell/liveroom/go/internal/agent"
	"github.com/brightwell/liveroom/go/internal/card"
	"github.com/brightwell/liveroom/go/internal/cluetimer"
	"github.com/brightwell/liveroom/go/internal/content"
	"github.com/brightwell/liveroom/go/internal/events"
	"github.com/brightwell/liveroom/go/internal/liveness"
	"github.com/brightwell/liveroom/go/internal/models"
)

var (
	// ErrSlotsExhausted means a completed line arrived after the last slot
	// was claimed. User-visible as "slot already claimed".
	ErrSlotsExhausted = errors.New("all bingo slots already claimed")

	// ErrStaleAction means an action targeted an expired clue. Stale
	// actions are dropped and logged, never broadcast.
	ErrStaleAction = errors.New("action against expired clue")

	// ErrSessionClosed means the session already completed.
	ErrSessionClosed = errors.New("session is not active")

	// ErrUnknownParticipant means the actor is not on this session's roster.
	ErrUnknownParticipant = errors.New("participant not in session")
)

// EventSink receives outbound envelopes. Satisfied by broadcast.Dispatcher.
type EventSink interface {
	Enqueue(env *events.Envelope)
}

// Persister receives append-only records. Satisfied by store.AsyncWriter.
type Persister interface {
	EnqueueClueEvent(ev models.ClueEvent)
	EnqueueClickEvent(ev models.ClickEvent)
	EnqueueSessionSummary(s models.SessionSummary)
}

// Config holds per-session tuning derived from room settings.
type Config struct {
	CluesPerSession int
	ClueDuration    time.Duration
	TickCadence     time.Duration
	SlotQuota       int
	Seed            int64 // drives card layout and agent randomness
	AITakeover      bool  // opt-in AI control of disconnected cards
	Liveness        liveness.Config
}

// ClickReply is the session's answer to one submitted click.
type ClickReply struct {
	Outcome    card.ClickOutcome
	WonSlot    bool
	ClueNumber int
	Err        error
}

type clickKey struct {
	participantID uuid.UUID
	clueNumber    int
	cell          models.Cell
}

type action interface{}

type clickAction struct {
	participantID uuid.UUID
	clueNumber    int
	cell          models.Cell
	reply         chan ClickReply // nil for AI clicks
}

type heartbeatAction struct {
	participantID uuid.UUID
	lastSeenSeq   uint64
}

type timerExpiredAction struct {
	clueNumber int
}

type livenessTransitionAction struct {
	tr liveness.Transition
}

type snapshotAction struct {
	reply chan Snapshot
}

// Session is one live round. All fields below the action channel are owned
// by the Run goroutine; nothing else touches them.
type Session struct {
	id       uuid.UUID
	roomID   uuid.UUID
	sequence int
	theme    string

	clock   clockwork.Clock
	cfg     Config
	sink    EventSink
	store   Persister
	nextSeq func() uint64

	timer   *cluetimer.Timer
	monitor *liveness.Monitor
	log     *replayLog

	actionCh chan action
	done     chan struct{}

	// single-writer state
	state        models.GameSession
	participants map[uuid.UUID]*models.Participant
	cards        map[uuid.UUID]*card.PlayerCard
	agents       map[uuid.UUID]*agent.Agent
	takeovers    map[uuid.UUID]*agent.Agent // AI control of disconnected cards
	answered     map[uuid.UUID]bool         // correct answers for the current clue
	seenClicks   map[clickKey]ClickReply
	clueIdx      int // 0-based index into state.Clues; -1 before first clue
	completed    bool
}

// New builds a session over an already-confirmed roster. Cards are
// generated here: one per participant, all sharing the session's answer
// set, independently laid out from the session seed.
func New(
	roomID uuid.UUID,
	sequence int,
	pack *content.Pack,
	participants []*models.Participant,
	cfg Config,
	clock clockwork.Clock,
	sink EventSink,
	persister Persister,
	nextSeq func() uint64,
) (*Session, error) {
	s := &Session{
		id:           uuid.New(),
		roomID:       roomID,
		sequence:     sequence,
		theme:        pack.Theme,
		clock:        clock,
		cfg:          cfg,
		sink:         sink,
		store:        persister,
		nextSeq:      nextSeq,
		log:          newReplayLog(),
		actionCh:     make(chan action, 256),
		done:         make(chan struct{}),
		participants: make(map[uuid.UUID]*models.Participant, len(participants)),
		cards:        make(map[uuid.UUID]*card.PlayerCard, len(participants)),
		agents:       make(map[uuid.UUID]*agent.Agent),
		takeovers:    make(map[uuid.UUID]*agent.Agent),
		answered:     make(map[uuid.UUID]bool),
		seenClicks:   make(map[clickKey]ClickReply),
		clueIdx:      -1,
	}

	clues, pool := buildRound(pack, cfg)
	s.state = models.GameSession{
		ID:             s.id,
		RoomID:         roomID,
		Sequence:       sequence,
		Status:         models.SessionStatusActive,
		Clues:          clues,
		SlotQuota:      cfg.SlotQuota,
		SlotsRemaining: cfg.SlotQuota,
		StartedAt:      clock.Now(),
	}

	for i, p := range participants {
		c, err := card.Generate(pool, cfg.Seed+int64(i)+1)
		if err != nil {
			return nil, err
		}
		p.SessionID = s.id
		s.participants[p.ID] = p
		s.cards[p.ID] = card.NewPlayerCard(c)
		if p.Kind == models.ParticipantKindAI {
			s.agents[p.ID] = agent.New(p.ID, agentProfile(i), cfg.Seed+int64(i)+101)
		}
	}

	s.timer = cluetimer.New(clock, cluetimer.Config{TickCadence: cfg.TickCadence}, s.onTick, s.onExpire)
	s.monitor = liveness.NewMonitor(clock, cfg.Liveness, s, s.onLivenessTransition)
	for _, p := range participants {
		if p.Kind == models.ParticipantKindHuman {
			s.monitor.Track(p.ID)
		}
	}
	return s, nil
}

// buildRound derives the session's answer pool and clue sequence from the
// theme pack. The pool's first 24 entries are the shared answer set; the
// clue sequence is the pool's prefix, so every clue's answer sits on every
// card.
func buildRound(pack *content.Pack, cfg Config) ([]models.Clue, []string) {
	entries := append([]content.Entry(nil), pack.Clues...)
	shuffleEntries(entries, cfg.Seed)

	pool := make([]string, 0, models.ClickableCells)
	for _, e := range entries[:models.ClickableCells] {
		pool = append(pool, e.AnswerCode)
	}

	n := cfg.CluesPerSession
	if n <= 0 || n > models.ClickableCells {
		n = models.ClickableCells
	}
	clues := make([]models.Clue, n)
	for i := 0; i < n; i++ {
		clues[i] = models.Clue{
			ID:            uuid.New(),
			Number:        i + 1,
			Text:          entries[i].ClueText,
			AnswerCode:    entries[i].AnswerCode,
			SkillMetadata: entries[i].SkillMetadata,
		}
	}
	return clues, pool
}

// agentProfile cycles difficulties so a backfilled roster mixes easy,
// medium and hard agents.
func agentProfile(i int) agent.Profile {
	switch i % 3 {
	case 0:
		return agent.ProfileFor(agent.DifficultyEasy)
	case 1:
		return agent.ProfileFor(agent.DifficultyMedium)
	default:
		return agent.ProfileFor(agent.DifficultyHard)
	}
}

// ID returns the session id.
func (s *Session) ID() uuid.UUID { return s.id }

// Done closes when the session completes or is torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// SubmitClick serializes a human click into the session loop and waits for
// the authoritative outcome. The reply carries ErrSlotsExhausted when the
// click completed a line after the last slot was claimed.
func (s *Session) SubmitClick(ctx context.Context, participantID uuid.UUID, clueNumber int, cell models.Cell) ClickReply {
	reply := make(chan ClickReply, 1)
	act := clickAction{participantID: participantID, clueNumber: clueNumber, cell: cell, reply: reply}

	select {
	case s.actionCh <- act:
	case <-s.done:
		return ClickReply{Err: ErrSessionClosed}
	case <-ctx.Done():
		return ClickReply{Err: ctx.Err()}
	}

	select {
	case r := <-reply:
		return r
	case <-ctx.Done():
		return ClickReply{Err: ctx.Err()}
	}
}

// Heartbeat serializes a client heartbeat into the session loop.
func (s *Session) Heartbeat(participantID uuid.UUID, lastSeenSeq uint64) {
	select {
	case s.actionCh <- heartbeatAction{participantID: participantID, lastSeenSeq: lastSeenSeq}:
	case <-s.done:
	}
}

// Pause freezes the active clue countdown. Admin surface; gameplay actions
// keep resolving while paused.
func (s *Session) Pause() { s.timer.Pause() }

// Resume restarts a paused countdown from the captured remainder.
func (s *Session) Resume() { s.timer.Resume() }

// TimerDriftCheck validates a client-reported countdown, for forced resyncs.
func (s *Session) TimerDriftCheck(clientRemaining time.Duration) error {
	return s.timer.CheckDrift(clientRemaining)
}

// MissedEvents implements liveness.ReplaySource from the replay log. Safe
// to call from any goroutine; it reads the log under its own lock and never
// enters the action queue.
func (s *Session) MissedEvents(participantID uuid.UUID, sinceSeq uint64) (*models.MissedEventsSummary, error) {
	if _, ok := s.participantByID(participantID); !ok {
		return nil, ErrUnknownParticipant
	}
	summary := s.log.summarize(participantID, sinceSeq)
	if endsAt, running := s.timer.EndsAt(); running {
		summary.TimerEndsAt = &endsAt
	}
	return summary, nil
}

func (s *Session) participantByID(id uuid.UUID) (*models.Participant, bool) {
	// participants map is written only before Run starts; reads are safe.
	p, ok := s.participants[id]
	return p, ok
}

// onTick bridges timer ticks onto the broadcast pipeline. Ticks are not
// replay-logged: clients re-derive remaining time from ends_at.
func (s *Session) onTick(t cluetimer.Tick) {
	s.emitTransient(events.EventTypeTimerTick, events.TimerTickPayload{
		ClueNumber:       t.ClueNumber,
		RemainingSeconds: t.RemainingSeconds,
		EndsAt:           t.EndsAt,
		ServerNow:        t.ServerNow,
		Paused:           t.Paused,
	})
}

// onExpire feeds timer expiry back into the action queue. The loop drops it
// if the clue already advanced: stale callbacks no-op.
func (s *Session) onExpire(clueNumber int) {
	select {
	case s.actionCh <- timerExpiredAction{clueNumber: clueNumber}:
	case <-s.done:
	}
}

// onLivenessTransition feeds monitor transitions into the action queue.
func (s *Session) onLivenessTransition(tr liveness.Transition) {
	select {
	case s.actionCh <- livenessTransitionAction{tr: tr}:
	case <-s.done:
	}
}
