// Package cluetimer implements the server-authoritative per-clue countdown.
// Clients never derive expiry from local clocks: every tick carries endsAt
// and serverNow, and clients interpolate between ticks using a clock offset
// computed from a round-trip probe.
package cluetimer

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrTimerDesync means a client's reported countdown drifted beyond
// tolerance. Non-fatal: the caller forces a resync.
var ErrTimerDesync = errors.New("client timer drift beyond tolerance")

// State is the timer state machine: idle -> running -> {paused, expired}.
type State string

const (
	StateIdle    State = "IDLE"
	StateRunning State = "RUNNING"
	StatePaused  State = "PAUSED"
	StateExpired State = "EXPIRED"
)

// Tick is one countdown broadcast.
type Tick struct {
	ClueNumber       int
	RemainingSeconds int
	EndsAt           time.Time
	ServerNow        time.Time
	Paused           bool
}

// Timer drives the countdown for one session's active clue. Start, Pause,
// Resume and Stop may be called from any goroutine; callbacks fire without
// the timer lock held. A generation counter makes callbacks from cancelled
// runs detect staleness and no-op.
type Timer struct {
	clock     clockwork.Clock
	cadence   time.Duration
	tolerance time.Duration
	onTick    func(Tick)
	onExpire  func(clueNumber int)

	mu         sync.Mutex
	state      State
	gen        uint64
	clueNumber int
	endsAt     time.Time
	remaining  time.Duration // captured on pause
}

// Config holds timer tuning.
type Config struct {
	TickCadence    time.Duration // default 2s
	DriftTolerance time.Duration // default 3s
}

// New creates an idle timer. onTick and onExpire must be non-nil.
func New(clock clockwork.Clock, cfg Config, onTick func(Tick), onExpire func(clueNumber int)) *Timer {
	if cfg.TickCadence <= 0 {
		cfg.TickCadence = 2 * time.Second
	}
	if cfg.DriftTolerance <= 0 {
		cfg.DriftTolerance = 3 * time.Second
	}
	return &Timer{
		clock:     clock,
		cadence:   cfg.TickCadence,
		tolerance: cfg.DriftTolerance,
		onTick:    onTick,
		onExpire:  onExpire,
		state:     StateIdle,
	}
}

// Start begins the countdown for a clue. endsAt is computed from the server
// clock and never changes until an explicit stop. Any previous run is
// cancelled.
func (t *Timer) Start(clueNumber int, duration time.Duration) Tick {
	t.mu.Lock()
	t.gen++
	gen := t.gen
	t.state = StateRunning
	t.clueNumber = clueNumber
	now := t.clock.Now()
	t.endsAt = now.Add(duration)
	tick := t.tickLocked(now)
	t.mu.Unlock()

	go t.run(gen)

	log.Debug().
		Int("clue_number", clueNumber).
		Time("ends_at", tick.EndsAt).
		Msg("clue timer started")

	t.onTick(tick)
	return tick
}

// Pause freezes the countdown, capturing the remaining duration.
func (t *Timer) Pause() {
	t.mu.Lock()
	if t.state != StateRunning {
		t.mu.Unlock()
		return
	}
	t.gen++ // cancel the running goroutine
	t.state = StatePaused
	now := t.clock.Now()
	t.remaining = t.endsAt.Sub(now)
	if t.remaining < 0 {
		t.remaining = 0
	}
	tick := t.tickLocked(now)
	t.mu.Unlock()

	t.onTick(tick)
}

// Resume restarts a paused countdown from the captured remainder.
func (t *Timer) Resume() {
	t.mu.Lock()
	if t.state != StatePaused {
		t.mu.Unlock()
		return
	}
	t.gen++
	gen := t.gen
	t.state = StateRunning
	now := t.clock.Now()
	t.endsAt = now.Add(t.remaining)
	tick := t.tickLocked(now)
	t.mu.Unlock()

	go t.run(gen)
	t.onTick(tick)
}

// Stop cancels the countdown. Idempotent: stopping an idle or expired timer
// is a no-op.
func (t *Timer) Stop() {
	t.mu.Lock()
	if t.state == StateIdle || t.state == StateExpired {
		t.mu.Unlock()
		return
	}
	t.gen++
	t.state = StateIdle
	now := t.clock.Now()
	tick := t.tickLocked(now)
	t.mu.Unlock()

	t.onTick(tick)
}

// State returns the current state.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// EndsAt returns the authoritative expiry of the running clue.
func (t *Timer) EndsAt() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endsAt, t.state == StateRunning
}

// CheckDrift validates a client-reported remaining duration against the
// authoritative countdown. Returns ErrTimerDesync beyond tolerance so the
// caller can force a resync.
func (t *Timer) CheckDrift(clientRemaining time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateRunning {
		return nil
	}
	actual := t.endsAt.Sub(t.clock.Now())
	drift := clientRemaining - actual
	if drift < 0 {
		drift = -drift
	}
	if drift > t.tolerance {
		return ErrTimerDesync
	}
	return nil
}

// tickLocked builds a Tick snapshot. Remaining seconds round up so the
// countdown reads N at the instant the clue opens and is non-increasing
// between consecutive ticks.
func (t *Timer) tickLocked(now time.Time) Tick {
	remaining := t.endsAt.Sub(now)
	if t.state == StatePaused {
		remaining = t.remaining
	}
	if remaining < 0 {
		remaining = 0
	}
	return Tick{
		ClueNumber:       t.clueNumber,
		RemainingSeconds: int((remaining + time.Second - 1) / time.Second),
		EndsAt:           t.endsAt,
		ServerNow:        now,
		Paused:           t.state == StatePaused,
	}
}

// run drives cadence ticks and the expiry for one generation. Any state
// change bumps the generation, so a stale run exits at its next wakeup
// without side effects.
func (t *Timer) run(gen uint64) {
	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return
	}
	expireIn := t.endsAt.Sub(t.clock.Now())
	t.mu.Unlock()

	ticker := t.clock.NewTicker(t.cadence)
	defer ticker.Stop()
	expire := t.clock.NewTimer(expireIn)
	defer expire.Stop()

	for {
		select {
		case <-ticker.Chan():
			t.mu.Lock()
			if t.gen != gen || t.state != StateRunning {
				t.mu.Unlock()
				return
			}
			tick := t.tickLocked(t.clock.Now())
			t.mu.Unlock()
			t.onTick(tick)

		case <-expire.Chan():
			t.mu.Lock()
			if t.gen != gen || t.state != StateRunning {
				t.mu.Unlock()
				return
			}
			t.gen++
			t.state = StateExpired
			clue := t.clueNumber
			tick := t.tickLocked(t.clock.Now())
			t.mu.Unlock()

			t.onTick(tick)
			t.onExpire(clue)
			return
		}
	}
}
