package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brightwell/liveroom/go/internal/events"
	"github.com/brightwell/liveroom/go/internal/models"
)

// logEntry is one replay-logged event. Exactly one of clueNumber, click and
// winner is populated, depending on the event type.
type logEntry struct {
	seq        uint64
	typ        events.EventType
	clueNumber int
	click      *models.ClickEvent
	winner     *models.Winner
}

// replayLog is the session's in-memory record of replayable events. The
// session loop appends; the liveness monitor reads concurrently when a
// client reconnects, so access is locked independently of the loop.
type replayLog struct {
	mu      sync.Mutex
	entries []logEntry
	lastSeq uint64
}

func newReplayLog() *replayLog {
	return &replayLog{}
}

func (l *replayLog) record(e logEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	if e.seq > l.lastSeq {
		l.lastSeq = e.seq
	}
}

// summarize builds the catch-up summary for events after sinceSeq. Every
// SlotWon and ClueAdvanced in the gap appears exactly once; the current
// clue is reported separately from the skipped ones.
func (l *replayLog) summarize(participantID uuid.UUID, sinceSeq uint64) *models.MissedEventsSummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	summary := &models.MissedEventsSummary{
		ParticipantID: participantID,
		LastKnownSeq:  sinceSeq,
		CurrentSeq:    l.lastSeq,
	}

	var missedClues []int
	for _, e := range l.entries {
		if e.typ == events.EventTypeClueAdvanced {
			summary.CurrentClueNumber = e.clueNumber
		}
		if e.seq <= sinceSeq {
			continue
		}
		switch e.typ {
		case events.EventTypeClueAdvanced:
			missedClues = append(missedClues, e.clueNumber)
		case events.EventTypeClickResolved:
			summary.ClickEvents = append(summary.ClickEvents, *e.click)
		case events.EventTypeSlotWon:
			summary.Winners = append(summary.Winners, *e.winner)
		}
	}

	// The most recent clue opening is the live clue, not a skipped one.
	if n := len(missedClues); n > 0 && missedClues[n-1] == summary.CurrentClueNumber {
		missedClues = missedClues[:n-1]
	}
	summary.SkippedClueNumbers = missedClues
	return summary
}

// ParticipantView is one roster entry in a session snapshot.
type ParticipantView struct {
	ParticipantID  uuid.UUID               `json:"participant_id"`
	DisplayName    string                  `json:"display_name"`
	Kind           models.ParticipantKind  `json:"kind"`
	Connection     models.ConnectionStatus `json:"connection"`
	UnlockedCells  int                     `json:"unlocked_cells"`
	CompletedLines []models.LineID         `json:"completed_lines"`
}

// Snapshot is a point-in-time view of the session for late joiners and the
// read-only HTTP surface. It never includes the live clue's answer code.
type Snapshot struct {
	SessionID         uuid.UUID            `json:"session_id"`
	RoomID            uuid.UUID            `json:"room_id"`
	Sequence          int                  `json:"sequence"`
	Status            models.SessionStatus `json:"status"`
	Theme             string               `json:"theme"`
	CurrentClueNumber int                  `json:"current_clue_number"`
	CurrentClueText   string               `json:"current_clue_text,omitempty"`
	TimerEndsAt       *time.Time           `json:"timer_ends_at,omitempty"`
	SlotQuota         int                  `json:"slot_quota"`
	SlotsRemaining    int                  `json:"slots_remaining"`
	Winners           []models.Winner      `json:"winners"`
	Participants      []ParticipantView    `json:"participants"`
	CurrentSeq        uint64               `json:"current_seq"`
}

// Snapshot asks the session loop for a consistent point-in-time view.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	select {
	case s.actionCh <- snapshotAction{reply: reply}:
	case <-s.done:
		return Snapshot{}, ErrSessionClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// buildSnapshot runs on the loop goroutine; state reads need no locking.
func (s *Session) buildSnapshot() Snapshot {
	snap := Snapshot{
		SessionID:      s.id,
		RoomID:         s.roomID,
		Sequence:       s.sequence,
		Status:         s.state.Status,
		Theme:          s.theme,
		SlotQuota:      s.state.SlotQuota,
		SlotsRemaining: s.state.SlotsRemaining,
		Winners:        append([]models.Winner(nil), s.state.Winners...),
		CurrentSeq:     s.log.currentSeq(),
	}
	if s.clueIdx >= 0 && s.clueIdx < len(s.state.Clues) {
		clue := s.state.Clues[s.clueIdx]
		snap.CurrentClueNumber = clue.Number
		snap.CurrentClueText = clue.Text
	}
	if endsAt, running := s.timer.EndsAt(); running {
		snap.TimerEndsAt = &endsAt
	}
	for id, p := range s.participants {
		pc := s.cards[id]
		snap.Participants = append(snap.Participants, ParticipantView{
			ParticipantID:  id,
			DisplayName:    p.Identity.DisplayName,
			Kind:           p.Kind,
			Connection:     p.Connection,
			UnlockedCells:  pc.Unlocked.Count(),
			CompletedLines: pc.CompletedLines.IDs(),
		})
	}
	return snap
}

func (l *replayLog) currentSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}
