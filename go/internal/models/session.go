package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus defines the lifecycle state of a game session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusCompleted SessionStatus = "COMPLETED"
)

// Clue is one timed question. Text and skill metadata come from the content
// collaborator and are treated as opaque here.
type Clue struct {
	ID            uuid.UUID `json:"id"`
	Number        int       `json:"number"` // 1-based position in the session sequence
	Text          string    `json:"text"`
	AnswerCode    string    `json:"answer_code"`
	SkillMetadata string    `json:"skill_metadata,omitempty"`
}

// Winner records one claimed bingo slot.
type Winner struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	Line          LineID    `json:"line"`
	ClueNumber    int       `json:"clue_number"`
	ClaimedAt     time.Time `json:"claimed_at"`
}

// GameSession is one played round of N clues played to a fixed
// bingo-slot quota.
type GameSession struct {
	ID             uuid.UUID     `json:"id"`
	RoomID         uuid.UUID     `json:"room_id"`
	Sequence       int           `json:"sequence"` // per-room session counter
	Status         SessionStatus `json:"status"`
	Clues          []Clue        `json:"clues"`
	SlotQuota      int           `json:"slot_quota"`
	SlotsRemaining int           `json:"slots_remaining"`
	Winners        []Winner      `json:"winners"`
	StartedAt      time.Time     `json:"started_at"`
	EndedAt        *time.Time    `json:"ended_at,omitempty"`
}

// SessionSummary is the archival record written when a session completes.
type SessionSummary struct {
	SessionID      uuid.UUID `json:"session_id"`
	RoomID         uuid.UUID `json:"room_id"`
	Sequence       int       `json:"sequence"`
	CluesPlayed    int       `json:"clues_played"`
	SlotQuota      int       `json:"slot_quota"`
	SlotsRemaining int       `json:"slots_remaining"`
	Winners        []Winner  `json:"winners"`
	Participants   int       `json:"participants"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
}

// ClueEvent is the immutable append-only record of a clue opening.
type ClueEvent struct {
	ID         uuid.UUID `json:"id"`
	SessionID  uuid.UUID `json:"session_id"`
	ClueID     uuid.UUID `json:"clue_id"`
	ClueNumber int       `json:"clue_number"`
	AnswerCode string    `json:"answer_code"`
	OpenedAt   time.Time `json:"opened_at"`
	EndsAt     time.Time `json:"ends_at"` // server-derived, never client-supplied
}

// ClickEvent is the immutable append-only record of one resolved click.
type ClickEvent struct {
	ID             uuid.UUID `json:"id"`
	SessionID      uuid.UUID `json:"session_id"`
	ParticipantID  uuid.UUID `json:"participant_id"`
	ClueID         uuid.UUID `json:"clue_id"`
	Cell           Cell      `json:"cell"`
	IsCorrect      bool      `json:"is_correct"`
	Unlocked       bool      `json:"unlocked"`
	CompletedLines []LineID  `json:"completed_lines,omitempty"`
	WonSlot        bool      `json:"won_slot"`
	ReceivedAt     time.Time `json:"received_at"` // server receipt, ordering key
}
