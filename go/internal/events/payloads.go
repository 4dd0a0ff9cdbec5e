package events

import (
	"time"

	"github.com/brightwell/liveroom/go/internal/models"
)

// SessionStartedPayload announces a new session in a room.
type SessionStartedPayload struct {
	SessionID    string    `json:"session_id"`
	Sequence     int       `json:"sequence"`
	Theme        string    `json:"theme"`
	ClueCount    int       `json:"clue_count"`
	SlotQuota    int       `json:"slot_quota"`
	Participants int       `json:"participants"`
	StartedAt    time.Time `json:"started_at"`
}

// ClueAdvancedPayload announces the next clue opening. The answer code is
// never broadcast while the clue is live.
type ClueAdvancedPayload struct {
	ClueID     string    `json:"clue_id"`
	ClueNumber int       `json:"clue_number"`
	ClueText   string    `json:"clue_text"`
	OpenedAt   time.Time `json:"opened_at"`
	EndsAt     time.Time `json:"ends_at"`
}

// ClickResolvedPayload reports the outcome of one click.
type ClickResolvedPayload struct {
	ParticipantID  string          `json:"participant_id"`
	ClueNumber     int             `json:"clue_number"`
	Cell           models.Cell     `json:"cell"`
	IsCorrect      bool            `json:"is_correct"`
	Unlocked       bool            `json:"unlocked"`
	CompletedLines []models.LineID `json:"completed_lines,omitempty"`
	ReceivedAt     time.Time       `json:"received_at"`
}

// SlotWonPayload celebrates a claimed bingo slot.
type SlotWonPayload struct {
	ParticipantID  string        `json:"participant_id"`
	DisplayName    string        `json:"display_name"`
	Line           models.LineID `json:"line"`
	ClueNumber     int           `json:"clue_number"`
	SlotsRemaining int           `json:"slots_remaining"`
	ClaimedAt      time.Time     `json:"claimed_at"`
}

// SessionCompletedPayload announces the end of a session and the start of
// the intermission countdown.
type SessionCompletedPayload struct {
	SessionID      string          `json:"session_id"`
	Winners        []models.Winner `json:"winners"`
	SlotsRemaining int             `json:"slots_remaining"`
	CluesPlayed    int             `json:"clues_played"`
	EndedAt        time.Time       `json:"ended_at"`
}

// TimerTickPayload carries the server-authoritative countdown. Clients
// interpolate between ticks from ends_at and their clock offset; a lost
// tick is harmless.
type TimerTickPayload struct {
	ClueNumber       int       `json:"clue_number"`
	RemainingSeconds int       `json:"remaining_seconds"`
	EndsAt           time.Time `json:"ends_at"`
	ServerNow        time.Time `json:"server_now"`
	Paused           bool      `json:"paused,omitempty"`
}

// ParticipantJoinedPayload announces a roster addition.
type ParticipantJoinedPayload struct {
	ParticipantID string                 `json:"participant_id"`
	DisplayName   string                 `json:"display_name"`
	Kind          models.ParticipantKind `json:"kind"`
	JoinedAt      time.Time              `json:"joined_at"`
}

// ParticipantDisconnectedPayload surfaces the connection-lost banner.
type ParticipantDisconnectedPayload struct {
	ParticipantID  string    `json:"participant_id"`
	DisplayName    string    `json:"display_name"`
	DisconnectedAt time.Time `json:"disconnected_at"`
}

// ParticipantReconnectedPayload carries the catch-up summary for the
// returning client.
type ParticipantReconnectedPayload struct {
	ParticipantID string                      `json:"participant_id"`
	DisplayName   string                      `json:"display_name"`
	ReconnectedAt time.Time                   `json:"reconnected_at"`
	Missed        *models.MissedEventsSummary `json:"missed,omitempty"`
}

// RoomIntermissionPayload announces the pause between sessions.
type RoomIntermissionPayload struct {
	RoomID        string    `json:"room_id"`
	NextSessionAt time.Time `json:"next_session_at"`
}
