package models

import (
	"time"

	"github.com/google/uuid"
)

// ParticipantKind defines what kind of actor a participant is.
type ParticipantKind string

const (
	ParticipantKindHuman     ParticipantKind = "HUMAN"
	ParticipantKindAI        ParticipantKind = "AI"
	ParticipantKindSpectator ParticipantKind = "SPECTATOR"
)

// ConnectionStatus defines a participant's liveness state.
type ConnectionStatus string

const (
	ConnectionStatusConnected    ConnectionStatus = "CONNECTED"
	ConnectionStatusGrace        ConnectionStatus = "GRACE"
	ConnectionStatusDisconnected ConnectionStatus = "DISCONNECTED"
)

// Identity is what the auth collaborator hands us. No authentication
// happens in this core.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// Participant is one human, AI, or spectator attached to a session.
type Participant struct {
	ID            uuid.UUID        `json:"id"`
	SessionID     uuid.UUID        `json:"session_id"`
	Kind          ParticipantKind  `json:"kind"`
	Identity      Identity         `json:"identity"`
	Connection    ConnectionStatus `json:"connection"`
	LastHeartbeat time.Time        `json:"last_heartbeat"`
	CorrectClicks int              `json:"correct_clicks"`
	WrongClicks   int              `json:"wrong_clicks"`
	JoinedAt      time.Time        `json:"joined_at"`
}

// MissedEventsSummary lets a reconnecting client catch up without a full
// resubscription.
type MissedEventsSummary struct {
	ParticipantID      uuid.UUID    `json:"participant_id"`
	SkippedClueNumbers []int        `json:"skipped_clue_numbers"`
	CurrentClueNumber  int          `json:"current_clue_number"`
	TimerEndsAt        *time.Time   `json:"timer_ends_at,omitempty"`
	ClickEvents        []ClickEvent `json:"click_events"`
	Winners            []Winner     `json:"winners"`
	LastKnownSeq       uint64       `json:"last_known_seq"`
	CurrentSeq         uint64       `json:"current_seq"`
}
