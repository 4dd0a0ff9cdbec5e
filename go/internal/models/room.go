package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomStatus defines the lifecycle state of a room.
type RoomStatus string

const (
	RoomStatusActive       RoomStatus = "ACTIVE"
	RoomStatusIntermission RoomStatus = "INTERMISSION"
)

// RoomSettings holds per-room configuration for session scheduling.
type RoomSettings struct {
	Capacity           int           `json:"capacity"`
	MinPlayers         int           `json:"min_players"`
	CluesPerSession    int           `json:"clues_per_session"`
	ClueDuration       time.Duration `json:"clue_duration"`
	Intermission       time.Duration `json:"intermission"`
	SlotQuotaMin       int           `json:"slot_quota_min"`
	SlotQuotaMax       int           `json:"slot_quota_max"`
	SlotQuotaDivisor   int           `json:"slot_quota_divisor"`
	AITakeoverOnDrop   bool          `json:"ai_takeover_on_drop"`
}

// Room is a perpetually running themed arena hosting an unbounded
// sequence of game sessions.
type Room struct {
	ID               uuid.UUID    `json:"id"`
	Theme            string       `json:"theme"`
	Status           RoomStatus   `json:"status"`
	Settings         RoomSettings `json:"settings"`
	CurrentSessionID *uuid.UUID   `json:"current_session_id,omitempty"`
	NextSessionAt    *time.Time   `json:"next_session_at,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// SlotQuota computes the bingo-slot quota for a session with n confirmed
// players: clamp(ceil(n/divisor), min, max). The formula is configuration,
// not a hard law.
func (s RoomSettings) SlotQuota(n int) int {
	div := s.SlotQuotaDivisor
	if div <= 0 {
		div = 2
	}
	q := (n + div - 1) / div
	if q < s.SlotQuotaMin {
		q = s.SlotQuotaMin
	}
	if q > s.SlotQuotaMax {
		q = s.SlotQuotaMax
	}
	return q
}
