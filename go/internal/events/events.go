package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a room event on the wire.
type EventType string

const (
	EventTypeSessionStarted          EventType = "SessionStarted"
	EventTypeClueAdvanced            EventType = "ClueAdvanced"
	EventTypeClickResolved           EventType = "ClickResolved"
	EventTypeSlotWon                 EventType = "SlotWon"
	EventTypeSessionCompleted        EventType = "SessionCompleted"
	EventTypeTimerTick               EventType = "TimerTick"
	EventTypeParticipantJoined       EventType = "ParticipantJoined"
	EventTypeParticipantDisconnected EventType = "ParticipantDisconnected"
	EventTypeParticipantReconnected  EventType = "ParticipantReconnected"
	EventTypeRoomIntermission        EventType = "RoomIntermission"
)

// Envelope is the wire structure for every room event. Seq is a per-room
// monotonically increasing counter the gateway and reconnect replay key on.
type Envelope struct {
	ID        uuid.UUID       `json:"id"`
	RoomID    uuid.UUID       `json:"room_id"`
	SessionID uuid.UUID       `json:"session_id"`
	Seq       uint64          `json:"seq"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// ParsePayload decodes an envelope's data into its typed payload.
func ParsePayload(env *Envelope) (interface{}, error) {
	switch env.Type {
	case EventTypeSessionStarted:
		return decode[SessionStartedPayload](env.Data)
	case EventTypeClueAdvanced:
		return decode[ClueAdvancedPayload](env.Data)
	case EventTypeClickResolved:
		return decode[ClickResolvedPayload](env.Data)
	case EventTypeSlotWon:
		return decode[SlotWonPayload](env.Data)
	case EventTypeSessionCompleted:
		return decode[SessionCompletedPayload](env.Data)
	case EventTypeTimerTick:
		return decode[TimerTickPayload](env.Data)
	case EventTypeParticipantJoined:
		return decode[ParticipantJoinedPayload](env.Data)
	case EventTypeParticipantDisconnected:
		return decode[ParticipantDisconnectedPayload](env.Data)
	case EventTypeParticipantReconnected:
		return decode[ParticipantReconnectedPayload](env.Data)
	case EventTypeRoomIntermission:
		return decode[RoomIntermissionPayload](env.Data)
	default:
		return nil, nil // unknown event type
	}
}

func decode[T any](data json.RawMessage) (T, error) {
	var payload T
	err := json.Unmarshal(data, &payload)
	return payload, err
}
