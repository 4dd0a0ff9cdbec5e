package broadcast

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/brightwell/liveroom/go/internal/events"
)

// InProc is a channel-based publisher for single-node deployments and
// tests. Delivery preserves per-room publish order; a slow subscriber
// loses events rather than blocking the publisher.
type InProc struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[chan *events.Envelope]struct{}
}

// NewInProc creates an empty in-process fan-out.
func NewInProc() *InProc {
	return &InProc{subs: make(map[uuid.UUID]map[chan *events.Envelope]struct{})}
}

// Publish delivers the envelope to every subscriber of its room.
func (b *InProc) Publish(ctx context.Context, env *events.Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[env.RoomID] {
		select {
		case ch <- env:
		default:
			log.Warn().
				Str("room_id", env.RoomID.String()).
				Str("event_type", string(env.Type)).
				Msg("subscriber buffer full, dropping event")
		}
	}
	return nil
}

// Subscribe returns a buffered channel of the room's events and a cancel
// function.
func (b *InProc) Subscribe(roomID uuid.UUID) (<-chan *events.Envelope, func()) {
	ch := make(chan *events.Envelope, 256)

	b.mu.Lock()
	if b.subs[roomID] == nil {
		b.subs[roomID] = make(map[chan *events.Envelope]struct{})
	}
	b.subs[roomID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subs[roomID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(b.subs, roomID)
			}
		}
	}
	return ch, cancel
}

// Close drops all subscriptions.
func (b *InProc) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[uuid.UUID]map[chan *events.Envelope]struct{})
}
