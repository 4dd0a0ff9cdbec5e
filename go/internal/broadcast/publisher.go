// Package broadcast is the realtime fan-out seam. Sessions publish room
// events through a Publisher; the engine requires at-least-once delivery
// with per-room ordering and tolerates TimerTick loss, since clients
// re-derive remaining time from ends_at.
package broadcast

import (
	"context"

	"github.com/google/uuid"

	"github.com/brightwell/liveroom/go/internal/events"
)

// Publisher fans one room event out to subscribers.
type Publisher interface {
	Publish(ctx context.Context, env *events.Envelope) error
	Close()
}

// Subscriber receives a room's event stream. The in-process publisher and
// the gateway's NATS consumer both satisfy this shape for local fan-out.
type Subscriber interface {
	Subscribe(roomID uuid.UUID) (<-chan *events.Envelope, func())
}
