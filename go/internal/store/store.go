// Package store is the persistence collaborator: append-only writes of clue
// events, click events and session summaries for analytics. Live game logic
// never reads these back; writes go through an async writer so persistence
// never gates the action path.
package store

import (
	"context"

	"github.com/brightwell/liveroom/go/internal/models"
)

// EventStore appends immutable game records.
type EventStore interface {
	AppendClueEvent(ctx context.Context, ev models.ClueEvent) error
	AppendClickEvent(ctx context.Context, ev models.ClickEvent) error
	AppendSessionSummary(ctx context.Context, summary models.SessionSummary) error
}
