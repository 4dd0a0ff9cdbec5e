package store

import (
	"context"
	"sync"

	"github.com/brightwell/liveroom/go/internal/models"
)

// MemoryStore is an in-memory EventStore for tests and single-node runs
// without Postgres.
type MemoryStore struct {
	mu        sync.Mutex
	clues     []models.ClueEvent
	clicks    []models.ClickEvent
	summaries []models.SessionSummary
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// AppendClueEvent implements EventStore.
func (s *MemoryStore) AppendClueEvent(_ context.Context, ev models.ClueEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clues = append(s.clues, ev)
	return nil
}

// AppendClickEvent implements EventStore.
func (s *MemoryStore) AppendClickEvent(_ context.Context, ev models.ClickEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clicks = append(s.clicks, ev)
	return nil
}

// AppendSessionSummary implements EventStore.
func (s *MemoryStore) AppendSessionSummary(_ context.Context, summary models.SessionSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, summary)
	return nil
}

// ClueEvents returns a snapshot of appended clue events.
func (s *MemoryStore) ClueEvents() []models.ClueEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ClueEvent(nil), s.clues...)
}

// ClickEvents returns a snapshot of appended click events.
func (s *MemoryStore) ClickEvents() []models.ClickEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ClickEvent(nil), s.clicks...)
}

// Summaries returns a snapshot of appended session summaries.
func (s *MemoryStore) Summaries() []models.SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SessionSummary(nil), s.summaries...)
}
