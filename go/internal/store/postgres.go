package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightwell/liveroom/go/internal/models"
)

// PostgresStore appends game records to Postgres via pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// AppendClueEvent inserts one clue-opened record.
func (s *PostgresStore) AppendClueEvent(ctx context.Context, ev models.ClueEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO clue_events (id, session_id, clue_id, clue_number, answer_code, opened_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.SessionID, ev.ClueID, ev.ClueNumber, ev.AnswerCode, ev.OpenedAt, ev.EndsAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append clue event: %w", err)
	}
	return nil
}

// AppendClickEvent inserts one resolved click record.
func (s *PostgresStore) AppendClickEvent(ctx context.Context, ev models.ClickEvent) error {
	lines, err := json.Marshal(ev.CompletedLines)
	if err != nil {
		return fmt.Errorf("failed to marshal completed lines: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO click_events (id, session_id, participant_id, clue_id, cell, is_correct, unlocked, completed_lines, won_slot, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.SessionID, ev.ParticipantID, ev.ClueID, int(ev.Cell), ev.IsCorrect, ev.Unlocked, lines, ev.WonSlot, ev.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append click event: %w", err)
	}
	return nil
}

// AppendSessionSummary inserts the archival record of a completed session.
func (s *PostgresStore) AppendSessionSummary(ctx context.Context, summary models.SessionSummary) error {
	winners, err := json.Marshal(summary.Winners)
	if err != nil {
		return fmt.Errorf("failed to marshal winners: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO session_summaries (session_id, room_id, sequence, clues_played, slot_quota, slots_remaining, winners, participants, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id) DO NOTHING`,
		summary.SessionID, summary.RoomID, summary.Sequence, summary.CluesPlayed,
		summary.SlotQuota, summary.SlotsRemaining, winners, summary.Participants,
		summary.StartedAt, summary.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append session summary: %w", err)
	}
	return nil
}
