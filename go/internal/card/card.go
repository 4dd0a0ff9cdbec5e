// Package card implements card generation, click validation and line
// detection for the clue-and-bingo game family.
package card

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/brightwell/liveroom/go/internal/models"
)

var (
	// ErrInsufficientPool means the answer pool cannot fill the 24
	// clickable cells.
	ErrInsufficientPool = errors.New("answer pool smaller than clickable cell count")

	// ErrInvalidClick means the cell is off-grid, the center sentinel, or
	// already unlocked. Rejection makes no state change.
	ErrInvalidClick = errors.New("invalid click")
)

// Generate builds a card from the session's answer pool. Only the first 24
// pool entries become the card's answer set, so every participant of a
// session shares one answer set while cell placement is independently
// randomized per seed. Deterministic for a given pool and seed.
func Generate(pool []string, seed int64) (*models.Card, error) {
	if len(pool) < models.ClickableCells {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientPool, len(pool), models.ClickableCells)
	}

	answers := make([]string, models.ClickableCells)
	copy(answers, pool[:models.ClickableCells])

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(answers), func(i, j int) {
		answers[i], answers[j] = answers[j], answers[i]
	})

	c := &models.Card{ID: uuid.New()}
	next := 0
	for cell := models.Cell(0); cell < models.CellCount; cell++ {
		if cell == models.CenterCell {
			continue // reserved for displaying the active clue
		}
		c.Cells[cell] = answers[next]
		next++
	}
	return c, nil
}

// ClickOutcome is the result of applying one click to a player card.
type ClickOutcome struct {
	IsCorrect      bool
	NewlyUnlocked  bool
	CompletedLines []models.LineID // lines newly completed by this click
}

// PlayerCard couples a generated card with one participant's unlock
// progress. All mutation happens on the owning session's goroutine.
type PlayerCard struct {
	Card           *models.Card
	Unlocked       CellSet
	CompletedLines LineSet
}

// NewPlayerCard wraps a freshly generated card.
func NewPlayerCard(c *models.Card) *PlayerCard {
	return &PlayerCard{Card: c}
}

// ApplyClick validates and applies a click against the active clue's answer
// code. Off-grid, center and already-unlocked cells are rejected with
// ErrInvalidClick and leave the card untouched. A wrong answer on a valid
// cell is not an error: the outcome reports IsCorrect=false and nothing
// unlocks.
func (p *PlayerCard) ApplyClick(cell models.Cell, activeAnswer string) (ClickOutcome, error) {
	if !cell.Valid() || cell == models.CenterCell || p.Unlocked.Contains(cell) {
		return ClickOutcome{}, fmt.Errorf("%w: cell %d", ErrInvalidClick, cell)
	}

	if p.Card.AnswerAt(cell) != activeAnswer {
		return ClickOutcome{IsCorrect: false}, nil
	}

	p.Unlocked = p.Unlocked.With(cell)
	after := DetectLines(p.Unlocked)
	newly := after.Diff(p.CompletedLines)
	p.CompletedLines = after

	return ClickOutcome{
		IsCorrect:      true,
		NewlyUnlocked:  true,
		CompletedLines: newly.IDs(),
	}, nil
}

// CellForAnswer returns the cell holding the answer code, or -1 when the
// code is not on the card.
func (p *PlayerCard) CellForAnswer(code string) models.Cell {
	for cell := models.Cell(0); cell < models.CellCount; cell++ {
		if cell == models.CenterCell {
			continue
		}
		if p.Card.Cells[cell] == code {
			return cell
		}
	}
	return -1
}

// UnrevealedCells lists the clickable cells not yet unlocked.
func (p *PlayerCard) UnrevealedCells() []models.Cell {
	cells := make([]models.Cell, 0, models.ClickableCells)
	for cell := models.Cell(0); cell < models.CellCount; cell++ {
		if cell == models.CenterCell || p.Unlocked.Contains(cell) {
			continue
		}
		cells = append(cells, cell)
	}
	return cells
}
