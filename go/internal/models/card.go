package models

import "github.com/google/uuid"

// Card geometry. The grid is 5x5 with a non-clickable center sentinel used
// to display the active clue. The center is excluded from every line, so
// the center row, center column and both diagonals complete at 4/4.
const (
	GridSize       = 5
	CellCount      = GridSize * GridSize
	CenterCell     = Cell(CellCount / 2) // 12
	ClickableCells = CellCount - 1       // 24
)

// Cell is a 0-based position on the 5x5 grid, row-major.
type Cell int

// Valid reports whether the cell is on the grid.
func (c Cell) Valid() bool { return c >= 0 && c < CellCount }

// Row returns the cell's 0-based row.
func (c Cell) Row() int { return int(c) / GridSize }

// Col returns the cell's 0-based column.
func (c Cell) Col() int { return int(c) % GridSize }

// LineID identifies one of the 12 claimable lines.
type LineID string

const (
	LineRow0     LineID = "ROW_0"
	LineRow1     LineID = "ROW_1"
	LineRow2     LineID = "ROW_2"
	LineRow3     LineID = "ROW_3"
	LineRow4     LineID = "ROW_4"
	LineCol0     LineID = "COL_0"
	LineCol1     LineID = "COL_1"
	LineCol2     LineID = "COL_2"
	LineCol3     LineID = "COL_3"
	LineCol4     LineID = "COL_4"
	LineDiagMain LineID = "DIAG_MAIN"
	LineDiagAnti LineID = "DIAG_ANTI"
)

// Card is a participant's private grid mapping positions to answer codes.
// The center cell carries no answer.
type Card struct {
	ID    uuid.UUID         `json:"id"`
	Cells [CellCount]string `json:"cells"`
}

// AnswerAt returns the answer code at the cell, or "" for the center.
func (c *Card) AnswerAt(cell Cell) string {
	if !cell.Valid() {
		return ""
	}
	return c.Cells[cell]
}
