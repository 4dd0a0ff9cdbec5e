package card

import (
	"sort"

	"github.com/brightwell/liveroom/go/internal/models"
)

// CellSet is a bitmask over the 25 grid cells.
type CellSet uint32

// Contains reports whether the cell is in the set.
func (s CellSet) Contains(c models.Cell) bool { return s&(1<<uint(c)) != 0 }

// With returns the set plus the cell.
func (s CellSet) With(c models.Cell) CellSet { return s | 1<<uint(c) }

// Count returns the number of cells in the set.
func (s CellSet) Count() int {
	n := 0
	for v := s; v != 0; v &= v - 1 {
		n++
	}
	return n
}

// LineSet is a set of completed lines keyed by LineID.
type LineSet map[models.LineID]struct{}

// Contains reports whether the line is in the set.
func (ls LineSet) Contains(id models.LineID) bool {
	_, ok := ls[id]
	return ok
}

// Diff returns the lines in ls that are not in other.
func (ls LineSet) Diff(other LineSet) LineSet {
	out := LineSet{}
	for id := range ls {
		if !other.Contains(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// IDs returns the set's members sorted for deterministic output.
func (ls LineSet) IDs() []models.LineID {
	if len(ls) == 0 {
		return nil
	}
	ids := make([]models.LineID, 0, len(ls))
	for id := range ls {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// lineMasks maps every claimable line to the cells required to complete it.
// The center sentinel is excluded from every line: the center row, center
// column and both diagonals complete at 4/4.
var lineMasks = buildLineMasks()

func buildLineMasks() map[models.LineID]CellSet {
	masks := make(map[models.LineID]CellSet, 12)

	rows := []models.LineID{models.LineRow0, models.LineRow1, models.LineRow2, models.LineRow3, models.LineRow4}
	cols := []models.LineID{models.LineCol0, models.LineCol1, models.LineCol2, models.LineCol3, models.LineCol4}

	for i := 0; i < models.GridSize; i++ {
		var row, col CellSet
		for j := 0; j < models.GridSize; j++ {
			row = row.With(models.Cell(i*models.GridSize + j))
			col = col.With(models.Cell(j*models.GridSize + i))
		}
		masks[rows[i]] = row
		masks[cols[i]] = col
	}

	var main, anti CellSet
	for i := 0; i < models.GridSize; i++ {
		main = main.With(models.Cell(i*models.GridSize + i))
		anti = anti.With(models.Cell(i*models.GridSize + (models.GridSize - 1 - i)))
	}
	masks[models.LineDiagMain] = main
	masks[models.LineDiagAnti] = anti

	center := CellSet(1 << uint(models.CenterCell))
	for id, m := range masks {
		masks[id] = m &^ center
	}
	return masks
}

// DetectLines evaluates the 5 rows, 5 columns and 2 diagonals against the
// unlocked set. Pure function: the same unlocked set always yields the same
// lines, regardless of click order.
func DetectLines(unlocked CellSet) LineSet {
	out := LineSet{}
	for id, mask := range lineMasks {
		if unlocked&mask == mask {
			out[id] = struct{}{}
		}
	}
	return out
}
