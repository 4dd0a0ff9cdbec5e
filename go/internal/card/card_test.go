package card

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightwell/liveroom/go/internal/models"
)

func testPool(n int) []string {
	pool := make([]string, n)
	for i := range pool {
		pool[i] = fmt.Sprintf("ans-%02d", i)
	}
	return pool
}

func TestGenerateCoversAnswerSetExactlyOnce(t *testing.T) {
	pool := testPool(24)

	c, err := Generate(pool, 42)
	require.NoError(t, err)

	seen := map[string]int{}
	for cell := models.Cell(0); cell < models.CellCount; cell++ {
		if cell == models.CenterCell {
			assert.Empty(t, c.Cells[cell], "center carries no answer")
			continue
		}
		seen[c.Cells[cell]]++
	}

	require.Len(t, seen, 24, "no duplicates across clickable cells")
	for _, code := range pool {
		assert.Equal(t, 1, seen[code], "answer %s appears exactly once", code)
	}
}

func TestGenerateDeterministicPerSeed(t *testing.T) {
	pool := testPool(30)

	a, err := Generate(pool, 7)
	require.NoError(t, err)
	b, err := Generate(pool, 7)
	require.NoError(t, err)
	other, err := Generate(pool, 8)
	require.NoError(t, err)

	assert.Equal(t, a.Cells, b.Cells, "same seed, same layout")
	assert.NotEqual(t, a.Cells, other.Cells, "different seed, different layout")
}

func TestGenerateSharesAnswerSetAcrossSeeds(t *testing.T) {
	pool := testPool(30)

	a, err := Generate(pool, 1)
	require.NoError(t, err)
	b, err := Generate(pool, 2)
	require.NoError(t, err)

	collect := func(c *models.Card) map[string]bool {
		set := map[string]bool{}
		for cell := models.Cell(0); cell < models.CellCount; cell++ {
			if cell != models.CenterCell {
				set[c.Cells[cell]] = true
			}
		}
		return set
	}
	assert.Equal(t, collect(a), collect(b), "all participants share one answer set")
}

func TestGenerateInsufficientPool(t *testing.T) {
	_, err := Generate(testPool(23), 1)
	require.ErrorIs(t, err, ErrInsufficientPool)
}

func TestApplyClickRejectsInvalidCells(t *testing.T) {
	c, err := Generate(testPool(24), 3)
	require.NoError(t, err)
	pc := NewPlayerCard(c)

	cases := []struct {
		name string
		cell models.Cell
	}{
		{"negative", -1},
		{"out of range", 25},
		{"center sentinel", models.CenterCell},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := pc.ApplyClick(tc.cell, "ans-00")
			require.ErrorIs(t, err, ErrInvalidClick)
			assert.Zero(t, pc.Unlocked, "rejection makes no state change")
		})
	}
}

func TestApplyClickRejectsAlreadyUnlocked(t *testing.T) {
	c, err := Generate(testPool(24), 3)
	require.NoError(t, err)
	pc := NewPlayerCard(c)

	cell := pc.CellForAnswer("ans-05")
	require.True(t, cell.Valid())

	out, err := pc.ApplyClick(cell, "ans-05")
	require.NoError(t, err)
	require.True(t, out.IsCorrect)
	require.True(t, out.NewlyUnlocked)

	_, err = pc.ApplyClick(cell, "ans-05")
	require.ErrorIs(t, err, ErrInvalidClick)
	assert.Equal(t, 1, pc.Unlocked.Count())
}

func TestApplyClickWrongAnswerIsNotAnError(t *testing.T) {
	c, err := Generate(testPool(24), 3)
	require.NoError(t, err)
	pc := NewPlayerCard(c)

	cell := pc.CellForAnswer("ans-01")
	out, err := pc.ApplyClick(cell, "ans-02")
	require.NoError(t, err)
	assert.False(t, out.IsCorrect)
	assert.False(t, out.NewlyUnlocked)
	assert.Zero(t, pc.Unlocked, "misses never unlock")
}

func TestDetectLinesCenterPolicy(t *testing.T) {
	cases := []struct {
		name  string
		cells []models.Cell
		want  models.LineID
	}{
		{"center row completes at 4/4", []models.Cell{10, 11, 13, 14}, models.LineRow2},
		{"center column completes at 4/4", []models.Cell{2, 7, 17, 22}, models.LineCol2},
		{"main diagonal completes at 4/4", []models.Cell{0, 6, 18, 24}, models.LineDiagMain},
		{"anti diagonal completes at 4/4", []models.Cell{4, 8, 16, 20}, models.LineDiagAnti},
		{"edge row needs all 5", []models.Cell{0, 1, 2, 3, 4}, models.LineRow0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var set CellSet
			for _, c := range tc.cells {
				set = set.With(c)
			}
			lines := DetectLines(set)
			assert.True(t, lines.Contains(tc.want), "expected %s in %v", tc.want, lines.IDs())
			assert.Len(t, lines, 1)
		})
	}
}

func TestDetectLinesPartialRowIsIncomplete(t *testing.T) {
	var set CellSet
	for _, c := range []models.Cell{0, 1, 2, 3} {
		set = set.With(c)
	}
	assert.Empty(t, DetectLines(set), "4/5 of an edge row is not a line")
}

func TestDetectLinesIsPermutationInvariant(t *testing.T) {
	cells := []models.Cell{0, 6, 18, 24, 1, 2, 3, 4, 10, 11}
	rng := rand.New(rand.NewSource(99))

	var want LineSet
	for trial := 0; trial < 20; trial++ {
		shuffled := append([]models.Cell(nil), cells...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		var set CellSet
		for _, c := range shuffled {
			set = set.With(c)
		}
		got := DetectLines(set)
		if want == nil {
			want = got
			continue
		}
		require.Equal(t, want.IDs(), got.IDs(), "click order must not matter")
	}
	require.NotEmpty(t, want)
}

func TestCompletedLinesReportedOnceAndRecomputed(t *testing.T) {
	c, err := Generate(testPool(24), 11)
	require.NoError(t, err)
	pc := NewPlayerCard(c)

	// Unlock the main diagonal cell by cell; only the final click reports it.
	diag := []models.Cell{0, 6, 18, 24}
	for i, cell := range diag {
		out, err := pc.ApplyClick(cell, c.AnswerAt(cell))
		require.NoError(t, err)
		require.True(t, out.IsCorrect)
		if i < len(diag)-1 {
			assert.Empty(t, out.CompletedLines)
		} else {
			assert.Equal(t, []models.LineID{models.LineDiagMain}, out.CompletedLines)
		}
	}
	assert.True(t, pc.CompletedLines.Contains(models.LineDiagMain))
}
