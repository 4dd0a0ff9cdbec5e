package content

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePack(t *testing.T, dir, theme string, clueCount int) string {
	t.Helper()

	body := fmt.Sprintf("theme: %q\nclues:\n", theme)
	for i := 0; i < clueCount; i++ {
		body += fmt.Sprintf("  - text: \"clue %d\"\n    answer: \"code-%d\"\n    skill: \"skill-%d\"\n", i, i, i%3)
	}
	path := filepath.Join(dir, theme+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writePack(t, dir, "ocean-life", 30)

	pack, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ocean-life", pack.Theme)
	assert.Len(t, pack.Clues, 30)
	assert.Equal(t, "code-3", pack.Clues[3].AnswerCode)
}

func TestLoadFileRejectsShortPack(t *testing.T) {
	dir := t.TempDir()
	path := writePack(t, dir, "tiny", 10)

	_, err := LoadFile(path)
	require.ErrorIs(t, err, ErrPackTooSmall)
}

func TestLoadDirAndLibrary(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "ocean-life", 26)
	writePack(t, dir, "space", 40)

	packs, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, packs, 2)

	lib := NewLibrary(packs)
	pack, err := lib.PackForTheme("space")
	require.NoError(t, err)
	assert.Len(t, pack.Clues, 40)

	_, err = lib.PackForTheme("missing")
	assert.Error(t, err)
}
