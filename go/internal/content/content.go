// Package content ingests clue packs from the content-generation
// collaborator. Clue text, answer codes and skill metadata are opaque here;
// the only validation is sufficient length for a full card.
package content

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/brightwell/liveroom/go/internal/models"
)

// ErrPackTooSmall means a theme pack cannot fill a card's 24 clickable cells.
var ErrPackTooSmall = errors.New("clue pack smaller than clickable cell count")

// Entry is one clue as supplied by the content collaborator.
type Entry struct {
	ClueText      string `yaml:"text" json:"text"`
	AnswerCode    string `yaml:"answer" json:"answer"`
	SkillMetadata string `yaml:"skill,omitempty" json:"skill,omitempty"`
}

// Pack is the ordered clue list for one room theme.
type Pack struct {
	Theme string  `yaml:"theme" json:"theme"`
	Clues []Entry `yaml:"clues" json:"clues"`
}

// Validate checks the pack can fill a card.
func (p *Pack) Validate() error {
	if len(p.Clues) < models.ClickableCells {
		return fmt.Errorf("%w: theme %q has %d clues, need %d",
			ErrPackTooSmall, p.Theme, len(p.Clues), models.ClickableCells)
	}
	return nil
}

// LoadFile parses and validates a single theme pack.
func LoadFile(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clue pack: %w", err)
	}

	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("failed to parse clue pack %s: %w", path, err)
	}
	if err := pack.Validate(); err != nil {
		return nil, err
	}
	return &pack, nil
}

// LoadDir loads every *.yaml pack under dir, keyed by theme.
func LoadDir(dir string) (map[string]*Pack, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}

	packs := make(map[string]*Pack, len(matches))
	for _, path := range matches {
		pack, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		packs[pack.Theme] = pack
	}
	return packs, nil
}

// Library hands out theme packs to room schedulers.
type Library struct {
	packs map[string]*Pack
}

// NewLibrary wraps a set of loaded packs.
func NewLibrary(packs map[string]*Pack) *Library {
	return &Library{packs: packs}
}

// PackForTheme returns the pack for a theme.
func (l *Library) PackForTheme(theme string) (*Pack, error) {
	pack, ok := l.packs[theme]
	if !ok {
		return nil, fmt.Errorf("no clue pack for theme %q", theme)
	}
	return pack, nil
}
