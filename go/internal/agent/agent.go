// Package agent implements the decision policy for simulated players. Each
// agent carries a private memory of its own prior reveals and a difficulty
// profile controlling recall accuracy and response latency. All randomness
// flows through a seeded source so tests are reproducible.
package agent

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/brightwell/liveroom/go/internal/models"
)

// Difficulty selects a simulation profile.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// Profile holds the tunables for one difficulty. MemoryAccuracy is the
// probability a reveal is recorded rather than forgotten. Latency bounds
// shape the response delay distribution: wider and slower for easy agents,
// narrower and faster for hard ones, so agents never click in lockstep.
type Profile struct {
	Difficulty     Difficulty
	MemoryAccuracy float64 // in (0,1]
	LatencyMin     time.Duration
	LatencyMax     time.Duration
}

// ProfileFor returns the preset for a difficulty.
func ProfileFor(d Difficulty) Profile {
	switch d {
	case DifficultyHard:
		return Profile{Difficulty: d, MemoryAccuracy: 0.9, LatencyMin: 1 * time.Second, LatencyMax: 3 * time.Second}
	case DifficultyMedium:
		return Profile{Difficulty: d, MemoryAccuracy: 0.6, LatencyMin: 2 * time.Second, LatencyMax: 6 * time.Second}
	default:
		return Profile{Difficulty: DifficultyEasy, MemoryAccuracy: 0.3, LatencyMin: 3 * time.Second, LatencyMax: 9 * time.Second}
	}
}

// Latency draws a response delay from the profile's distribution.
func (p Profile) Latency(rng *rand.Rand) time.Duration {
	span := p.LatencyMax - p.LatencyMin
	if span <= 0 {
		return p.LatencyMin
	}
	return p.LatencyMin + time.Duration(rng.Int63n(int64(span)))
}

// Memory is an agent's private record of its own reveals. Reveals by other
// participants are deliberately not observed, so difficulty tuning stays
// independent of other players' luck.
type Memory struct {
	accuracy float64
	recalled map[models.Cell]string
}

// NewMemory creates an empty memory with the given recall accuracy.
func NewMemory(accuracy float64) *Memory {
	return &Memory{
		accuracy: accuracy,
		recalled: make(map[models.Cell]string),
	}
}

// RecordReveal notes a cell->answer mapping from the agent's own correct
// reveal. With probability accuracy the mapping sticks; otherwise the agent
// forgets it.
func (m *Memory) RecordReveal(cell models.Cell, answer string, rng *rand.Rand) {
	if rng.Float64() <= m.accuracy {
		m.recalled[cell] = answer
		return
	}
	delete(m.recalled, cell)
}

// CellFor returns a remembered cell holding the answer, if any.
func (m *Memory) CellFor(answer string) (models.Cell, bool) {
	for cell, code := range m.recalled {
		if code == answer {
			return cell, true
		}
	}
	return -1, false
}

// Len returns the number of remembered mappings.
func (m *Memory) Len() int { return len(m.recalled) }

// ObservedState is what a policy sees when a clue opens: the active clue's
// answer code and the agent's own unrevealed cells.
type ObservedState struct {
	ActiveAnswer string
	Unrevealed   []models.Cell
}

// DecisionPolicy produces a click decision from observed state, memory and
// a random source. Implementations must be pure aside from the rng.
type DecisionPolicy interface {
	Decide(state ObservedState, mem *Memory, rng *rand.Rand) (models.Cell, bool)
}

// RecallPolicy is the standard policy: click a remembered cell matching the
// active clue's answer when one is still unrevealed, otherwise pick
// uniformly among the agent's own unrevealed cells.
type RecallPolicy struct{}

// Decide implements DecisionPolicy.
func (RecallPolicy) Decide(state ObservedState, mem *Memory, rng *rand.Rand) (models.Cell, bool) {
	if len(state.Unrevealed) == 0 {
		return -1, false
	}

	if cell, ok := mem.CellFor(state.ActiveAnswer); ok {
		for _, c := range state.Unrevealed {
			if c == cell {
				return cell, true
			}
		}
	}

	return state.Unrevealed[rng.Intn(len(state.Unrevealed))], true
}

// Agent is one simulated participant.
type Agent struct {
	ParticipantID uuid.UUID
	Profile       Profile
	Memory        *Memory

	policy DecisionPolicy
	rng    *rand.Rand
}

// New creates an agent with a seeded random source.
func New(participantID uuid.UUID, profile Profile, seed int64) *Agent {
	return &Agent{
		ParticipantID: participantID,
		Profile:       profile,
		Memory:        NewMemory(profile.MemoryAccuracy),
		policy:        RecallPolicy{},
		rng:           rand.New(rand.NewSource(seed)),
	}
}

// WithPolicy swaps the decision policy. Used by tests and experiments.
func (a *Agent) WithPolicy(p DecisionPolicy) *Agent {
	a.policy = p
	return a
}

// PlanClick decides a cell and a response delay for the active clue. The
// returned delay staggers agents so they never cluster; ok is false when
// the agent has nothing left to click.
func (a *Agent) PlanClick(state ObservedState) (models.Cell, time.Duration, bool) {
	cell, ok := a.policy.Decide(state, a.Memory, a.rng)
	if !ok {
		return -1, 0, false
	}
	return cell, a.Profile.Latency(a.rng), true
}

// ObserveOwnReveal records the agent's own correct reveal into memory.
func (a *Agent) ObserveOwnReveal(cell models.Cell, answer string) {
	a.Memory.RecordReveal(cell, answer, a.rng)
}
