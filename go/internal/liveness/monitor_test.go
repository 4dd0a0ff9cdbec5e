package liveness

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightwell/liveroom/go/internal/models"
)

type fakeReplay struct {
	mu      sync.Mutex
	calls   []uint64
	summary *models.MissedEventsSummary
}

func (f *fakeReplay) MissedEvents(participantID uuid.UUID, sinceSeq uint64) (*models.MissedEventsSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sinceSeq)
	if f.summary != nil {
		return f.summary, nil
	}
	return &models.MissedEventsSummary{ParticipantID: participantID, LastKnownSeq: sinceSeq}, nil
}

type monitorHarness struct {
	clock       *clockwork.FakeClock
	monitor     *Monitor
	replay      *fakeReplay
	mu          sync.Mutex
	transitions []Transition
}

func newMonitorHarness(cfg Config) *monitorHarness {
	h := &monitorHarness{
		clock:  clockwork.NewFakeClock(),
		replay: &fakeReplay{},
	}
	h.monitor = NewMonitor(h.clock, cfg, h.replay, func(tr Transition) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.transitions = append(h.transitions, tr)
	})
	return h
}

func (h *monitorHarness) transitionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.transitions)
}

func (h *monitorHarness) lastTransition() Transition {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.transitions[len(h.transitions)-1]
}

func testConfig() Config {
	return Config{
		HeartbeatInterval: 5 * time.Second,
		Timeout:           10 * time.Second,
		GraceWindow:       20 * time.Second,
		SweepInterval:     time.Second,
	}
}

// advanceAndSweep drives the monitor synchronously; the Run loop is just a
// ticker around sweep.
func (h *monitorHarness) advanceAndSweep(d time.Duration) {
	h.clock.Advance(d)
	h.monitor.sweep()
}

func TestHealthyParticipantStaysConnected(t *testing.T) {
	h := newMonitorHarness(testConfig())
	id := uuid.New()
	h.monitor.Track(id)

	for i := 0; i < 10; i++ {
		h.advanceAndSweep(5 * time.Second)
		_, reconnected, err := h.monitor.Heartbeat(id, uint64(i))
		require.NoError(t, err)
		require.False(t, reconnected)
	}

	status, ok := h.monitor.Status(id)
	require.True(t, ok)
	assert.Equal(t, models.ConnectionStatusConnected, status)
	assert.Zero(t, h.transitionCount())
}

func TestMissedHeartbeatEntersGraceThenDisconnects(t *testing.T) {
	h := newMonitorHarness(testConfig())
	id := uuid.New()
	h.monitor.Track(id)

	h.advanceAndSweep(10 * time.Second)
	status, _ := h.monitor.Status(id)
	assert.Equal(t, models.ConnectionStatusGrace, status)
	require.Equal(t, 1, h.transitionCount())
	assert.Equal(t, models.ConnectionStatusGrace, h.lastTransition().To)

	// Still inside the grace window.
	h.advanceAndSweep(15 * time.Second)
	status, _ = h.monitor.Status(id)
	assert.Equal(t, models.ConnectionStatusGrace, status)

	h.advanceAndSweep(5 * time.Second) // total silence 30s = timeout+grace
	status, _ = h.monitor.Status(id)
	assert.Equal(t, models.ConnectionStatusDisconnected, status)
	assert.Equal(t, models.ConnectionStatusDisconnected, h.lastTransition().To)
}

func TestHeartbeatDuringGraceRecoversSilently(t *testing.T) {
	h := newMonitorHarness(testConfig())
	id := uuid.New()
	h.monitor.Track(id)

	h.advanceAndSweep(10 * time.Second)
	status, _ := h.monitor.Status(id)
	require.Equal(t, models.ConnectionStatusGrace, status)

	missed, reconnected, err := h.monitor.Heartbeat(id, 5)
	require.NoError(t, err)
	assert.False(t, reconnected)
	assert.Nil(t, missed, "grace recovery needs no replay")

	status, _ = h.monitor.Status(id)
	assert.Equal(t, models.ConnectionStatusConnected, status)
	assert.Equal(t, 1, h.transitionCount(), "only the grace entry fired")
}

func TestReconnectionReplaysFromLastKnownSeq(t *testing.T) {
	h := newMonitorHarness(testConfig())
	id := uuid.New()
	h.monitor.Track(id)

	_, _, err := h.monitor.Heartbeat(id, 17) // client acked through seq 17
	require.NoError(t, err)

	h.advanceAndSweep(10 * time.Second)
	h.advanceAndSweep(20 * time.Second)
	status, _ := h.monitor.Status(id)
	require.Equal(t, models.ConnectionStatusDisconnected, status)

	missed, reconnected, err := h.monitor.Heartbeat(id, 0)
	require.NoError(t, err)
	require.True(t, reconnected)
	require.NotNil(t, missed)
	assert.Equal(t, uint64(17), missed.LastKnownSeq, "replay floor is the last acked seq")
	assert.Equal(t, []uint64{17}, h.replay.calls)

	status, _ = h.monitor.Status(id)
	assert.Equal(t, models.ConnectionStatusConnected, status)
}

func TestUntrackedParticipantHeartbeatIsIgnored(t *testing.T) {
	h := newMonitorHarness(testConfig())

	missed, reconnected, err := h.monitor.Heartbeat(uuid.New(), 3)
	require.NoError(t, err)
	assert.False(t, reconnected)
	assert.Nil(t, missed)
	assert.Zero(t, h.transitionCount())
}
