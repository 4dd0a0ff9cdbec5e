package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/brightwell/liveroom/go/internal/events"
)

// DispatcherConfig tunes the async publish pipeline.
type DispatcherConfig struct {
	QueueSize  int
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultDispatcherConfig returns the default pipeline settings.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:  1024,
		MaxRetries: 3,
		RetryDelay: 250 * time.Millisecond,
	}
}

// Dispatcher decouples sessions from broadcast I/O: Enqueue never blocks
// the action path, and a single worker drains the queue in order, retrying
// transient publish failures with backoff. One dispatcher per room keeps
// per-room ordering.
type Dispatcher struct {
	publisher Publisher
	clock     clockwork.Clock
	config    DispatcherConfig

	queue chan *events.Envelope
	wg    sync.WaitGroup
	once  sync.Once
}

// NewDispatcher creates a dispatcher over the publisher.
func NewDispatcher(publisher Publisher, clock clockwork.Clock, cfg DispatcherConfig) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultDispatcherConfig().QueueSize
	}
	return &Dispatcher{
		publisher: publisher,
		clock:     clock,
		config:    cfg,
		queue:     make(chan *events.Envelope, cfg.QueueSize),
	}
}

// Start launches the drain worker. The worker exits when ctx is cancelled
// or the queue is closed.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-d.queue:
				if !ok {
					return
				}
				d.publishWithRetry(ctx, env)
			}
		}
	}()
}

// Enqueue hands an envelope to the pipeline. Fire-and-forget: a full queue
// drops the event with a log line instead of gating the caller.
func (d *Dispatcher) Enqueue(env *events.Envelope) {
	select {
	case d.queue <- env:
	default:
		log.Warn().
			Str("room_id", env.RoomID.String()).
			Str("event_type", string(env.Type)).
			Uint64("seq", env.Seq).
			Msg("broadcast queue full, dropping event")
	}
}

// Stop closes the queue and waits for the worker to drain.
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.queue) })
	d.wg.Wait()
}

func (d *Dispatcher) publishWithRetry(ctx context.Context, env *events.Envelope) {
	var err error
	for attempt := 0; attempt <= d.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-d.clock.After(d.config.RetryDelay * time.Duration(attempt)):
			}
		}
		if err = d.publisher.Publish(ctx, env); err == nil {
			return
		}
	}
	log.Error().
		Err(err).
		Str("room_id", env.RoomID.String()).
		Str("event_type", string(env.Type)).
		Uint64("seq", env.Seq).
		Int("attempts", d.config.MaxRetries+1).
		Msg("dropping event after publish retries")
}
