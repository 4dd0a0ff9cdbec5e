package store

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/brightwell/liveroom/go/internal/models"
)

// WriterConfig tunes the async persistence pipeline.
type WriterConfig struct {
	QueueSize  int
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultWriterConfig returns the default pipeline settings.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		QueueSize:  2048,
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
	}
}

type record struct {
	clue    *models.ClueEvent
	click   *models.ClickEvent
	summary *models.SessionSummary
}

// AsyncWriter wraps an EventStore with a bounded queue and a retry loop so
// a slow or failing database never blocks a session's action handling.
type AsyncWriter struct {
	store  EventStore
	clock  clockwork.Clock
	config WriterConfig

	queue chan record
	wg    sync.WaitGroup
	once  sync.Once
}

// NewAsyncWriter creates the writer over the underlying store.
func NewAsyncWriter(store EventStore, clock clockwork.Clock, cfg WriterConfig) *AsyncWriter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultWriterConfig().QueueSize
	}
	return &AsyncWriter{
		store:  store,
		clock:  clock,
		config: cfg,
		queue:  make(chan record, cfg.QueueSize),
	}
}

// Start launches the drain worker.
func (w *AsyncWriter) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case rec, ok := <-w.queue:
				if !ok {
					return
				}
				w.writeWithRetry(ctx, rec)
			}
		}
	}()
}

// Stop closes the queue and drains outstanding writes.
func (w *AsyncWriter) Stop() {
	w.once.Do(func() { close(w.queue) })
	w.wg.Wait()
}

// EnqueueClueEvent queues a clue record without blocking.
func (w *AsyncWriter) EnqueueClueEvent(ev models.ClueEvent) { w.enqueue(record{clue: &ev}) }

// EnqueueClickEvent queues a click record without blocking.
func (w *AsyncWriter) EnqueueClickEvent(ev models.ClickEvent) { w.enqueue(record{click: &ev}) }

// EnqueueSessionSummary queues a session summary without blocking.
func (w *AsyncWriter) EnqueueSessionSummary(s models.SessionSummary) { w.enqueue(record{summary: &s}) }

func (w *AsyncWriter) enqueue(rec record) {
	select {
	case w.queue <- rec:
	default:
		log.Warn().Msg("persistence queue full, dropping record")
	}
}

func (w *AsyncWriter) writeWithRetry(ctx context.Context, rec record) {
	var err error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-w.clock.After(w.config.RetryDelay * time.Duration(attempt)):
			}
		}
		switch {
		case rec.clue != nil:
			err = w.store.AppendClueEvent(ctx, *rec.clue)
		case rec.click != nil:
			err = w.store.AppendClickEvent(ctx, *rec.click)
		case rec.summary != nil:
			err = w.store.AppendSessionSummary(ctx, *rec.summary)
		}
		if err == nil {
			return
		}
	}
	log.Error().Err(err).Int("attempts", w.config.MaxRetries+1).Msg("dropping record after persistence retries")
}
