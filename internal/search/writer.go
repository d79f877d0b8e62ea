package search

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/pizza-search/internal/config"
	"github.com/sells-group/pizza-search/internal/model"
	"github.com/sells-group/pizza-search/internal/store"
)

// jobTimeout bounds one persistence job against a stalled database.
const jobTimeout = 30 * time.Second

// Job is one unit of post-response persistence: the provider-fetched places
// to upsert and the analytics event for the search that produced them.
type Job struct {
	Places []model.Place
	Event  *model.SearchEvent
}

// Writer persists provider results and analytics off the response path. It
// holds a bounded queue drained by a fixed worker pool; when the queue is
// full, jobs are dropped rather than blocking a search.
type Writer struct {
	store   store.Store
	jobs    chan Job
	workers *errgroup.Group

	// mu orders Enqueue against Close so the channel is never closed while
	// a send is in flight.
	mu     sync.Mutex
	closed bool
}

// NewWriter starts the background writer with the configured worker count
// and queue size.
func NewWriter(st store.Store, cfg config.WriterConfig) *Writer {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}

	w := &Writer{
		store:   st,
		jobs:    make(chan Job, queueSize),
		workers: &errgroup.Group{},
	}
	for range concurrency {
		w.workers.Go(func() error {
			for job := range w.jobs {
				w.process(job)
			}
			return nil
		})
	}
	return w
}

// Enqueue hands a job to the worker pool. It never blocks: a full queue
// drops the job and reports false, and so does a writer that already shut
// down (a request can still be in flight when shutdown starts).
func (w *Writer) Enqueue(job Job) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		zap.L().Warn("writer: closed, dropping persistence job",
			zap.Int("places", len(job.Places)),
		)
		return false
	}

	select {
	case w.jobs <- job:
		return true
	default:
		zap.L().Warn("writer: queue full, dropping persistence job",
			zap.Int("places", len(job.Places)),
		)
		return false
	}
}

// process runs one job. Persistence failures never propagate: a failed bulk
// upsert falls back to per-record writes so one bad record cannot sink the
// batch, and analytics errors are logged and swallowed.
func (w *Writer) process(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if len(job.Places) > 0 {
		if _, err := w.store.BulkUpsertPlaces(ctx, job.Places); err != nil {
			zap.L().Warn("writer: bulk upsert failed, retrying per record", zap.Error(err))
			for _, p := range job.Places {
				if err := w.store.UpsertPlace(ctx, p); err != nil {
					zap.L().Warn("writer: skipping place",
						zap.String("source", string(p.Source)),
						zap.String("external_id", p.ExternalID),
						zap.Error(err),
					)
				}
			}
		}
	}

	if job.Event != nil {
		if err := w.store.LogSearchEvent(ctx, *job.Event); err != nil {
			zap.L().Warn("writer: analytics log failed", zap.Error(err))
		}
	}
}

// Close stops accepting jobs and blocks until queued work drains. Safe to
// call more than once.
func (w *Writer) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()
	_ = w.workers.Wait() // workers never return errors
}
