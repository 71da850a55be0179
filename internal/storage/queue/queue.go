// Package queue coalesces document saves and serializes their persistence.
//
// Save stores a private copy of the document in a single pending slot and
// restarts a quiescence timer. When the timer lapses, the latest pending
// document is written. Saves arriving within one window collapse into one
// write. Writes never overlap, and because the pending slot is only taken
// after the write lock is held, writes happen in submission order.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/docguard/internal/core/domain"
	"github.com/yndnr/docguard/internal/telemetry/metric"
)

// DefaultWindow is the quiescence period before a pending save is written.
const DefaultWindow = 500 * time.Millisecond

// PersistFunc writes a document.
type PersistFunc func(ctx context.Context, doc *domain.Document) error

// PrepareFunc stamps a document immediately before it is written. It
// receives the queue's private copy and may modify it.
type PrepareFunc func(ctx context.Context, doc *domain.Document)

// Stats are cumulative queue counters.
type Stats struct {
	Coalesced uint64
	Written   uint64
	Failed    uint64
}

// Queue is a debounced, single-flight write queue.
type Queue struct {
	persist PersistFunc
	prepare PrepareFunc
	window  time.Duration
	logger  *slog.Logger
	metrics *metric.Registry

	mu        sync.Mutex
	pending   *domain.Document
	coalesced int
	gen       uint64
	timer     *time.Timer
	closed    bool

	sem       chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	statCoalesced atomic.Uint64
	statWritten   atomic.Uint64
	statFailed    atomic.Uint64
}

// Option configures a Queue.
type Option func(*Queue)

// WithWindow sets the debounce window.
func WithWindow(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.window = d
		}
	}
}

// WithPrepare installs a hook run on each document before it is written.
func WithPrepare(fn PrepareFunc) Option {
	return func(q *Queue) {
		q.prepare = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = l
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(r *metric.Registry) Option {
	return func(q *Queue) {
		q.metrics = r
	}
}

// New creates a queue that writes through persist.
func New(persist PersistFunc, opts ...Option) *Queue {
	q := &Queue{
		persist: persist,
		window:  DefaultWindow,
		logger:  slog.Default(),
		sem:     make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Window returns the debounce window.
func (q *Queue) Window() time.Duration {
	return q.window
}

// Save schedules doc to be written after the debounce window. The caller
// may keep modifying doc; the queue holds its own copy.
func (q *Queue) Save(doc *domain.Document) error {
	if doc == nil {
		return domain.ErrStructural.WithDetails("document is nil")
	}
	snapshot := doc.Clone()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return domain.ErrClosed
	}

	if q.pending != nil {
		q.coalesced++
		q.statCoalesced.Add(1)
	}
	q.pending = snapshot
	q.gen++
	gen := q.gen
	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = time.AfterFunc(q.window, func() { q.fire(gen) })
	return nil
}

// Pending reports whether a save is waiting to be written.
func (q *Queue) Pending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending != nil
}

// Stats returns cumulative counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Coalesced: q.statCoalesced.Load(),
		Written:   q.statWritten.Load(),
		Failed:    q.statFailed.Load(),
	}
}

// Flush writes the pending document now and returns once the write has
// completed. It returns nil if nothing was pending.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	q.cancelTimerLocked()
	q.mu.Unlock()

	select {
	case q.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-q.sem }()

	return q.writePending(ctx)
}

// Exclusive waits for any write in progress, drops the pending save and
// runs fn before another write can start. A save taken by a timer just
// before Exclusive was called lands before fn runs, never after it.
// Saves made while fn runs are written after it returns.
func (q *Queue) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case q.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-q.sem }()

	q.mu.Lock()
	q.cancelTimerLocked()
	dropped := q.pending != nil
	q.pending = nil
	q.coalesced = 0
	q.mu.Unlock()
	if dropped {
		q.logger.Warn("pending save discarded")
	}

	return fn(ctx)
}

// Close flushes pending work and rejects further saves.
func (q *Queue) Close(ctx context.Context) error {
	err := q.Flush(ctx)

	q.mu.Lock()
	q.closed = true
	q.cancelTimerLocked()
	q.mu.Unlock()
	q.closeOnce.Do(func() { close(q.done) })

	return err
}

// cancelTimerLocked stops the timer and invalidates any fire already in
// flight. Callers hold mu.
func (q *Queue) cancelTimerLocked() {
	q.gen++
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

// fire runs when the debounce timer for generation gen lapses.
func (q *Queue) fire(gen uint64) {
	if !q.current(gen) {
		return
	}

	select {
	case q.sem <- struct{}{}:
	case <-q.done:
		return
	}
	defer func() { <-q.sem }()

	// A newer save or a flush may have arrived while waiting for the lock.
	if !q.current(gen) {
		return
	}
	if err := q.writePending(context.Background()); err != nil {
		q.logger.Error("debounced save failed", "error", err)
	}
}

func (q *Queue) current(gen uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.closed && gen == q.gen
}

// writePending takes the pending document and persists it. Callers hold sem.
func (q *Queue) writePending(ctx context.Context) error {
	q.mu.Lock()
	doc := q.pending
	coalesced := q.coalesced
	q.pending = nil
	q.coalesced = 0
	q.mu.Unlock()

	if doc == nil {
		return nil
	}
	if q.prepare != nil {
		q.prepare(ctx, doc)
	}

	if err := q.persist(ctx, doc); err != nil {
		q.statFailed.Add(1)
		if errors.Is(err, domain.ErrStructural) {
			q.logger.Warn("dropping structurally invalid save", "error", err)
			return err
		}
		// Keep the document for the next Save or Flush unless a newer
		// one has already replaced it.
		q.mu.Lock()
		if q.pending == nil && !q.closed {
			q.pending = doc
		}
		q.mu.Unlock()
		return err
	}

	q.statWritten.Add(1)
	q.metrics.Coalesced(coalesced)
	return nil
}
