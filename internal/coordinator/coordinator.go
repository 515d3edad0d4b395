// Package coordinator implements spec.md's convergence coordinator
// (component C9): a bounded work queue drained by a single reader
// goroutine, so that every transactional commit and every convergence
// loop invocation is serialized onto one thread regardless of how many
// producer goroutines enqueue work. It is grounded on the teacher's
// internal/stopper-driven server loops (cdc-sink's resolver and
// logical-replication loops each run a single dedicated goroutine
// reading off a channel until stopper.Context.Stopping() fires).
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/chronovar/chronovar/internal/metrics"
	"github.com/chronovar/chronovar/internal/stopper"
	"github.com/chronovar/chronovar/internal/xerrors"
)

var (
	processedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chronovar",
		Subsystem: "coordinator",
		Name:      "processed_total",
		Help:      "Work items drained from the coordinator queue.",
	})

	latencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chronovar",
		Subsystem: "coordinator",
		Name:      "item_latency_seconds",
		Help:      "Time a work item spent queued before it began executing.",
		Buckets:   metrics.LatencyBuckets,
	})
)

// Coordinator serializes work items of type func() onto a single
// goroutine, so that every caller-visible effect on the engine's
// variables happens on one thread.
type Coordinator struct {
	log   *logrus.Entry
	ctx   *stopper.Context
	queue chan workItem

	disposeOnce sync.Once
	disposed    chan struct{}
}

type workItem struct {
	fn       func()
	enqueued time.Time
}

// New constructs a Coordinator with the given queue depth and starts
// its single reader goroutine, bound to parent's lifetime.
func New(parent context.Context, depth int) *Coordinator {
	if depth <= 0 {
		depth = 1
	}
	c := &Coordinator{
		log:      logrus.WithField("component", "coordinator"),
		ctx:      stopper.WithContext(parent),
		queue:    make(chan workItem, depth),
		disposed: make(chan struct{}),
	}
	c.ctx.Go(c.run)
	return c
}

func (c *Coordinator) run() error {
	for {
		select {
		case <-c.ctx.Stopping():
			return nil
		case <-c.ctx.Done():
			return nil
		case item, ok := <-c.queue:
			if !ok {
				return nil
			}
			latencySeconds.Observe(time.Since(item.enqueued).Seconds())
			item.fn()
			processedTotal.Inc()
		}
	}
}

// Enqueue submits fn to run on the coordinator's single goroutine. It
// blocks if the queue is full, and returns xerrors.ErrInvariantViolation
// if the coordinator has already been disposed.
func (c *Coordinator) Enqueue(fn func()) error {
	select {
	case <-c.disposed:
		return errors.Wrap(xerrors.ErrInvariantViolation, "coordinator: enqueue after dispose")
	default:
	}
	select {
	case c.queue <- workItem{fn: fn, enqueued: time.Now()}:
		return nil
	case <-c.disposed:
		return errors.Wrap(xerrors.ErrInvariantViolation, "coordinator: enqueue after dispose")
	}
}

// Flush blocks until every item enqueued before the call to Flush has
// been processed, by enqueueing a barrier item and waiting for it.
func (c *Coordinator) Flush() error {
	done := make(chan struct{})
	if err := c.Enqueue(func() { close(done) }); err != nil {
		return err
	}
	<-done
	return nil
}

// Dispose stops accepting new work, waits up to grace for the reader
// goroutine to drain and exit, then releases it. Safe to call more
// than once.
func (c *Coordinator) Dispose(grace time.Duration) {
	c.disposeOnce.Do(func() {
		close(c.disposed)
		close(c.queue)
		c.ctx.Stop(grace)
		c.log.Debug("coordinator disposed")
	})
}
