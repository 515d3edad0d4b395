// Package chronovar is the public facade over chronovar's internal
// packages (spec.md §6 "External Interfaces"): a System owns one
// convergence run's registry, ledger, archivist, runtime context, and
// coordinator, and Variable[T] is the handle application code reads
// and mutates. The facade pattern mirrors the teacher's root-level
// sink.go/resolved_table.go, which are a thin, concrete layer over the
// heavier internal/ packages a user never imports directly.
package chronovar

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/chronovar/chronovar/internal/archivist"
	"github.com/chronovar/chronovar/internal/coordinator"
	"github.com/chronovar/chronovar/internal/diag"
	"github.com/chronovar/chronovar/internal/engine"
	"github.com/chronovar/chronovar/internal/lclock"
	"github.com/chronovar/chronovar/internal/oplog"
	"github.com/chronovar/chronovar/internal/registry"
	"github.com/chronovar/chronovar/internal/runtime"
)

// System is one convergence run's shared state: a variable registry,
// an undo ledger, an archivist, a runtime context, and a coordinator
// serializing all of it onto one goroutine.
type System struct {
	log *logrus.Entry

	cfg    Config
	reg    *registry.Registry
	ledger *oplog.Ledger
	clock  *lclock.Clock
	arch   *archivist.Archivist
	rt     *runtime.Context
	diag   *diag.Diagnostics
	coord  *coordinator.Coordinator
}

// New constructs a System, starting its coordinator goroutine bound to
// ctx's lifetime. The returned System must be closed with Close once
// the caller is done with it.
func New(ctx context.Context, cfg Config) (*System, error) {
	if err := cfg.Preflight(); err != nil {
		return nil, err
	}

	ledger := oplog.NewLedger()
	clock := lclock.NewClock()

	s := &System{
		log:    logrus.WithField("component", "chronovar"),
		cfg:    cfg,
		reg:    registry.New(),
		ledger: ledger,
		clock:  clock,
		arch:   archivist.New(ledger, clock),
		rt:     runtime.New(cfg.MaxIterations),
		diag:   diag.New(),
	}
	s.coord = coordinator.New(ctx, cfg.QueueDepth)

	if err := s.diag.Register("ledger", s.ledger); err != nil {
		return nil, err
	}
	if err := s.diag.Register("registry", s.reg); err != nil {
		return nil, err
	}

	return s, nil
}

// Close stops the System's coordinator, waiting up to the configured
// DisposeGrace (spec.md §3.3) for in-flight work to finish.
func (s *System) Close() {
	s.coord.Dispose(s.cfg.DisposeGrace)
}

// Enqueue submits fn to run on the coordinator's single goroutine,
// serializing it with every other mutation against this System's
// variables (spec.md §4.7).
func (s *System) Enqueue(fn func()) error {
	return s.coord.Enqueue(fn)
}

// Flush blocks until every item enqueued before the call has run.
func (s *System) Flush() error {
	return s.coord.Flush()
}

// RunConvergence drives body to a fixed point using the improbability
// engine (spec.md §4.10), returning xerrors.ErrNonConvergence if the
// iteration budget is exhausted first. Per spec.md §4.7/§5, the
// coordinator thread is also the engine thread: the whole run, every
// half-cycle's body() invocation included, executes on the
// coordinator's single goroutine rather than the caller's, so it
// serializes against every other convergence run and transaction on
// this System.
func (s *System) RunConvergence(body func()) error {
	return s.runOnCoordinator(func() error {
		e := engine.New(s.rt, s.ledger, s.reg, func() { s.reg.FinalizeAll(s.arch) })
		return e.Run(body)
	})
}

// runOnCoordinator enqueues fn onto the coordinator's single goroutine
// and blocks until it has run, propagating its error back to the
// calling goroutine.
func (s *System) runOnCoordinator(fn func() error) error {
	result := make(chan error, 1)
	if err := s.coord.Enqueue(func() { result <- fn() }); err != nil {
		return err
	}
	return <-result
}

// LedgerLen returns the number of undo entries currently buffered.
func (s *System) LedgerLen() int { return s.ledger.Len() }

// VariableCount returns the number of variables registered so far.
func (s *System) VariableCount() int { return s.reg.Len() }

// Diagnostics returns the System's diagnostics registry (spec.md's
// ambient observability surface).
func (s *System) Diagnostics() *diag.Diagnostics { return s.diag }
