// Package engine implements the improbability engine (component C11,
// spec.md §4.10): the entropy-driven forward/reverse loop that drives
// a convergence run to a fixed point, ledger-reverting every
// half-cycle that runs with reverse entropy and checking for a
// repeated state at the end of every half-cycle that runs forward. It
// is grounded on the teacher's internal/source/logical provider loop
// (chaos.go, serial_events.go), which likewise drives a bounded,
// restartable replay loop around a user-supplied processing function.
package engine

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/chronovar/chronovar/internal/oplog"
	"github.com/chronovar/chronovar/internal/registry"
	"github.com/chronovar/chronovar/internal/runtime"
	"github.com/chronovar/chronovar/internal/xerrors"
)

// Engine owns one convergence run's runtime context, ledger, and
// variable registry, and drives Body to a fixed point.
type Engine struct {
	log      *logrus.Entry
	rt       *runtime.Context
	ledger   *oplog.Ledger
	reg      *registry.Registry
	finalize func()
}

// New constructs an Engine. finalize is called once, after the loop
// ends (by convergence or by exhausting the iteration budget), to
// unify any variable whose timeline still has more than one slice —
// typically registry.Registry.FinalizeAll bound to an
// internal/archivist.Archivist.
func New(rt *runtime.Context, ledger *oplog.Ledger, reg *registry.Registry, finalize func()) *Engine {
	return &Engine{
		log:      logrus.WithField("component", "engine"),
		rt:       rt,
		ledger:   ledger,
		reg:      reg,
		finalize: finalize,
	}
}

// Run drives body to a fixed point per spec.md §4.10's pseudocode:
//
//	entropy := Reverse
//	loop:
//	  body()
//	  if entropy.IsForward(): check convergence against the
//	    forward-pass-start snapshot; break if every variable matches
//	  else: ledger.reverse-all()
//	  entropy = entropy.Flip()
//	  if iteration budget exhausted: break
//	entropy := Final
//	unify-all
//	in-convergence-loop := false
//	body() // the one user-visible execution; its side effects are the
//	       // run's output
//
// Run returns xerrors.ErrNonConvergence if the loop exhausted its
// iteration budget without a natural convergence; the final pass still
// runs in that case, against whatever each variable's timeline holds
// once finalize() has unified it down to a single slice.
func (e *Engine) Run(body func()) error {
	e.rt.SetInConvergenceLoop(true)

	e.ledger.Clear()
	e.rt.SetEntropy(runtime.Reverse)

	var runErr error
	for {
		var before map[uint64]any
		if e.rt.Entropy().IsForward() {
			before = e.captureTails()
		}

		body()

		if e.rt.Entropy().IsForward() {
			if e.allTailsMatch(before) {
				e.rt.SetConverged()
			}
		} else if !e.rt.Converged() {
			// A unify reached during this very half-cycle (an
			// arithmetic operation revisiting a prior timeline entry)
			// already marked the run converged; reversing it away
			// would discard the unified result the run is supposed to
			// produce. Only a half-cycle that did NOT itself converge
			// gets undone.
			if err := e.ledger.ReverseAll(); err != nil {
				e.rt.SetInConvergenceLoop(false)
				return errors.Wrap(err, "engine: reverse-all")
			}
		}

		if e.rt.Converged() {
			e.log.WithField("iteration", e.rt.Iteration()).Debug("converged")
			break
		}

		e.rt.Flip()
		e.rt.NextIteration()

		if e.rt.ExceededMaxIterations() {
			e.log.WithField("max_iterations", e.rt.MaxIterations()).Warn("convergence budget exhausted, forcing final unification")
			runErr = errors.WithStack(xerrors.ErrNonConvergence)
			break
		}
	}

	if e.finalize != nil {
		e.finalize()
	}
	e.rt.SetEntropy(runtime.Final)
	e.rt.SetInConvergenceLoop(false)
	body()

	return runErr
}

func (e *Engine) captureTails() map[uint64]any {
	out := make(map[uint64]any)
	for _, h := range e.reg.All() {
		out[h.ID()] = h.CaptureTail()
	}
	return out
}

func (e *Engine) allTailsMatch(before map[uint64]any) bool {
	for _, h := range e.reg.All() {
		captured, ok := before[h.ID()]
		if !ok {
			return false
		}
		if !h.TailEqualsCaptured(captured) {
			return false
		}
	}
	return true
}
