// Package archivist is the sole mutator of a variable's timeline
// buffer (spec.md §4.5, component C7). It implements the assign/merge
// decision tree of spec.md §4.9 in one place (Apply) so that both
// assign() and the arithmetic operations share identical convergence
// semantics, publishes a versioned snapshot after every mutation
// (grounded on the teacher's internal/source/cdc/resolver.go use of
// notify.Var[hlc.Time] to publish a resolved-timestamp watermark), and
// records an undo entry on the shared ledger for every mutation.
package archivist

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chronovar/chronovar/internal/lclock"
	"github.com/chronovar/chronovar/internal/metrics"
	"github.com/chronovar/chronovar/internal/notify"
	"github.com/chronovar/chronovar/internal/oplog"
	"github.com/chronovar/chronovar/internal/runtime"
	"github.com/chronovar/chronovar/internal/variable"
	"github.com/chronovar/chronovar/internal/xerrors"
	"github.com/chronovar/chronovar/slice"
)

var timelineLength = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "chronovar",
	Subsystem: "archivist",
	Name:      "timeline_length",
	Help:      "Number of slices currently buffered on a variable's timeline.",
}, metrics.VariableLabels)

// Snapshot is a published, versioned view of a variable's timeline,
// the payload behind the notify.Var a reader can block on.
type Snapshot[T comparable] struct {
	VarID    uint64
	Version  uint64
	Timeline []slice.Slice[T]
}

// Tail returns the snapshot's tail slice.
func (s Snapshot[T]) Tail() slice.Slice[T] {
	return s.Timeline[len(s.Timeline)-1]
}

// backupEntry is a type-erased, restorable clone of one variable's
// timeline, pushed onto the archivist's backup stack by UnifyAll and
// popped by RestoreLastSnapshot (spec.md §4.5).
type backupEntry interface {
	restore()
}

type typedBackup[T comparable] struct {
	v        *variable.Variable[T]
	timeline []slice.Slice[T]
}

func (b *typedBackup[T]) restore() {
	b.v.Lock()
	defer b.v.Unlock()
	b.v.RawRestoreTimeline(b.timeline)
	b.v.BumpVersion()
}

// Archivist owns the shared ledger, the commit-id source, and the
// per-variable snapshot archive. One Archivist is shared by every
// variable in a run, the way the teacher shares one *types.TargetPool
// across every resolved-table instance.
type Archivist struct {
	ledger *oplog.Ledger
	clock  *lclock.Clock

	mu        sync.Mutex
	snapshots map[uint64]any // varID -> *notify.Var[Snapshot[T]], type-erased
	backups   []backupEntry
}

// New constructs an Archivist backed by ledger and clock.
func New(ledger *oplog.Ledger, clock *lclock.Clock) *Archivist {
	return &Archivist{
		ledger:    ledger,
		clock:     clock,
		snapshots: make(map[uint64]any),
	}
}

func snapshotVar[T comparable](a *Archivist, varID uint64) *notify.Var[Snapshot[T]] {
	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.snapshots[varID]; ok {
		return existing.(*notify.Var[Snapshot[T]])
	}
	nv := notify.New(Snapshot[T]{VarID: varID})
	a.snapshots[varID] = nv
	return nv
}

// LatestSnapshot returns the most recently published snapshot for a
// variable, and a channel that closes when a newer one is published.
func LatestSnapshot[T comparable](a *Archivist, varID uint64) (Snapshot[T], <-chan struct{}) {
	return snapshotVar[T](a, varID).Get()
}

func publish[T comparable](a *Archivist, v *variable.Variable[T]) {
	snap := Snapshot[T]{VarID: v.ID(), Version: v.Version(), Timeline: v.CloneTimeline()}
	snapshotVar[T](a, v.ID()).Set(snap)
	timelineLength.WithLabelValues(v.Key().Name).Set(float64(len(snap.Timeline)))
}

// action is the structural branch Apply took, per spec.md §4.9. It
// determines how the ledger entry's Undo must behave; it is not a
// public concept and is never exposed outside this package.
type action int

const (
	actionNoop action = iota
	actionAppend
	actionUnify
	actionBootstrapReplace
)

// Apply is the direct-mutation entry point implementing spec.md §4.9's
// assign/merge decision tree, for callers with no ambient transaction:
// it mints its own fresh commit id, making the call itself a
// single-entry transaction. newSlice is the proposed new tail value
// (from assign(), or computed by an arithmetic operation's Forward
// function); op carries the Kind and Name used for the ledger record,
// plus Forward/Inverse for the reversible kinds. rt supplies the
// ambient entropy/convergence state the bootstrap-replace rule needs.
func Apply[T comparable](a *Archivist, v *variable.Variable[T], rt *runtime.Context, op oplog.Operation[T], newSlice slice.Slice[T]) error {
	return ApplyWithCommit(a, v, rt, op, newSlice, a.clock.Next(), 0)
}

// ApplyWithCommit is Apply parameterized by an externally-supplied
// commit id and sequence number, so that internal/stm can drive
// several variables' mutations under one shared transaction commit id
// (spec.md §8 property 3 / scenario S5), assigning each variable's
// entry a distinct seq within that commit.
func ApplyWithCommit[T comparable](a *Archivist, v *variable.Variable[T], rt *runtime.Context, op oplog.Operation[T], newSlice slice.Slice[T], commit lclock.CommitID, seq uint32) error {
	v.Lock()

	if op.Snapshot.IsEmpty() {
		if preScalar, ok := v.TailSlice().First(); ok {
			op.Snapshot = slice.New(preScalar)
		}
	}

	act, undoSnapshot, unifyIdx := decide(v, rt, newSlice, op.Kind)

	switch act {
	case actionNoop:
		v.SetStateRead(false)
		v.Unlock()
		return nil
	case actionAppend:
		v.RawAppend(newSlice)
	case actionBootstrapReplace:
		v.RawOverwriteBootstrap(newSlice)
	case actionUnify:
		// spec.md §4.9: the union spans every slice from the matched
		// index through the current tail, not just the matched slice
		// itself, so a value seen partway through the run (e.g. the
		// antival paradox's "-1" at index 0) survives into the final
		// unified result alongside everything recorded since.
		union := v.SliceAt(unifyIdx)
		for i := unifyIdx + 1; i < v.TimelineLen(); i++ {
			union = union.Merge(v.SliceAt(i))
		}
		union = union.Merge(newSlice)
		// Preserve the full pre-unify timeline on the backup stack so
		// RestoreLastSnapshot can undo it even though the convergence
		// loop normally terminates in the same iteration and never
		// asks to.
		a.mu.Lock()
		a.backups = append(a.backups, &typedBackup[T]{v: v, timeline: v.CloneTimeline()})
		a.mu.Unlock()
		v.RawTruncateAndPlace(unifyIdx, union)
		rt.SetConverged()
	}
	v.BumpVersion()
	v.SetStateRead(false)
	v.Unlock()

	entry := buildLedgerEntry(a, v, rt, op, act, undoSnapshot)
	a.ledger.Append(entry, oplog.EntryID{Commit: commit, Seq: seq})

	publish(a, v)
	return nil
}

// decide implements spec.md §4.9's four-way branch. Callers must hold
// v's lock; it returns the chosen action, the value needed to undo it
// (the pre-mutation tail, for bootstrap-replace; zero otherwise — the
// append case needs nothing but a pop), and, for unify, the index the
// match was found at.
func decide[T comparable](v *variable.Variable[T], rt *runtime.Context, newSlice slice.Slice[T], kind oplog.Kind) (act action, undoSnapshot slice.Slice[T], unifyIdx int) {
	length := v.TimelineLen()

	// The final pass (spec.md §4.10, entropy.IsFinal()) is the single
	// user-visible execution of body() after the convergence loop has
	// already ended and unify-all has collapsed every timeline to
	// length 1 (invariant 8), so there is nowhere left to append or
	// unify against: an assign means exactly what it always means,
	// replace the value outright, while any other operator's result is
	// folded into the surviving slice instead of replacing it, so a
	// value that only re-derives one branch of an already-unified
	// superposition (scenario S1's antival paradox) does not collapse
	// the persisted set down to that one branch.
	if rt.Entropy().IsFinal() {
		if kind == oplog.KindAssign {
			return actionBootstrapReplace, v.TailSlice(), 0
		}
		return actionUnify, slice.Slice[T]{}, 0
	}

	// "still bootstrap" (spec.md §4.9) means no append has ever sealed
	// it, not merely that the timeline currently has one entry: a
	// variable that unified back down to length 1 mid-run must not
	// reopen the bootstrap-replace branch, or forward progress could
	// never accumulate enough history to unify again. §9's
	// state-read-in-current-forward-pass open question extends the same
	// branch to direct (non-convergence-loop) callers: a Read() observed
	// this pass on a still-bootstrap, length-1 timeline makes the
	// following write a continuation rather than a branch even with no
	// entropy direction to consult.
	stillBootstrap := length == 1 && !v.FirstAppendSeen()
	if stillBootstrap && ((rt.InConvergenceLoop() && rt.Entropy().IsForward()) || (!rt.InConvergenceLoop() && v.StateRead())) {
		return actionBootstrapReplace, v.SliceAt(0), 0
	}

	tail := v.TailSlice()
	if newSlice.Equal(tail) {
		return actionNoop, slice.Slice[T]{}, 0
	}

	for k := 0; k < length-1; k++ {
		if newSlice.Equal(v.SliceAt(k)) {
			return actionUnify, slice.Slice[T]{}, k
		}
	}

	return actionAppend, slice.Slice[T]{}, 0
}

// buildLedgerEntry wraps op into an Entry whose Undo reverses whatever
// structural action Apply just took. The semantic Kind on op (Add,
// Sub, Assign, ...) is preserved for diagnostics, but undo dispatches
// on the structural action captured here, not on op.Kind — this
// resolves the apparent tension in spec.md §4.3/§4.5 between
// "operation record carries Forward/Inverse" and "archivist records
// TimelineAppend/TimelineReplace/OverwriteBootstrap undo ops": rather
// than pushing two ledger entries per mutation, one entry per mutation
// closes over both the scalar inverse and the structural undo.
func buildLedgerEntry[T comparable](a *Archivist, v *variable.Variable[T], rt *runtime.Context, op oplog.Operation[T], act action, preMutation slice.Slice[T]) oplog.Entry {
	undo := func(op oplog.Operation[T]) error {
		if act == actionUnify {
			// The loop terminates in the iteration that unified, so
			// this path is not exercised by the engine; restore via
			// the backup stack for completeness. RestoreLastSnapshot
			// locks v itself, so it must not be called while v is
			// already held.
			a.RestoreLastSnapshot()
			return nil
		}

		v.Lock()
		defer v.Unlock()

		switch act {
		case actionAppend:
			if v.TimelineLen() <= 1 {
				return errors.WithStack(xerrors.ErrInvariantViolation)
			}
			v.RawPopTail()
			v.BumpVersion()
			if oplog.IsIrreversible(op.Kind) {
				// spec.md §4.3: Mod/And/Or/shift override undo() to
				// restore the pre-mutation snapshot and force
				// convergence, since their forward effect cannot be
				// replayed from the restored state alone.
				rt.SetConverged()
			}
		case actionBootstrapReplace:
			// Prefer the operation's own algebraic inverse (or, for an
			// irreversible Kind, its pre-mutation Snapshot) over the
			// bare structural preMutation value, so that arithmetic
			// ops genuinely exercise the reversible-operation protocol
			// rather than relying solely on timeline bookkeeping.
			restored := preMutation
			if op.Forward != nil || op.Inverse != nil || oplog.IsIrreversible(op.Kind) {
				if cur, ok := v.TailSlice().First(); ok {
					restored = slice.New(op.ApplyInverse(cur))
				}
			}
			v.RawOverwriteBootstrap(restored)
			v.BumpVersion()
			if oplog.IsIrreversible(op.Kind) {
				rt.SetConverged()
			}
		case actionNoop:
			// nothing to undo
		}
		publish(a, v)
		return nil
	}
	return oplog.NewBoundOperation(op, undo)
}

// RestoreLastSnapshot pops the archivist's backup stack and restores
// whichever variable it belongs to (spec.md §4.5's
// restore-last-snapshot). It is a no-op if the stack is empty.
func (a *Archivist) RestoreLastSnapshot() {
	a.mu.Lock()
	if len(a.backups) == 0 {
		a.mu.Unlock()
		return
	}
	top := a.backups[len(a.backups)-1]
	a.backups = a.backups[:len(a.backups)-1]
	a.mu.Unlock()
	top.restore()
}

// UnifyAll collapses v's entire timeline into a single tail slice, the
// union of every slice on it — spec.md §4.2's unify-all(), used before
// the engine's final pass to converge any variable whose timeline still
// has more than one entry once the convergence loop has ended.
func UnifyAll[T comparable](a *Archivist, v *variable.Variable[T]) {
	v.Lock()
	if v.TimelineLen() <= 1 {
		v.Unlock()
		return
	}
	union := v.SliceAt(0)
	for i := 1; i < v.TimelineLen(); i++ {
		union = union.Merge(v.SliceAt(i))
	}
	a.mu.Lock()
	a.backups = append(a.backups, &typedBackup[T]{v: v, timeline: v.CloneTimeline()})
	a.mu.Unlock()
	v.RawOverwriteBootstrap(union)
	v.BumpVersion()
	v.Unlock()
	publish(a, v)
}

// AppendFromReverse is spec.md §4.2's append-from-reverse(): during a
// reverse pass the bootstrap-replace branch of Apply is unreachable
// (it requires forward entropy), so a reverse-pass write naturally
// falls through to append or unify. It is provided as a named entry
// point for callers that want to document a reverse-pass write as
// such, and simply delegates to Apply.
func AppendFromReverse[T comparable](a *Archivist, v *variable.Variable[T], rt *runtime.Context, op oplog.Operation[T], newSlice slice.Slice[T]) error {
	return Apply(a, v, rt, op, newSlice)
}
