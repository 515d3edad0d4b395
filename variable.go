package chronovar

import (
	"context"

	"github.com/pkg/errors"

	"github.com/chronovar/chronovar/internal/archivist"
	"github.com/chronovar/chronovar/internal/lclock"
	"github.com/chronovar/chronovar/internal/oplog"
	"github.com/chronovar/chronovar/internal/registry"
	"github.com/chronovar/chronovar/internal/stm"
	"github.com/chronovar/chronovar/internal/variable"
	"github.com/chronovar/chronovar/internal/xerrors"
	"github.com/chronovar/chronovar/slice"
)

// Variable is the handle application code reads and mutates. It wraps
// one internal/variable.Variable[T], threading every read and write
// through the ambient transaction (if any) carried on the context.Context
// passed to it, or straight through internal/archivist.Apply otherwise.
type Variable[T comparable] struct {
	sys *System
	v   *variable.Variable[T]
}

// Define returns the single-value variable named name, creating it
// seeded to bootstrap on first use (spec.md §3's "Variable" component).
// Variables are keyed by element type and name, so a second Define of
// the same name with a different element type returns a separate
// variable.
func Define[T comparable](s *System, name string, bootstrap T) Variable[T] {
	return Variable[T]{sys: s, v: registry.GetOrCreate(s.reg, name, slice.New(bootstrap))}
}

// DefineSlice is Define for a variable whose bootstrap already holds
// more than one value (spec.md §3's multi-value Slice bootstrap).
func DefineSlice[T comparable](s *System, name string, bootstrap slice.Slice[T]) Variable[T] {
	return Variable[T]{sys: s, v: registry.GetOrCreate(s.reg, name, bootstrap)}
}

// ID returns the variable's process-wide id.
func (vr Variable[T]) ID() uint64 { return vr.v.ID() }

// Name returns the variable's declared name.
func (vr Variable[T]) Name() string { return vr.v.Key().Name }

// Read returns the variable's current scalar projection — the first
// value of its tail slice. If ctx carries an ambient transaction, the
// read is recorded in the transaction's read set for commit-time
// validation (spec.md §4.6). Reading a variable whose tail slice holds
// more than one value still returns only the first; use ReadSlice for
// the full set.
func (vr Variable[T]) Read(ctx context.Context) T {
	s := vr.ReadSlice(ctx)
	val, _ := s.First()
	return val
}

// ReadSlice returns the variable's full tail slice.
func (vr Variable[T]) ReadSlice(ctx context.Context) slice.Slice[T] {
	vr.v.Lock()
	if vr.v.TimelineLen() == 1 {
		vr.v.SetStateRead(true)
	}
	s := vr.v.TailSlice()
	vr.v.Unlock()

	if tx, ok := txFromContext(ctx); ok {
		tx.RecordRead(vr.v)
	}
	return s
}

// Assign sets the variable's value directly, bypassing the reversible
// arithmetic operators. It is spec.md §4.2's assign().
func (vr Variable[T]) Assign(ctx context.Context, val T) error {
	return vr.AssignSlice(ctx, slice.New(val))
}

// AssignSlice is Assign for a caller that already holds a multi-value
// Slice to write.
func (vr Variable[T]) AssignSlice(ctx context.Context, s slice.Slice[T]) error {
	op := oplog.Operation[T]{VarID: vr.v.ID(), Kind: oplog.KindAssign, Name: "assign"}
	return vr.apply(ctx, op, s)
}

// apply routes a proposed new tail value through either the ambient
// transaction (staged, applied only at commit) or directly through
// internal/archivist (applied immediately), per spec.md §4.6's
// "ambient transaction" rule: code under a Transact call is
// transactional implicitly, with no explicit handle threading.
func (vr Variable[T]) apply(ctx context.Context, op oplog.Operation[T], newSlice slice.Slice[T]) error {
	if vr.sys == nil {
		return errors.WithStack(xerrors.ErrInvariantViolation)
	}

	if tx, ok := txFromContext(ctx); ok {
		if tx.IsApplying() {
			return errors.WithStack(xerrors.ErrInvariantViolation)
		}
		tx.RecordRead(vr.v)
		v, rt, a := vr.v, vr.sys.rt, vr.sys.arch
		tx.StageWrite(stm.NewStagedWrite(v.ID(), func(commit lclock.CommitID, seq uint32) error {
			return archivist.ApplyWithCommit(a, v, rt, op, newSlice, commit, seq)
		}))
		return nil
	}

	return archivist.Apply(vr.sys.arch, vr.v, vr.sys.rt, op, newSlice)
}
