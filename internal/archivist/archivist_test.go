package archivist_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chronovar/chronovar/internal/archivist"
	"github.com/chronovar/chronovar/internal/lclock"
	"github.com/chronovar/chronovar/internal/oplog"
	"github.com/chronovar/chronovar/internal/registry"
	"github.com/chronovar/chronovar/internal/runtime"
	"github.com/chronovar/chronovar/slice"
)

func newFixture() (*archivist.Archivist, *oplog.Ledger) {
	ledger := oplog.NewLedger()
	clock := lclock.NewClock()
	return archivist.New(ledger, clock), ledger
}

func TestApplyAppendsWhenNewValueDiffers(t *testing.T) {
	a, _ := newFixture()
	rt := runtime.New(0)
	v := registry.GetOrCreate(registry.New(), "x", slice.New(1))

	op := oplog.Operation[int]{VarID: v.ID(), Kind: oplog.KindAdd, Name: "add"}
	require.NoError(t, archivist.Apply(a, v, rt, op, slice.New(2)))

	v.Lock()
	defer v.Unlock()
	require.Equal(t, 2, v.TimelineLen())
	got, _ := v.TailSlice().First()
	require.Equal(t, 2, got)
}

func TestApplyNoopWhenValueUnchanged(t *testing.T) {
	a, ledger := newFixture()
	rt := runtime.New(0)
	v := registry.GetOrCreate(registry.New(), "x", slice.New(1))

	op := oplog.Operation[int]{VarID: v.ID(), Kind: oplog.KindAdd, Name: "add"}
	require.NoError(t, archivist.Apply(a, v, rt, op, slice.New(1)))
	require.Equal(t, 1, v.TimelineLen())
	require.Equal(t, 0, ledger.Len())
}

func TestApplyBootstrapReplaceInsideForwardConvergenceLoop(t *testing.T) {
	a, _ := newFixture()
	rt := runtime.New(0)
	rt.SetInConvergenceLoop(true)
	rt.SetEntropy(runtime.Forward)
	v := registry.GetOrCreate(registry.New(), "x", slice.New(1))

	op := oplog.Operation[int]{VarID: v.ID(), Kind: oplog.KindAdd, Name: "add"}
	require.NoError(t, archivist.Apply(a, v, rt, op, slice.New(2)))

	v.Lock()
	defer v.Unlock()
	require.Equal(t, 1, v.TimelineLen(), "bootstrap-replace must not grow the timeline")
	got, _ := v.TailSlice().First()
	require.Equal(t, 2, got)
}

func TestApplyUnifiesAndMarksConverged(t *testing.T) {
	a, _ := newFixture()
	rt := runtime.New(0)
	v := registry.GetOrCreate(registry.New(), "x", slice.New(1))

	op := oplog.Operation[int]{VarID: v.ID(), Kind: oplog.KindAdd, Name: "add"}
	require.NoError(t, archivist.Apply(a, v, rt, op, slice.New(2)))
	require.NoError(t, archivist.Apply(a, v, rt, op, slice.New(1))) // matches index 0 -> unify

	require.True(t, rt.Converged())
	v.Lock()
	defer v.Unlock()
	require.Equal(t, 1, v.TimelineLen())
}

func TestLedgerReverseAllUndoesAppend(t *testing.T) {
	a, ledger := newFixture()
	rt := runtime.New(0)
	v := registry.GetOrCreate(registry.New(), "x", slice.New(1))

	op := oplog.Operation[int]{
		VarID:   v.ID(),
		Kind:    oplog.KindAdd,
		Name:    "add",
		Forward: func(x int) int { return x + 1 },
		Inverse: func(x int) int { return x - 1 },
	}
	require.NoError(t, archivist.Apply(a, v, rt, op, slice.New(2)))
	require.Equal(t, 2, v.TimelineLen())

	require.NoError(t, ledger.ReverseAll())

	v.Lock()
	defer v.Unlock()
	require.Equal(t, 1, v.TimelineLen())
	got, _ := v.TailSlice().First()
	require.Equal(t, 1, got)
}

func TestUnifyAllCollapsesMultiEntryTimeline(t *testing.T) {
	a, _ := newFixture()
	rt := runtime.New(0)
	v := registry.GetOrCreate(registry.New(), "x", slice.New(1))

	op := oplog.Operation[int]{VarID: v.ID(), Kind: oplog.KindAdd, Name: "add"}
	require.NoError(t, archivist.Apply(a, v, rt, op, slice.New(2)))
	require.NoError(t, archivist.Apply(a, v, rt, op, slice.New(3)))
	require.Equal(t, 3, v.TimelineLen())

	archivist.UnifyAll(a, v)

	v.Lock()
	defer v.Unlock()
	require.Equal(t, 1, v.TimelineLen())
	require.ElementsMatch(t, []int{1, 2, 3}, v.TailSlice().Collapse())
}
