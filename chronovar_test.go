package chronovar_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chronovar/chronovar"
	"github.com/chronovar/chronovar/chronovartest"
	"github.com/chronovar/chronovar/internal/xerrors"
)

// TestRunConvergenceAntivalParadoxUnifiesBothValues exercises scenario
// S1 from spec.md §8: a variable bootstrapped to -1 whose body
// negates it every half-cycle. The forward/reverse oscillation
// eventually revisits a value already seen, unifying the timeline into
// a single slice holding both.
func TestRunConvergenceAntivalParadoxUnifiesBothValues(t *testing.T) {
	sys, _ := chronovartest.NewFixture(t)
	antival := chronovar.Define[int](sys.System, "antival", -1)

	err := sys.RunConvergence(func() {
		require.NoError(t, chronovar.Neg(context.Background(), antival))
	})
	require.NoError(t, err)

	vals := antival.ReadSlice(sys.Context).Collapse()
	require.ElementsMatch(t, []int{-1, 1}, vals)
}

// TestRunConvergenceStableAssignmentChainSettlesOnLastAssign exercises
// scenario S2 from spec.md §8: a body that increments a variable twice
// and then assigns it a literal constant. The increments are transient
// noise against whatever the convergence loop's oscillation leaves
// behind; the trailing assign is unconditional, so the only value that
// ever survives to the variable's tail is the one it names.
func TestRunConvergenceStableAssignmentChainSettlesOnLastAssign(t *testing.T) {
	sys, _ := chronovartest.NewFixture(t)
	temp := chronovar.Define[int](sys.System, "temp", 0)

	err := sys.RunConvergence(func() {
		require.NoError(t, chronovar.Add(context.Background(), temp, 1))
		require.NoError(t, chronovar.Add(context.Background(), temp, 1))
		require.NoError(t, temp.Assign(context.Background(), 10))
	})
	require.NoError(t, err)

	require.Equal(t, 10, temp.Read(sys.Context))
}

// TestRunConvergencePascalRowSettlesOnRowNine exercises scenario S3
// from spec.md §8: a body that rebuilds Pascal's triangle from row 0
// up to row 9, assigning each row in turn. As with S2, every assign is
// unconditional on the variable's own prior value, so the final row
// assigned is the only one left standing once the run ends.
func TestRunConvergencePascalRowSettlesOnRowNine(t *testing.T) {
	sys, _ := chronovartest.NewFixture(t)
	row := chronovar.Define[[10]int](sys.System, "row", pascalRow(0))

	err := sys.RunConvergence(func() {
		for n := 1; n <= 9; n++ {
			require.NoError(t, row.Assign(context.Background(), pascalRow(n)))
		}
	})
	require.NoError(t, err)

	require.Equal(t, [10]int{1, 9, 36, 84, 126, 126, 84, 36, 9, 1}, row.Read(sys.Context))
}

// pascalRow computes row n of Pascal's triangle, zero-padded to length
// 10.
func pascalRow(n int) [10]int {
	row := []int{1}
	for i := 1; i <= n; i++ {
		next := make([]int, i+1)
		next[0], next[i] = 1, 1
		for j := 1; j < i; j++ {
			next[j] = row[j-1] + row[j]
		}
		row = next
	}
	var out [10]int
	copy(out[:], row)
	return out
}

// TestRunConvergenceBoundedIterationSurfacesNonConvergence exercises
// scenario S6: a body that appends a fresh, never-repeating value every
// iteration cannot converge and must surface NonConvergence once the
// iteration budget is spent.
func TestRunConvergenceBoundedIterationSurfacesNonConvergence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sys, err := chronovar.New(ctx, chronovar.Config{MaxIterations: 8, QueueDepth: 4})
	require.NoError(t, err)
	defer sys.Close()

	counter := chronovar.Define[int](sys, "counter", 0)

	runErr := sys.RunConvergence(func() {
		require.NoError(t, chronovar.Add(context.Background(), counter, 1))
	})

	require.Error(t, runErr)
	require.True(t, xerrors.IsNonConvergence(runErr))
}
