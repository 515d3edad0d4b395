package chronovar_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chronovar/chronovar"
	"github.com/chronovar/chronovar/chronovartest"
)

func TestTransactCommitsEveryWriteAtomically(t *testing.T) {
	sys, _ := chronovartest.NewFixture(t)
	a := chronovar.Define[int](sys.System, "a", 0)
	b := chronovar.Define[int](sys.System, "b", 0)

	err := sys.Transact(sys.Context, func(ctx context.Context) error {
		if err := a.Assign(ctx, 1); err != nil {
			return err
		}
		return b.Assign(ctx, 2)
	})
	require.NoError(t, err)
	require.Equal(t, 1, a.Read(sys.Context))
	require.Equal(t, 2, b.Read(sys.Context))
}

func TestTransactDiscardsWritesWhenBodyFails(t *testing.T) {
	sys, _ := chronovartest.NewFixture(t)
	v := chronovar.Define[int](sys.System, "x", 1)

	sentinel := require.New(t)
	err := sys.Transact(sys.Context, func(ctx context.Context) error {
		_ = v.Assign(ctx, 99)
		return errAborted
	})
	sentinel.ErrorIs(err, errAborted)
	require.Equal(t, 1, v.Read(sys.Context))
}

// TestConcurrentIncrementsRetryUnderConflict exercises scenario S4 from
// spec.md §8: two concurrent transactions both read-then-increment the
// same variable. Both run one after the other on the coordinator's
// goroutine, so the second reads the first's result and no conflict
// retry takes place; the final value reflects both increments rather
// than one being lost.
func TestConcurrentIncrementsRetryUnderConflict(t *testing.T) {
	sys, _ := chronovartest.NewFixture(t)
	x := chronovar.Define[int](sys.System, "x", 0)

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			err := sys.TransactWithRetry(sys.Context, func(ctx context.Context) error {
				cur := x.Read(ctx)
				return x.Assign(ctx, cur+1)
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, 2, x.Read(sys.Context))
}

var errAborted = chronovarTestError("aborted")

type chronovarTestError string

func (e chronovarTestError) Error() string { return string(e) }
