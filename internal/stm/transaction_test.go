package stm_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chronovar/chronovar/internal/lclock"
	"github.com/chronovar/chronovar/internal/oplog"
	"github.com/chronovar/chronovar/internal/stm"
	"github.com/chronovar/chronovar/internal/xerrors"
)

type fakeVar struct {
	id      uint64
	version uint64
}

func (f *fakeVar) ID() uint64      { return f.id }
func (f *fakeVar) Lock()           {}
func (f *fakeVar) TryLock() bool   { return true }
func (f *fakeVar) Unlock()         {}
func (f *fakeVar) Version() uint64 { return f.version }

func TestCommitAppliesStagedWritesAndLedgerEntries(t *testing.T) {
	clock := lclock.NewClock()
	ledger := oplog.NewLedger()
	v := &fakeVar{id: 1, version: 0}

	applied := false
	err := stm.Run(clock, ledger, 0, func(tx *stm.Transaction) error {
		tx.RecordRead(v)
		tx.StageWrite(stm.NewStagedWrite(v.ID(), func(lclock.CommitID, uint32) error {
			applied = true
			return nil
		}))
		return nil
	})
	require.NoError(t, err)
	require.True(t, applied)
}

func TestCommitFailsValidationOnVersionChange(t *testing.T) {
	clock := lclock.NewClock()
	ledger := oplog.NewLedger()
	v := &fakeVar{id: 1, version: 0}

	err := stm.Run(clock, ledger, 0, func(tx *stm.Transaction) error {
		tx.RecordRead(v)
		v.version++ // concurrent mutation between read and commit
		return nil
	})
	require.Error(t, err)
	require.True(t, xerrors.IsConflict(err))
}

func TestRunWithRetryStopsOnNonConflictError(t *testing.T) {
	clock := lclock.NewClock()
	ledger := oplog.NewLedger()
	attempts := 0

	err := stm.RunWithRetry(clock, ledger, 5, 0, func(tx *stm.Transaction) error {
		attempts++
		return xerrors.ErrUnsupportedOperand
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestRunWithRetryRetriesOnConflict(t *testing.T) {
	clock := lclock.NewClock()
	ledger := oplog.NewLedger()
	v := &fakeVar{id: 1, version: 0}

	attempts := 0
	err := stm.RunWithRetry(clock, ledger, 3, 0, func(tx *stm.Transaction) error {
		attempts++
		tx.RecordRead(v)
		if attempts < 3 {
			v.version++
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestCommitTimesOutWhenLockContended(t *testing.T) {
	clock := lclock.NewClock()
	ledger := oplog.NewLedger()
	v := &contendedVar{fakeVar: fakeVar{id: 1, version: 0}}

	err := stm.Run(clock, ledger, time.Millisecond, func(tx *stm.Transaction) error {
		tx.RecordRead(v)
		return nil
	})
	require.Error(t, err)
	_, ok := xerrors.IsLockUnavailable(err)
	require.True(t, ok)
}

type contendedVar struct {
	fakeVar
}

func (c *contendedVar) TryLock() bool { return false }

// TestCommitBuffersLedgerEntriesIdempotentlyAcrossRetry exercises
// scenario S5 from spec.md §8: a transaction that buffers three ledger
// entries and retries twice still results in exactly three entries on
// the ledger, all under the one commit id the successful attempt
// mints. Begin starts a fresh Transaction per attempt, so the entries
// buffered by the two failed attempts are discarded along with the
// rest of that attempt's state; only the winning attempt's three
// entries ever reach the ledger.
func TestCommitBuffersLedgerEntriesIdempotentlyAcrossRetry(t *testing.T) {
	clock := lclock.NewClock()
	ledger := oplog.NewLedger()
	v := &fakeVar{id: 1, version: 0}

	attempts := 0
	err := stm.RunWithRetry(clock, ledger, 3, 0, func(tx *stm.Transaction) error {
		attempts++
		tx.RecordRead(v)
		for i := 0; i < 3; i++ {
			op := oplog.Operation[int]{VarID: v.ID(), Kind: oplog.KindAssign, Name: "assign"}
			tx.BufferLedgerEntry(oplog.NewBoundOperation(op, func(oplog.Operation[int]) error { return nil }))
		}
		if attempts < 3 {
			v.version++ // concurrent mutation forces this attempt to conflict
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, 3, ledger.Len())
}
