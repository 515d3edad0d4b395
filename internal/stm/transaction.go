// Package stm implements the software transactional memory layer of
// spec.md §4.6/§4.7/§5 (component C8): an ambient, per-goroutine
// Transaction that buffers reads and writes and validates them
// optimistically at commit, acquiring per-variable locks in ascending
// variable-id order to avoid the deadlock a naive acquire-as-you-go
// scheme would risk. It is grounded on the teacher's mvcc-tx.go
// pattern of a monotonic transaction id plus a buffered write set
// applied atomically at commit, generalized from one Postgres
// relation to an arbitrary set of chronovar variables.
package stm

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chronovar/chronovar/internal/lclock"
	"github.com/chronovar/chronovar/internal/oplog"
	"github.com/chronovar/chronovar/internal/xerrors"
)

// lockPollInterval is how often Commit retries a contended TryLock
// while a LockWaitTimeout is in effect.
const lockPollInterval = 200 * time.Microsecond

var (
	commitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chronovar",
		Subsystem: "stm",
		Name:      "commits_total",
		Help:      "Transaction commit attempts, by outcome.",
	}, []string{"outcome"})

	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chronovar",
		Subsystem: "stm",
		Name:      "retries_total",
		Help:      "Transactions retried after a validation conflict.",
	})
)

// lockable is the narrow view of internal/variable.Variable[T] that
// the transaction needs in order to lock variables for commit without
// importing a concrete element type.
type lockable interface {
	ID() uint64
	Lock()
	TryLock() bool
	Unlock()
	Version() uint64
}

// stagedWrite is a type-erased pending mutation, built by the caller
// (the chronovar facade) from an internal/archivist.ApplyWithCommit
// closure, so that stm never needs to know the variable's element
// type. apply receives the transaction's single commit id and this
// write's position within it, so every variable a transaction touches
// shares one commit id on the ledger (spec.md §8 property 3).
type stagedWrite interface {
	varID() uint64
	apply(commit lclock.CommitID, seq uint32) error
}

type closureWrite struct {
	id uint64
	fn func(lclock.CommitID, uint32) error
}

func (w closureWrite) varID() uint64 { return w.id }
func (w closureWrite) apply(commit lclock.CommitID, seq uint32) error {
	return w.fn(commit, seq)
}

// NewStagedWrite wraps fn (typically a call to
// internal/archivist.ApplyWithCommit for one variable) into the
// type-erased form Transaction.StageWrite accepts.
func NewStagedWrite(varID uint64, fn func(commit lclock.CommitID, seq uint32) error) stagedWrite {
	return closureWrite{id: varID, fn: fn}
}

// Transaction is the ambient, per-goroutine unit of atomicity. The
// zero value is not usable; construct with Begin.
type Transaction struct {
	clock           *lclock.Clock
	ledger          *oplog.Ledger
	lockWaitTimeout time.Duration

	mu          sync.Mutex
	reads       map[uint64]versionedRead
	writes      []stagedWrite
	ledgerEntries []bufferedEntry
	commitHooks []func()
	applying    bool
}

type versionedRead struct {
	v       lockable
	version uint64
}

type bufferedEntry struct {
	entry oplog.Entry
}

// Begin starts a new transaction bound to the given clock and ledger.
// lockWaitTimeout bounds how long Commit waits to acquire a contended
// variable lock before giving up with xerrors.LockUnavailableError;
// zero means wait forever (spec.md §3.3's LockWaitTimeout default).
func Begin(clock *lclock.Clock, ledger *oplog.Ledger, lockWaitTimeout time.Duration) *Transaction {
	return &Transaction{
		clock:           clock,
		ledger:          ledger,
		lockWaitTimeout: lockWaitTimeout,
		reads:           make(map[uint64]versionedRead),
	}
}

// IsApplying reports whether Commit has entered its apply phase — the
// guard against a commit hook or nested read trying to stage further
// writes on a transaction that is already being torn down. Once set,
// it stays set for the rest of the transaction's life.
func (tx *Transaction) IsApplying() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.applying
}

// RecordRead adds v to the transaction's read set at its
// currently-observed version, for commit-time validation. A variable
// already in the read set keeps its first-observed version.
func (tx *Transaction) RecordRead(v lockable) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if _, ok := tx.reads[v.ID()]; ok {
		return
	}
	tx.reads[v.ID()] = versionedRead{v: v, version: v.Version()}
}

// StageWrite buffers a pending mutation to be applied only if the
// transaction commits.
func (tx *Transaction) StageWrite(w stagedWrite) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.writes = append(tx.writes, w)
}

// BufferLedgerEntry buffers an undo entry to be appended to the shared
// ledger under the transaction's eventual commit id, only if the
// transaction commits.
func (tx *Transaction) BufferLedgerEntry(e oplog.Entry) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.ledgerEntries = append(tx.ledgerEntries, bufferedEntry{entry: e})
}

// AddCommitHook registers fn to run after a successful commit, while
// the transaction's locks are still held.
func (tx *Transaction) AddCommitHook(fn func()) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.commitHooks = append(tx.commitHooks, fn)
}

// Commit validates the read set, and, if every version still matches,
// applies the buffered writes and ledger entries under a single fresh
// commit id, holding every touched variable's lock in ascending id
// order throughout. It returns xerrors.ErrConflict if validation
// fails, in which case nothing was applied and the caller should
// retry with a fresh transaction (see Run).
func (tx *Transaction) Commit() error {
	touched := tx.lockOrder()
	locked, err := tx.lockAll(touched)
	defer func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].Unlock()
		}
	}()
	if err != nil {
		commitsTotal.WithLabelValues("lock_unavailable").Inc()
		return err
	}

	for varID, r := range tx.reads {
		if r.v.Version() != r.version {
			commitsTotal.WithLabelValues("conflict").Inc()
			return errors.Wrapf(xerrors.ErrConflict, "variable %d changed from version %d", varID, r.version)
		}
	}

	tx.mu.Lock()
	tx.applying = true
	writes := tx.writes
	entries := tx.ledgerEntries
	hooks := tx.commitHooks
	tx.mu.Unlock()

	commit := tx.clock.Next()
	var seq uint32
	for _, w := range writes {
		if err := w.apply(commit, seq); err != nil {
			commitsTotal.WithLabelValues("error").Inc()
			return errors.Wrap(err, "stm: apply staged write")
		}
		seq++
	}
	for _, be := range entries {
		tx.ledger.Append(be.entry, oplog.EntryID{Commit: commit, Seq: seq})
		seq++
	}

	commitsTotal.WithLabelValues("committed").Inc()
	for _, h := range hooks {
		h()
	}
	return nil
}

// lockAll acquires every variable in touched, in the given (ascending
// id) order. With no LockWaitTimeout configured it blocks on Lock()
// exactly as before; with a timeout configured it polls TryLock until
// the deadline and returns xerrors.LockUnavailableError for whichever
// variable it could not acquire, leaving already-acquired locks for
// the caller's deferred unwind. Partial results are returned even on
// error so the caller always unlocks exactly what was locked.
func (tx *Transaction) lockAll(touched []lockable) ([]lockable, error) {
	locked := make([]lockable, 0, len(touched))
	for _, v := range touched {
		if tx.lockWaitTimeout <= 0 {
			v.Lock()
			locked = append(locked, v)
			continue
		}
		deadline := time.Now().Add(tx.lockWaitTimeout)
		for {
			if v.TryLock() {
				locked = append(locked, v)
				break
			}
			if time.Now().After(deadline) {
				return locked, errors.WithStack(&xerrors.LockUnavailableError{VariableID: v.ID()})
			}
			time.Sleep(lockPollInterval)
		}
	}
	return locked, nil
}

// lockOrder returns the variables in the transaction's read set sorted
// by ascending id, the ordering discipline that prevents circular-wait
// deadlock among concurrently committing transactions (spec.md §5).
// Staged writes carry only a variable id, so a written variable is
// locked only if it is also in the read set (the chronovar facade
// records a read for every variable it stages a write for).
func (tx *Transaction) lockOrder() []lockable {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	byID := make(map[uint64]lockable, len(tx.reads))
	for id, r := range tx.reads {
		byID[id] = r.v
	}

	ids := make([]uint64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	insertionSortUint64(ids)

	out := make([]lockable, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out
}

func insertionSortUint64(xs []uint64) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

// Run executes fn against a fresh transaction and commits it,
// returning the commit's error (including xerrors.ErrConflict on
// validation failure, without retrying). lockWaitTimeout is forwarded
// to Begin.
func Run(clock *lclock.Clock, ledger *oplog.Ledger, lockWaitTimeout time.Duration, fn func(tx *Transaction) error) error {
	tx := Begin(clock, ledger, lockWaitTimeout)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// RunWithRetry is Run wrapped in a bounded retry loop for
// xerrors.ErrConflict, the convenience wrapper spec.md §4.6 asks for
// around the optimistic-concurrency commit path. maxAttempts and
// lockWaitTimeout are normally chronovar.Config's MaxRetries and
// LockWaitTimeout.
func RunWithRetry(clock *lclock.Clock, ledger *oplog.Ledger, maxAttempts int, lockWaitTimeout time.Duration, fn func(tx *Transaction) error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			retriesTotal.Inc()
		}
		err := Run(clock, ledger, lockWaitTimeout, fn)
		if err == nil {
			return nil
		}
		if !xerrors.IsConflict(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}
