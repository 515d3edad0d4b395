package chronovar

import (
	"context"

	"github.com/chronovar/chronovar/internal/stm"
	"github.com/chronovar/chronovar/internal/xerrors"
)

type txContextKey struct{}

// txFromContext returns the ambient transaction carried on ctx, if
// any — the idiomatic-Go substitute for the per-thread ambient
// transaction spec.md §4.6 describes, since Go has no thread-locals.
func txFromContext(ctx context.Context) (*stm.Transaction, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*stm.Transaction)
	return tx, ok
}

// Transact runs fn with an ambient transaction bound to ctx, committing
// it once fn returns successfully. Every Variable method called with
// the context fn receives stages its effect instead of applying it
// immediately; nothing is visible to other callers until Commit
// succeeds. A conflict detected at commit is returned as
// xerrors.ErrConflict and nothing fn did is applied. Per spec.md
// §4.7/§5, fn's entire execution — reads, staged writes, and the
// commit itself — runs on the coordinator's single goroutine rather
// than the caller's, the same thread RunConvergence uses, so
// transactions from any number of producer goroutines serialize
// through it rather than racing each other directly.
func (s *System) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.runOnCoordinator(func() error {
		tx := stm.Begin(s.clock, s.ledger, s.cfg.LockWaitTimeout)
		txCtx := context.WithValue(ctx, txContextKey{}, tx)
		if err := fn(txCtx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// TransactWithRetry is Transact wrapped in a bounded retry loop for
// xerrors.ErrConflict (spec.md §4.6's run-with-retry convenience
// wrapper), bounded by the System's configured MaxRetries (spec.md
// §3.3, default 8).
func (s *System) TransactWithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		err := s.Transact(ctx, fn)
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
