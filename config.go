package chronovar

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// DefaultMaxRetries is spec.md §3.3's default bound on
// TransactWithRetry's attempts.
const DefaultMaxRetries = 8

// DefaultDisposeGrace is spec.md §3.3's default grace period Close
// gives the coordinator to drain before it is released forcibly.
const DefaultDisposeGrace = 250 * time.Millisecond

// Config is the user-visible configuration for one System, bound to
// command-line flags the way the teacher's internal/source/server.Config
// binds cdc-sink's server flags.
type Config struct {
	// MaxIterations bounds the engine's forward/reverse loop before it
	// gives up and forces a final unification (spec.md §3 default
	// 1000, see internal/runtime.DefaultMaxIterations).
	MaxIterations uint32
	// QueueDepth bounds the coordinator's work queue (spec.md §4.7).
	QueueDepth int
	// MaxRetries bounds TransactWithRetry's attempts on a conflict
	// (spec.md §3.3 default 8).
	MaxRetries int
	// DisposeGrace is how long Close waits for the coordinator to
	// drain before releasing it forcibly (spec.md §3.3 default
	// 250ms).
	DisposeGrace time.Duration
	// LockWaitTimeout bounds how long a transaction commit waits to
	// acquire a contended variable lock before failing with
	// xerrors.LockUnavailableError. Zero, the default, waits forever
	// (spec.md §3.3).
	LockWaitTimeout time.Duration
}

// Bind registers flags for every Config field.
func (c *Config) Bind(flags *pflag.FlagSet) {
	flags.Uint32Var(
		&c.MaxIterations,
		"maxIterations",
		0,
		"convergence-loop iteration budget before forcing a final unification (0 selects the default)")
	flags.IntVar(
		&c.QueueDepth,
		"queueDepth",
		1024,
		"depth of the coordinator's bounded work queue")
	flags.IntVar(
		&c.MaxRetries,
		"maxRetries",
		0,
		"attempts TransactWithRetry makes before giving up on a conflict (0 selects the default)")
	flags.DurationVar(
		&c.DisposeGrace,
		"disposeGrace",
		0,
		"grace period Close gives the coordinator to drain before releasing it forcibly (0 selects the default)")
	flags.DurationVar(
		&c.LockWaitTimeout,
		"lockWaitTimeout",
		0,
		"how long a transaction commit waits for a contended variable lock before failing (0 waits forever)")
}

// Preflight validates the configuration, filling in defaults.
func (c *Config) Preflight() error {
	if c.QueueDepth <= 0 {
		return errors.New("chronovar: queueDepth must be positive")
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.DisposeGrace <= 0 {
		c.DisposeGrace = DefaultDisposeGrace
	}
	return nil
}
