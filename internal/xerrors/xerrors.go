// Package xerrors declares the sentinel error kinds named in spec.md
// §7: Conflict, LockUnavailable, NonConvergence, UnsupportedOperand,
// and InvariantViolation. Each is paired with an Is* predicate in the
// style of internal/types.LeaseBusyError / IsLeaseBusy from the
// retrieved cdc-sink source: wrap the sentinel with the detail type
// that matters to the caller, and let errors.As unwrap it back out.
package xerrors

import "github.com/pkg/errors"

// ErrConflict indicates that an STM transaction's read-set validation
// failed at commit time. It is recoverable by retrying the
// transaction.
var ErrConflict = errors.New("chronovar: conflict")

// ErrNonConvergence indicates that the engine loop reached
// MaxIterations without detecting convergence.
var ErrNonConvergence = errors.New("chronovar: non-convergence")

// ErrUnsupportedOperand indicates a bitwise operation was requested on
// a non-integral type.
var ErrUnsupportedOperand = errors.New("chronovar: unsupported operand")

// ErrInvariantViolation indicates a fatal internal invariant failed:
// an empty timeline, a missing operation record, or an unknown
// variable id.
var ErrInvariantViolation = errors.New("chronovar: invariant violation")

// LockUnavailableError is returned when a per-variable lock could not
// be acquired within the configured deadline. The default behavior
// (LockWaitTimeout == 0) is to wait forever, so this type is only ever
// constructed when a deadline was configured.
type LockUnavailableError struct {
	VariableID uint64
}

func (e *LockUnavailableError) Error() string {
	return "chronovar: lock unavailable for variable"
}

// IsLockUnavailable reports whether err wraps a LockUnavailableError.
func IsLockUnavailable(err error) (*LockUnavailableError, bool) {
	var target *LockUnavailableError
	ok := errors.As(err, &target)
	return target, ok
}

// IsConflict reports whether err wraps ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsNonConvergence reports whether err wraps ErrNonConvergence.
func IsNonConvergence(err error) bool { return errors.Is(err, ErrNonConvergence) }

// IsUnsupportedOperand reports whether err wraps ErrUnsupportedOperand.
func IsUnsupportedOperand(err error) bool { return errors.Is(err, ErrUnsupportedOperand) }

// IsInvariantViolation reports whether err wraps ErrInvariantViolation.
func IsInvariantViolation(err error) bool { return errors.Is(err, ErrInvariantViolation) }
