package oplog

// BoundOperation adapts a typed Operation[T] into the type-erased
// Entry interface the Ledger stores, by closing over an undo callback
// supplied by the caller (internal/archivist) at wrap time. This is
// the "narrow trait plus tagged variant" spec.md §9 calls for in place
// of dynamic dispatch across operation types.
type BoundOperation[T comparable] struct {
	Op     Operation[T]
	undoFn func(Operation[T]) error
}

// NewBoundOperation wraps op so that calling Undo invokes undoFn(op).
func NewBoundOperation[T comparable](op Operation[T], undoFn func(Operation[T]) error) *BoundOperation[T] {
	return &BoundOperation[T]{Op: op, undoFn: undoFn}
}

// VarID implements Entry.
func (b *BoundOperation[T]) VarID() uint64 { return b.Op.VarID }

// Name implements Entry.
func (b *BoundOperation[T]) Name() string { return b.Op.Name }

// Undo implements Entry.
func (b *BoundOperation[T]) Undo() error { return b.undoFn(b.Op) }

var _ Entry = (*BoundOperation[int])(nil)
