package chronovar

import (
	"context"

	"github.com/pkg/errors"

	"github.com/chronovar/chronovar/internal/oplog"
	"github.com/chronovar/chronovar/internal/xerrors"
	"github.com/chronovar/chronovar/slice"
)

// Numeric constrains the element types the reversible arithmetic
// operators accept (spec.md §4.2's Add/Sub/Mul/Div/Neg), matching the
// set of built-in types Go lets the arithmetic operators range over.
type Numeric interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Integer constrains the element types the bitwise and shift operators
// accept (spec.md §4.2's Mod/BitAnd/BitOr/BitXor/BitNot/ShiftLeft/
// ShiftRight); floats are excluded the way Go's own bitwise operators
// exclude them.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

func unary[T comparable](ctx context.Context, vr Variable[T], kind oplog.Kind, name string, forward, inverse func(T) T) error {
	cur := vr.Read(ctx)
	op := oplog.Operation[T]{VarID: vr.v.ID(), Kind: kind, Name: name, Forward: forward, Inverse: inverse}
	return vr.apply(ctx, op, slice.New(forward(cur)))
}

func unaryIrreversible[T comparable](ctx context.Context, vr Variable[T], kind oplog.Kind, name string, forward func(T) T) error {
	cur := vr.Read(ctx)
	op := oplog.Operation[T]{VarID: vr.v.ID(), Kind: kind, Name: name, Forward: forward, Inverse: func(T) T { return cur }, Snapshot: slice.New(cur)}
	return vr.apply(ctx, op, slice.New(forward(cur)))
}

// Add adds operand to vr in place: vr := vr + operand, invertible by
// subtracting operand back off.
func Add[T Numeric](ctx context.Context, vr Variable[T], operand T) error {
	return unary(ctx, vr, oplog.KindAdd, "add",
		func(x T) T { return x + operand },
		func(x T) T { return x - operand })
}

// Sub subtracts operand from vr in place: vr := vr - operand.
func Sub[T Numeric](ctx context.Context, vr Variable[T], operand T) error {
	return unary(ctx, vr, oplog.KindSub, "sub",
		func(x T) T { return x - operand },
		func(x T) T { return x + operand })
}

// SubReversed sets vr := operand - vr in place, spec.md §4.2's
// non-commutative reversed-subtract form; its inverse recovers the
// original vr from the new value.
func SubReversed[T Numeric](ctx context.Context, vr Variable[T], operand T) error {
	return unary(ctx, vr, oplog.KindSubReversed, "sub-reversed",
		func(x T) T { return operand - x },
		func(x T) T { return operand - x })
}

// Mul multiplies vr by factor in place: vr := vr * factor. A factor of
// zero is irreversible (division would be undefined), so it is
// recorded as such and restores the pre-mutation snapshot on undo
// instead of inverting algebraically.
func Mul[T Numeric](ctx context.Context, vr Variable[T], factor T) error {
	var zero T
	if factor == zero {
		return unaryIrreversible(ctx, vr, oplog.KindMul, "mul-by-zero", func(x T) T { return x * factor })
	}
	return unary(ctx, vr, oplog.KindMul, "mul",
		func(x T) T { return x * factor },
		func(x T) T { return x / factor })
}

// Div divides vr by divisor in place: vr := vr / divisor.
func Div[T Numeric](ctx context.Context, vr Variable[T], divisor T) error {
	var zero T
	if divisor == zero {
		return errors.WithStack(xerrors.ErrUnsupportedOperand)
	}
	return unary(ctx, vr, oplog.KindDiv, "div",
		func(x T) T { return x / divisor },
		func(x T) T { return x * divisor })
}

// DivReversed sets vr := dividend / vr in place, the reversed-divide
// form; like SubReversed it inverts by re-applying itself.
func DivReversed[T Numeric](ctx context.Context, vr Variable[T], dividend T) error {
	cur := vr.Read(ctx)
	var zero T
	if cur == zero {
		return errors.WithStack(xerrors.ErrUnsupportedOperand)
	}
	return unary(ctx, vr, oplog.KindDivReversed, "div-reversed",
		func(x T) T { return dividend / x },
		func(x T) T { return dividend / x })
}

// Neg negates vr in place: vr := -vr. This is the operator scenario S1
// (the antival paradox) drives to a fixed point.
func Neg[T Numeric](ctx context.Context, vr Variable[T]) error {
	return unary(ctx, vr, oplog.KindNeg, "neg",
		func(x T) T { return -x },
		func(x T) T { return -x })
}

// Mod sets vr := vr % divisor in place. Modulus discards information,
// so it is irreversible: undo restores the pre-mutation snapshot
// rather than attempting an algebraic inverse (spec.md §9's resolved
// modulus-undo open question).
func Mod[T Integer](ctx context.Context, vr Variable[T], divisor T) error {
	var zero T
	if divisor == zero {
		return errors.WithStack(xerrors.ErrUnsupportedOperand)
	}
	return unaryIrreversible(ctx, vr, oplog.KindMod, "mod", func(x T) T { return x % divisor })
}

// BitAnd sets vr := vr & mask in place. Irreversible: a cleared bit
// cannot be recovered algebraically.
func BitAnd[T Integer](ctx context.Context, vr Variable[T], mask T) error {
	return unaryIrreversible(ctx, vr, oplog.KindBitAnd, "bit-and", func(x T) T { return x & mask })
}

// BitOr sets vr := vr | mask in place. Irreversible: a bit already set
// before the OR is indistinguishable from one mask set, so clearing
// mask's bits on undo would wrongly erase bits that were there already.
func BitOr[T Integer](ctx context.Context, vr Variable[T], mask T) error {
	return unaryIrreversible(ctx, vr, oplog.KindBitOr, "bit-or", func(x T) T { return x | mask })
}

// BitXor sets vr := vr ^ mask in place. XOR with a fixed mask is its
// own inverse.
func BitXor[T Integer](ctx context.Context, vr Variable[T], mask T) error {
	return unary(ctx, vr, oplog.KindBitXor, "bit-xor",
		func(x T) T { return x ^ mask },
		func(x T) T { return x ^ mask })
}

// BitNot sets vr := ^vr in place. Bitwise complement is its own
// inverse.
func BitNot[T Integer](ctx context.Context, vr Variable[T]) error {
	return unary(ctx, vr, oplog.KindBitNot, "bit-not",
		func(x T) T { return ^x },
		func(x T) T { return ^x })
}

// ShiftLeft sets vr := vr << n in place. Irreversible: bits shifted off
// the top cannot be recovered.
func ShiftLeft[T Integer](ctx context.Context, vr Variable[T], n uint) error {
	return unaryIrreversible(ctx, vr, oplog.KindShiftLeft, "shift-left", func(x T) T { return x << n })
}

// ShiftRight sets vr := vr >> n in place. Irreversible: bits shifted
// off the bottom cannot be recovered.
func ShiftRight[T Integer](ctx context.Context, vr Variable[T], n uint) error {
	return unaryIrreversible(ctx, vr, oplog.KindShiftRight, "shift-right", func(x T) T { return x >> n })
}
