package chronovar_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chronovar/chronovar"
	"github.com/chronovar/chronovar/chronovartest"
	"github.com/chronovar/chronovar/internal/xerrors"
)

func TestAddAccumulates(t *testing.T) {
	sys, _ := chronovartest.NewFixture(t)
	v := chronovar.Define[int](sys.System, "counter", 0)

	require.NoError(t, chronovar.Add(sys.Context, v, 3))
	require.NoError(t, chronovar.Add(sys.Context, v, 4))
	require.Equal(t, 7, v.Read(sys.Context))
}

func TestSubReversedComputesOperandMinusVariable(t *testing.T) {
	sys, _ := chronovartest.NewFixture(t)
	v := chronovar.Define[int](sys.System, "x", 3)

	require.NoError(t, chronovar.SubReversed(sys.Context, v, 10))
	require.Equal(t, 7, v.Read(sys.Context))
}

func TestNegTwiceReturnsToOriginalValue(t *testing.T) {
	sys, _ := chronovartest.NewFixture(t)
	v := chronovar.Define[int](sys.System, "antival", -1)

	require.NoError(t, chronovar.Neg(sys.Context, v))
	require.Equal(t, 1, v.Read(sys.Context))
	require.NoError(t, chronovar.Neg(sys.Context, v))
	require.Equal(t, -1, v.Read(sys.Context))
}

func TestDivByZeroIsUnsupportedOperand(t *testing.T) {
	sys, _ := chronovartest.NewFixture(t)
	v := chronovar.Define[int](sys.System, "x", 10)

	err := chronovar.Div(sys.Context, v, 0)
	require.True(t, xerrors.IsUnsupportedOperand(err))
}

func TestModIsIrreversibleButStillComputesForward(t *testing.T) {
	sys, _ := chronovartest.NewFixture(t)
	v := chronovar.Define[int](sys.System, "x", 17)

	require.NoError(t, chronovar.Mod(sys.Context, v, 5))
	require.Equal(t, 2, v.Read(sys.Context))
}

func TestBitXorWithSameMaskIsItsOwnInverse(t *testing.T) {
	sys, _ := chronovartest.NewFixture(t)
	v := chronovar.Define[int](sys.System, "flags", 0b1010)

	require.NoError(t, chronovar.BitXor(sys.Context, v, 0b0110))
	require.NoError(t, chronovar.BitXor(sys.Context, v, 0b0110))
	require.Equal(t, 0b1010, v.Read(sys.Context))
}

func TestShiftLeftShiftsBits(t *testing.T) {
	sys, _ := chronovartest.NewFixture(t)
	v := chronovar.Define[int](sys.System, "x", 1)

	require.NoError(t, chronovar.ShiftLeft(sys.Context, v, 3))
	require.Equal(t, 8, v.Read(sys.Context))
}
