package variable_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chronovar/chronovar/internal/variable"
	"github.com/chronovar/chronovar/slice"
)

func TestNewSeedsBootstrapAsSingleEntryTimeline(t *testing.T) {
	v := variable.New(variable.Key{Type: "int", Name: "antival"}, slice.New(-1))
	require.Equal(t, 1, v.TimelineLen())
	require.False(t, v.FirstAppendSeen())
	got, ok := v.TailSlice().First()
	require.True(t, ok)
	require.Equal(t, -1, got)
}

func TestRawAppendGrowsTimelineAndSealsBootstrap(t *testing.T) {
	v := variable.New(variable.Key{Type: "int", Name: "antival"}, slice.New(-1))
	v.Lock()
	v.RawAppend(slice.New(1))
	v.Unlock()
	require.Equal(t, 2, v.TimelineLen())
	require.True(t, v.FirstAppendSeen())
}

func TestIDsAreProcessWideAndMonotonic(t *testing.T) {
	a := variable.New(variable.Key{Type: "int", Name: "a"}, slice.New(0))
	b := variable.New(variable.Key{Type: "int", Name: "b"}, slice.New(0))
	require.Greater(t, b.ID(), a.ID())
}

func TestCaptureTailAndTailEqualsCaptured(t *testing.T) {
	v := variable.New(variable.Key{Type: "int", Name: "antival"}, slice.New(-1))
	captured := v.CaptureTail()
	require.True(t, v.TailEqualsCaptured(captured))

	v.Lock()
	v.RawReplaceLast(slice.New(1))
	v.Unlock()
	require.False(t, v.TailEqualsCaptured(captured))
}
