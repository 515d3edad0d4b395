// Package chronovartest provides a self-contained chronovar.System for
// tests, grounded on the teacher's internal/sinktest/base.NewFixture /
// internal/sinktest/all.Fixture pattern: a single constructor that
// wires up every dependency a test needs and returns a cleanup
// function, so individual tests never have to know how a System's
// internals are assembled.
package chronovartest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chronovar/chronovar"
)

// Fixture bundles a running *chronovar.System with the context.Context
// its coordinator is bound to, for tests that need both.
type Fixture struct {
	*chronovar.System
	Context context.Context

	cancel context.CancelFunc
}

// NewFixture constructs a Fixture with a default Config (the default
// iteration budget, a queue depth of 64) and registers a cleanup
// function via t.Cleanup that disposes the System's coordinator. The
// returned teardown func is also returned directly for callers in
// older test styles that call it explicitly instead of relying on
// t.Cleanup.
func NewFixture(t testing.TB) (*Fixture, func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	sys, err := chronovar.New(ctx, chronovar.Config{QueueDepth: 64})
	require.NoError(t, err)

	f := &Fixture{System: sys, Context: ctx, cancel: cancel}
	teardown := func() {
		f.System.Close()
		f.cancel()
	}
	t.Cleanup(teardown)
	return f, teardown
}
