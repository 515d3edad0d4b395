// Package variable implements the storage half of spec.md's
// "Positronic variable" (component C4): the ordered timeline of slices
// for one logical name, its identity, and its version/flag
// bookkeeping. The decision logic of spec.md §4.9 (assign/merge
// rules) and the mutation privileges described in spec.md §4.5 belong
// to internal/archivist, which is the only caller expected to use the
// Raw* methods below; everything else should go through the public
// facade (package chronovar).
package variable

import (
	"sync"
	"sync/atomic"

	"github.com/chronovar/chronovar/slice"
)

// processWideID is the monotonically-increasing, process-wide id
// source described in spec.md §3 ("Variable... identified by a
// monotonically-increasing process-wide id"). It lives at package
// scope, not per-registry, since the invariant is process-wide.
var processWideID atomic.Uint64

// NextID returns the next process-wide variable id.
func NextID() uint64 { return processWideID.Add(1) }

// Key identifies a variable by its declared type and user-chosen name,
// replacing reflection-based registry keying (spec.md §9) with a
// type-erased id computed once at GetOrCreate time.
type Key struct {
	Type string
	Name string
}

// Variable owns the timeline for one logical name. The zero value is
// not usable; construct with New.
type Variable[T comparable] struct {
	id  uint64
	key Key

	mu       sync.Mutex
	timeline []slice.Slice[T]

	version atomic.Uint64

	firstAppendSeen bool
	stateRead       bool
}

// New constructs a Variable seeded with the given bootstrap slice.
func New[T comparable](key Key, bootstrap slice.Slice[T]) *Variable[T] {
	return &Variable[T]{
		id:       NextID(),
		key:      key,
		timeline: []slice.Slice[T]{bootstrap},
	}
}

// ID returns the variable's process-wide id.
func (v *Variable[T]) ID() uint64 { return v.id }

// Key returns the variable's (type, name) identity.
func (v *Variable[T]) Key() Key { return v.key }

// Lock acquires the variable's per-variable lock. Exported so STM can
// acquire locks for a read-set/write-set in ascending id order (spec.md
// §4.6.5a, §5).
func (v *Variable[T]) Lock() { v.mu.Lock() }

// TryLock attempts to acquire the variable's per-variable lock without
// blocking, for STM's bounded LockWaitTimeout (spec.md §3.3).
func (v *Variable[T]) TryLock() bool { return v.mu.TryLock() }

// Unlock releases the variable's per-variable lock.
func (v *Variable[T]) Unlock() { v.mu.Unlock() }

// Version returns the variable's current version counter.
func (v *Variable[T]) Version() uint64 { return v.version.Load() }

// BumpVersion increments and returns the new version. Callers must
// hold the variable's lock.
func (v *Variable[T]) BumpVersion() uint64 { return v.version.Add(1) }

// TimelineLen returns the number of slices on the timeline. Callers
// must hold the variable's lock for a consistent read, though a stale
// read is harmless for diagnostics.
func (v *Variable[T]) TimelineLen() int { return len(v.timeline) }

// TailSlice returns the timeline's last slice. Callers must hold the
// variable's lock for a consistent read.
func (v *Variable[T]) TailSlice() slice.Slice[T] {
	return v.timeline[len(v.timeline)-1]
}

// SliceAt returns the slice at index i. Callers must hold the
// variable's lock.
func (v *Variable[T]) SliceAt(i int) slice.Slice[T] { return v.timeline[i] }

// CloneTimeline returns a copy of the full timeline, for use by the
// archivist's backup stack. Callers must hold the variable's lock.
func (v *Variable[T]) CloneTimeline() []slice.Slice[T] {
	out := make([]slice.Slice[T], len(v.timeline))
	copy(out, v.timeline)
	return out
}

// FirstAppendSeen reports whether a first append has occurred, sealing
// the bootstrap per spec.md §3's Timeline invariants.
func (v *Variable[T]) FirstAppendSeen() bool { return v.firstAppendSeen }

// SetFirstAppendSeen marks that a first append has occurred.
func (v *Variable[T]) SetFirstAppendSeen() { v.firstAppendSeen = true }

// StateRead reports whether Read was called during the current forward
// pass, per spec.md §9's "state-read-in-current-forward-pass" marker.
func (v *Variable[T]) StateRead() bool { return v.stateRead }

// SetStateRead sets the state-read marker.
func (v *Variable[T]) SetStateRead(b bool) { v.stateRead = b }

// RawAppend appends s to the tail of the timeline. Callers must hold
// the variable's lock; only internal/archivist should call this.
func (v *Variable[T]) RawAppend(s slice.Slice[T]) {
	v.timeline = append(v.timeline, s)
	v.firstAppendSeen = true
}

// RawReplaceLast overwrites the tail slice in place, without changing
// timeline length. Only internal/archivist should call this.
func (v *Variable[T]) RawReplaceLast(s slice.Slice[T]) {
	v.timeline[len(v.timeline)-1] = s
}

// RawTruncateAndPlace truncates the timeline to length idx+1 and sets
// index idx to s — the mechanics of unification (spec.md §4.9's
// "truncate timeline to index k, place the union slice at index k").
// Only internal/archivist should call this.
func (v *Variable[T]) RawTruncateAndPlace(idx int, s slice.Slice[T]) {
	v.timeline = v.timeline[:idx+1]
	v.timeline[idx] = s
}

// RawOverwriteBootstrap truncates the timeline to length 1 and sets
// index 0 to s. Only internal/archivist should call this.
func (v *Variable[T]) RawOverwriteBootstrap(s slice.Slice[T]) {
	v.timeline = v.timeline[:1]
	v.timeline[0] = s
}

// RawReplaceForwardHistoryWith is an alias of RawOverwriteBootstrap,
// named to match spec.md §4.2's "replace-forward-history-with" used by
// undo to restore the bootstrap.
func (v *Variable[T]) RawReplaceForwardHistoryWith(s slice.Slice[T]) {
	v.RawOverwriteBootstrap(s)
}

// RawPopTail removes the tail slice, shrinking the timeline by one.
// Only internal/archivist should call this; it is the inverse of
// RawAppend, used to undo an append-branch mutation.
func (v *Variable[T]) RawPopTail() {
	v.timeline = v.timeline[:len(v.timeline)-1]
}

// RawRestoreTimeline replaces the entire timeline wholesale, used by
// the archivist's restore-last-snapshot (spec.md §4.5). Only
// internal/archivist should call this.
func (v *Variable[T]) RawRestoreTimeline(slices []slice.Slice[T]) {
	v.timeline = slices
}

// CaptureTail returns the current tail slice boxed as any, so the
// engine's convergence check (spec.md §4.10) can compare tails across
// heterogeneously-typed variables without a generic registry. It takes
// the variable's lock itself, so callers must not already hold it.
func (v *Variable[T]) CaptureTail() any {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.TailSlice()
}

// TailEqualsCaptured reports whether the variable's current tail is
// set-equal to a value previously returned by CaptureTail.
func (v *Variable[T]) TailEqualsCaptured(captured any) bool {
	s, ok := captured.(slice.Slice[T])
	if !ok {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.TailSlice().Equal(s)
}
