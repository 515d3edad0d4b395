package oplog

import (
	"sync"

	"github.com/chronovar/chronovar/internal/lclock"
)

// Entry is a type-erased ledger entry. Concrete Operation[T] records
// are wrapped into an Entry by whatever package owns the variable's
// type (internal/archivist), since a single ledger stack must hold
// entries for variables of differing T — the spec.md §9 note on
// avoiding reflection-based dispatch is honored by closing over the
// typed Undo logic once, at wrap time, rather than switching on type
// at undo time.
type Entry interface {
	// VarID is the id of the variable this entry mutates.
	VarID() uint64
	// Name is the operation name, for diagnostics.
	Name() string
	// Undo reverses the operation's effect on its owning variable.
	Undo() error
}

// EntryID identifies one ledger entry for idempotency purposes: the
// CommitID shared by every entry a single transaction commit
// produced, plus a Seq distinguishing entries within that commit. This
// lets the ledger dedupe a replayed commit as a whole (same CommitID)
// while still keeping every distinct entry the commit produced (spec.md
// §8 property 3 and scenario S5).
type EntryID struct {
	Commit lclock.CommitID
	Seq    uint32
}

type entryRecord struct {
	id    EntryID
	entry Entry
}

// Ledger is the undo stack described in spec.md §4.4: an append-only,
// commit-id-keyed stack of reversible operations. It is modeled on the
// mutex-guarded, sequence-numbered append-only log in
// other_examples' default-user-OI kernel-go-internal-audit-ledger.go,
// adapted from a hash-chained audit trail into an undo-on-pop stack.
type Ledger struct {
	mu   sync.Mutex
	seen map[EntryID]struct{}
	log  []entryRecord
}

// NewLedger constructs an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{seen: make(map[EntryID]struct{})}
}

// Append pushes entry under id, unless id has already been recorded,
// in which case the call is a silent no-op. Thread-safe.
func (l *Ledger) Append(entry Entry, id EntryID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[id]; ok {
		return
	}
	l.seen[id] = struct{}{}
	l.log = append(l.log, entryRecord{id: id, entry: entry})
}

// Peek returns the top entry without removing it, or nil if the
// ledger is empty.
func (l *Ledger) Peek() Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.log) == 0 {
		return nil
	}
	return l.log[len(l.log)-1].entry
}

// Pop removes the top entry without invoking Undo.
func (l *Ledger) Pop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.log) == 0 {
		return
	}
	l.log = l.log[:len(l.log)-1]
}

// ReverseAll pops every entry in LIFO order, invoking Undo on each.
// The first error encountered stops the replay and is returned; the
// entries already popped are not restored to the ledger.
func (l *Ledger) ReverseAll() error {
	for {
		l.mu.Lock()
		if len(l.log) == 0 {
			l.mu.Unlock()
			return nil
		}
		rec := l.log[len(l.log)-1]
		l.log = l.log[:len(l.log)-1]
		l.mu.Unlock()

		if err := rec.entry.Undo(); err != nil {
			return err
		}
	}
}

// Clear drops every entry and resets the seen-set.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log = nil
	l.seen = make(map[EntryID]struct{})
}

// Len returns the number of entries currently on the ledger.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.log)
}
