// Package slice implements the multi-value container that chronovar's
// variables hold at each point on their timeline. A Slice is an
// unordered set of values of type T, with an optional complex
// amplitude carried alongside each value for callers that want to
// model quantum-style weights; the convergence core never inspects the
// amplitudes itself, it only has to carry them through merges intact.
package slice

// Slice holds an ordered-by-insertion set of distinct values of type T,
// each with an optional amplitude. Order is preserved for display
// purposes (spec.md S1 requires "any(-1, 1)" rather than "any(1, -1)"),
// but equality and membership are set semantics.
type Slice[T comparable] struct {
	order  []T
	amp    map[T]complex128
	lookup map[T]struct{}
}

// New constructs a Slice from an enumerable list of values. Duplicate
// values collapse to a single entry, keeping the first occurrence's
// position.
func New[T comparable](values ...T) Slice[T] {
	s := Slice[T]{
		order:  make([]T, 0, len(values)),
		lookup: make(map[T]struct{}, len(values)),
	}
	for _, v := range values {
		s.push(v)
	}
	return s
}

// NewWeighted constructs a Slice where each value carries a complex
// amplitude. Later entries for an already-seen value overwrite its
// amplitude but do not change its position.
func NewWeighted[T comparable](values []T, amplitudes []complex128) Slice[T] {
	s := Slice[T]{
		order:  make([]T, 0, len(values)),
		amp:    make(map[T]complex128, len(values)),
		lookup: make(map[T]struct{}, len(values)),
	}
	for i, v := range values {
		s.push(v)
		if i < len(amplitudes) {
			s.amp[v] = amplitudes[i]
		}
	}
	return s
}

func (s *Slice[T]) push(v T) {
	if _, ok := s.lookup[v]; ok {
		return
	}
	if s.lookup == nil {
		s.lookup = make(map[T]struct{})
	}
	s.lookup[v] = struct{}{}
	s.order = append(s.order, v)
}

// Len returns the number of distinct values held by the slice.
func (s Slice[T]) Len() int { return len(s.order) }

// Collapse returns the ordered set of values currently held, in
// insertion order. The returned slice is a copy and safe to mutate.
func (s Slice[T]) Collapse() []T {
	out := make([]T, len(s.order))
	copy(out, s.order)
	return out
}

// First returns the first collapsed value, i.e. the single-value
// projection used whenever a Slice is read in a scalar context. The
// second return is false for an empty Slice.
func (s Slice[T]) First() (T, bool) {
	if len(s.order) == 0 {
		var zero T
		return zero, false
	}
	return s.order[0], true
}

// Amplitude returns the complex weight recorded for v, or 1+0i if none
// was recorded.
func (s Slice[T]) Amplitude(v T) complex128 {
	if s.amp == nil {
		return 1
	}
	if a, ok := s.amp[v]; ok {
		return a
	}
	return 1
}

// Equal reports set-equality of the collapsed values: same size, same
// members, order and amplitudes ignored.
func (s Slice[T]) Equal(other Slice[T]) bool {
	if len(s.order) != len(other.order) {
		return false
	}
	for _, v := range s.order {
		if _, ok := other.lookup[v]; !ok {
			return false
		}
	}
	return true
}

// Merge produces a new Slice whose value-set is the union of s and
// other, preserving s's insertion order first and appending any values
// from other not already present. Amplitudes from s take precedence on
// overlap.
func (s Slice[T]) Merge(other Slice[T]) Slice[T] {
	out := Slice[T]{
		order:  make([]T, 0, len(s.order)+len(other.order)),
		amp:    make(map[T]complex128, len(s.order)+len(other.order)),
		lookup: make(map[T]struct{}, len(s.order)+len(other.order)),
	}
	for _, v := range s.order {
		out.push(v)
		out.amp[v] = s.Amplitude(v)
	}
	for _, v := range other.order {
		if _, ok := out.lookup[v]; ok {
			continue
		}
		out.push(v)
		out.amp[v] = other.Amplitude(v)
	}
	return out
}

// IsEmpty reports whether the slice holds no values.
func (s Slice[T]) IsEmpty() bool { return len(s.order) == 0 }
