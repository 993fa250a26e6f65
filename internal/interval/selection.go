package interval

import (
	"iter"
	"slices"
	"time"
)

// SelectionSet is an immutable, ascending, duplicate-free set of instants.
// The zero value is the empty set.
type SelectionSet struct {
	points []time.Time
}

// NewSelectionSet builds a set from arbitrary instants. The input slice is
// not retained.
func NewSelectionSet(points ...time.Time) SelectionSet {
	if len(points) == 0 {
		return SelectionSet{}
	}
	out := make([]time.Time, len(points))
	for i, p := range points {
		out[i] = Normalize(p)
	}
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	out = slices.CompactFunc(out, func(a, b time.Time) bool { return a.Equal(b) })
	return SelectionSet{points: slices.Clip(out)}
}

// fromSorted wraps an already normalized, ascending, deduplicated slice.
func fromSorted(points []time.Time) SelectionSet {
	return SelectionSet{points: points}
}

func (s SelectionSet) Len() int {
	return len(s.points)
}

// Points returns a copy of the instants in ascending order.
func (s SelectionSet) Points() []time.Time {
	return slices.Clone(s.points)
}

// All iterates the instants in ascending order without copying.
func (s SelectionSet) All() iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		for _, p := range s.points {
			if !yield(p) {
				return
			}
		}
	}
}

func (s SelectionSet) Contains(t time.Time) bool {
	_, found := slices.BinarySearchFunc(s.points, Normalize(t), func(a, b time.Time) int {
		return a.Compare(b)
	})
	return found
}

// Equal reports set equality, regardless of how either set was built.
func (s SelectionSet) Equal(o SelectionSet) bool {
	return slices.EqualFunc(s.points, o.points, func(a, b time.Time) bool { return a.Equal(b) })
}

// Union returns the instants present in either set.
func (s SelectionSet) Union(o SelectionSet) SelectionSet {
	merged := make([]time.Time, 0, len(s.points)+len(o.points))
	i, j := 0, 0
	for i < len(s.points) && j < len(o.points) {
		switch c := s.points[i].Compare(o.points[j]); {
		case c < 0:
			merged = append(merged, s.points[i])
			i++
		case c > 0:
			merged = append(merged, o.points[j])
			j++
		default:
			merged = append(merged, s.points[i])
			i++
			j++
		}
	}
	merged = append(merged, s.points[i:]...)
	merged = append(merged, o.points[j:]...)
	return fromSorted(merged)
}

// Filter returns the instants for which keep returns true.
func (s SelectionSet) Filter(keep func(time.Time) bool) SelectionSet {
	out := make([]time.Time, 0, len(s.points))
	for _, p := range s.points {
		if keep(p) {
			out = append(out, p)
		}
	}
	return fromSorted(out)
}
