package interval

import (
	"fmt"
	"time"
)

// Compress merges the instants of points into the minimal ascending list of
// disjoint spans. A span is extended while the next instant is exactly one
// step after the current end; any other gap closes it. In Exclusive mode the
// closed span's End is moved one step past its last instant.
//
// Empty input yields an empty, non-nil slice.
func Compress(points SelectionSet, step time.Duration, mode Mode) ([]Span, error) {
	if err := checkStep(step); err != nil {
		return nil, err
	}

	spans := make([]Span, 0)
	if points.Len() == 0 {
		return spans, nil
	}

	closeSpan := func(s Span) Span {
		if mode == Exclusive {
			s.End = s.End.Add(step)
		}
		return s
	}

	current := Span{Start: points.points[0], End: points.points[0]}
	for _, p := range points.points[1:] {
		if current.End.Add(step).Equal(p) {
			current.End = p
			continue
		}
		spans = append(spans, closeSpan(current))
		current = Span{Start: p, End: p}
	}
	spans = append(spans, closeSpan(current))

	return spans, nil
}

// CompressPoints is Compress over raw instants; duplicates and ordering are
// handled the same way.
func CompressPoints(points []time.Time, step time.Duration, mode Mode) ([]Span, error) {
	return Compress(NewSelectionSet(points...), step, mode)
}

// Expand is the inverse of Compress: it walks each span from Start in step
// increments, emitting every instant strictly before End (Exclusive) or not
// after End (Inclusive). Overlapping spans do not produce duplicates.
func Expand(spans []Span, step time.Duration, mode Mode) (SelectionSet, error) {
	if err := checkStep(step); err != nil {
		return SelectionSet{}, err
	}

	points := make([]time.Time, 0, estimate(spans, step))
	for _, s := range spans {
		start, end := Normalize(s.Start), Normalize(s.End)
		if end.Before(start) {
			return SelectionSet{}, fmt.Errorf("%w: %s", ErrInvalidSpan, s)
		}
		for cur := start; within(cur, end, mode); cur = cur.Add(step) {
			points = append(points, cur)
		}
	}
	return NewSelectionSet(points...), nil
}

func within(cur, end time.Time, mode Mode) bool {
	if mode == Inclusive {
		return !cur.After(end)
	}
	return cur.Before(end)
}

func estimate(spans []Span, step time.Duration) int {
	n := 0
	for _, s := range spans {
		if d := s.End.Sub(s.Start); d > 0 {
			n += int(d/step) + 1
		}
	}
	return n
}
