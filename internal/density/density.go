// Package density counts how many participants selected each grid instant.
package density

import (
	"slices"
	"time"

	"github.com/ParachuteTeam/Parachute/internal/interval"
)

// Cell is one instant of the density map, ready for rendering.
type Cell struct {
	At    time.Time `json:"at"`
	Count int       `json:"count"`
	Ratio float64   `json:"ratio"`
}

// Map holds per-instant counts over N participants.
type Map struct {
	counts map[int64]int
	n      int
}

// Aggregate counts, for every instant, how many of sets contain it. n is
// the participant count used as the ratio denominator; it is usually
// len(sets) but participants who saved nothing still count.
func Aggregate(sets []interval.SelectionSet, n int) Map {
	m := Map{counts: make(map[int64]int), n: n}
	for _, s := range sets {
		for t := range s.All() {
			m.counts[t.UnixMilli()]++
		}
	}
	return m
}

// N is the participant count.
func (m Map) N() int {
	return m.n
}

// Len is the number of instants at least one participant selected.
func (m Map) Len() int {
	return len(m.counts)
}

func (m Map) Count(t time.Time) int {
	return m.counts[interval.Normalize(t).UnixMilli()]
}

// Ratio is Count/N clamped to [0, 1]; with no participants it is 0.
func (m Map) Ratio(t time.Time) float64 {
	return ratio(m.Count(t), m.n)
}

func ratio(count, n int) float64 {
	if n <= 0 {
		return 0
	}
	r := float64(count) / float64(n)
	return min(max(r, 0), 1)
}

// Cells lists every counted instant in ascending order.
func (m Map) Cells() []Cell {
	out := make([]Cell, 0, len(m.counts))
	for ms, c := range m.counts {
		out = append(out, Cell{At: time.UnixMilli(ms).UTC(), Count: c, Ratio: ratio(c, m.n)})
	}
	slices.SortFunc(out, func(a, b Cell) int { return a.At.Compare(b.At) })
	return out
}

// Best ranks instants selected by at least minCount participants, highest
// count first and earlier instants first on ties. A limit <= 0 returns all.
func (m Map) Best(limit, minCount int) []Cell {
	cells := slices.DeleteFunc(m.Cells(), func(c Cell) bool { return c.Count < minCount })
	slices.SortStableFunc(cells, func(a, b Cell) int { return b.Count - a.Count })
	if limit > 0 && len(cells) > limit {
		cells = cells[:limit]
	}
	return cells
}

// Windows compresses the instants selected by at least minCount
// participants into exclusive spans: the common free windows.
func (m Map) Windows(step time.Duration, minCount int) ([]interval.Span, error) {
	var points []time.Time
	for ms, c := range m.counts {
		if c >= minCount {
			points = append(points, time.UnixMilli(ms))
		}
	}
	return interval.CompressPoints(points, step, interval.Exclusive)
}
