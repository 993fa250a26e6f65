package calendar

import (
	"sort"
	"time"

	"github.com/ParachuteTeam/Parachute/internal/interval"
)

// FreeSlots returns the grid slots of candidates that no busy block touches.
// Each slot t stands for [t, t+step).
func FreeSlots(candidates interval.SelectionSet, step time.Duration, busy []Busy) interval.SelectionSet {
	if len(busy) == 0 {
		return candidates
	}
	blocks := make([]interval.Span, 0, len(busy))
	for _, b := range busy {
		if b.End.After(b.Start) {
			blocks = append(blocks, b.Span)
		}
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Start.Before(blocks[j].Start) })

	return candidates.Filter(func(t time.Time) bool {
		slot := interval.Span{Start: t, End: t.Add(step)}
		// Blocks are sorted by start; only those starting before the slot
		// ends can overlap it.
		n := sort.Search(len(blocks), func(i int) bool { return !blocks[i].Start.Before(slot.End) })
		for _, b := range blocks[:n] {
			if b.Overlaps(slot) {
				return false
			}
		}
		return true
	})
}
