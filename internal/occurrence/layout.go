package occurrence

import (
	"time"

	"github.com/ParachuteTeam/Parachute/internal/interval"
	"github.com/ParachuteTeam/Parachute/internal/zone"
)

// PartKind labels the pieces a run is cut into.
type PartKind string

const (
	// PartDay is one day of a run whose window stays within the day.
	PartDay PartKind = "day"
	// PartHead is the first day of a midnight-crossing run, from the
	// window start to midnight.
	PartHead PartKind = "head"
	// PartMiddle is a full-day column inside a midnight-crossing run: the
	// tail end of the previous day's window followed by this day's start.
	PartMiddle PartKind = "middle"
	// PartTail is the day after the run, from midnight to the window end.
	PartTail PartKind = "tail"
)

// Part is one independently compressed piece of a run. Bounds are
// half-open UTC spans, ascending and disjoint.
type Part struct {
	Kind   PartKind        `json:"kind"`
	Day    Day             `json:"day"`
	Bounds []interval.Span `json:"bounds"`
}

// RunLayout is a run with its window laid over it.
type RunLayout struct {
	Run     Run    `json:"run"`
	SameDay bool   `json:"same_day"`
	Parts   []Part `json:"parts"`
}

// Layout cuts a run into parts. A same-day window yields one PartDay per
// day. A window that crosses midnight yields a head, one middle column per
// interior day, and a tail on the day after the run.
func Layout(run Run, w Window, z zone.ZoneTag) RunLayout {
	start := time.Duration(w.Start) * time.Minute
	end := time.Duration(w.End) * time.Minute
	day := 24 * time.Hour

	out := RunLayout{Run: run, SameDay: w.SameDay()}
	if out.SameDay {
		for _, d := range run.Days() {
			m := d.Midnight(z)
			out.Parts = append(out.Parts, Part{
				Kind:   PartDay,
				Day:    d,
				Bounds: []interval.Span{{Start: m.Add(start), End: m.Add(end)}},
			})
		}
		return out
	}

	days := run.Days()
	head := days[0].Midnight(z)
	out.Parts = append(out.Parts, Part{
		Kind:   PartHead,
		Day:    days[0],
		Bounds: []interval.Span{{Start: head.Add(start), End: head.Add(day)}},
	})
	for _, d := range days[1:] {
		m := d.Midnight(z)
		out.Parts = append(out.Parts, Part{
			Kind: PartMiddle,
			Day:  d,
			Bounds: []interval.Span{
				{Start: m, End: m.Add(end)},
				{Start: m.Add(start), End: m.Add(day)},
			},
		})
	}
	tailDay := run.Last.AddDays(1)
	tail := tailDay.Midnight(z)
	out.Parts = append(out.Parts, Part{
		Kind:   PartTail,
		Day:    tailDay,
		Bounds: []interval.Span{{Start: tail, End: tail.Add(end)}},
	})
	return out
}

// bounds flattens every part's bounds in order.
func (l RunLayout) bounds() []interval.Span {
	var out []interval.Span
	for _, p := range l.Parts {
		out = append(out, p.Bounds...)
	}
	return out
}
