package occurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/ParachuteTeam/Parachute/internal/interval"
	"github.com/ParachuteTeam/Parachute/internal/zone"
)

// ErrOutsideGrid is returned when a selection holds an instant that no run
// of the event covers.
var ErrOutsideGrid = errors.New("occurrence: instant outside the event grid")

// Schedule is an event's selectable grid: its days, its daily window read on
// Zone's clock, and the grid step.
type Schedule struct {
	Days   []Day
	Window Window
	Zone   zone.ZoneTag
	Step   time.Duration
}

// RunSpans records which compressed spans belong to which run, so the
// caller can place a gap marker between non-adjacent runs.
type RunSpans struct {
	Run  Run `json:"run"`
	From int `json:"from"`
	To   int `json:"to"`
}

// Result is the output of Schedule.Compress.
type Result struct {
	Spans []interval.Span `json:"spans"`
	Runs  []RunSpans      `json:"runs"`
}

func (s Schedule) step() time.Duration {
	if s.Step <= 0 {
		return interval.DefaultStep
	}
	return s.Step
}

// Runs groups the schedule's days.
func (s Schedule) Runs() []Run {
	return Group(s.Days)
}

// Layouts lays the window over every run.
func (s Schedule) Layouts() []RunLayout {
	runs := s.Runs()
	out := make([]RunLayout, 0, len(runs))
	for _, r := range runs {
		out = append(out, Layout(r, s.Window, s.Zone))
	}
	return out
}

// Slots lists every selectable instant.
func (s Schedule) Slots() interval.SelectionSet {
	var points []time.Time
	for _, l := range s.Layouts() {
		for _, b := range l.bounds() {
			for t := b.Start; t.Before(b.End); t = t.Add(s.step()) {
				points = append(points, t)
			}
		}
	}
	return interval.NewSelectionSet(points...)
}

// Covers reports whether t lies inside one of the grid's bounds.
func (s Schedule) Covers(t time.Time) bool {
	for _, l := range s.Layouts() {
		for _, b := range l.bounds() {
			if !t.Before(b.Start) && t.Before(b.End) {
				return true
			}
		}
	}
	return false
}

// In re-expresses the schedule on viewer's clock. The slots are the same
// instants; only the days, the window and therefore the run layout change,
// which is how a participant in another zone sees a window cross midnight.
func (s Schedule) In(viewer zone.ZoneTag) Schedule {
	delta := viewer.OffsetMinutes - s.Zone.OffsetMinutes
	w, shiftDays := s.Window.shift(delta)
	days := make([]Day, len(s.Days))
	for i, d := range s.Days {
		days[i] = d.AddDays(shiftDays)
	}
	return Schedule{Days: days, Window: w, Zone: viewer, Step: s.Step}
}

// Compress compresses sel run by run and part by part. A span never crosses
// a part bound, so nothing is merged across a gap in the day set even where
// the instants are one step apart. Every instant of sel must be covered by
// the grid.
func (s Schedule) Compress(sel interval.SelectionSet, mode interval.Mode) (Result, error) {
	step := s.step()
	res := Result{Spans: make([]interval.Span, 0), Runs: make([]RunSpans, 0)}
	consumed := 0

	for _, l := range s.Layouts() {
		from := len(res.Spans)
		for _, b := range l.bounds() {
			inside := sel.Filter(func(t time.Time) bool {
				return !t.Before(b.Start) && t.Before(b.End)
			})
			spans, err := interval.Compress(inside, step, mode)
			if err != nil {
				return Result{}, err
			}
			consumed += inside.Len()
			res.Spans = append(res.Spans, spans...)
		}
		res.Runs = append(res.Runs, RunSpans{Run: l.Run, From: from, To: len(res.Spans)})
	}

	if consumed != sel.Len() {
		for t := range sel.All() {
			if !s.Covers(t) {
				return Result{}, fmt.Errorf("%w: %s", ErrOutsideGrid, t.Format(time.RFC3339))
			}
		}
		// Only reachable when two bounds overlap.
		return Result{}, fmt.Errorf("%w: %d of %d instants placed", ErrOutsideGrid, consumed, sel.Len())
	}
	return res, nil
}

// Expand is the inverse of Compress.
func (s Schedule) Expand(spans []interval.Span, mode interval.Mode) (interval.SelectionSet, error) {
	return interval.Expand(spans, s.step(), mode)
}
