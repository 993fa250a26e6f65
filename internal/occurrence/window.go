package occurrence

import (
	"fmt"
	"time"

	"github.com/ParachuteTeam/Parachute/internal/zone"
)

const minutesPerDay = 24 * 60

// Window is the event's daily time range in minutes after local midnight.
// Start is in [0, 1440); End is in (0, 1440]. When End > Start the window
// stays on one calendar day, otherwise it runs past midnight into the next
// one (Start == End is a full 24 hours starting at Start).
type Window struct {
	Start int `json:"start_minute"`
	End   int `json:"end_minute"`
}

// NewWindow validates and normalizes a window; an End of 0 means midnight at
// the end of the day.
func NewWindow(start, end int) (Window, error) {
	if start < 0 || start >= minutesPerDay {
		return Window{}, fmt.Errorf("occurrence: window start %d out of range", start)
	}
	if end < 0 || end > minutesPerDay {
		return Window{}, fmt.Errorf("occurrence: window end %d out of range", end)
	}
	if end == 0 {
		end = minutesPerDay
	}
	return Window{Start: start, End: end}, nil
}

// WindowFromInstants reads the stored begins/ends wall-clock instants on z's
// clock.
func WindowFromInstants(begins, ends time.Time, z zone.ZoneTag) (Window, error) {
	return NewWindow(zone.MinuteOfDay(begins, z), zone.MinuteOfDay(ends, z))
}

// SameDay reports whether the window ends on the calendar day it starts.
func (w Window) SameDay() bool {
	return w.End > w.Start
}

// Length is the window's duration.
func (w Window) Length() time.Duration {
	m := w.End - w.Start
	if m <= 0 {
		m += minutesPerDay
	}
	return time.Duration(m) * time.Minute
}

// Instants returns the wall-clock begins/ends instants for storage, anchored
// on zone.Epoch.
func (w Window) Instants(z zone.ZoneTag) (begins, ends time.Time) {
	begins = zone.MakeWallClockInstant(0, w.Start/60, w.Start%60, z)
	return begins, begins.Add(w.Length())
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.Start/60, w.Start%60, (w.End/60)%24, w.End%60)
}

// shift moves the window by delta minutes and reports by how many calendar
// days its start moved.
func (w Window) shift(delta int) (Window, int) {
	length := int(w.Length() / time.Minute)
	start := w.Start + delta
	days := floorDiv(start, minutesPerDay)
	start -= days * minutesPerDay

	end := start + length
	if end > minutesPerDay {
		end -= minutesPerDay
	}
	return Window{Start: start, End: end}, days
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
