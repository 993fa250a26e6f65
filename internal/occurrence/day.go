// Package occurrence groups an event's calendar days into contiguous runs
// and lays the event's daily time window over them.
//
// Two adjacency rules live side by side and must not be mixed up: days merge
// into a run when they are one calendar day apart, and grid instants merge
// into a span when they are one step apart. Compression through Schedule is
// always bounded by the day rule first.
package occurrence

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/ParachuteTeam/Parachute/internal/zone"
)

var (
	// ErrNoDays is returned when an event has no occurrence days.
	ErrNoDays = errors.New("occurrence: no days")
	// ErrInvalidDay is returned for a day string that is neither a date nor
	// an RFC 3339 instant.
	ErrInvalidDay = errors.New("occurrence: invalid day")
)

const dateLayout = "2006-01-02"

// Day is a calendar date with no time or zone attached.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the calendar date t shows in its own location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{Year: y, Month: m, Day: d}
}

// ParseDay reads "2006-01-02".
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Day{}, fmt.Errorf("%w: %q", ErrInvalidDay, s)
	}
	return DayOf(t), nil
}

// Time is midnight UTC of the day.
func (d Day) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Midnight is the instant z's wall clock reads 00:00 on d.
func (d Day) Midnight(z zone.ZoneTag) time.Time {
	return d.Time().Add(-z.Offset())
}

func (d Day) AddDays(n int) Day {
	return DayOf(d.Time().AddDate(0, 0, n))
}

func (d Day) Weekday() time.Weekday {
	return d.Time().Weekday()
}

func (d Day) Compare(o Day) int {
	return d.Time().Compare(o.Time())
}

func (d Day) Before(o Day) bool {
	return d.Compare(o) < 0
}

func (d Day) String() string {
	return d.Time().Format(dateLayout)
}

func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Day) UnmarshalText(b []byte) error {
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDays reads the stored comma separated occurrence list. Items are
// either plain dates or RFC 3339 instants; instants are read on z's wall
// clock, since that is the zone the host picked the days in.
func ParseDays(csv string, z zone.ZoneTag) ([]Day, error) {
	var days []Day
	for _, item := range strings.Split(csv, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if d, err := ParseDay(item); err == nil {
			days = append(days, d)
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, item)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDay, item)
		}
		days = append(days, DayOf(zone.ToZoned(t, z)))
	}
	if len(days) == 0 {
		return nil, ErrNoDays
	}
	return SortDays(days), nil
}

// FormatDays is the inverse of ParseDays for plain dates.
func FormatDays(days []Day) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = d.String()
	}
	return strings.Join(parts, ",")
}

// SortDays returns an ascending, duplicate-free copy.
func SortDays(days []Day) []Day {
	out := slices.Clone(days)
	slices.SortFunc(out, Day.Compare)
	return slices.Compact(out)
}

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// WeekdayTemplate materializes a days-of-week template into the concrete
// days of the seven-day window starting at weekOf.
func WeekdayTemplate(weekdays []time.Weekday, weekOf Day) ([]Day, error) {
	if len(weekdays) == 0 {
		return nil, ErrNoDays
	}
	byday := make([]rrule.Weekday, 0, len(weekdays))
	for _, wd := range weekdays {
		rwd, ok := rruleWeekdays[wd]
		if !ok {
			return nil, fmt.Errorf("occurrence: invalid weekday %d", wd)
		}
		byday = append(byday, rwd)
	}

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: byday,
		Dtstart:   weekOf.Time(),
		Until:     weekOf.AddDays(6).Time(),
	})
	if err != nil {
		return nil, fmt.Errorf("occurrence: weekday rule: %w", err)
	}

	var days []Day
	for _, t := range r.All() {
		days = append(days, DayOf(t))
	}
	return SortDays(days), nil
}

// ParseWeekdays reads "MO,TU,FR" style lists (also accepts full names).
func ParseWeekdays(s string) ([]time.Weekday, error) {
	var out []time.Weekday
	for _, item := range strings.Split(s, ",") {
		item = strings.ToUpper(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		found := false
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			name := strings.ToUpper(wd.String())
			if item == name || item == name[:2] || item == name[:3] {
				out = append(out, wd)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("occurrence: invalid weekday %q", item)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoDays
	}
	return out, nil
}
