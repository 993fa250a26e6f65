package calendar

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/ParachuteTeam/Parachute/internal/interval"
	appLog "github.com/ParachuteTeam/Parachute/internal/log"
)

const defaultMaxOccurrencesPerEvent = 5000

// Busy is one concrete occurrence of a calendar event.
type Busy struct {
	UID     string
	Summary string
	AllDay  bool
	interval.Span
}

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// RangeStart / RangeEnd bound the occurrences; an occurrence is kept
	// when it overlaps [RangeStart, RangeEnd).
	RangeStart time.Time
	RangeEnd   time.Time

	// IncludeAllDay makes all-day events block their whole day.
	IncludeAllDay bool
	// AllDayLocation is the zone whose midnights bound all-day events.
	// If nil, UTC is used.
	AllDayLocation *time.Location

	// MaxOccurrencesPerEvent is a safety cap against huge expansions. If
	// zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the expanded occurrences and truncation info.
type ExpandResult struct {
	// Busy is sorted by start, in UTC.
	Busy []Busy
	// TruncatedEvents records UIDs that hit MaxOccurrencesPerEvent.
	TruncatedEvents []string
}

// Expand turns parsed events into concrete busy blocks inside the configured
// range. It handles:
//
//   - Single non-recurring events
//   - RRULE-based recurrence (DAILY/WEEKLY/MONTHLY/YEARLY, etc.)
//   - EXDATE for exception removal
//   - RECURRENCE-ID overrides
//   - All-day semantics
//
// Transparent events never appear in the result.
func Expand(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	// Group base events and overrides by UID.
	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
		}
	}

	out := make([]Busy, 0)
	for uid, baseEvents := range baseByUID {
		ov := overridesByUID[uid]
		truncated := false
		for _, ev := range baseEvents {
			occ, hitCap := expandEvent(ev, ov, cfg)
			if hitCap {
				truncated = true
			}
			out = append(out, occ...)
		}
		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Warn("expand: truncated occurrences for UID due to cap",
				"uid", uid,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].UID < out[j].UID
	})
	sort.Strings(result.TruncatedEvents)
	result.Busy = out
	return result, nil
}

func expandEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]Busy, bool) {
	if ev.RawRRule == "" {
		return expandSingleEvent(ev, overrides, cfg), false
	}
	return expandRecurringEvent(ev, overrides, cfg)
}

func expandSingleEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []Busy {
	start, end := ev.Start, ev.End
	if o, ok := findOverrideForStart(overrides, start); ok {
		start, end, ev = o.Start, o.End, o
	}
	if b, ok := makeBusy(ev, start, end, cfg); ok {
		return []Busy{b}
	}
	return nil
}

func expandRecurringEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]Busy, bool) {
	out := make([]Busy, 0)

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return out, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen the lower bound by the event's length so occurrences that start
	// before the range but still run into it are kept.
	dur := ev.End.Sub(ev.Start)
	loc := ev.Start.Location()
	occTimes := set.Between(cfg.RangeStart.Add(-dur).In(loc), cfg.RangeEnd.In(loc), true)

	hitCap := false
	if len(occTimes) > cfg.MaxOccurrencesPerEvent {
		occTimes = occTimes[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	for _, occStart := range occTimes {
		var occEnd time.Time
		if ev.AllDay {
			// All-day: [date 00:00, next day 00:00) in the event's timezone.
			date := time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, occStart.Location())
			occStart = date
			occEnd = date.AddDate(0, 0, 1)
		} else {
			occEnd = occStart.Add(dur)
		}

		baseEv := ev
		if o, ok := findOverrideForStart(overrides, occStart); ok {
			occStart, occEnd, baseEv = o.Start, o.End, o
		}
		if b, ok := makeBusy(baseEv, occStart, occEnd, cfg); ok {
			out = append(out, b)
		}
	}
	return out, hitCap
}

// findOverrideForStart finds an override whose RECURRENCE-ID equals start.
func findOverrideForStart(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

func makeBusy(ev ParsedEvent, start, end time.Time, cfg ExpandConfig) (Busy, bool) {
	if ev.Transparent || (ev.AllDay && !cfg.IncludeAllDay) {
		return Busy{}, false
	}
	if ev.AllDay && cfg.AllDayLocation != nil {
		start, end = floatingDate(start, cfg.AllDayLocation), floatingDate(end, cfg.AllDayLocation)
	}
	sp := interval.Span{Start: interval.Normalize(start), End: interval.Normalize(end)}
	rng := interval.Span{Start: cfg.RangeStart, End: cfg.RangeEnd}
	if !sp.Overlaps(rng) {
		return Busy{}, false
	}
	return Busy{UID: ev.UID, Summary: ev.Summary, AllDay: ev.AllDay, Span: sp}, true
}

// floatingDate places t's calendar date at midnight in loc.
func floatingDate(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
