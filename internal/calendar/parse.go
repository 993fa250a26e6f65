// Package calendar turns iCalendar feeds into busy time for availability
// import, and renders an event's common free windows back out as ICS.
package calendar

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "github.com/ParachuteTeam/Parachute/internal/log"
)

// ParsedEvent is the normalized representation of a VEVENT. Recurrence
// expansion operates on this type.
type ParsedEvent struct {
	UID string
	Seq int

	Summary  string
	Location string

	Start  time.Time
	End    time.Time
	AllDay bool

	// Transparent events (TRANSP:TRANSPARENT) do not block time.
	Transparent bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID (if present) in the event's own timezone
	IsOverride bool       // true if this VEVENT overrides one recurring instance
}

// Parse parses one ICS payload into a list of ParsedEvent.
//
//   - It relies on the library's VTIMEZONE/TZID handling to build time.Time
//     values with a Location.
//   - It detects all-day events from the DTSTART value form.
//   - It records RRULE/EXDATE/RECURRENCE-ID but does not expand them; see
//     Expand.
//
// name only labels log lines.
func Parse(name string, body []byte) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "source", name)
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(comp)
		if perr != nil {
			// Log and skip this event, but keep parsing others.
			appLog.Warn("ics vevent skipped", "source", name, "reason", perr.Error())
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "source", name, "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (ParsedEvent, error) {
	var out ParsedEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if seqProp := ve.GetProperty(ical.ComponentPropertySequence); seqProp != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(seqProp.Value)); err == nil {
			out.Seq = n
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty("TRANSP"); p != nil {
		out.Transparent = strings.EqualFold(strings.TrimSpace(p.Value), "TRANSPARENT")
	}

	dtStartProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStartProp == nil {
		return out, errors.New("missing DTSTART")
	}
	// VALUE=DATE or no 'T' in the value means all-day.
	if vs, ok := dtStartProp.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		out.AllDay = true
	}
	if !strings.Contains(dtStartProp.Value, "T") {
		out.AllDay = true
	}

	if out.AllDay {
		// All-day dates float; keep them as UTC midnights and let Expand
		// place them in a zone.
		start, err := parseICSTime(dtStartProp.Value[:min(len(dtStartProp.Value), 8)], time.UTC)
		if err != nil {
			return out, err
		}
		out.Start = start
		out.End = start.AddDate(0, 0, 1)
		if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil && len(p.Value) >= 8 {
			if end, err := parseICSTime(p.Value[:8], time.UTC); err == nil && end.After(start) {
				out.End = end
			}
		}
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return out, err
		}
		out.Start = start
		if end, err := ve.GetEndAt(); err == nil {
			out.End = end
		} else {
			// DTEND is optional; DURATION is not read, so treat it as an instant.
			out.End = start
		}
	}
	if out.End.Before(out.Start) {
		return out, errors.New("DTEND before DTSTART")
	}

	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil {
		out.RawRRule = rruleProp.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		loc := paramLocation(p.ICalParameters, out.Start.Location())
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if ridProp := ve.GetProperty("RECURRENCE-ID"); ridProp != nil {
		loc := paramLocation(ridProp.ICalParameters, out.Start.Location())
		if t, err := parseICSTime(ridProp.Value, loc); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

// paramLocation resolves a TZID parameter, falling back to def.
func paramLocation(params map[string][]string, def *time.Location) *time.Location {
	if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
		if loc, err := time.LoadLocation(tzs[0]); err == nil {
			return loc
		}
	}
	if def == nil {
		return time.UTC
	}
	return def
}

// parseICSTime parses a basic ICS date or date-time. Floating values are
// read in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	// Local date-time, e.g., 20250101T090000
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	// Date-only (all-day), e.g., 20250101
	return time.ParseInLocation("20060102", v, loc)
}
