package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/ParachuteTeam/Parachute/internal/calendar"
	"github.com/ParachuteTeam/Parachute/internal/interval"
	appLog "github.com/ParachuteTeam/Parachute/internal/log"
	"github.com/ParachuteTeam/Parachute/internal/occurrence"
)

// ImportOptions controls calendar import.
type ImportOptions struct {
	// Merge keeps the participant's current selection and adds the free
	// slots to it; otherwise the free slots replace it.
	Merge bool
	// IncludeAllDay makes all-day events block their whole day.
	IncludeAllDay bool
}

// ImportResult reports what an import changed.
type ImportResult struct {
	Busy      int
	Truncated []string
	Selection interval.SelectionSet
	Saved     occurrence.Result
}

// ImportCalendar marks every grid slot that no event in body overlaps as
// available for userID and saves the result.
func (s *Service) ImportCalendar(ctx context.Context, eventID, userID, zoneTag string, body []byte, opts ImportOptions) (ImportResult, error) {
	if err := requireUser(userID); err != nil {
		return ImportResult{}, err
	}
	z, err := s.zoneTag(zoneTag)
	if err != nil {
		return ImportResult{}, err
	}
	_, sched, err := s.loadSchedule(ctx, eventID)
	if err != nil {
		return ImportResult{}, err
	}

	events, err := calendar.Parse(eventID, body)
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	slots := sched.Slots()
	points := slots.Points()
	if len(points) == 0 {
		return ImportResult{}, fmt.Errorf("%w: event has no selectable slots", ErrInvalidInput)
	}
	expanded, err := calendar.Expand(events, calendar.ExpandConfig{
		RangeStart:     points[0],
		RangeEnd:       points[len(points)-1].Add(s.grid.Step),
		IncludeAllDay:  opts.IncludeAllDay,
		AllDayLocation: z.Location(),
	})
	if err != nil {
		return ImportResult{}, err
	}

	sel := calendar.FreeSlots(slots, s.grid.Step, expanded.Busy)
	if opts.Merge {
		current, err := s.MySelection(ctx, eventID, userID)
		if err != nil {
			return ImportResult{}, err
		}
		sel = sel.Union(current)
	}
	saved, err := s.save(ctx, eventID, userID, z.String(), sched, sel)
	if err != nil {
		return ImportResult{}, err
	}

	appLog.Info("calendar imported", "event", eventID, "user", userID, "busy", len(expanded.Busy), "free_slots", sel.Len())
	return ImportResult{
		Busy:      len(expanded.Busy),
		Truncated: expanded.TruncatedEvents,
		Selection: sel,
		Saved:     saved,
	}, nil
}

// ImportCalendarURL fetches a feed and imports it like ImportCalendar.
func (s *Service) ImportCalendarURL(ctx context.Context, eventID, userID, zoneTag, feedURL string, opts ImportOptions) (ImportResult, error) {
	if s.fetcher == nil {
		return ImportResult{}, errors.New("calendar fetching is not configured")
	}
	res, err := s.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		// The cause stays in the log; callers only learn that the feed failed.
		appLog.Warn("calendar fetch failed", "event", eventID, "user", userID, "reason", err.Error())
		if errors.Is(err, calendar.ErrBlockedAddress) {
			return ImportResult{}, fmt.Errorf("%w: calendar address not allowed", ErrInvalidInput)
		}
		return ImportResult{}, fmt.Errorf("%w: calendar could not be fetched", ErrInvalidInput)
	}
	return s.ImportCalendar(ctx, eventID, userID, zoneTag, res.Body, opts)
}

// ExportICS renders the windows where at least minCount participants are
// available as an iCalendar document.
func (s *Service) ExportICS(ctx context.Context, eventID string, minCount int) (string, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return "", err
	}
	v, err := s.Group(ctx, eventID)
	if err != nil {
		return "", err
	}
	if minCount <= 0 {
		minCount = 1
	}
	spans, err := v.Density.Windows(s.grid.Step, minCount)
	if err != nil {
		return "", err
	}

	windows := make([]calendar.Window, 0, len(spans))
	for _, sp := range spans {
		// A window is only as available as its emptiest slot.
		least := -1
		for t := sp.Start; t.Before(sp.End); t = t.Add(s.grid.Step) {
			if c := v.Density.Count(t); least < 0 || c < least {
				least = c
			}
		}
		windows = append(windows, calendar.Window{Span: sp, Available: least, Total: v.Density.N()})
	}
	return calendar.Export(windows, calendar.ExportOptions{EventID: ev.ID, Name: ev.Name, Stamp: s.now()}), nil
}
