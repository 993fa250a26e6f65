package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	appLog "github.com/ParachuteTeam/Parachute/internal/log"
	"github.com/ParachuteTeam/Parachute/internal/model"
	"github.com/ParachuteTeam/Parachute/internal/occurrence"
	"github.com/ParachuteTeam/Parachute/internal/store"
	"github.com/ParachuteTeam/Parachute/internal/zone"
)

// CreateEventInput describes a new event.
type CreateEventInput struct {
	Name    string
	OwnerID string
	// ZoneTag is the host's zone tag; empty uses the default zone.
	ZoneTag string
	Kind    model.EventKind
	// Days is a comma separated date list for DATES events.
	Days string
	// Weekdays is a list like "MO,WE,FR" for DAYSOFWEEK events.
	Weekdays string
	// Start / End are the daily window as "HH:MM" on the host's clock. An
	// End at or before Start runs past midnight; "00:00" ends at midnight.
	Start string
	End   string
}

// EventDetails is an event with its grid read back for display.
type EventDetails struct {
	model.Event
	Zone      zone.ZoneTag
	Days      []occurrence.Day
	Window    occurrence.Window
	Occurring string
	Timespan  string
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: time of day %q", ErrInvalidInput, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// weekStart is the Sunday that starts the week holding d.
func weekStart(d occurrence.Day) occurrence.Day {
	return d.AddDays(-int(d.Weekday()))
}

// onGrid fails unless the zone offset and both window edges are whole grid
// steps. Otherwise the event's slots would sit between grid lines and no
// selection on them could be saved.
func (s *Service) onGrid(z zone.ZoneTag, startMin, endMin int) error {
	step := s.grid.Step
	if (time.Duration(z.OffsetMinutes)*time.Minute)%step != 0 {
		return fmt.Errorf("%w: zone offset %s is not a multiple of the %s grid step", ErrInvalidInput, z.GMT(), step)
	}
	for _, m := range []int{startMin, endMin} {
		if (time.Duration(m)*time.Minute)%step != 0 {
			return fmt.Errorf("%w: %02d:%02d is not on the %s grid", ErrInvalidInput, m/60, m%60, step)
		}
	}
	return nil
}

// CreateEvent validates in, stores the event with a fresh join code and
// registers the owner as its first participant.
func (s *Service) CreateEvent(ctx context.Context, in CreateEventInput) (model.Event, error) {
	if err := requireUser(in.OwnerID); err != nil {
		return model.Event{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > maxNameLength {
		return model.Event{}, fmt.Errorf("%w: event name must be 1-%d characters", ErrInvalidInput, maxNameLength)
	}
	z, err := s.zoneTag(in.ZoneTag)
	if err != nil {
		return model.Event{}, err
	}

	var days []occurrence.Day
	switch in.Kind {
	case model.KindDates:
		days, err = occurrence.ParseDays(in.Days, z)
	case model.KindDaysOfWeek:
		var weekdays []time.Weekday
		weekdays, err = occurrence.ParseWeekdays(in.Weekdays)
		if err == nil {
			today := occurrence.DayOf(zone.ToZoned(s.now(), z))
			days, err = occurrence.WeekdayTemplate(weekdays, weekStart(today))
		}
	default:
		return model.Event{}, fmt.Errorf("%w: unknown event kind %q", ErrInvalidInput, in.Kind)
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	startMin, err := parseClock(in.Start)
	if err != nil {
		return model.Event{}, err
	}
	endMin, err := parseClock(in.End)
	if err != nil {
		return model.Event{}, err
	}
	if err := s.onGrid(z, startMin, endMin); err != nil {
		return model.Event{}, err
	}
	w, err := occurrence.NewWindow(startMin, endMin)
	if err != nil {
		return model.Event{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	begins, ends := w.Instants(z)

	ev := model.Event{
		ID:            s.newID(),
		Name:          name,
		OwnerID:       in.OwnerID,
		ZoneTag:       z.String(),
		Kind:          in.Kind,
		OccurringDays: occurrence.FormatDays(days),
		Begins:        begins,
		Ends:          ends,
		CreatedAt:     s.now().UTC(),
	}
	if in.Kind == model.KindDates {
		last := days[len(days)-1]
		if !w.SameDay() {
			last = last.AddDays(1)
		}
		ev.LastDay = last.String()
	}

	for attempt := 0; ; attempt++ {
		ev.JoinCode = s.joinCode()
		err = s.store.CreateEvent(ctx, ev)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrAlreadyExists) || attempt+1 >= joinCodeAttempts {
			return model.Event{}, err
		}
	}

	appLog.Info("event created", "event", ev.ID, "kind", string(ev.Kind), "days", len(days), "window", w.String(), "zone", ev.ZoneTag)
	return ev, nil
}

// GetEvent returns an event with its grid described on the viewer's clock.
// An empty viewer tag uses the event's own zone.
func (s *Service) GetEvent(ctx context.Context, eventID, viewerTag string) (EventDetails, error) {
	ev, sched, err := s.loadSchedule(ctx, eventID)
	if err != nil {
		return EventDetails{}, err
	}
	return s.describe(ev, sched, viewerTag)
}

// LookupJoinCode returns the event a join code points at.
func (s *Service) LookupJoinCode(ctx context.Context, code, viewerTag string) (EventDetails, error) {
	ev, err := s.store.GetEventByJoinCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return EventDetails{}, err
	}
	sched, err := s.ScheduleOf(ev)
	if err != nil {
		return EventDetails{}, err
	}
	return s.describe(ev, sched, viewerTag)
}

func (s *Service) describe(ev model.Event, sched occurrence.Schedule, viewerTag string) (EventDetails, error) {
	if strings.TrimSpace(viewerTag) != "" {
		viewer, err := s.zoneTag(viewerTag)
		if err != nil {
			return EventDetails{}, err
		}
		sched = sched.In(viewer)
	}
	begins, ends := sched.Window.Instants(sched.Zone)
	return EventDetails{
		Event:     ev,
		Zone:      sched.Zone,
		Days:      sched.Days,
		Window:    sched.Window,
		Occurring: occurrence.FormatOccurring(sched.Days, ev.Kind == model.KindDaysOfWeek),
		Timespan:  zone.FormatTimespan(begins, ends, sched.Zone),
	}, nil
}

// ListEvents returns the events userID owns or has joined.
func (s *Service) ListEvents(ctx context.Context, userID string) ([]model.EventSummary, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	return s.store.ListEventsFor(ctx, userID)
}

func (s *Service) ownedEvent(ctx context.Context, eventID, callerID string) (model.Event, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return model.Event{}, err
	}
	if ev.OwnerID != callerID {
		return model.Event{}, fmt.Errorf("%w: only the owner may change event %s", ErrForbidden, eventID)
	}
	return ev, nil
}

// RenameEvent changes the name of an event the caller owns.
func (s *Service) RenameEvent(ctx context.Context, eventID, callerID, name string) error {
	if _, err := s.ownedEvent(ctx, eventID, callerID); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return fmt.Errorf("%w: event name must be 1-%d characters", ErrInvalidInput, maxNameLength)
	}
	return s.store.RenameEvent(ctx, eventID, name)
}

// DeleteEvent removes an event the caller owns.
func (s *Service) DeleteEvent(ctx context.Context, eventID, callerID string) error {
	if _, err := s.ownedEvent(ctx, eventID, callerID); err != nil {
		return err
	}
	if err := s.store.DeleteEvent(ctx, eventID); err != nil {
		return err
	}
	appLog.Info("event deleted", "event", eventID)
	return nil
}

// Purge deletes dated events whose last day is more than retention ago.
func (s *Service) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := occurrence.DayOf(s.now().UTC().Add(-retention))
	return s.store.PurgeEventsBefore(ctx, cutoff.String())
}
