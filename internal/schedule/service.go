// Package schedule is the event service: it turns requests about events and
// availability into grid math and store calls.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ParachuteTeam/Parachute/internal/calendar"
	"github.com/ParachuteTeam/Parachute/internal/interval"
	appLog "github.com/ParachuteTeam/Parachute/internal/log"
	"github.com/ParachuteTeam/Parachute/internal/model"
	"github.com/ParachuteTeam/Parachute/internal/occurrence"
	"github.com/ParachuteTeam/Parachute/internal/store"
	"github.com/ParachuteTeam/Parachute/internal/zone"
)

var (
	// ErrInvalidInput marks a request the caller has to fix.
	ErrInvalidInput = errors.New("schedule: invalid input")
	// ErrForbidden is returned when the caller may not act on the event.
	ErrForbidden = errors.New("schedule: forbidden")
	// ErrNotFound is returned for unknown events, join codes or participants.
	ErrNotFound = store.ErrNotFound
)

const (
	maxNameLength     = 120
	joinCodeAttempts  = 8
	defaultCodeLength = 6
)

// Store is the persistence the service needs.
type Store interface {
	CreateEvent(ctx context.Context, ev model.Event) error
	GetEvent(ctx context.Context, id string) (model.Event, error)
	GetEventByJoinCode(ctx context.Context, code string) (model.Event, error)
	RenameEvent(ctx context.Context, id, name string) error
	DeleteEvent(ctx context.Context, id string) error
	ListEventsFor(ctx context.Context, userID string) ([]model.EventSummary, error)
	UpsertParticipant(ctx context.Context, eventID, userID, zoneTag string) error
	UpdateParticipantZone(ctx context.Context, eventID, userID, zoneTag string) error
	DeleteParticipants(ctx context.Context, eventID string, userIDs []string) (int64, error)
	ListParticipants(ctx context.Context, eventID string) ([]model.Participant, error)
	ReplaceTimeslots(ctx context.Context, eventID, userID, zoneTag string, spans []interval.Span) error
	ListTimeslots(ctx context.Context, eventID, userID string) ([]interval.Span, error)
	ListEventTimeslots(ctx context.Context, eventID string) ([]model.Timeslot, error)
	PurgeEventsBefore(ctx context.Context, cutoff string) (int64, error)
}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Step           time.Duration
	AlignPolicy    interval.AlignPolicy
	JoinCodeLength int
	// DefaultZone is an IANA identifier used when a request carries no zone
	// tag.
	DefaultZone string
	Fetcher     *calendar.Fetcher
	Now         func() time.Time
}

// Service implements event and availability operations.
type Service struct {
	store      Store
	grid       interval.Grid
	codeLength int
	defZone    string
	fetcher    *calendar.Fetcher
	now        func() time.Time
	newID      func() string
}

// New builds a Service on st.
func New(st Store, opts Options) *Service {
	grid := interval.DefaultGrid()
	if opts.Step > 0 {
		grid.Step = opts.Step
	}
	grid.Policy = opts.AlignPolicy
	if opts.JoinCodeLength <= 0 {
		opts.JoinCodeLength = defaultCodeLength
	}
	if opts.DefaultZone == "" {
		opts.DefaultZone = "UTC"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:      st,
		grid:       grid,
		codeLength: opts.JoinCodeLength,
		defZone:    opts.DefaultZone,
		fetcher:    opts.Fetcher,
		now:        opts.Now,
		newID:      uuid.NewString,
	}
}

// Step is the grid resolution.
func (s *Service) Step() time.Duration {
	return s.grid.Step
}

// zoneTag parses tag, or derives one from the default zone when empty.
func (s *Service) zoneTag(tag string) (zone.ZoneTag, error) {
	if strings.TrimSpace(tag) == "" {
		z, err := zone.CurrentZoneTag(s.defZone, s.now())
		if err != nil {
			appLog.Warn("default zone unavailable, using UTC", "zone", s.defZone, "reason", err.Error())
			return zone.UTC, nil
		}
		return z, nil
	}
	z, err := zone.ParseZoneTag(tag)
	if err != nil {
		return zone.ZoneTag{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return z, nil
}

// ScheduleOf rebuilds the selectable grid of a stored event.
func (s *Service) ScheduleOf(ev model.Event) (occurrence.Schedule, error) {
	z, err := zone.ParseZoneTag(ev.ZoneTag)
	if err != nil {
		return occurrence.Schedule{}, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	days, err := occurrence.ParseDays(ev.OccurringDays, z)
	if err != nil {
		return occurrence.Schedule{}, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	w, err := occurrence.WindowFromInstants(ev.Begins, ev.Ends, z)
	if err != nil {
		return occurrence.Schedule{}, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	return occurrence.Schedule{Days: days, Window: w, Zone: z, Step: s.grid.Step}, nil
}

func (s *Service) loadSchedule(ctx context.Context, eventID string) (model.Event, occurrence.Schedule, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return model.Event{}, occurrence.Schedule{}, err
	}
	sched, err := s.ScheduleOf(ev)
	if err != nil {
		return model.Event{}, occurrence.Schedule{}, err
	}
	return ev, sched, nil
}

func (s *Service) joinCode() string {
	var b strings.Builder
	b.WriteByte(byte('1' + rand.IntN(9)))
	for i := 1; i < s.codeLength; i++ {
		b.WriteByte(byte('0' + rand.IntN(10)))
	}
	return b.String()
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: participant id is required", ErrInvalidInput)
	}
	return nil
}
