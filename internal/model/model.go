package model

import (
	"time"

	"github.com/ParachuteTeam/Parachute/internal/interval"
)

// EventKind says how the host picked the event's days.
type EventKind string

const (
	// KindDates is an event on explicit calendar dates.
	KindDates EventKind = "DATES"
	// KindDaysOfWeek is an event on a weekday template, materialized into
	// one concrete week.
	KindDaysOfWeek EventKind = "DAYSOFWEEK"
)

// Valid reports whether k is a known kind.
func (k EventKind) Valid() bool {
	return k == KindDates || k == KindDaysOfWeek
}

// Event is a scheduling poll as stored.
type Event struct {
	ID       string
	Name     string
	JoinCode string
	OwnerID  string

	// ZoneTag is the host's zone tag in wire form; OccurringDays and the
	// Begins/Ends window are read on its clock.
	ZoneTag string
	Kind    EventKind

	// OccurringDays is the comma separated day list.
	OccurringDays string

	// Begins / Ends are wall-clock instants anchored on the zone epoch day;
	// only their time of day (in ZoneTag) matters.
	Begins time.Time
	Ends   time.Time

	// LastDay is the final occurring day (YYYY-MM-DD, host clock). Empty for
	// weekday events, which never expire.
	LastDay string

	CreatedAt time.Time
}

// Participant is one person's membership in an event.
type Participant struct {
	EventID string
	UserID  string
	// ZoneTag is the participant's declared zone in wire form.
	ZoneTag   string
	JoinedAt  time.Time
	SlotCount int
}

// Timeslot is one persisted span of a participant's availability,
// exclusive at End.
type Timeslot struct {
	EventID string
	UserID  string
	interval.Span
}

// EventSummary is an event as listed on a participant's dashboard.
type EventSummary struct {
	Event
	ParticipantCount int
}
