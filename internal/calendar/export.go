package calendar

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/ParachuteTeam/Parachute/internal/interval"
)

const productID = "-//Parachute//Availability//EN"

// Window is a block of time to publish, with how many participants are free
// during all of it.
type Window struct {
	interval.Span
	Available int
	Total     int
}

// ExportOptions labels the exported calendar.
type ExportOptions struct {
	// EventID seeds stable UIDs so re-imports update rather than duplicate.
	EventID string
	Name    string
	// Stamp is written as DTSTAMP. Zero means now.
	Stamp time.Time
}

// Export renders windows as a VCALENDAR with one VEVENT each.
func Export(windows []Window, opts ExportOptions) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	stamp := opts.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}
	stamp = stamp.UTC()

	for _, w := range windows {
		uid := fmt.Sprintf("%s-%d@parachute", opts.EventID, w.Start.UTC().Unix())
		ev := cal.AddEvent(uid)
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(w.Start.UTC())
		ev.SetEndAt(w.End.UTC())
		ev.SetSummary(opts.Name)
		ev.SetDescription(fmt.Sprintf("%d of %d participants available", w.Available, w.Total))
	}
	return cal.Serialize()
}
