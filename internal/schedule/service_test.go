package schedule

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/ParachuteTeam/Parachute/internal/calendar"
	"github.com/ParachuteTeam/Parachute/internal/interval"
	"github.com/ParachuteTeam/Parachute/internal/model"
	"github.com/ParachuteTeam/Parachute/internal/occurrence"
	"github.com/ParachuteTeam/Parachute/internal/store"
)

const (
	chicago = "America/Chicago,GMT-06:00"
	seoul   = "Asia/Seoul,GMT+09:00"
)

var fixedNow = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, policy interval.AlignPolicy) *Service {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "parachute.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(st, Options{
		AlignPolicy: policy,
		DefaultZone: "UTC",
		Now:         func() time.Time { return fixedNow },
	})
}

func createStandup(t *testing.T, svc *Service) model.Event {
	t.Helper()

	ev, err := svc.CreateEvent(context.Background(), CreateEventInput{
		Name:    "Standup",
		OwnerID: "host",
		ZoneTag: chicago,
		Kind:    model.KindDates,
		Days:    "2024-03-05,2024-03-04",
		Start:   "09:00",
		End:     "17:00",
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return ev
}

// at is a UTC instant on March 2024.
func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.March, day, hour, minute, 0, 0, time.UTC)
}

func TestCreateEventDates(t *testing.T) {
	svc := newService(t, interval.AlignReject)
	ev := createStandup(t, svc)

	if !regexp.MustCompile(`^[1-9][0-9]{5}$`).MatchString(ev.JoinCode) {
		t.Fatalf("join code = %q, want 6 digits", ev.JoinCode)
	}
	if ev.OccurringDays != "2024-03-04,2024-03-05" || ev.LastDay != "2024-03-05" {
		t.Fatalf("days = %q last = %q", ev.OccurringDays, ev.LastDay)
	}
	if !ev.Begins.Equal(time.Date(2000, 1, 1, 15, 0, 0, 0, time.UTC)) {
		t.Fatalf("begins = %v", ev.Begins)
	}

	details, err := svc.GetEvent(context.Background(), ev.ID, "")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if details.Occurring != "Mar 4 - Mar 5" || details.Timespan != "09:00 AM-05:00 PM" {
		t.Fatalf("details = %q / %q", details.Occurring, details.Timespan)
	}

	byCode, err := svc.LookupJoinCode(context.Background(), ev.JoinCode, seoul)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if byCode.Timespan != "12:00 AM-08:00 AM" || byCode.Occurring != "Mar 5 - Mar 6" {
		t.Fatalf("seoul view = %q / %q", byCode.Timespan, byCode.Occurring)
	}
}

func TestCreateEventOvernightLastDay(t *testing.T) {
	svc := newService(t, interval.AlignReject)
	ev, err := svc.CreateEvent(context.Background(), CreateEventInput{
		Name: "Night shift", OwnerID: "host", ZoneTag: chicago, Kind: model.KindDates,
		Days: "2024-03-04", Start: "22:00", End: "02:00",
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if ev.LastDay != "2024-03-05" {
		t.Fatalf("last day = %q, want the day the window ends", ev.LastDay)
	}
}

func TestCreateEventWeekdays(t *testing.T) {
	svc := newService(t, interval.AlignReject)
	ev, err := svc.CreateEvent(context.Background(), CreateEventInput{
		Name:     "Weekly",
		OwnerID:  "host",
		Kind:     model.KindDaysOfWeek,
		Weekdays: "MO,WE",
		Start:    "10:00",
		End:      "12:00",
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if ev.OccurringDays != "2024-02-26,2024-02-28" {
		t.Fatalf("days = %q", ev.OccurringDays)
	}
	if ev.LastDay != "" {
		t.Fatalf("weekday events must not expire, got last day %q", ev.LastDay)
	}
	if ev.ZoneTag != "UTC,GMT+00:00" {
		t.Fatalf("zone = %q, want default zone", ev.ZoneTag)
	}
}

func TestCreateEventInvalid(t *testing.T) {
	svc := newService(t, interval.AlignReject)
	base := CreateEventInput{Name: "x", OwnerID: "host", ZoneTag: chicago, Kind: model.KindDates, Days: "2024-03-04", Start: "09:00", End: "10:00"}

	cases := map[string]func(in *CreateEventInput){
		"no owner":   func(in *CreateEventInput) { in.OwnerID = "" },
		"no name":    func(in *CreateEventInput) { in.Name = "  " },
		"bad zone":   func(in *CreateEventInput) { in.ZoneTag = "Chicago,UTC-6" },
		"no days":    func(in *CreateEventInput) { in.Days = "" },
		"bad day":    func(in *CreateEventInput) { in.Days = "March 4" },
		"bad kind":   func(in *CreateEventInput) { in.Kind = "MONTHLY" },
		"bad clock":  func(in *CreateEventInput) { in.Start = "9am" },
		"no weekday": func(in *CreateEventInput) { in.Kind = model.KindDaysOfWeek; in.Weekdays = "" },
		"off grid":   func(in *CreateEventInput) { in.Start = "09:10" },
		"end off":    func(in *CreateEventInput) { in.End = "10:05" },
	}
	for name, mutate := range cases {
		in := base
		mutate(&in)
		if _, err := svc.CreateEvent(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: error = %v, want %v", name, err, ErrInvalidInput)
		}
	}
}

func TestCreateEventZoneOffsetOffGrid(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "parachute.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	svc := New(st, Options{Step: 30 * time.Minute, Now: func() time.Time { return fixedNow }})
	ctx := context.Background()

	in := CreateEventInput{Name: "Sync", OwnerID: "host", ZoneTag: "Asia/Kathmandu,GMT+05:45", Kind: model.KindDates, Days: "2024-03-04", Start: "09:00", End: "10:00"}
	if _, err := svc.CreateEvent(ctx, in); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected %v for a +05:45 zone on a 30 minute grid, got %v", ErrInvalidInput, err)
	}

	in.ZoneTag = "Asia/Kolkata,GMT+05:30"
	ev, err := svc.CreateEvent(ctx, in)
	if err != nil {
		t.Fatalf("create on grid: %v", err)
	}
	grid, err := svc.Grid(ctx, ev.ID, "")
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	if _, err := svc.SaveSelection(ctx, ev.ID, "host", "", grid.Slots.Points()); err != nil {
		t.Fatalf("saving every offered slot: %v", err)
	}
}

func TestSaveSelectionRoundTrip(t *testing.T) {
	svc := newService(t, interval.AlignReject)
	ctx := context.Background()
	ev := createStandup(t, svc)

	if _, err := svc.JoinEvent(ctx, ev.JoinCode, "guest", seoul); err != nil {
		t.Fatalf("join: %v", err)
	}
	points := []time.Time{at(4, 15, 30), at(4, 15, 0), at(4, 15, 15), at(5, 15, 0)}
	res, err := svc.SaveSelection(ctx, ev.ID, "guest", seoul, points)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(res.Spans) != 2 || !res.Spans[0].End.Equal(at(4, 15, 45)) {
		t.Fatalf("spans = %v", res.Spans)
	}

	got, err := svc.MySelection(ctx, ev.ID, "guest")
	if err != nil {
		t.Fatalf("selection: %v", err)
	}
	if !got.Equal(interval.NewSelectionSet(points...)) {
		t.Fatalf("selection = %v, want %v", got.Points(), points)
	}

	// An empty save clears the selection.
	if _, err := svc.SaveSelection(ctx, ev.ID, "guest", seoul, nil); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, _ = svc.MySelection(ctx, ev.ID, "guest")
	if got.Len() != 0 {
		t.Fatalf("expected empty selection, got %d", got.Len())
	}
}

func TestSaveSelectionRejectsBadInstants(t *testing.T) {
	svc := newService(t, interval.AlignReject)
	ctx := context.Background()
	ev := createStandup(t, svc)

	_, err := svc.SaveSelection(ctx, ev.ID, "guest", chicago, []time.Time{at(4, 15, 7)})
	if !errors.Is(err, ErrInvalidInput) || !errors.Is(err, interval.ErrMisalignedInstant) {
		t.Fatalf("misaligned error = %v", err)
	}

	_, err = svc.SaveSelection(ctx, ev.ID, "guest", chicago, []time.Time{at(4, 14, 45)})
	if !errors.Is(err, occurrence.ErrOutsideGrid) {
		t.Fatalf("outside grid error = %v", err)
	}

	if _, err := svc.SaveSelection(ctx, "missing", "guest", chicago, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing event error = %v", err)
	}
}

func TestSaveSelectionFloorPolicy(t *testing.T) {
	svc := newService(t, interval.AlignFloor)
	ctx := context.Background()
	ev := createStandup(t, svc)

	if _, err := svc.SaveSelection(ctx, ev.ID, "guest", chicago, []time.Time{at(4, 15, 7), at(4, 15, 14)}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ := svc.MySelection(ctx, ev.ID, "guest")
	if !got.Equal(interval.NewSelectionSet(at(4, 15, 0))) {
		t.Fatalf("selection = %v, want floored single slot", got.Points())
	}
}

func TestGroupDensityAndAvailability(t *testing.T) {
	svc := newService(t, interval.AlignReject)
	ctx := context.Background()
	ev := createStandup(t, svc)

	if _, err := svc.SaveSelection(ctx, ev.ID, "host", chicago, []time.Time{at(4, 15, 0), at(4, 15, 15)}); err != nil {
		t.Fatalf("host save: %v", err)
	}
	if _, err := svc.SaveSelection(ctx, ev.ID, "guest", seoul, []time.Time{at(4, 15, 0)}); err != nil {
		t.Fatalf("guest save: %v", err)
	}
	if _, err := svc.JoinEvent(ctx, ev.JoinCode, "lurker", ""); err != nil {
		t.Fatalf("join: %v", err)
	}

	m, err := svc.GroupDensity(ctx, ev.ID)
	if err != nil {
		t.Fatalf("density: %v", err)
	}
	if m.N() != 3 {
		t.Fatalf("n = %d, want 3", m.N())
	}
	if m.Count(at(4, 15, 0)) != 2 || m.Count(at(4, 15, 15)) != 1 {
		t.Fatalf("counts = %d, %d", m.Count(at(4, 15, 0)), m.Count(at(4, 15, 15)))
	}

	who, err := svc.AvailableAt(ctx, ev.ID, at(4, 15, 0))
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if len(who) != 2 || who[0] != "host" || who[1] != "guest" {
		t.Fatalf("available = %v", who)
	}
}

func TestOwnerOnlyOperations(t *testing.T) {
	svc := newService(t, interval.AlignReject)
	ctx := context.Background()
	ev := createStandup(t, svc)
	if _, err := svc.JoinEvent(ctx, ev.JoinCode, "guest", chicago); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := svc.RenameEvent(ctx, ev.ID, "guest", "Mine now"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("rename by guest = %v", err)
	}
	if _, err := svc.RemoveParticipants(ctx, ev.ID, "guest", []string{"host"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("remove by guest = %v", err)
	}
	if _, err := svc.RemoveParticipants(ctx, ev.ID, "host", []string{"host"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("remove owner = %v", err)
	}
	n, err := svc.RemoveParticipants(ctx, ev.ID, "host", []string{"guest"})
	if err != nil || n != 1 {
		t.Fatalf("remove guest = %d, %v", n, err)
	}

	if err := svc.RenameEvent(ctx, ev.ID, "host", "Retro"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := svc.DeleteEvent(ctx, ev.ID, "guest"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("delete by guest = %v", err)
	}
	if err := svc.DeleteEvent(ctx, ev.ID, "host"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetEvent(ctx, ev.ID, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get deleted = %v", err)
	}
}

func TestUpdateZone(t *testing.T) {
	svc := newService(t, interval.AlignReject)
	ctx := context.Background()
	ev := createStandup(t, svc)

	if err := svc.UpdateZone(ctx, ev.ID, "host", "GMT+5:30"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad tag = %v", err)
	}
	if err := svc.UpdateZone(ctx, ev.ID, "host", "Asia/Kolkata,GMT+05:30"); err != nil {
		t.Fatalf("update zone: %v", err)
	}
	participants, _ := svc.Participants(ctx, ev.ID)
	if participants[0].ZoneTag != "Asia/Kolkata,GMT+05:30" {
		t.Fatalf("zone = %q", participants[0].ZoneTag)
	}
	if err := svc.UpdateZone(ctx, ev.ID, "stranger", seoul); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown participant = %v", err)
	}
}

func TestMoveSelectionKeepsWallClockHours(t *testing.T) {
	svc := newService(t, interval.AlignReject)
	ctx := context.Background()
	ev := createStandup(t, svc)

	if _, err := svc.JoinEvent(ctx, ev.JoinCode, "guest", chicago); err != nil {
		t.Fatalf("join: %v", err)
	}
	// 09:00 and 16:45 on a Chicago clock.
	if _, err := svc.SaveSelection(ctx, ev.ID, "guest", chicago, []time.Time{at(4, 15, 0), at(4, 22, 45)}); err != nil {
		t.Fatalf("save: %v", err)
	}

	const denver = "America/Denver,GMT-07:00"
	res, dropped, err := svc.MoveSelection(ctx, ev.ID, "guest", denver)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	// 16:45 Denver is past the end of the grid.
	if dropped != 1 || len(res.Spans) != 1 {
		t.Fatalf("dropped = %d spans = %v", dropped, res.Spans)
	}
	if !res.Spans[0].Start.Equal(at(4, 16, 0)) || !res.Spans[0].End.Equal(at(4, 16, 15)) {
		t.Fatalf("moved span = %v", res.Spans[0])
	}
	stored, err := svc.MySpans(ctx, ev.ID, "guest")
	if err != nil || len(stored) != 1 {
		t.Fatalf("stored = %v, %v", stored, err)
	}
	participants, _ := svc.Participants(ctx, ev.ID)
	for _, p := range participants {
		if p.UserID == "guest" && p.ZoneTag != denver {
			t.Fatalf("guest zone = %q", p.ZoneTag)
		}
	}

	if _, _, err := svc.MoveSelection(ctx, ev.ID, "guest", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty tag = %v", err)
	}
	if _, _, err := svc.MoveSelection(ctx, ev.ID, "stranger", denver); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown participant = %v", err)
	}
}

func TestGridInViewerZone(t *testing.T) {
	svc := newService(t, interval.AlignReject)
	ctx := context.Background()
	ev := createStandup(t, svc)

	own, err := svc.Grid(ctx, ev.ID, "")
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	if own.Slots.Len() != 64 || len(own.Layouts) != 1 || !own.Layouts[0].SameDay {
		t.Fatalf("own grid: %d slots, %d layouts", own.Slots.Len(), len(own.Layouts))
	}

	remote, err := svc.Grid(ctx, ev.ID, seoul)
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	if !remote.Slots.Equal(own.Slots) {
		t.Fatal("expected the same instants for every viewer")
	}
	if remote.Schedule.Window.Start != 0 || remote.Schedule.Days[0].String() != "2024-03-05" {
		t.Fatalf("seoul window = %s days = %v", remote.Schedule.Window, remote.Schedule.Days)
	}
}

const busyFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:dentist\r\n" +
	"DTSTART:20240304T150000Z\r\n" +
	"DTEND:20240304T160000Z\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestImportCalendar(t *testing.T) {
	svc := newService(t, interval.AlignReject)
	ctx := context.Background()
	ev := createStandup(t, svc)

	res, err := svc.ImportCalendar(ctx, ev.ID, "guest", chicago, []byte(busyFeed), ImportOptions{})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Busy != 1 || res.Selection.Len() != 60 {
		t.Fatalf("busy = %d free = %d, want 1 and 60", res.Busy, res.Selection.Len())
	}
	if res.Selection.Contains(at(4, 15, 45)) || !res.Selection.Contains(at(4, 16, 0)) {
		t.Fatal("expected the busy hour to be excluded")
	}

	saved, _ := svc.MySelection(ctx, ev.ID, "guest")
	if !saved.Equal(res.Selection) {
		t.Fatal("expected the free slots to be saved")
	}

	if _, err := svc.ImportCalendar(ctx, ev.ID, "guest", chicago, nil, ImportOptions{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty body error = %v", err)
	}
}

func TestImportCalendarMerge(t *testing.T) {
	svc := newService(t, interval.AlignReject)
	ctx := context.Background()
	ev := createStandup(t, svc)

	if _, err := svc.SaveSelection(ctx, ev.ID, "guest", chicago, []time.Time{at(4, 15, 0)}); err != nil {
		t.Fatalf("save: %v", err)
	}
	res, err := svc.ImportCalendar(ctx, ev.ID, "guest", chicago, []byte(busyFeed), ImportOptions{Merge: true})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Selection.Len() != 61 || !res.Selection.Contains(at(4, 15, 0)) {
		t.Fatalf("merged selection = %d slots", res.Selection.Len())
	}
}

func TestExportICS(t *testing.T) {
	svc := newService(t, interval.AlignReject)
	ctx := context.Background()
	ev := createStandup(t, svc)

	if _, err := svc.SaveSelection(ctx, ev.ID, "host", chicago, []time.Time{at(4, 15, 0), at(4, 15, 15)}); err != nil {
		t.Fatalf("host save: %v", err)
	}
	if _, err := svc.SaveSelection(ctx, ev.ID, "guest", chicago, []time.Time{at(4, 15, 0)}); err != nil {
		t.Fatalf("guest save: %v", err)
	}

	loose, err := svc.ExportICS(ctx, ev.ID, 1)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(loose, "DTEND:20240304T153000Z") || !strings.Contains(loose, "1 of 2 participants available") {
		t.Fatalf("unexpected export:\n%s", loose)
	}

	strict, err := svc.ExportICS(ctx, ev.ID, 2)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(strict, "DTEND:20240304T151500Z") || !strings.Contains(strict, "2 of 2 participants available") {
		t.Fatalf("unexpected export:\n%s", strict)
	}
}

func TestPurgeAndList(t *testing.T) {
	svc := newService(t, interval.AlignReject)
	ctx := context.Background()
	createStandup(t, svc)
	_, err := svc.CreateEvent(ctx, CreateEventInput{
		Name: "Old", OwnerID: "host", ZoneTag: chicago, Kind: model.KindDates,
		Days: "2024-01-02", Start: "09:00", End: "10:00",
	})
	if err != nil {
		t.Fatalf("create old: %v", err)
	}

	list, err := svc.ListEvents(ctx, "host")
	if err != nil || len(list) != 2 {
		t.Fatalf("list = %d, %v", len(list), err)
	}

	n, err := svc.Purge(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged = %d, want 1", n)
	}
	list, _ = svc.ListEvents(ctx, "host")
	if len(list) != 1 || list[0].Name != "Standup" {
		t.Fatalf("remaining = %+v", list)
	}
}

func TestImportCalendarURLRefusesLocalFeeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(busyFeed))
	}))
	defer srv.Close()

	st, err := store.Open(filepath.Join(t.TempDir(), "parachute.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	svc := New(st, Options{
		Fetcher: calendar.NewFetcher(t.TempDir(), nil),
		Now:     func() time.Time { return fixedNow },
	})
	ev := createStandup(t, svc)

	_, err = svc.ImportCalendarURL(context.Background(), ev.ID, "guest", chicago, srv.URL+"/secret.ics", ImportOptions{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected %v, got %v", ErrInvalidInput, err)
	}
	if strings.Contains(err.Error(), "127.0.0.1") || strings.Contains(err.Error(), "secret") {
		t.Fatalf("error exposes fetch details: %v", err)
	}
	if sel, _ := svc.MySelection(context.Background(), ev.ID, "guest"); sel.Len() != 0 {
		t.Fatalf("expected nothing saved, got %d slots", sel.Len())
	}
}
