package calendar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ParachuteTeam/Parachute/internal/interval"
)

const feed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:standup\r\n" +
	"SUMMARY:Standup\r\n" +
	"DTSTART:20240304T090000Z\r\n" +
	"DTEND:20240304T093000Z\r\n" +
	"RRULE:FREQ=DAILY;COUNT=5\r\n" +
	"EXDATE:20240306T090000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:standup\r\n" +
	"SUMMARY:Standup (moved)\r\n" +
	"RECURRENCE-ID:20240305T090000Z\r\n" +
	"DTSTART:20240305T110000Z\r\n" +
	"DTEND:20240305T113000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:holiday\r\n" +
	"SUMMARY:Holiday\r\n" +
	"DTSTART;VALUE=DATE:20240307\r\n" +
	"DTEND;VALUE=DATE:20240308\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:focus\r\n" +
	"SUMMARY:Focus\r\n" +
	"TRANSP:TRANSPARENT\r\n" +
	"DTSTART:20240304T120000Z\r\n" +
	"DTEND:20240304T130000Z\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func utc(day, hour, minute int) time.Time {
	return time.Date(2024, time.March, day, hour, minute, 0, 0, time.UTC)
}

func TestParse(t *testing.T) {
	events, err := Parse("test", []byte(feed))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}

	byUID := map[string]ParsedEvent{}
	for _, ev := range events {
		if !ev.IsOverride {
			byUID[ev.UID] = ev
		}
	}
	if got := byUID["standup"]; got.RawRRule == "" || len(got.ExDates) != 1 {
		t.Fatalf("expected rrule and exdate on standup, got %+v", got)
	}
	if !byUID["holiday"].AllDay {
		t.Fatal("expected holiday to be all-day")
	}
	if !byUID["focus"].Transparent {
		t.Fatal("expected focus to be transparent")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := Parse("test", nil); err == nil {
		t.Fatal("expected error for empty body")
	}
}

func TestExpand(t *testing.T) {
	events, err := Parse("test", []byte(feed))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	res, err := Expand(events, ExpandConfig{RangeStart: utc(1, 0, 0), RangeEnd: utc(31, 0, 0)})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}

	want := []interval.Span{
		{Start: utc(4, 9, 0), End: utc(4, 9, 30)},
		{Start: utc(5, 11, 0), End: utc(5, 11, 30)},
		{Start: utc(7, 9, 0), End: utc(7, 9, 30)},
		{Start: utc(8, 9, 0), End: utc(8, 9, 30)},
	}
	if len(res.Busy) != len(want) {
		t.Fatalf("expected %d busy blocks, got %d: %+v", len(want), len(res.Busy), res.Busy)
	}
	for i, w := range want {
		if !res.Busy[i].Start.Equal(w.Start) || !res.Busy[i].End.Equal(w.End) {
			t.Fatalf("block %d: expected %s, got %s", i, w, res.Busy[i].Span)
		}
	}
	if res.Busy[1].Summary != "Standup (moved)" {
		t.Fatalf("expected override summary, got %q", res.Busy[1].Summary)
	}
}

func TestExpandAllDayAndRange(t *testing.T) {
	events, _ := Parse("test", []byte(feed))
	res, err := Expand(events, ExpandConfig{
		RangeStart:    utc(7, 0, 0),
		RangeEnd:      utc(8, 0, 0),
		IncludeAllDay: true,
	})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(res.Busy) != 2 {
		t.Fatalf("expected holiday and one standup, got %+v", res.Busy)
	}
	if !res.Busy[0].AllDay || !res.Busy[0].Start.Equal(utc(7, 0, 0)) || !res.Busy[0].End.Equal(utc(8, 0, 0)) {
		t.Fatalf("unexpected all-day block %+v", res.Busy[0])
	}
}

func TestExpandRejectsInvertedRange(t *testing.T) {
	if _, err := Expand(nil, ExpandConfig{RangeStart: utc(2, 0, 0), RangeEnd: utc(1, 0, 0)}); err == nil {
		t.Fatal("expected error")
	}
}

func TestExpandCap(t *testing.T) {
	events := []ParsedEvent{{
		UID:      "tick",
		Start:    utc(1, 0, 0),
		End:      utc(1, 0, 15),
		RawRRule: "FREQ=HOURLY",
	}}
	res, err := Expand(events, ExpandConfig{RangeStart: utc(1, 0, 0), RangeEnd: utc(31, 0, 0), MaxOccurrencesPerEvent: 10})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(res.Busy) != 10 || len(res.TruncatedEvents) != 1 || res.TruncatedEvents[0] != "tick" {
		t.Fatalf("expected truncation at 10, got %d busy, truncated %v", len(res.Busy), res.TruncatedEvents)
	}
}

func TestFreeSlots(t *testing.T) {
	step := 15 * time.Minute
	var pts []time.Time
	for i := 0; i < 8; i++ {
		pts = append(pts, utc(4, 8, 0).Add(time.Duration(i)*step))
	}
	candidates := interval.NewSelectionSet(pts...)
	busy := []Busy{
		{Span: interval.Span{Start: utc(4, 8, 20), End: utc(4, 8, 45)}},
		{Span: interval.Span{Start: utc(4, 9, 30), End: utc(4, 9, 30)}},
	}

	free := FreeSlots(candidates, step, busy)
	want := interval.NewSelectionSet(utc(4, 8, 0), utc(4, 8, 45), utc(4, 9, 0), utc(4, 9, 15), utc(4, 9, 30), utc(4, 9, 45))
	if !free.Equal(want) {
		t.Fatalf("expected %v, got %v", want.Points(), free.Points())
	}
}

func TestExport(t *testing.T) {
	out := Export([]Window{{
		Span:      interval.Span{Start: utc(4, 9, 0), End: utc(4, 10, 0)},
		Available: 3,
		Total:     4,
	}}, ExportOptions{EventID: "ev-1", Name: "Planning", Stamp: utc(1, 0, 0)})

	for _, want := range []string{"BEGIN:VCALENDAR", "UID:ev-1-1709542800@parachute", "DTSTART:20240304T090000Z", "DTEND:20240304T100000Z", "SUMMARY:Planning", "3 of 4 participants available"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in export:\n%s", want, out)
		}
	}

	events, err := Parse("export", []byte(out))
	if err != nil {
		t.Fatalf("re-parse export: %v", err)
	}
	if len(events) != 1 || !events[0].Start.Equal(utc(4, 9, 0)) {
		t.Fatalf("unexpected re-parsed export %+v", events)
	}
}

func TestFetchUsesCacheOnNotModified(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	first, err := f.Fetch(context.Background(), srv.URL+"/private/token.ics")
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if first.FromCache || len(first.Body) == 0 {
		t.Fatalf("expected fresh body, got %+v", first)
	}

	second, err := f.Fetch(context.Background(), srv.URL+"/private/token.ics")
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !second.FromCache || string(second.Body) != feed {
		t.Fatal("expected cached body on 304")
	}
	if hits.Load() != 2 {
		t.Fatalf("expected 2 requests, got %d", hits.Load())
	}
}

func TestFetchRejectsScheme(t *testing.T) {
	f := NewFetcher(t.TempDir(), nil)
	if _, err := f.Fetch(context.Background(), "file:///etc/passwd"); err == nil {
		t.Fatal("expected unsupported scheme error")
	}
}

func TestRedactURL(t *testing.T) {
	if got := redactURL("https://cal.example.com/p/secret.ics?token=abc"); got != "https://cal.example.com/...(redacted)" {
		t.Fatalf("unexpected redaction %q", got)
	}
}

func TestFetchRefusesLocalAddresses(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), nil)
	_, err := f.Fetch(context.Background(), srv.URL+"/admin.ics")
	if !errors.Is(err, ErrBlockedAddress) {
		t.Fatalf("expected ErrBlockedAddress, got %v", err)
	}
	if strings.Contains(err.Error(), "admin.ics") {
		t.Fatalf("error leaks the feed path: %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no request to reach the server, got %d", hits.Load())
	}
}

func TestPublicAddr(t *testing.T) {
	cases := map[string]bool{
		"93.184.216.34":    true,
		"2606:4700::1111":  true,
		"127.0.0.1":        false,
		"10.1.2.3":         false,
		"172.16.0.9":       false,
		"192.168.1.1":      false,
		"169.254.169.254":  false,
		"100.64.0.1":       false,
		"0.0.0.0":          false,
		"::1":              false,
		"fe80::1":          false,
		"fd00::1":          false,
		"::ffff:127.0.0.1": false,
		"224.0.0.1":        false,
	}
	for in, want := range cases {
		if got := publicAddr(netip.MustParseAddr(in)); got != want {
			t.Fatalf("publicAddr(%s) = %v, want %v", in, got, want)
		}
	}
}
