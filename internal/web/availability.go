package web

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ParachuteTeam/Parachute/internal/density"
	"github.com/ParachuteTeam/Parachute/internal/interval"
	"github.com/ParachuteTeam/Parachute/internal/occurrence"
	"github.com/ParachuteTeam/Parachute/internal/schedule"
	"github.com/ParachuteTeam/Parachute/internal/zone"
)

// selectionRequest is the body of PUT /api/events/{id}/timeslots. Slots are
// RFC 3339 instants on the grid; an empty list clears the selection.
type selectionRequest struct {
	ZoneTag string      `json:"zone_tag"`
	Slots   []time.Time `json:"slots"`
}

type selectionResponse struct {
	Slots []time.Time           `json:"slots"`
	Spans []interval.Span       `json:"spans"`
	Runs  []occurrence.RunSpans `json:"runs,omitempty"`
}

type movedSelectionResponse struct {
	selectionResponse
	Dropped int `json:"dropped"`
}

type densityResponse struct {
	Participants int            `json:"participants"`
	StepMinutes  int            `json:"step_minutes"`
	Cells        []density.Cell `json:"cells"`
	Best         []density.Cell `json:"best"`
}

type participantDTO struct {
	UserID      string    `json:"user_id"`
	ZoneTag     string    `json:"zone_tag"`
	ZoneDisplay string    `json:"zone_display"`
	JoinedAt    time.Time `json:"joined_at"`
	SlotCount   int       `json:"slot_count"`
}

type gridResponse struct {
	ZoneTag     string                 `json:"zone_tag"`
	StepMinutes int                    `json:"step_minutes"`
	Window      occurrence.Window      `json:"window"`
	StartHour   float64                `json:"start_hour"`
	EndHour     float64                `json:"end_hour"`
	Runs        []occurrence.RunLayout `json:"runs"`
	Slots       []time.Time            `json:"slots"`
}

type importResponse struct {
	Busy      int             `json:"busy"`
	Truncated []string        `json:"truncated_uids,omitempty"`
	FreeSlots int             `json:"free_slots"`
	Spans     []interval.Span `json:"spans"`
}

func points(sel interval.SelectionSet) []time.Time {
	out := sel.Points()
	if out == nil {
		out = []time.Time{}
	}
	return out
}

func (s *Server) handleMyTimeslots(w http.ResponseWriter, r *http.Request) {
	user := caller(w, r)
	if user == "" {
		return
	}
	spans, err := s.svc.MySpans(r.Context(), r.PathValue("id"), user)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sel, err := interval.Expand(spans, s.svc.Step(), interval.Exclusive)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if spans == nil {
		spans = []interval.Span{}
	}
	writeJSON(w, http.StatusOK, selectionResponse{Slots: points(sel), Spans: spans})
}

// handleSaveTimeslots replaces the caller's availability. Last write wins.
func (s *Server) handleSaveTimeslots(w http.ResponseWriter, r *http.Request) {
	user := caller(w, r)
	if user == "" {
		return
	}
	var req selectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	res, err := s.svc.SaveSelection(r.Context(), r.PathValue("id"), user, req.ZoneTag, req.Slots)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sel, err := interval.Expand(res.Spans, s.svc.Step(), interval.Exclusive)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, selectionResponse{Slots: points(sel), Spans: res.Spans, Runs: res.Runs})
}

// handleDensity returns per-slot counts and the best slots. With ?user= the
// counts are that participant's alone, still over the whole group.
//
// GET /api/events/{id}/density?best=5&min=1&user=
func (s *Server) handleDensity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	best := parseIntDefault(q.Get("best"), 5)
	minCount := parseIntDefault(q.Get("min"), 1)

	var (
		m   density.Map
		err error
	)
	if user := strings.TrimSpace(q.Get("user")); user != "" {
		m, err = s.svc.ParticipantDensity(r.Context(), r.PathValue("id"), user)
	} else {
		m, err = s.svc.GroupDensity(r.Context(), r.PathValue("id"))
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	cells := m.Cells()
	if cells == nil {
		cells = []density.Cell{}
	}
	top := m.Best(best, minCount)
	if top == nil {
		top = []density.Cell{}
	}
	writeJSON(w, http.StatusOK, densityResponse{
		Participants: m.N(),
		StepMinutes:  int(s.svc.Step() / time.Minute),
		Cells:        cells,
		Best:         top,
	})
}

// handleAvailable lists who is available at ?at= (RFC 3339).
func (s *Server) handleAvailable(w http.ResponseWriter, r *http.Request) {
	at, err := time.Parse(time.RFC3339, r.URL.Query().Get("at"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "at must be an RFC 3339 instant")
		return
	}
	ids, err := s.svc.AvailableAt(r.Context(), r.PathValue("id"), at)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"at": at.UTC(), "participants": ids})
}

// handleGrid lays the event grid out on the ?zone= clock.
func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.Grid(r.Context(), r.PathValue("id"), viewerZone(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	begins, ends := v.Schedule.Window.Instants(v.Schedule.Zone)
	writeJSON(w, http.StatusOK, gridResponse{
		ZoneTag:     v.Schedule.Zone.String(),
		StepMinutes: int(v.Schedule.Step / time.Minute),
		Window:      v.Schedule.Window,
		StartHour:   zone.HourDecimal(begins, v.Schedule.Zone),
		EndHour:     zone.HourDecimal(ends, v.Schedule.Zone),
		Runs:        v.Layouts,
		Slots:       points(v.Slots),
	})
}

// handleUpdateZone stores the caller's zone. With "keep_hours" the saved
// selection moves along so it reads the same hours on the new clock.
//
// PUT /api/events/{id}/zone {"zone_tag": "...", "keep_hours": false}
func (s *Server) handleUpdateZone(w http.ResponseWriter, r *http.Request) {
	user := caller(w, r)
	if user == "" {
		return
	}
	var req struct {
		ZoneTag   string `json:"zone_tag"`
		KeepHours bool   `json:"keep_hours"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.KeepHours {
		res, dropped, err := s.svc.MoveSelection(r.Context(), r.PathValue("id"), user, req.ZoneTag)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		sel, err := interval.Expand(res.Spans, s.svc.Step(), interval.Exclusive)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, movedSelectionResponse{
			selectionResponse: selectionResponse{Slots: points(sel), Spans: res.Spans, Runs: res.Runs},
			Dropped:           dropped,
		})
		return
	}
	if err := s.svc.UpdateZone(r.Context(), r.PathValue("id"), user, req.ZoneTag); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleParticipants(w http.ResponseWriter, r *http.Request) {
	ps, err := s.svc.Participants(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]participantDTO, 0, len(ps))
	for _, p := range ps {
		dto := participantDTO{UserID: p.UserID, ZoneTag: p.ZoneTag, ZoneDisplay: p.ZoneTag, JoinedAt: p.JoinedAt, SlotCount: p.SlotCount}
		if z, err := zone.ParseZoneTag(p.ZoneTag); err == nil {
			dto.ZoneDisplay = z.Display()
		}
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRemoveParticipants(w http.ResponseWriter, r *http.Request) {
	user := caller(w, r)
	if user == "" {
		return
	}
	var req struct {
		UserIDs []string `json:"user_ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	n, err := s.svc.RemoveParticipants(r.Context(), r.PathValue("id"), user, req.UserIDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": n})
}

// handleImport marks the caller available wherever a calendar has no
// events. The body is either raw text/calendar or JSON:
//
//	{"url": "webcal://...", "zone_tag": "...", "merge": true, "include_all_day": false}
//
// With a raw body, zone, merge and all_day come from the query string.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	user := caller(w, r)
	if user == "" {
		return
	}
	id := r.PathValue("id")

	var (
		res schedule.ImportResult
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req struct {
			URL           string `json:"url"`
			ZoneTag       string `json:"zone_tag"`
			Merge         bool   `json:"merge"`
			IncludeAllDay bool   `json:"include_all_day"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeServiceError(w, r, err)
			return
		}
		if req.URL == "" {
			writeError(w, http.StatusBadRequest, "url is required")
			return
		}
		res, err = s.svc.ImportCalendarURL(r.Context(), id, user, req.ZoneTag, req.URL,
			schedule.ImportOptions{Merge: req.Merge, IncludeAllDay: req.IncludeAllDay})
	} else {
		q := r.URL.Query()
		var body []byte
		body, err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read body")
			return
		}
		merge, _ := strconv.ParseBool(q.Get("merge"))
		allDay, _ := strconv.ParseBool(q.Get("all_day"))
		res, err = s.svc.ImportCalendar(r.Context(), id, user, viewerZone(r), body,
			schedule.ImportOptions{Merge: merge, IncludeAllDay: allDay})
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	spans := res.Saved.Spans
	if spans == nil {
		spans = []interval.Span{}
	}
	writeJSON(w, http.StatusOK, importResponse{
		Busy:      res.Busy,
		Truncated: res.Truncated,
		FreeSlots: res.Selection.Len(),
		Spans:     spans,
	})
}

// handleExport serves the windows where at least ?min= participants are
// free as an iCalendar feed.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	body, err := s.svc.ExportICS(r.Context(), id, parseIntDefault(r.URL.Query().Get("min"), 1))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".ics"))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}
