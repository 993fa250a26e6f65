package web

import (
	"net/http"
	"time"

	"github.com/ParachuteTeam/Parachute/internal/model"
	"github.com/ParachuteTeam/Parachute/internal/occurrence"
	"github.com/ParachuteTeam/Parachute/internal/schedule"
)

// createEventRequest is the body of POST /api/events.
type createEventRequest struct {
	Name     string `json:"name"`
	ZoneTag  string `json:"zone_tag"`
	Kind     string `json:"kind"`
	Days     string `json:"days"`
	Weekdays string `json:"weekdays"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

// eventDTO is the JSON view of a stored event.
type eventDTO struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	JoinCode         string    `json:"join_code"`
	OwnerID          string    `json:"owner_id"`
	ZoneTag          string    `json:"zone_tag"`
	Kind             string    `json:"kind"`
	OccurringDays    string    `json:"occurring_days"`
	Begins           time.Time `json:"begins"`
	Ends             time.Time `json:"ends"`
	LastDay          string    `json:"last_day,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	ParticipantCount *int      `json:"participant_count,omitempty"`
}

// eventDetailsDTO adds the viewer-relative reading of the grid.
type eventDetailsDTO struct {
	eventDTO
	ViewerZone  string            `json:"viewer_zone"`
	ZoneDisplay string            `json:"zone_display"`
	Days        []occurrence.Day  `json:"days"`
	Window      occurrence.Window `json:"window"`
	Occurring   string            `json:"occurring"`
	Timespan    string            `json:"timespan"`
}

func toEventDTO(ev model.Event) eventDTO {
	return eventDTO{
		ID:            ev.ID,
		Name:          ev.Name,
		JoinCode:      ev.JoinCode,
		OwnerID:       ev.OwnerID,
		ZoneTag:       ev.ZoneTag,
		Kind:          string(ev.Kind),
		OccurringDays: ev.OccurringDays,
		Begins:        ev.Begins,
		Ends:          ev.Ends,
		LastDay:       ev.LastDay,
		CreatedAt:     ev.CreatedAt,
	}
}

func toDetailsDTO(d schedule.EventDetails) eventDetailsDTO {
	return eventDetailsDTO{
		eventDTO:    toEventDTO(d.Event),
		ViewerZone:  d.Zone.String(),
		ZoneDisplay: d.Zone.Display(),
		Days:        d.Days,
		Window:      d.Window,
		Occurring:   d.Occurring,
		Timespan:    d.Timespan,
	}
}

// handleCreateEvent creates an event owned by the caller.
//
// POST /api/events
//
//	{"name":"Standup","zone_tag":"America/Chicago,GMT-06:00","kind":"DATES",
//	 "days":"2024-03-04,2024-03-05","start":"09:00","end":"17:00"}
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	user := caller(w, r)
	if user == "" {
		return
	}
	var req createEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	ev, err := s.svc.CreateEvent(r.Context(), schedule.CreateEventInput{
		Name:     req.Name,
		OwnerID:  user,
		ZoneTag:  req.ZoneTag,
		Kind:     model.EventKind(req.Kind),
		Days:     req.Days,
		Weekdays: req.Weekdays,
		Start:    req.Start,
		End:      req.End,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTO(ev))
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	user := caller(w, r)
	if user == "" {
		return
	}
	events, err := s.svc.ListEvents(r.Context(), user)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]eventDTO, 0, len(events))
	for _, e := range events {
		dto := toEventDTO(e.Event)
		n := e.ParticipantCount
		dto.ParticipantCount = &n
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetEvent returns an event read on the ?zone= clock, or the host's.
func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.GetEvent(r.Context(), r.PathValue("id"), viewerZone(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDetailsDTO(d))
}

func (s *Server) handleRenameEvent(w http.ResponseWriter, r *http.Request) {
	user := caller(w, r)
	if user == "" {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if err := s.svc.RenameEvent(r.Context(), id, user, req.Name); err != nil {
		writeServiceError(w, r, err)
		return
	}
	d, err := s.svc.GetEvent(r.Context(), id, "")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDetailsDTO(d))
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	user := caller(w, r)
	if user == "" {
		return
	}
	if err := s.svc.DeleteEvent(r.Context(), r.PathValue("id"), user); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLookupJoinCode(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.LookupJoinCode(r.Context(), r.PathValue("code"), viewerZone(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDetailsDTO(d))
}

// handleJoin adds the caller to the event behind a join code. The body is
// optional: {"zone_tag": "..."}.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	user := caller(w, r)
	if user == "" {
		return
	}
	var req struct {
		ZoneTag string `json:"zone_tag"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	ev, err := s.svc.JoinEvent(r.Context(), r.PathValue("code"), user, req.ZoneTag)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(ev))
}
