package schedule

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ParachuteTeam/Parachute/internal/density"
	"github.com/ParachuteTeam/Parachute/internal/interval"
	appLog "github.com/ParachuteTeam/Parachute/internal/log"
	"github.com/ParachuteTeam/Parachute/internal/model"
	"github.com/ParachuteTeam/Parachute/internal/occurrence"
	"github.com/ParachuteTeam/Parachute/internal/zone"
)

// GroupView is the aggregated availability of an event.
type GroupView struct {
	Participants []model.Participant
	Group        density.Group
	Density      density.Map
}

// GridView is the selectable grid of an event on one viewer's clock.
type GridView struct {
	Schedule occurrence.Schedule
	Layouts  []occurrence.RunLayout
	Slots    interval.SelectionSet
}

// JoinEvent adds userID to the event behind code. Joining twice is a no-op.
func (s *Service) JoinEvent(ctx context.Context, code, userID, zoneTag string) (model.Event, error) {
	if err := requireUser(userID); err != nil {
		return model.Event{}, err
	}
	z, err := s.zoneTag(zoneTag)
	if err != nil {
		return model.Event{}, err
	}
	ev, err := s.store.GetEventByJoinCode(ctx, code)
	if err != nil {
		return model.Event{}, err
	}
	if err := s.store.UpsertParticipant(ctx, ev.ID, userID, z.String()); err != nil {
		return model.Event{}, err
	}
	appLog.Info("participant joined", "event", ev.ID, "user", userID)
	return ev, nil
}

// MySelection expands a participant's saved spans back into grid instants.
func (s *Service) MySelection(ctx context.Context, eventID, userID string) (interval.SelectionSet, error) {
	if err := requireUser(userID); err != nil {
		return interval.SelectionSet{}, err
	}
	spans, err := s.store.ListTimeslots(ctx, eventID, userID)
	if err != nil {
		return interval.SelectionSet{}, err
	}
	return interval.Expand(spans, s.grid.Step, interval.Exclusive)
}

// MySpans returns a participant's spans exactly as stored: split at run
// and part bounds, exclusive at End.
func (s *Service) MySpans(ctx context.Context, eventID, userID string) ([]interval.Span, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.ListTimeslots(ctx, eventID, userID)
}

// SaveSelection replaces a participant's availability with points. Points
// are aligned to the grid under the configured policy and must fall inside
// the event's grid. The participant joins the event if needed.
func (s *Service) SaveSelection(ctx context.Context, eventID, userID, zoneTag string, points []time.Time) (occurrence.Result, error) {
	if err := requireUser(userID); err != nil {
		return occurrence.Result{}, err
	}
	z, err := s.zoneTag(zoneTag)
	if err != nil {
		return occurrence.Result{}, err
	}
	_, sched, err := s.loadSchedule(ctx, eventID)
	if err != nil {
		return occurrence.Result{}, err
	}
	sel, err := s.grid.Align(points)
	if err != nil {
		return occurrence.Result{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return s.save(ctx, eventID, userID, z.String(), sched, sel)
}

func (s *Service) save(ctx context.Context, eventID, userID, zoneTag string, sched occurrence.Schedule, sel interval.SelectionSet) (occurrence.Result, error) {
	res, err := sched.Compress(sel, interval.Exclusive)
	if err != nil {
		return occurrence.Result{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := s.store.ReplaceTimeslots(ctx, eventID, userID, zoneTag, res.Spans); err != nil {
		return occurrence.Result{}, err
	}
	appLog.Info("selection saved", "event", eventID, "user", userID, "slots", sel.Len(), "spans", len(res.Spans))
	return res, nil
}

// UpdateZone stores a participant's zone tag.
func (s *Service) UpdateZone(ctx context.Context, eventID, userID, zoneTag string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if zoneTag == "" {
		return fmt.Errorf("%w: zone tag is required", ErrInvalidInput)
	}
	z, err := s.zoneTag(zoneTag)
	if err != nil {
		return err
	}
	return s.store.UpdateParticipantZone(ctx, eventID, userID, z.String())
}

// MoveSelection switches a participant's zone and carries their selection
// along, so every slot reads the same wall-clock hour under the new zone as
// it did under the old one. Slots that land outside the event grid are
// dropped and counted.
func (s *Service) MoveSelection(ctx context.Context, eventID, userID, zoneTag string) (occurrence.Result, int, error) {
	if err := requireUser(userID); err != nil {
		return occurrence.Result{}, 0, err
	}
	if zoneTag == "" {
		return occurrence.Result{}, 0, fmt.Errorf("%w: zone tag is required", ErrInvalidInput)
	}
	to, err := s.zoneTag(zoneTag)
	if err != nil {
		return occurrence.Result{}, 0, err
	}
	_, sched, err := s.loadSchedule(ctx, eventID)
	if err != nil {
		return occurrence.Result{}, 0, err
	}
	ps, err := s.store.ListParticipants(ctx, eventID)
	if err != nil {
		return occurrence.Result{}, 0, err
	}
	i := slices.IndexFunc(ps, func(p model.Participant) bool { return p.UserID == userID })
	if i < 0 {
		return occurrence.Result{}, 0, fmt.Errorf("participant %q: %w", userID, ErrNotFound)
	}
	from, err := s.zoneTag(ps[i].ZoneTag)
	if err != nil {
		return occurrence.Result{}, 0, err
	}

	spans, err := s.store.ListTimeslots(ctx, eventID, userID)
	if err != nil {
		return occurrence.Result{}, 0, err
	}
	sel, err := interval.Expand(spans, s.grid.Step, interval.Exclusive)
	if err != nil {
		return occurrence.Result{}, 0, err
	}
	grid := sched.Slots()
	moved := make([]time.Time, 0, sel.Len())
	for t := range sel.All() {
		if m := zone.MoveAcrossZones(t, from, to); grid.Contains(m) {
			moved = append(moved, m)
		}
	}
	dropped := sel.Len() - len(moved)
	if dropped > 0 {
		appLog.Debug("slots left the grid on zone move", "event", eventID, "user", userID, "dropped", dropped)
	}
	res, err := s.save(ctx, eventID, userID, to.String(), sched, interval.NewSelectionSet(moved...))
	if err != nil {
		return occurrence.Result{}, 0, err
	}
	if err := s.store.UpdateParticipantZone(ctx, eventID, userID, to.String()); err != nil {
		return occurrence.Result{}, 0, err
	}
	return res, dropped, nil
}

// Participants lists an event's participants.
func (s *Service) Participants(ctx context.Context, eventID string) ([]model.Participant, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.ListParticipants(ctx, eventID)
}

// RemoveParticipants drops participants from an event the caller owns. The
// owner cannot be removed.
func (s *Service) RemoveParticipants(ctx context.Context, eventID, callerID string, userIDs []string) (int64, error) {
	ev, err := s.ownedEvent(ctx, eventID, callerID)
	if err != nil {
		return 0, err
	}
	if slices.Contains(userIDs, ev.OwnerID) {
		return 0, fmt.Errorf("%w: the owner cannot be removed", ErrInvalidInput)
	}
	n, err := s.store.DeleteParticipants(ctx, eventID, userIDs)
	if err != nil {
		return 0, err
	}
	appLog.Info("participants removed", "event", eventID, "count", n)
	return n, nil
}

// Group loads every participant's spans. N is the participant count, so
// participants who saved nothing still weigh on the ratios.
func (s *Service) Group(ctx context.Context, eventID string) (GroupView, error) {
	participants, err := s.Participants(ctx, eventID)
	if err != nil {
		return GroupView{}, err
	}
	slots, err := s.store.ListEventTimeslots(ctx, eventID)
	if err != nil {
		return GroupView{}, err
	}
	byUser := make(map[string][]interval.Span, len(participants))
	for _, ts := range slots {
		byUser[ts.UserID] = append(byUser[ts.UserID], ts.Span)
	}

	g := density.Group{Step: s.grid.Step, Mode: interval.Exclusive}
	for _, p := range participants {
		g.Participants = append(g.Participants, density.Participant{ID: p.UserID, Spans: byUser[p.UserID]})
	}
	m, err := g.Density()
	if err != nil {
		return GroupView{}, err
	}
	return GroupView{Participants: participants, Group: g, Density: m}, nil
}

// GroupDensity aggregates all participants' availability.
func (s *Service) GroupDensity(ctx context.Context, eventID string) (density.Map, error) {
	v, err := s.Group(ctx, eventID)
	if err != nil {
		return density.Map{}, err
	}
	return v.Density, nil
}

// ParticipantDensity is one participant's availability, with ratios still
// taken over the whole group.
func (s *Service) ParticipantDensity(ctx context.Context, eventID, userID string) (density.Map, error) {
	v, err := s.Group(ctx, eventID)
	if err != nil {
		return density.Map{}, err
	}
	if !slices.ContainsFunc(v.Participants, func(p model.Participant) bool { return p.UserID == userID }) {
		return density.Map{}, fmt.Errorf("participant %q: %w", userID, ErrNotFound)
	}
	return v.Group.Only(userID)
}

// AvailableAt lists the participants available at t.
func (s *Service) AvailableAt(ctx context.Context, eventID string, t time.Time) ([]string, error) {
	v, err := s.Group(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return v.Group.AvailableAt(interval.Normalize(t)), nil
}

// Grid lays the event's grid out on the viewer's clock. An empty viewer tag
// uses the event's own zone.
func (s *Service) Grid(ctx context.Context, eventID, viewerTag string) (GridView, error) {
	_, sched, err := s.loadSchedule(ctx, eventID)
	if err != nil {
		return GridView{}, err
	}
	if viewerTag != "" {
		viewer, err := s.zoneTag(viewerTag)
		if err != nil {
			return GridView{}, err
		}
		sched = sched.In(viewer)
	}
	return GridView{Schedule: sched, Layouts: sched.Layouts(), Slots: sched.Slots()}, nil
}
