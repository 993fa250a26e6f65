package density

import (
	"time"

	"github.com/ParachuteTeam/Parachute/internal/interval"
)

// Participant is one person's saved spans.
type Participant struct {
	ID    string
	Spans []interval.Span
}

// Group is the set of participants of one event.
type Group struct {
	Participants []Participant
	Step         time.Duration
	Mode         interval.Mode
}

// AvailableAt returns the IDs of participants with a span covering t, in
// participant order. Spans are read in the group's Mode, so the answer
// agrees with the density count at t.
func (g Group) AvailableAt(t time.Time) []string {
	out := make([]string, 0)
	for _, p := range g.Participants {
		for _, s := range p.Spans {
			if g.covers(s, t) {
				out = append(out, p.ID)
				break
			}
		}
	}
	return out
}

func (g Group) covers(s interval.Span, t time.Time) bool {
	if g.Mode == interval.Exclusive {
		return !t.Before(s.Start) && t.Before(s.End)
	}
	return s.Contains(t)
}

// Density expands every participant and aggregates over all of them.
func (g Group) Density() (Map, error) {
	return g.aggregate(func(Participant) bool { return true })
}

// Only returns the density of a single participant, still normalized over
// the whole group.
func (g Group) Only(id string) (Map, error) {
	return g.aggregate(func(p Participant) bool { return p.ID == id })
}

func (g Group) aggregate(keep func(Participant) bool) (Map, error) {
	sets := make([]interval.SelectionSet, 0, len(g.Participants))
	for _, p := range g.Participants {
		if !keep(p) {
			continue
		}
		set, err := interval.Expand(p.Spans, g.Step, g.Mode)
		if err != nil {
			return Map{}, err
		}
		sets = append(sets, set)
	}
	return Aggregate(sets, len(g.Participants)), nil
}
