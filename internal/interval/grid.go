package interval

import (
	"fmt"
	"strings"
	"time"
)

// AlignPolicy decides what happens to an instant that does not sit on a
// step boundary.
type AlignPolicy int

const (
	// AlignReject fails the whole call with ErrMisalignedInstant.
	AlignReject AlignPolicy = iota
	// AlignFloor moves the instant down to the nearest lower boundary.
	AlignFloor
)

// ParseAlignPolicy maps "reject" and "floor" to a policy.
func ParseAlignPolicy(s string) (AlignPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return AlignReject, nil
	case "floor":
		return AlignFloor, nil
	default:
		return AlignReject, fmt.Errorf("interval: unknown align policy %q", s)
	}
}

func (p AlignPolicy) String() string {
	if p == AlignFloor {
		return "floor"
	}
	return "reject"
}

// Grid describes the lattice every instant of one compression or expansion
// call must sit on: Origin + k*Step.
type Grid struct {
	Step   time.Duration
	Origin time.Time
	Policy AlignPolicy
}

// DefaultGrid is a 15 minute grid anchored at the Unix epoch. Every
// quarter-hour wall clock in a zone with a whole quarter-hour offset lands on
// it.
func DefaultGrid() Grid {
	return Grid{Step: DefaultStep, Origin: time.Unix(0, 0).UTC(), Policy: AlignReject}
}

// Aligned reports whether t is an exact multiple of Step from Origin.
func (g Grid) Aligned(t time.Time) bool {
	return g.remainder(t) == 0
}

// Floor returns the nearest grid instant at or before t.
func (g Grid) Floor(t time.Time) time.Time {
	t = Normalize(t)
	return t.Add(-g.remainder(t))
}

func (g Grid) remainder(t time.Time) time.Duration {
	r := Normalize(t).Sub(Normalize(g.Origin)) % g.Step
	if r < 0 {
		r += g.Step
	}
	return r
}

// Align validates points against the grid and returns them as a set. With
// AlignReject the first misaligned instant aborts the call; with AlignFloor
// misaligned instants are floored, which may merge them with a neighbour.
func (g Grid) Align(points []time.Time) (SelectionSet, error) {
	if err := checkStep(g.Step); err != nil {
		return SelectionSet{}, err
	}

	out := make([]time.Time, 0, len(points))
	for _, p := range points {
		if g.Aligned(p) {
			out = append(out, p)
			continue
		}
		if g.Policy == AlignReject {
			return SelectionSet{}, fmt.Errorf("%w: %s (step %s)", ErrMisalignedInstant, Normalize(p).Format(time.RFC3339Nano), g.Step)
		}
		out = append(out, g.Floor(p))
	}
	return NewSelectionSet(out...), nil
}

// Compress aligns points and compresses them on this grid's step.
func (g Grid) Compress(points []time.Time, mode Mode) ([]Span, error) {
	set, err := g.Align(points)
	if err != nil {
		return nil, err
	}
	return Compress(set, g.Step, mode)
}
