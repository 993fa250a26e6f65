// Package interval compresses step-aligned availability instants into
// contiguous spans and expands spans back into instants.
//
// All operations are pure: inputs are copied, outputs are fresh values, and
// nothing is cached between calls, so every function is safe for concurrent
// use.
package interval

import (
	"errors"
	"fmt"
	"time"
)

// DefaultStep is the grid resolution used by the scheduling grid.
const DefaultStep = 15 * time.Minute

var (
	// ErrMisalignedInstant is returned when an instant is not an exact
	// multiple of the step away from the grid origin and the grid rejects
	// misaligned input.
	ErrMisalignedInstant = errors.New("interval: instant is not aligned to step")
	// ErrInvalidStep is returned for a zero or negative step.
	ErrInvalidStep = errors.New("interval: step must be positive")
	// ErrInvalidSpan is returned when a span ends before it starts.
	ErrInvalidSpan = errors.New("interval: span ends before it starts")
)

// Mode selects how a span's End relates to the last selected instant.
type Mode int

const (
	// Exclusive spans end one step past the last selected instant: [Start, End).
	Exclusive Mode = iota
	// Inclusive spans end on the last selected instant: [Start, End].
	Inclusive
)

func (m Mode) String() string {
	switch m {
	case Exclusive:
		return "exclusive"
	case Inclusive:
		return "inclusive"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Span is a run of consecutive grid instants. On the wire it is the
// {begins, ends} pair persisted per participant.
type Span struct {
	Start time.Time `json:"begins"`
	End   time.Time `json:"ends"`
}

// Contains reports whether t lies within the span, treating both ends as
// part of it.
func (s Span) Contains(t time.Time) bool {
	return !t.Before(s.Start) && !t.After(s.End)
}

// Overlaps reports whether two half-open spans [Start, End) intersect.
func (s Span) Overlaps(o Span) bool {
	return s.Start.Before(o.End) && o.Start.Before(s.End)
}

func (s Span) String() string {
	return s.Start.UTC().Format(time.RFC3339) + "/" + s.End.UTC().Format(time.RFC3339)
}

// Normalize truncates t to millisecond resolution in UTC. Instants compare
// equal exactly when their normalized forms are equal.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func checkStep(step time.Duration) error {
	if step <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidStep, step)
	}
	return nil
}
