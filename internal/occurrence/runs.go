package occurrence

import "strings"

// Run is a maximal stretch of consecutive calendar days.
type Run struct {
	First Day `json:"first"`
	Last  Day `json:"last"`
	Len   int `json:"len"`
}

// Days lists every day of the run in order.
func (r Run) Days() []Day {
	out := make([]Day, 0, r.Len)
	for d := r.First; !r.Last.Before(d); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

// Group sorts and deduplicates days, then merges neighbours that are exactly
// one calendar day apart.
func Group(days []Day) []Run {
	sorted := SortDays(days)
	runs := make([]Run, 0)
	if len(sorted) == 0 {
		return runs
	}

	current := Run{First: sorted[0], Last: sorted[0], Len: 1}
	for _, d := range sorted[1:] {
		if current.Last.AddDays(1) == d {
			current.Last = d
			current.Len++
			continue
		}
		runs = append(runs, current)
		current = Run{First: d, Last: d, Len: 1}
	}
	return append(runs, current)
}

// FormatOccurring summarizes days as "Jan 2 - Jan 4, Jan 6", or with
// weekOnly as "Mon - Wed, Fri".
func FormatOccurring(days []Day, weekOnly bool) string {
	label := func(d Day) string {
		if weekOnly {
			return d.Time().Format("Mon")
		}
		return d.Time().Format("Jan 2")
	}

	runs := Group(days)
	parts := make([]string, 0, len(runs))
	for _, r := range runs {
		if r.Len == 1 {
			parts = append(parts, label(r.First))
			continue
		}
		parts = append(parts, label(r.First)+" - "+label(r.Last))
	}
	return strings.Join(parts, ", ")
}
