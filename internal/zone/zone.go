// Package zone converts between UTC instants and a participant's declared
// wall clock.
//
// A ZoneTag pairs an IANA identifier with a UTC offset that is captured once,
// when the tag is built, and never recomputed. An event that spans a DST
// transition therefore keeps the offset of the moment the tag was made; "8am
// every day this week" stays at the same UTC instant each day. This is a
// documented simplification, not an oversight.
package zone

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidZoneTag is returned for a tag whose GMT offset segment is
	// missing or malformed.
	ErrInvalidZoneTag = errors.New("zone: invalid zone tag")
	// ErrUnknownZone is returned when an IANA identifier cannot be resolved.
	ErrUnknownZone = errors.New("zone: unknown zone identifier")
)

const (
	maxOffsetHours = 14
	gmtPrefix      = "GMT"
)

// ZoneTag is a zone identifier with its frozen offset in minutes east of UTC.
type ZoneTag struct {
	Identifier    string
	OffsetMinutes int
}

// UTC is the zero-offset tag.
var UTC = ZoneTag{Identifier: "UTC"}

// ParseZoneTag parses the wire form "<identifier>,GMT<offset>", for example
// "America/Chicago,GMT-06:00" or "Asia/Kolkata,GMT+5:30". A bare "GMT"
// segment means offset zero. The tag splits at its first comma, so an
// identifier cannot contain one.
func ParseZoneTag(tag string) (ZoneTag, error) {
	comma := strings.Index(tag, ",")
	if comma < 0 {
		return ZoneTag{}, fmt.Errorf("%w: %q has no offset segment", ErrInvalidZoneTag, tag)
	}
	id := strings.TrimSpace(tag[:comma])
	seg := strings.TrimSpace(tag[comma+1:])
	if !strings.HasPrefix(seg, gmtPrefix) {
		return ZoneTag{}, fmt.Errorf("%w: %q has no GMT segment", ErrInvalidZoneTag, tag)
	}
	offset, err := parseOffset(strings.TrimPrefix(seg, gmtPrefix))
	if err != nil {
		return ZoneTag{}, fmt.Errorf("%w: %q: %v", ErrInvalidZoneTag, tag, err)
	}
	return ZoneTag{Identifier: id, OffsetMinutes: offset}, nil
}

// MustParse is ParseZoneTag for constants and tests.
func MustParse(tag string) ZoneTag {
	z, err := ParseZoneTag(tag)
	if err != nil {
		panic(err)
	}
	return z
}

// parseOffset reads a signed hours[:minutes] value.
func parseOffset(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	sign := 1
	switch s[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return 0, fmt.Errorf("offset %q must start with + or -", s)
	}
	hoursPart, minutesPart, hasMinutes := strings.Cut(s[1:], ":")
	if len(hoursPart) == 0 || len(hoursPart) > 2 {
		return 0, fmt.Errorf("offset hours %q must have one or two digits", hoursPart)
	}
	hours, err := strconv.Atoi(hoursPart)
	if err != nil || hours < 0 || hours > maxOffsetHours {
		return 0, fmt.Errorf("offset hours %q out of range", hoursPart)
	}
	minutes := 0
	if hasMinutes {
		if len(minutesPart) != 2 {
			return 0, fmt.Errorf("offset minutes %q must have two digits", minutesPart)
		}
		minutes, err = strconv.Atoi(minutesPart)
		if err != nil || minutes < 0 || minutes > 59 {
			return 0, fmt.Errorf("offset minutes %q out of range", minutesPart)
		}
	}
	return sign * (hours*60 + minutes), nil
}

// GMT renders the offset as "GMT-06:00".
func (z ZoneTag) GMT() string {
	sign := '+'
	m := z.OffsetMinutes
	if m < 0 {
		sign = '-'
		m = -m
	}
	return fmt.Sprintf("%s%c%02d:%02d", gmtPrefix, sign, m/60, m%60)
}

// String renders the wire form accepted by ParseZoneTag.
func (z ZoneTag) String() string {
	return z.Identifier + "," + z.GMT()
}

// Display renders "America/Chicago (GMT-06:00)" for participant lists.
func (z ZoneTag) Display() string {
	return z.Identifier + " (" + z.GMT() + ")"
}

// Offset is the frozen offset as a duration.
func (z ZoneTag) Offset() time.Duration {
	return time.Duration(z.OffsetMinutes) * time.Minute
}

// Location is a fixed-offset location carrying the frozen offset, so
// t.In(z.Location()) reads the tag's wall clock without consulting tzdata.
func (z ZoneTag) Location() *time.Location {
	return time.FixedZone(z.Identifier, z.OffsetMinutes*60)
}

func (z ZoneTag) MarshalText() ([]byte, error) {
	return []byte(z.String()), nil
}

func (z *ZoneTag) UnmarshalText(b []byte) error {
	parsed, err := ParseZoneTag(string(b))
	if err != nil {
		return err
	}
	*z = parsed
	return nil
}

// CurrentOffset resolves identifier and returns its offset in minutes at
// reference. The caller picks the reference instant once per session; the
// result is never refreshed.
func CurrentOffset(identifier string, reference time.Time) (int, error) {
	loc, err := time.LoadLocation(identifier)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrUnknownZone, identifier, err)
	}
	_, secs := reference.In(loc).Zone()
	return secs / 60, nil
}

// CurrentZoneTag builds a tag for identifier with the offset in effect at
// reference.
func CurrentZoneTag(identifier string, reference time.Time) (ZoneTag, error) {
	offset, err := CurrentOffset(identifier, reference)
	if err != nil {
		return ZoneTag{}, err
	}
	return ZoneTag{Identifier: identifier, OffsetMinutes: offset}, nil
}
