package zone

import (
	"fmt"
	"math"
	"time"
)

// Epoch is the fixed day wall-clock instants are anchored to. Day offsets
// count from it, so -1 is 1999-12-31.
var Epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Frame carries the offset of the clock that reads a shifted instant.
type Frame struct {
	Local ZoneTag
}

// UTCFrame reads shifted instants as UTC wall clocks.
var UTCFrame = Frame{Local: UTC}

// ToZoned shifts t so that, read in the frame's local clock, it shows z's
// wall clock: t + (z.offset - local.offset).
func (f Frame) ToZoned(t time.Time, z ZoneTag) time.Time {
	return t.Add(z.Offset() - f.Local.Offset())
}

// ToUTC is the exact inverse of ToZoned.
func (f Frame) ToUTC(t time.Time, z ZoneTag) time.Time {
	return t.Add(f.Local.Offset() - z.Offset())
}

// ToZoned is UTCFrame.ToZoned: the result's UTC fields are z's wall clock.
func ToZoned(t time.Time, z ZoneTag) time.Time {
	return UTCFrame.ToZoned(t, z).UTC()
}

// ToUTC is UTCFrame.ToUTC.
func ToUTC(t time.Time, z ZoneTag) time.Time {
	return UTCFrame.ToUTC(t, z).UTC()
}

// MakeWallClockInstant returns the instant at which z's wall clock reads
// hour:minute on Epoch + dayOffset days.
func MakeWallClockInstant(dayOffset, hour, minute int, z ZoneTag) time.Time {
	wall := time.Date(Epoch.Year(), Epoch.Month(), Epoch.Day()+dayOffset, hour, minute, 0, 0, time.UTC)
	return wall.Add(-z.Offset())
}

// MoveAcrossZones re-expresses t so that its wall-clock reading under to is
// the same as it was under from. Switching a zone preference keeps the
// chosen hours numerically unchanged.
func MoveAcrossZones(t time.Time, from, to ZoneTag) time.Time {
	return t.Add(from.Offset() - to.Offset()).UTC()
}

// DayOffset reports on which Epoch-relative day z's wall clock shows t.
func DayOffset(t time.Time, z ZoneTag) int {
	wall := ToZoned(t, z)
	return int(math.Floor(wall.Sub(Epoch).Hours() / 24))
}

// MinuteOfDay is z's wall-clock reading of t in minutes after midnight.
func MinuteOfDay(t time.Time, z ZoneTag) int {
	wall := ToZoned(t, z)
	return wall.Hour()*60 + wall.Minute()
}

// HourDecimal is z's wall-clock reading of t as fractional hours (9:30 is 9.5).
func HourDecimal(t time.Time, z ZoneTag) float64 {
	return float64(MinuteOfDay(t, z)) / 60
}

// FormatTime renders z's wall clock as "06:00 PM".
func FormatTime(t time.Time, z ZoneTag) string {
	return t.In(z.Location()).Format("03:04 PM")
}

// FormatTimeWithDay appends " (+1d)" or " (-1d)" when the wall clock falls on
// a different day than Epoch.
func FormatTimeWithDay(t time.Time, z ZoneTag) string {
	s := FormatTime(t, z)
	switch d := DayOffset(t, z); {
	case d == 0:
		return s
	case d > 0:
		return fmt.Sprintf("%s (+%dd)", s, d)
	default:
		return fmt.Sprintf("%s (%dd)", s, d)
	}
}

// FormatTimespan renders "08:00 AM-10:00 PM" for an event window.
func FormatTimespan(begins, ends time.Time, z ZoneTag) string {
	return FormatTimeWithDay(begins, z) + "-" + FormatTimeWithDay(ends, z)
}
