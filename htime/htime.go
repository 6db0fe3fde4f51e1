// Package htime collects the time handling shared by the artifact parsers:
// assembling timestamps from broken-out components, parsing loosely
// formatted date strings, and an overridable clock for tests.
package htime

import (
	"fmt"
	"time"

	"github.com/araddon/dateparse"
)

// DefaultNower returns current time when called with Now() unless overridden
var DefaultNower Nower = &RealNower{}

type Nower interface {
	Now() time.Time
}

type RealNower struct{}

func (r *RealNower) Now() time.Time {
	return time.Now().UTC()
}

func Now() time.Time {
	return DefaultNower.Now()
}

// Date assembles a timestamp from broken-out date and time components in the
// given location. Unlike time.Date it rejects out-of-range components instead
// of normalizing them, since normalization would silently accept corrupted
// log fields (eg. month 13 becoming January of the next year).
func Date(year, month, day, hour, minute, second int, loc *time.Location) (time.Time, error) {
	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("month value out of range: %d", month)
	}
	if day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("day value out of range: %d", day)
	}
	if hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("hour value out of range: %d", hour)
	}
	if minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("minute value out of range: %d", minute)
	}
	if second < 0 || second > 60 {
		return time.Time{}, fmt.Errorf("second value out of range: %d", second)
	}
	ts := time.Date(year, time.Month(month), day, hour, minute, second, 0, loc)
	// time.Date normalizes Feb 30 and friends; a shifted month or day means
	// the components didn't describe a real calendar date.
	if ts.Day() != day || ts.Month() != time.Month(month) {
		return time.Time{}, fmt.Errorf("invalid calendar date: %04d-%02d-%02d", year, month, day)
	}
	return ts, nil
}

// ParseAny parses a date string of unknown layout in the given location.
func ParseAny(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return dateparse.ParseIn(value, loc)
}
