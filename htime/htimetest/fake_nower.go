// Package htimetest provides a fake clock for tests that record insertion
// times or compare against "now".
package htimetest

import (
	"time"
)

// FakeNower satisfies htime.Nower with a fixed instant, so tests control
// the clock instead of the wall.
type FakeNower struct {
	FakeNow time.Time
}

// NewFakeNower returns a fake clock pinned to the given instant.
func NewFakeNower(fixed time.Time) *FakeNower {
	return &FakeNower{FakeNow: fixed}
}

// Now returns the pinned instant. A zero-valued FakeNower pins itself to
// the timestamp of the sample firewall log line used throughout the tests.
func (f *FakeNower) Now() time.Time {
	if f.FakeNow.IsZero() {
		f.FakeNow = time.Date(2005, time.April, 11, 8, 5, 57, 0, time.UTC)
	}
	return f.FakeNow
}
