package main

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// releasePolicy decides when a puzzle's solution may be shown: at hour
// o'clock local time on the day after the puzzle date.
type releasePolicy struct {
	loc  *time.Location
	hour int
	now  func() time.Time
}

func newReleasePolicy(loc *time.Location, hour int) releasePolicy {
	if loc == nil {
		loc = time.UTC
	}
	return releasePolicy{loc: loc, hour: hour, now: time.Now}
}

// releaseAt returns the release instant for the puzzle dated date.
func (p releasePolicy) releaseAt(date string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, date, p.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("puzzle date %q: %w", date, err)
	}
	return time.Date(d.Year(), d.Month(), d.Day()+1, p.hour, 0, 0, 0, p.loc), nil
}

// available reports whether the solution for date is released. Undated or
// malformed dates are never released.
func (p releasePolicy) available(date string) bool {
	at, err := p.releaseAt(date)
	if err != nil {
		return false
	}
	return !p.now().Before(at)
}

// message tells the player when the solution unlocks.
func (p releasePolicy) message(date string) string {
	at, err := p.releaseAt(date)
	if err != nil {
		return "The solution for this puzzle is not available."
	}
	return fmt.Sprintf("The solution will be available from %s on %s.",
		at.Format("15:04"), at.Format("Monday 2 January"))
}

// today returns the current date key in the policy's timezone.
func (p releasePolicy) today() string {
	return p.now().In(p.loc).Format(dateLayout)
}
