package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

// DayLayout is the date format upstream APIs take for range bounds.
const DayLayout = "2006-01-02"

// DateRange selects the observation window of a fetch: either explicit
// calendar dates or an ISO-8601 period ending now (e.g. "P7D").
type DateRange struct {
	Start  time.Time
	End    time.Time
	Period string
}

// NewDateRange returns an explicit range. start must not be after end.
func NewDateRange(start, end time.Time) (DateRange, error) {
	if start.After(end) {
		return DateRange{}, fmt.Errorf("start %s is after end %s", start.Format(DayLayout), end.Format(DayLayout))
	}
	return DateRange{Start: start, End: end}, nil
}

// ParseDateRange parses YYYY-MM-DD bounds.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(DayLayout, strings.TrimSpace(start))
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid start date %q", start)
	}
	e, err := time.Parse(DayLayout, strings.TrimSpace(end))
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid end date %q", end)
	}
	return NewDateRange(s, e)
}

// NewPeriod returns a range covering an ISO-8601 period back from now.
func NewPeriod(period string) (DateRange, error) {
	period = strings.ToUpper(strings.TrimSpace(period))
	d, err := duration.Parse(period)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid period %q: %w", period, err)
	}
	if d.Negative || d.ToTimeDuration() <= 0 {
		return DateRange{}, errors.New("period must be positive")
	}
	if d.Years != math.Trunc(d.Years) || d.Months != math.Trunc(d.Months) {
		return DateRange{}, fmt.Errorf("invalid period %q: years and months must be whole", period)
	}
	return DateRange{Period: period}, nil
}

// LastDays returns the explicit range of the days days leading up to now.
func LastDays(now time.Time, days int) DateRange {
	end := now.UTC()
	return DateRange{Start: end.AddDate(0, 0, -days), End: end}
}

// IsPeriod reports whether the range is expressed as a period.
func (r DateRange) IsPeriod() bool {
	return r.Period != ""
}

// Resolve returns concrete bounds, expanding a period backwards from now.
// Month steps clamp to the end of the target month, so P1M from March 31 is
// February 29 in a leap year. Fractional weeks and days carry into the
// clock-time part of the period.
func (r DateRange) Resolve(now time.Time) (time.Time, time.Time) {
	if !r.IsPeriod() {
		return r.Start, r.End
	}
	d, err := duration.Parse(r.Period)
	if err != nil {
		return now, now
	}

	start := addMonths(now, -(12*int(d.Years) + int(d.Months)))

	days := d.Weeks*7 + d.Days
	whole := math.Floor(days)
	start = start.AddDate(0, 0, -int(whole))
	start = start.Add(-time.Duration((days-whole)*24*float64(time.Hour) +
		d.Hours*float64(time.Hour) +
		d.Minutes*float64(time.Minute) +
		d.Seconds*float64(time.Second)))
	return start, now
}

// addMonths moves t by n calendar months, keeping the day of month unless
// the target month is shorter.
func addMonths(t time.Time, n int) time.Time {
	y, m, day := t.Date()
	target := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := time.Date(target.Year(), target.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
	return time.Date(target.Year(), target.Month(), min(day, last),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// String renders the range the way the feature-collection API expects it:
// the period itself, or "start/end".
func (r DateRange) String() string {
	if r.IsPeriod() {
		return r.Period
	}
	return r.Start.Format(DayLayout) + "/" + r.End.Format(DayLayout)
}
