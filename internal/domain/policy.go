package domain

import (
	"math"
	"time"
)

// StaleAfterDays is the age, in whole days, beyond which data is stale.
const StaleAfterDays = 7

// PercentCapacity returns value as a percentage of capacity, rounded to one
// decimal place, or nil when the site has no capacity.
func PercentCapacity(value float64, capacity *float64) *float64 {
	if capacity == nil || *capacity == 0 {
		return nil
	}
	p := round1(value / *capacity * 100)
	return &p
}

// StaleDays returns the whole days elapsed between ts and now. Future
// timestamps yield negative values.
func StaleDays(ts, now time.Time) int {
	return int(math.Floor(now.Sub(ts).Hours() / 24))
}

// IsStale reports whether data that many days old should carry a warning.
func IsStale(staleDays int) bool {
	return staleDays > StaleAfterDays
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
