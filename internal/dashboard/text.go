package dashboard

import (
	"fmt"

	"github.com/couchcryptid/hydro-feed-service/internal/domain"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const (
	longDateLayout  = "January 2, 2006"
	shortDateLayout = "1/2/2006"
)

var printer = message.NewPrinter(language.AmericanEnglish)

// FormatNumber groups thousands and keeps up to three fraction digits,
// e.g. 75000 -> "75,000" and 12.5 -> "12.5".
func FormatNumber(v float64) string {
	return printer.Sprint(number.Decimal(v, number.MaxFractionDigits(3)))
}

// FormatPercent renders a percentage with one decimal, e.g. "90.1%".
func FormatPercent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

// SummaryText is the one-sentence description of a feed's latest reading.
func SummaryText(site domain.SiteProfile, s domain.SummaryRecord) string {
	date := s.Timestamp.In(site.Location()).Format(longDateLayout)
	value := FormatNumber(s.Value) + " " + site.UnitLabel
	if s.PercentCapacity != nil {
		return fmt.Sprintf("As of %s, %s's %s is %s, which is %s of its capacity.",
			date, site.Name, site.Measure, value, FormatPercent(*s.PercentCapacity))
	}
	return fmt.Sprintf("As of %s, %s %s is %s.", date, site.Name, site.Measure, value)
}

// AdvisoryText warns about stale data. It is empty when the reading is fresh.
func AdvisoryText(site domain.SiteProfile, s domain.SummaryRecord) string {
	if !s.IsStale {
		return ""
	}
	return fmt.Sprintf("Advisory: Latest data is %d days old (last update: %s)",
		s.StaleDays, s.Timestamp.In(site.Location()).Format(shortDateLayout))
}

// LoadingText is shown while a refresh is in flight.
func LoadingText(site domain.SiteProfile) string {
	return fmt.Sprintf("Loading %s data...", site.Measure)
}

// NoDataText is shown when the selected period yields no valid observations.
func NoDataText(site domain.SiteProfile) string {
	return fmt.Sprintf("No %s data found for %s in the selected period.", site.Measure, site.Name)
}

// FailureText is shown when a refresh fails.
func FailureText(site domain.SiteProfile, msg string) string {
	return fmt.Sprintf("Failed to load %s data: %s", site.Measure, msg)
}

// GaugeFill clamps a percentage into the [0, 100] range used for the fill height.
func GaugeFill(percent float64) float64 {
	return min(max(percent, 0), 100)
}
