package domain

import (
	"slices"
	"strings"
	"time"
)

// timestampLayouts lists the formats seen upstream, tried in order. Layouts
// without a zone are parsed in the site's location.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-1-2 15:04:05",
	"2006-1-2 15:04",
	"2006/1/2 15:04:05",
	"2006/1/2 15:04",
	"2006-01-02",
	"2006/1/2",
}

// ParseTimestamp parses an upstream timestamp, interpreting zone-less values
// in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Normalize is NormalizeIn with zone-less timestamps read as UTC.
func Normalize(raw []RawObservation) Series {
	return NormalizeIn(raw, time.UTC)
}

// NormalizeIn validates, sorts and deduplicates raw observations into an
// ascending Series. Records with a missing or non-finite value, or an
// unparseable timestamp, are dropped. When several records share a timestamp
// the first one in feed order is kept.
func NormalizeIn(raw []RawObservation, loc *time.Location) Series {
	obs := make([]Observation, 0, len(raw))
	for _, r := range raw {
		v, ok := r.Value.Float()
		if !ok {
			continue
		}
		ts, ok := ParseTimestamp(r.Timestamp, loc)
		if !ok {
			continue
		}
		obs = append(obs, Observation{
			Timestamp:   ts,
			Value:       v,
			QualityCode: strings.TrimSpace(r.QualityCode),
		})
	}

	// Stable sort keeps feed order among equal timestamps, so keeping the
	// first of each run below is first-seen-wins.
	slices.SortStableFunc(obs, func(a, b Observation) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	out := obs[:0]
	for _, o := range obs {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(o.Timestamp) {
			continue
		}
		out = append(out, o)
	}
	return Series(out)
}
