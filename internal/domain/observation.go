package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// RawValue is an observation value as delivered upstream. It decodes JSON
// numbers, numeric strings, empty strings and null; the latter two become "".
type RawValue string

// UnmarshalJSON keeps the literal text of the value so parsing is deferred to
// normalization, where unusable values are dropped instead of failing decode.
func (v *RawValue) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null":
		*v = ""
	case strings.HasPrefix(s, `"`):
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*v = RawValue(strings.TrimSpace(str))
	default:
		*v = RawValue(s)
	}
	return nil
}

// Float parses the value. ok is false for missing, non-numeric, NaN or
// infinite values.
func (v RawValue) Float() (float64, bool) {
	s := strings.TrimSpace(string(v))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// RawObservation is one unvalidated record from an upstream feed.
type RawObservation struct {
	Timestamp   string
	Value       RawValue
	QualityCode string // approval status; empty when the feed has none
}

// Observation is a validated data point. Value is always finite.
type Observation struct {
	Timestamp   time.Time
	Value       float64
	QualityCode string
}

// Series is a strictly ascending, duplicate-free sequence of observations.
type Series []Observation

// Latest returns the most recent observation.
func (s Series) Latest() (Observation, bool) {
	if len(s) == 0 {
		return Observation{}, false
	}
	return s[len(s)-1], true
}

// SummaryRecord describes the most recent observation of a series.
type SummaryRecord struct {
	Timestamp       time.Time `json:"timestamp"`
	Value           float64   `json:"value"`
	PercentCapacity *float64  `json:"percent_capacity,omitempty"`
	IsStale         bool      `json:"is_stale"`
	StaleDays       int       `json:"stale_days"`
}

// ChartPoint is one point of a time-axis line chart.
type ChartPoint struct {
	X time.Time `json:"x"`
	Y float64   `json:"y"`
}

// TableRow is one row of the observation table, most recent first.
type TableRow struct {
	DateLabel       string   `json:"date"`
	Value           float64  `json:"value"`
	PercentCapacity *float64 `json:"percent_capacity,omitempty"`
	QualityCode     string   `json:"quality_code,omitempty"`
}

// Projection holds everything a renderer needs for one feed. Summary is nil
// when the series was empty.
type Projection struct {
	Summary     *SummaryRecord `json:"summary,omitempty"`
	ChartPoints []ChartPoint   `json:"chart_points"`
	TableRows   []TableRow     `json:"table_rows"`
}

// Empty reports whether the projection carries no data.
func (p Projection) Empty() bool {
	return p.Summary == nil
}
