package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// APIFlavor selects the upstream response shape for a site.
type APIFlavor int

const (
	// FeatureCollection is a GeoJSON-like document with a features array.
	FeatureCollection APIFlavor = iota + 1
	// FlatArray is a bare JSON array of {date, value} records.
	FlatArray
)

func (f APIFlavor) String() string {
	switch f {
	case FeatureCollection:
		return "feature_collection"
	case FlatArray:
		return "flat_array"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (f APIFlavor) MarshalText() ([]byte, error) {
	if f != FeatureCollection && f != FlatArray {
		return nil, fmt.Errorf("unknown api flavor %d", int(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so flavors can be read
// from YAML and TOML site files.
func (f *APIFlavor) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "feature_collection", "featurecollection", "usgs":
		*f = FeatureCollection
	case "flat_array", "flatarray", "cdec":
		*f = FlatArray
	default:
		return fmt.Errorf("unknown api flavor %q", string(b))
	}
	return nil
}

// DefaultDateLayout renders table dates like "Jan 3, 2024".
const DefaultDateLayout = "Jan 2, 2006"

// ChartStyle is the display configuration handed to the charting collaborator.
type ChartStyle struct {
	Label         string `json:"label" yaml:"label" toml:"label"`
	YAxisTitle    string `json:"y_axis_title" yaml:"y_axis_title" toml:"y_axis_title"`
	Color         string `json:"color" yaml:"color" toml:"color"`
	TooltipFormat string `json:"tooltip_format" yaml:"tooltip_format" toml:"tooltip_format"`
}

// SiteProfile is the static configuration of one monitored feed.
type SiteProfile struct {
	Key           string     `yaml:"key" toml:"key"`
	Name          string     `yaml:"name" toml:"name"`
	Measure       string     `yaml:"measure" toml:"measure"` // "storage", "discharge", "outflow"
	SiteID        string     `yaml:"site_id" toml:"site_id"`
	ParameterCode string     `yaml:"parameter_code" toml:"parameter_code"` // USGS parameter or CDEC sensor number
	UnitLabel     string     `yaml:"unit" toml:"unit"`
	Capacity      *float64   `yaml:"capacity,omitempty" toml:"capacity,omitempty"`
	Flavor        APIFlavor  `yaml:"flavor" toml:"flavor"`
	MaxPoints     int        `yaml:"max_points,omitempty" toml:"max_points,omitempty"` // 0 disables downsampling
	Duration      string     `yaml:"duration,omitempty" toml:"duration,omitempty"`     // CDEC dur_code
	Resource      string     `yaml:"resource,omitempty" toml:"resource,omitempty"`     // relay resource path
	TimeZone      string     `yaml:"time_zone,omitempty" toml:"time_zone,omitempty"`
	DateLayout    string     `yaml:"date_layout,omitempty" toml:"date_layout,omitempty"`
	Chart         ChartStyle `yaml:"chart" toml:"chart"`

	loc *time.Location
}

// Validate checks required fields and resolves the time zone.
func (p *SiteProfile) Validate() error {
	if p.Key == "" {
		return errors.New("site key is required")
	}
	if p.SiteID == "" {
		return fmt.Errorf("site %s: site_id is required", p.Key)
	}
	if p.ParameterCode == "" {
		return fmt.Errorf("site %s: parameter_code is required", p.Key)
	}
	if p.Flavor != FeatureCollection && p.Flavor != FlatArray {
		return fmt.Errorf("site %s: flavor is required", p.Key)
	}
	if p.Capacity != nil && *p.Capacity <= 0 {
		return fmt.Errorf("site %s: capacity must be positive", p.Key)
	}
	if p.MaxPoints < 0 {
		return fmt.Errorf("site %s: max_points must not be negative", p.Key)
	}
	if p.TimeZone != "" {
		loc, err := time.LoadLocation(p.TimeZone)
		if err != nil {
			return fmt.Errorf("site %s: time zone: %w", p.Key, err)
		}
		p.loc = loc
	}
	return nil
}

// Location returns the zone used for zone-less timestamps and date labels.
func (p SiteProfile) Location() *time.Location {
	if p.loc != nil {
		return p.loc
	}
	return time.UTC
}

// DateLabelLayout returns the layout used for table date labels.
func (p SiteProfile) DateLabelLayout() string {
	if p.DateLayout != "" {
		return p.DateLayout
	}
	return DefaultDateLayout
}

// HasQualityCodes reports whether the feed carries an approval status column.
func (p SiteProfile) HasQualityCodes() bool {
	return p.Flavor == FeatureCollection
}

// ChartSpec is a prepared point series plus its display configuration.
type ChartSpec struct {
	Feed   string       `json:"feed"`
	Style  ChartStyle   `json:"style"`
	Unit   string       `json:"unit"`
	Points []ChartPoint `json:"points"`
}

// ChartSpec binds the profile's chart style to a point series.
func (p SiteProfile) ChartSpec(points []ChartPoint) ChartSpec {
	return ChartSpec{
		Feed:   p.Key,
		Style:  p.Chart,
		Unit:   p.UnitLabel,
		Points: points,
	}
}
