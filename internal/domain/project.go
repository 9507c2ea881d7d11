package domain

import "time"

// Project maps a normalized series into the summary, chart and table shapes
// consumed by renderers. It performs no I/O. An empty series yields a nil
// summary and empty, non-nil point and row slices.
func Project(series Series, profile SiteProfile, now time.Time) Projection {
	proj := Projection{
		ChartPoints: make([]ChartPoint, 0, len(series)),
		TableRows:   make([]TableRow, 0, len(series)),
	}

	latest, ok := series.Latest()
	if !ok {
		return proj
	}

	days := StaleDays(latest.Timestamp, now)
	proj.Summary = &SummaryRecord{
		Timestamp:       latest.Timestamp,
		Value:           latest.Value,
		PercentCapacity: PercentCapacity(latest.Value, profile.Capacity),
		IsStale:         IsStale(days),
		StaleDays:       days,
	}

	for _, o := range series {
		proj.ChartPoints = append(proj.ChartPoints, ChartPoint{X: o.Timestamp, Y: o.Value})
	}

	loc := profile.Location()
	layout := profile.DateLabelLayout()
	for i := len(series) - 1; i >= 0; i-- {
		o := series[i]
		proj.TableRows = append(proj.TableRows, TableRow{
			DateLabel:       o.Timestamp.In(loc).Format(layout),
			Value:           o.Value,
			PercentCapacity: PercentCapacity(o.Value, profile.Capacity),
			QualityCode:     o.QualityCode,
		})
	}
	return proj
}
