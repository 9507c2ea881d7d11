package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateRange(t *testing.T) {
	r, err := ParseDateRange("2024-01-01", "2024-12-31")
	require.NoError(t, err)
	assert.False(t, r.IsPeriod())
	assert.Equal(t, "2024-01-01/2024-12-31", r.String())

	_, err = ParseDateRange("2024-12-31", "2024-01-01")
	require.Error(t, err)

	_, err = ParseDateRange("01/01/2024", "2024-12-31")
	require.Error(t, err)
}

func TestNewPeriod(t *testing.T) {
	r, err := NewPeriod("p7d")
	require.NoError(t, err)
	assert.True(t, r.IsPeriod())
	assert.Equal(t, "P7D", r.String())

	_, err = NewPeriod("seven days")
	require.Error(t, err)

	_, err = NewPeriod("P0D")
	require.Error(t, err)

	_, err = NewPeriod("P1.5M")
	require.Error(t, err)
}

func TestDateRange_Resolve(t *testing.T) {
	now := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

	r, err := NewPeriod("P1M2DT6H")
	require.NoError(t, err)
	start, end := r.Resolve(now)
	assert.Equal(t, time.Date(2024, time.February, 13, 6, 0, 0, 0, time.UTC), start)
	assert.Equal(t, now, end)

	explicit := LastDays(now, 365)
	start, end = explicit.Resolve(now)
	assert.Equal(t, now.AddDate(0, 0, -365), start)
	assert.Equal(t, now, end)
}

func TestDateRange_Resolve_FractionalDays(t *testing.T) {
	now := time.Date(2024, time.January, 10, 12, 0, 0, 0, time.UTC)

	r, err := NewPeriod("P1.5D")
	require.NoError(t, err)
	start, _ := r.Resolve(now)
	assert.Equal(t, time.Date(2024, time.January, 9, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, 36*time.Hour, now.Sub(start))
}

func TestDateRange_Resolve_MonthEndClamps(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		period string
		want   time.Time
	}{
		{"leap february", time.Date(2024, time.March, 31, 8, 0, 0, 0, time.UTC), "P1M", time.Date(2024, time.February, 29, 8, 0, 0, 0, time.UTC)},
		{"common february", time.Date(2023, time.March, 31, 8, 0, 0, 0, time.UTC), "P1M", time.Date(2023, time.February, 28, 8, 0, 0, 0, time.UTC)},
		{"thirty day month", time.Date(2024, time.May, 31, 8, 0, 0, 0, time.UTC), "P1M", time.Date(2024, time.April, 30, 8, 0, 0, 0, time.UTC)},
		{"across years", time.Date(2024, time.January, 31, 8, 0, 0, 0, time.UTC), "P2M", time.Date(2023, time.November, 30, 8, 0, 0, 0, time.UTC)},
		{"leap day minus a year", time.Date(2024, time.February, 29, 8, 0, 0, 0, time.UTC), "P1Y", time.Date(2023, time.February, 28, 8, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewPeriod(tt.period)
			require.NoError(t, err)
			start, end := r.Resolve(tt.now)
			assert.Equal(t, tt.want, start)
			assert.Equal(t, tt.now, end)
		})
	}
}

func TestSiteProfile_Validate(t *testing.T) {
	p := storageProfile()
	require.NoError(t, p.Validate())
	assert.Equal(t, time.UTC, p.Location())
	assert.Equal(t, DefaultDateLayout, p.DateLabelLayout())

	bad := storageProfile()
	bad.Flavor = 0
	require.Error(t, bad.Validate())

	bad = storageProfile()
	bad.TimeZone = "Mars/Olympus_Mons"
	require.Error(t, bad.Validate())

	bad = storageProfile()
	bad.Capacity = capacity(-1)
	require.Error(t, bad.Validate())
}

func TestAPIFlavor_Text(t *testing.T) {
	var f APIFlavor
	require.NoError(t, f.UnmarshalText([]byte("flat_array")))
	assert.Equal(t, FlatArray, f)

	b, err := FeatureCollection.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "feature_collection", string(b))

	require.Error(t, f.UnmarshalText([]byte("xml")))
}
