// Package domain models hydrological time-series published by government
// water-data services and the pure transforms that turn them into dashboard
// material.
//
// # Data Sources
//
// Two upstream shapes are supported, selected per site by [APIFlavor]:
//
//	FeatureCollection: USGS Water Data OGC API ("daily" collection).
//	  {"features":[{"properties":{"time":"2024-01-03","value":75000,"approval_status":"Approved"}}]}
//	FlatArray: CDEC station sensor data, reached through a relay.
//	  [{"date":"2024-1-3 14:00","value":412}, ...]
//
// Values arrive as JSON numbers, numeric strings, empty strings or null.
// [RawValue] accepts all of them; anything that does not parse to a finite
// float is treated as missing and dropped by [Normalize].
//
// # Timestamps
//
// USGS daily values carry a bare date ("2024-01-03") or an RFC 3339 instant.
// CDEC hourly values carry a zone-less local wall time ("2024-1-3 14:00"),
// which is interpreted in the site's configured time zone
// ([SiteProfile.TimeZone], UTC when unset).
//
// # Pipeline
//
//	[]RawObservation → Normalize → Series → Downsample (optional) → Project
//
// Every stage after the adapter is pure and total: an empty [Series] is a
// valid "no data" result rather than an error.
//
// # Units and Capacity
//
//	Reservoir storage: acre-feet (ac-ft). Percent of capacity is reported when
//	  the site has a nominal full capacity, e.g. Lake Piru at 83,240 ac-ft.
//	Discharge / outflow: cubic feet per second (ft³/s, cfs). No capacity.
//
// Percent capacity is rounded to one decimal place. Data is stale when the
// latest observation is more than [StaleAfterDays] whole days old.
package domain
