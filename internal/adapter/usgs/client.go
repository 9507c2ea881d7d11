package usgs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/hydro-feed-service/internal/adapter/upstream"
	"github.com/couchcryptid/hydro-feed-service/internal/domain"
	"github.com/couchcryptid/hydro-feed-service/internal/observability"
)

// Client fetches daily values from the USGS Water Data OGC API, which answers
// with a feature collection.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a USGS client for the given items endpoint.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// Fetch returns the raw observations of a site within the range. A response
// without features is an empty result, not an error.
func (c *Client) Fetch(ctx context.Context, site domain.SiteProfile, rng domain.DateRange) ([]domain.RawObservation, error) {
	start := time.Now()
	raw, err := c.fetch(ctx, site, rng)
	c.metrics.FetchDuration.WithLabelValues(site.Key).Observe(time.Since(start).Seconds())
	c.metrics.FetchRequests.WithLabelValues(site.Key, upstream.Outcome(err, len(raw))).Inc()
	return raw, err
}

func (c *Client) fetch(ctx context.Context, site domain.SiteProfile, rng domain.DateRange) ([]domain.RawObservation, error) {
	u := c.requestURL(site, rng)
	c.logger.Debug("usgs request", "feed", site.Key, "url", u)

	body, err := upstream.Get(ctx, c.httpClient, u)
	if err != nil {
		return nil, fmt.Errorf("usgs %s: %w", site.SiteID, err)
	}

	var fc featureCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		return nil, fmt.Errorf("usgs %s: %w", site.SiteID, upstream.Malformed(err))
	}

	raw := make([]domain.RawObservation, 0, len(fc.Features))
	for _, f := range fc.Features {
		raw = append(raw, domain.RawObservation{
			Timestamp:   f.Properties.Time,
			Value:       f.Properties.Value,
			QualityCode: f.Properties.ApprovalStatus,
		})
	}
	return raw, nil
}

func (c *Client) requestURL(site domain.SiteProfile, rng domain.DateRange) string {
	params := url.Values{
		"f":                      {"json"},
		"monitoring_location_id": {"USGS-" + site.SiteID},
		"parameter_code":         {site.ParameterCode},
		"time":                   {rng.String()},
	}
	return c.baseURL + "?" + params.Encode()
}

// USGS API response types.

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	Properties properties `json:"properties"`
}

type properties struct {
	Time           string          `json:"time"`
	Value          domain.RawValue `json:"value"`
	ApprovalStatus string          `json:"approval_status"`
}
