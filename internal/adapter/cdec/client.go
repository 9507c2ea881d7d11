package cdec

import (
	"bytes"
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
	"github.com/jonboulle/clockwork"
)

const defaultResource = "cdec-data"

// Client fetches sensor readings from California Data Exchange Center
// stations through a CORS relay that answers with a flat JSON array.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a CDEC relay client. The clock resolves period ranges
// into the calendar dates the relay requires.
func NewClient(baseURL string, timeout time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
}

// Fetch returns the raw readings of a station sensor within the range.
// Anything other than a JSON array is treated as no data.
func (c *Client) Fetch(ctx context.Context, site domain.SiteProfile, rng domain.DateRange) ([]domain.RawObservation, error) {
	start := time.Now()
	raw, err := c.fetch(ctx, site, rng)
	c.metrics.FetchDuration.WithLabelValues(site.Key).Observe(time.Since(start).Seconds())
	c.metrics.FetchRequests.WithLabelValues(site.Key, upstream.Outcome(err, len(raw))).Inc()
	return raw, err
}

func (c *Client) fetch(ctx context.Context, site domain.SiteProfile, rng domain.DateRange) ([]domain.RawObservation, error) {
	u := c.requestURL(site, rng)
	c.logger.Debug("cdec request", "feed", site.Key, "url", u)

	body, err := upstream.Get(ctx, c.httpClient, u)
	if err != nil {
		return nil, fmt.Errorf("cdec %s: %w", site.SiteID, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("cdec %s: %w", site.SiteID, upstream.Malformed(fmt.Errorf("invalid JSON body")))
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		c.logger.Debug("cdec response is not an array", "feed", site.Key)
		return []domain.RawObservation{}, nil
	}

	var records []reading
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("cdec %s: %w", site.SiteID, upstream.Malformed(err))
	}

	raw := make([]domain.RawObservation, 0, len(records))
	for _, r := range records {
		raw = append(raw, domain.RawObservation{
			Timestamp: r.Date,
			Value:     r.Value,
		})
	}
	return raw, nil
}

func (c *Client) requestURL(site domain.SiteProfile, rng domain.DateRange) string {
	from, to := rng.Resolve(c.clock.Now().In(site.Location()))
	resource := site.Resource
	if resource == "" {
		resource = defaultResource
	}
	params := url.Values{
		"Stations":   {site.SiteID},
		"SensorNums": {site.ParameterCode},
		"dur_code":   {site.Duration},
		"Start":      {from.Format(domain.DayLayout)},
		"End":        {to.Format(domain.DayLayout)},
	}
	return c.baseURL + "/api/" + resource + "?" + params.Encode()
}

// reading is one element of the relay's array response. Other fields
// (stationId, SENSOR_NUM, units, dataFlag) are ignored.
type reading struct {
	Date  string          `json:"date"`
	Value domain.RawValue `json:"value"`
}
