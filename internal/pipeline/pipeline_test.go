package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/hydro-feed-service/internal/domain"
	"github.com/couchcryptid/hydro-feed-service/internal/observability"
	"github.com/couchcryptid/hydro-feed-service/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fetchFunc func(ctx context.Context, call int) ([]domain.RawObservation, error)

type fakeSource struct {
	mu    sync.Mutex
	fns   map[string]fetchFunc
	calls map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{fns: map[string]fetchFunc{}, calls: map[string]int{}}
}

func (s *fakeSource) on(key string, fn fetchFunc) *fakeSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fns[key] = fn
	return s
}

func (s *fakeSource) Calls(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

func (s *fakeSource) Fetch(ctx context.Context, site domain.SiteProfile, _ domain.DateRange) ([]domain.RawObservation, error) {
	s.mu.Lock()
	s.calls[site.Key]++
	call := s.calls[site.Key]
	fn := s.fns[site.Key]
	s.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, call)
}

func returns(raw []domain.RawObservation, err error) fetchFunc {
	return func(context.Context, int) ([]domain.RawObservation, error) { return raw, err }
}

type fakeRenderer struct {
	mu        sync.Mutex
	loading   []uint64
	snapshots []domain.Snapshot
}

func (r *fakeRenderer) RenderLoading(_ domain.SiteProfile, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loading = append(r.loading, gen)
}

func (r *fakeRenderer) RenderSnapshot(_ domain.SiteProfile, snap domain.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snap)
}

func (r *fakeRenderer) last(t *testing.T) domain.Snapshot {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.snapshots)
	return r.snapshots[len(r.snapshots)-1]
}

type fakeCharts struct {
	installed atomic.Int64
	live      atomic.Int64
}

type fakeHandle struct {
	once  sync.Once
	owner *fakeCharts
}

func (h *fakeHandle) Release() {
	h.once.Do(func() { h.owner.live.Add(-1) })
}

func (c *fakeCharts) InstallChart(domain.ChartSpec) pipeline.ChartHandle {
	c.installed.Add(1)
	c.live.Add(1)
	return &fakeHandle{owner: c}
}

type fakePublisher struct {
	mu    sync.Mutex
	snaps []domain.Snapshot
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, snap domain.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, snap)
	return p.err
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func capacity(v float64) *float64 { return &v }

func storage() domain.SiteProfile {
	return domain.SiteProfile{
		Key:           "lake-piru-storage",
		Name:          "Lake Piru",
		Measure:       "storage",
		SiteID:        "11109700",
		ParameterCode: "00054",
		UnitLabel:     "ac-ft",
		Capacity:      capacity(83240),
		Flavor:        domain.FeatureCollection,
	}
}

func discharge() domain.SiteProfile {
	return domain.SiteProfile{
		Key:           "piru-creek-discharge",
		Name:          "Piru Creek",
		Measure:       "discharge",
		SiteID:        "11109800",
		ParameterCode: "00060",
		UnitLabel:     "ft³/s",
		Flavor:        domain.FeatureCollection,
	}
}

func storageRaw(latest string) []domain.RawObservation {
	return []domain.RawObservation{
		{Timestamp: "2024-01-01", Value: "74000", QualityCode: "Approved"},
		{Timestamp: "2024-01-02", Value: ""},
		{Timestamp: "2024-01-03", Value: domain.RawValue(latest), QualityCode: "Provisional"},
	}
}

func jan2024(t *testing.T) domain.DateRange {
	t.Helper()
	rng, err := domain.ParseDateRange("2024-01-01", "2024-01-31")
	require.NoError(t, err)
	return rng
}

type harness struct {
	pipeline *pipeline.Pipeline
	source   *fakeSource
	renderer *fakeRenderer
	charts   *fakeCharts
	metrics  *observability.Metrics
	clock    *clockwork.FakeClock
}

func newHarness(opts ...pipeline.Option) *harness {
	h := &harness{
		source:   newFakeSource(),
		renderer: &fakeRenderer{},
		charts:   &fakeCharts{},
		metrics:  observability.NewMetricsForTesting(),
		clock:    clockwork.NewFakeClockAt(time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)),
	}
	opts = append([]pipeline.Option{pipeline.WithClock(h.clock)}, opts...)
	h.pipeline = pipeline.New(
		[]domain.SiteProfile{storage(), discharge()},
		h.source, h.renderer, h.charts, discardLogger(), h.metrics, opts...,
	)
	return h
}

// --- tests ---

func TestPipeline_Refresh_Ready(t *testing.T) {
	h := newHarness()
	h.source.on("lake-piru-storage", returns(storageRaw("75000"), nil))

	require.Error(t, h.pipeline.CheckReadiness(context.Background()))

	err := h.pipeline.Refresh(context.Background(), "lake-piru-storage", jan2024(t))
	require.NoError(t, err)

	snap := h.renderer.last(t)
	assert.Equal(t, domain.StateReady, snap.State)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, "2024-01-01/2024-01-31", snap.Range)
	require.NotNil(t, snap.Projection.Summary)
	assert.InDelta(t, 75000, snap.Projection.Summary.Value, 1e-9)
	require.NotNil(t, snap.Projection.Summary.PercentCapacity)
	assert.InDelta(t, 90.1, *snap.Projection.Summary.PercentCapacity, 1e-9)
	assert.Equal(t, 2, snap.Projection.Summary.StaleDays)
	assert.Len(t, snap.Projection.ChartPoints, 2)

	assert.Equal(t, []uint64{1}, h.renderer.loading)
	assert.Equal(t, int64(1), h.charts.live.Load())
	assert.NoError(t, h.pipeline.CheckReadiness(context.Background()))
	assert.Equal(t, float64(2), testutil.ToFloat64(h.metrics.ObservationsKept.WithLabelValues("lake-piru-storage")))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.ObservationsDropped.WithLabelValues("lake-piru-storage")))
	assert.InDelta(t, 90.1, testutil.ToFloat64(h.metrics.LatestPercentCapacity.WithLabelValues("lake-piru-storage")), 1e-9)

	latest, ok := h.pipeline.Latest("lake-piru-storage")
	require.True(t, ok)
	if diff := cmp.Diff(snap, latest); diff != "" {
		t.Fatalf("latest snapshot mismatch (-rendered +latest):\n%s", diff)
	}
}

func TestPipeline_Refresh_NoData(t *testing.T) {
	h := newHarness()
	h.source.on("lake-piru-storage", returns([]domain.RawObservation{{Timestamp: "2024-01-01", Value: ""}}, nil))

	require.NoError(t, h.pipeline.Refresh(context.Background(), "lake-piru-storage", jan2024(t)))

	snap := h.renderer.last(t)
	assert.Equal(t, domain.StateNoData, snap.State)
	assert.Nil(t, snap.Projection.Summary)
	assert.Empty(t, snap.Projection.TableRows)
	assert.Zero(t, h.charts.live.Load())
	assert.NoError(t, h.pipeline.CheckReadiness(context.Background()), "no-data is a terminal state")
}

func TestPipeline_Refresh_FetchError(t *testing.T) {
	h := newHarness()
	h.source.on("lake-piru-storage", returns(nil, &domain.FetchError{Status: http.StatusInternalServerError}))

	err := h.pipeline.Refresh(context.Background(), "lake-piru-storage", jan2024(t))
	require.Error(t, err)

	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusInternalServerError, fe.Status)

	snap := h.renderer.last(t)
	assert.Equal(t, domain.StateError, snap.State)
	assert.Equal(t, "upstream status 500", snap.Message)
	assert.Zero(t, h.charts.live.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.RefreshResults.WithLabelValues("lake-piru-storage", "error")))
}

func TestPipeline_Refresh_UnknownFeed(t *testing.T) {
	h := newHarness()
	err := h.pipeline.Refresh(context.Background(), "mystery-lake", jan2024(t))
	assert.ErrorIs(t, err, domain.ErrUnknownFeed)
}

func TestPipeline_Refresh_ChartHandlesDoNotLeak(t *testing.T) {
	h := newHarness()
	h.source.on("lake-piru-storage", func(_ context.Context, call int) ([]domain.RawObservation, error) {
		switch call {
		case 3:
			return []domain.RawObservation{}, nil
		case 4:
			return nil, errors.New("connection reset")
		default:
			return storageRaw("75000"), nil
		}
	})

	wantLive := []int64{1, 1, 0, 0, 1}
	for i, want := range wantLive {
		_ = h.pipeline.Refresh(context.Background(), "lake-piru-storage", jan2024(t))
		assert.Equal(t, want, h.charts.live.Load(), "after refresh %d", i+1)
	}
	assert.Equal(t, int64(3), h.charts.installed.Load())
}

func TestPipeline_Refresh_SupersededResultDiscarded(t *testing.T) {
	h := newHarness()

	started := make(chan struct{})
	release := make(chan struct{})
	staleCtxErr := make(chan error, 1)

	h.source.on("lake-piru-storage", func(ctx context.Context, call int) ([]domain.RawObservation, error) {
		if call == 1 {
			close(started)
			<-release
			staleCtxErr <- ctx.Err()
			return storageRaw("10000"), nil
		}
		return storageRaw("75000"), nil
	})

	done := make(chan error, 1)
	go func() {
		done <- h.pipeline.Refresh(context.Background(), "lake-piru-storage", jan2024(t))
	}()
	<-started

	require.NoError(t, h.pipeline.Refresh(context.Background(), "lake-piru-storage", jan2024(t)))
	close(release)
	require.NoError(t, <-done)

	snap := h.renderer.last(t)
	assert.Equal(t, uint64(2), snap.Generation)
	assert.InDelta(t, 75000, snap.Projection.Summary.Value, 1e-9)
	assert.Len(t, h.renderer.snapshots, 1)
	assert.ErrorIs(t, <-staleCtxErr, context.Canceled)
	assert.Equal(t, int64(1), h.charts.live.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.StaleDiscarded.WithLabelValues("lake-piru-storage")))
}

func TestPipeline_Refresh_AppliesFetchTimeout(t *testing.T) {
	h := newHarness(pipeline.WithFetchTimeout(time.Minute))

	var hasDeadline bool
	h.source.on("lake-piru-storage", func(ctx context.Context, _ int) ([]domain.RawObservation, error) {
		_, hasDeadline = ctx.Deadline()
		return nil, nil
	})

	require.NoError(t, h.pipeline.Refresh(context.Background(), "lake-piru-storage", jan2024(t)))
	assert.True(t, hasDeadline)
}

func TestPipeline_RefreshAll_IsolatesFailures(t *testing.T) {
	h := newHarness()
	h.source.
		on("lake-piru-storage", returns(storageRaw("75000"), nil)).
		on("piru-creek-discharge", returns(nil, &domain.FetchError{Timeout: true}))

	err := h.pipeline.RefreshAll(context.Background(), jan2024(t))
	require.Error(t, err)

	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.True(t, fe.Timeout)

	storageSnap, ok := h.pipeline.Latest("lake-piru-storage")
	require.True(t, ok)
	assert.Equal(t, domain.StateReady, storageSnap.State)

	dischargeSnap, ok := h.pipeline.Latest("piru-creek-discharge")
	require.True(t, ok)
	assert.Equal(t, domain.StateError, dischargeSnap.State)
	assert.Equal(t, "fetch timed out", dischargeSnap.Message)
}

func TestPipeline_RefreshAll_RunsFeedsConcurrently(t *testing.T) {
	h := newHarness()

	var arrived sync.WaitGroup
	arrived.Add(2)
	both := make(chan struct{})
	go func() {
		arrived.Wait()
		close(both)
	}()
	meet := func(context.Context, int) ([]domain.RawObservation, error) {
		arrived.Done()
		select {
		case <-both:
			return storageRaw("75000"), nil
		case <-time.After(2 * time.Second):
			return nil, errors.New("feeds were fetched one at a time")
		}
	}
	h.source.on("lake-piru-storage", meet).on("piru-creek-discharge", meet)

	require.NoError(t, h.pipeline.RefreshAll(context.Background(), jan2024(t)))
}

func TestPipeline_RefreshAll_RespectsConcurrencyLimit(t *testing.T) {
	h := newHarness(pipeline.WithRefreshConcurrency(1))

	var inFlight, peak atomic.Int64
	track := func(context.Context, int) ([]domain.RawObservation, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return storageRaw("75000"), nil
	}
	h.source.on("lake-piru-storage", track).on("piru-creek-discharge", track)

	require.NoError(t, h.pipeline.RefreshAll(context.Background(), jan2024(t)))
	assert.Equal(t, int64(1), peak.Load())
	assert.Equal(t, 1, h.source.Calls("lake-piru-storage"))
	assert.Equal(t, 1, h.source.Calls("piru-creek-discharge"))
}

func TestPipeline_PublishesCommittedSnapshots(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	h := newHarness(pipeline.WithPublisher(pub))
	h.source.on("lake-piru-storage", returns(storageRaw("75000"), nil))

	require.NoError(t, h.pipeline.Refresh(context.Background(), "lake-piru-storage", jan2024(t)), "publish failures are logged only")

	require.Len(t, pub.snaps, 1)
	assert.Equal(t, "lake-piru-storage", pub.snaps[0].Feed)
	assert.Equal(t, domain.StateReady, pub.snaps[0].State)
	assert.Equal(t, h.clock.Now().UTC(), pub.snaps[0].GeneratedAt)
}

func TestPipeline_KeysAndProfile(t *testing.T) {
	h := newHarness()
	assert.Equal(t, []string{"lake-piru-storage", "piru-creek-discharge"}, h.pipeline.Keys())

	p, ok := h.pipeline.Profile("piru-creek-discharge")
	require.True(t, ok)
	assert.Equal(t, "00060", p.ParameterCode)

	_, ok = h.pipeline.Profile("nope")
	assert.False(t, ok)
	_, ok = h.pipeline.Latest("lake-piru-storage")
	assert.False(t, ok)
}

func TestRouter_DispatchesByFlavor(t *testing.T) {
	usgs := newFakeSource().on("lake-piru-storage", returns(storageRaw("1"), nil))
	router := pipeline.Router{domain.FeatureCollection: usgs}

	raw, err := router.Fetch(context.Background(), storage(), jan2024(t))
	require.NoError(t, err)
	assert.Len(t, raw, 3)
	assert.Equal(t, 1, usgs.Calls("lake-piru-storage"))

	cas := storage()
	cas.Flavor = domain.FlatArray
	_, err = router.Fetch(context.Background(), cas, jan2024(t))
	assert.ErrorContains(t, err, "flat_array")
}

func TestChartSlot_Swap(t *testing.T) {
	charts := &fakeCharts{}
	var slot pipeline.ChartSlot

	slot.Swap(func() pipeline.ChartHandle { return charts.InstallChart(domain.ChartSpec{}) })
	assert.Equal(t, int64(1), charts.live.Load())
	slot.Swap(func() pipeline.ChartHandle { return charts.InstallChart(domain.ChartSpec{}) })
	assert.Equal(t, int64(1), charts.live.Load())
	assert.Equal(t, int64(2), charts.installed.Load())

	slot.Swap(nil)
	assert.Zero(t, charts.live.Load())
}
