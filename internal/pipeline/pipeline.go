package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/hydro-feed-service/internal/domain"
	"github.com/couchcryptid/hydro-feed-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// Source fetches raw observations for a site within a date range.
type Source interface {
	Fetch(ctx context.Context, site domain.SiteProfile, rng domain.DateRange) ([]domain.RawObservation, error)
}

// Renderer displays feed state. RenderLoading is called when a refresh
// starts; RenderSnapshot once per committed result.
type Renderer interface {
	RenderLoading(site domain.SiteProfile, generation uint64)
	RenderSnapshot(site domain.SiteProfile, snap domain.Snapshot)
}

// ChartHandle is an installed chart. Release must be safe to call more than once.
type ChartHandle interface {
	Release()
}

// ChartInstaller creates charts from prepared point series.
type ChartInstaller interface {
	InstallChart(spec domain.ChartSpec) ChartHandle
}

// Publisher receives every committed snapshot.
type Publisher interface {
	Publish(ctx context.Context, snap domain.Snapshot) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPublisher sends committed snapshots to pub.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithFetchTimeout bounds each upstream fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.fetchTimeout = d }
}

// WithRefreshConcurrency caps how many feeds RefreshAll fetches at once.
// Zero or less means no limit.
func WithRefreshConcurrency(n int) Option {
	return func(p *Pipeline) { p.refreshLimit = n }
}

// WithClock overrides the wall clock used for staleness and timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// Pipeline runs the fetch, normalize, downsample, project and render cycle
// for a fixed set of feeds.
type Pipeline struct {
	source       Source
	renderer     Renderer
	charts       ChartInstaller
	publisher    Publisher
	clock        clockwork.Clock
	fetchTimeout time.Duration
	refreshLimit int
	logger       *slog.Logger
	metrics      *observability.Metrics

	keys  []string
	feeds map[string]*Feed
}

// New creates a Pipeline with one feed per site profile.
func New(sites []domain.SiteProfile, src Source, r Renderer, charts ChartInstaller, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:       src,
		renderer:     r,
		charts:       charts,
		clock:        clockwork.NewRealClock(),
		fetchTimeout: 15 * time.Second,
		logger:       logger,
		metrics:      metrics,
		feeds:        make(map[string]*Feed, len(sites)),
	}
	for _, o := range opts {
		o(p)
	}
	for _, site := range sites {
		p.keys = append(p.keys, site.Key)
		p.feeds[site.Key] = &Feed{profile: site, state: domain.StateLoading}
	}
	return p
}

// Keys returns the feed keys in configuration order.
func (p *Pipeline) Keys() []string {
	return append([]string(nil), p.keys...)
}

// Profile returns the site profile of a feed.
func (p *Pipeline) Profile(key string) (domain.SiteProfile, bool) {
	f, ok := p.feeds[key]
	if !ok {
		return domain.SiteProfile{}, false
	}
	return f.profile, true
}

// Latest returns the last committed snapshot of a feed.
func (p *Pipeline) Latest(key string) (domain.Snapshot, bool) {
	f, ok := p.feeds[key]
	if !ok {
		return domain.Snapshot{}, false
	}
	return f.latest()
}

// CheckReadiness returns nil once any feed has completed a refresh,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	for _, key := range p.keys {
		if p.feeds[key].State().Terminal() {
			return nil
		}
	}
	return errors.New("no feed has completed a refresh yet")
}

// RefreshAll refreshes every feed concurrently. A failing feed does not
// affect the others; their errors are joined.
func (p *Pipeline) RefreshAll(ctx context.Context, rng domain.DateRange) error {
	errs := make([]error, len(p.keys))
	var g errgroup.Group
	if p.refreshLimit > 0 {
		g.SetLimit(p.refreshLimit)
	}
	for i, key := range p.keys {
		g.Go(func() error {
			errs[i] = p.Refresh(ctx, key, rng)
			return nil
		})
	}
	// Feed errors go to errs so one failure never stops the rest.
	_ = g.Wait()
	return errors.Join(errs...)
}

// Refresh runs one cycle for a feed. Starting a refresh supersedes and
// cancels any in-flight refresh of the same feed; superseded results are
// discarded and return nil. The returned error is the fetch failure that was
// committed, if any.
func (p *Pipeline) Refresh(ctx context.Context, key string, rng domain.DateRange) error {
	feed, ok := p.feeds[key]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownFeed, key)
	}

	p.metrics.RefreshesRunning.Inc()
	defer p.metrics.RefreshesRunning.Dec()

	fetchCtx, gen, cancel := feed.begin(ctx, p.fetchTimeout, func(gen uint64) {
		p.renderer.RenderLoading(feed.profile, gen)
	})
	defer cancel()

	start := p.clock.Now()
	snap, fetchErr := p.run(fetchCtx, feed.profile, rng)
	snap.Generation = gen

	if !p.commit(feed, gen, snap) {
		p.metrics.StaleDiscarded.WithLabelValues(key).Inc()
		p.logger.Debug("refresh superseded", "feed", key, "generation", gen)
		return nil
	}

	p.logger.Info("feed refreshed",
		"feed", key,
		"generation", gen,
		"state", snap.State,
		"range", snap.Range,
		"duration", p.clock.Since(start),
	)
	p.publish(ctx, snap)
	return fetchErr
}

// run executes the fetch and the pure stages, producing an uncommitted snapshot.
func (p *Pipeline) run(ctx context.Context, site domain.SiteProfile, rng domain.DateRange) (domain.Snapshot, error) {
	snap := domain.Snapshot{
		Feed:  site.Key,
		Name:  site.Name,
		Unit:  site.UnitLabel,
		Range: rng.String(),
	}

	raw, err := p.source.Fetch(ctx, site, rng)
	snap.GeneratedAt = p.clock.Now().UTC()
	if err != nil {
		snap.State = domain.StateError
		snap.Message = err.Error()
		snap.Projection = domain.Project(nil, site, snap.GeneratedAt)
		return snap, err
	}

	series := domain.NormalizeIn(raw, site.Location())
	p.metrics.ObservationsKept.WithLabelValues(site.Key).Add(float64(len(series)))
	p.metrics.ObservationsDropped.WithLabelValues(site.Key).Add(float64(len(raw) - len(series)))

	series = domain.Downsample(series, site.MaxPoints)
	snap.Projection = domain.Project(series, site, snap.GeneratedAt)
	if snap.Projection.Empty() {
		snap.State = domain.StateNoData
	} else {
		snap.State = domain.StateReady
	}
	return snap, nil
}

// commit applies a snapshot if gen is still the feed's latest generation.
// The chart slot is swapped exactly once per commit, on every exit path.
func (p *Pipeline) commit(feed *Feed, gen uint64, snap domain.Snapshot) bool {
	feed.mu.Lock()
	defer feed.mu.Unlock()

	if gen != feed.generation {
		return false
	}

	install := func() ChartHandle { return nil }
	defer func() { feed.slot.Swap(install) }()

	feed.state = snap.State
	feed.last = &snap
	p.metrics.RefreshResults.WithLabelValues(feed.profile.Key, string(snap.State)).Inc()

	if snap.State == domain.StateReady {
		spec := feed.profile.ChartSpec(snap.Projection.ChartPoints)
		install = func() ChartHandle { return p.charts.InstallChart(spec) }
		p.recordLatest(feed.profile.Key, snap.Projection.Summary)
	}

	p.renderer.RenderSnapshot(feed.profile, snap)
	return true
}

func (p *Pipeline) recordLatest(key string, summary *domain.SummaryRecord) {
	if summary == nil {
		return
	}
	p.metrics.LatestStaleDays.WithLabelValues(key).Set(float64(summary.StaleDays))
	if summary.PercentCapacity != nil {
		p.metrics.LatestPercentCapacity.WithLabelValues(key).Set(*summary.PercentCapacity)
	}
}

func (p *Pipeline) publish(ctx context.Context, snap domain.Snapshot) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, snap); err != nil {
		p.logger.Warn("publish snapshot failed", "feed", snap.Feed, "generation", snap.Generation, "error", err)
	}
}

// Feed is the mutable state of one monitored site: its refresh generation,
// the cancel func of the in-flight fetch, and its chart slot.
type Feed struct {
	profile domain.SiteProfile

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	state      domain.FeedState
	last       *domain.Snapshot

	slot ChartSlot
}

// State returns the feed's current display state.
func (f *Feed) State() domain.FeedState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Feed) latest() (domain.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return domain.Snapshot{}, false
	}
	return *f.last, true
}

// begin starts a new generation, cancelling the previous fetch. onStart runs
// under the feed lock so a loading render can never follow a newer commit.
func (f *Feed) begin(ctx context.Context, timeout time.Duration, onStart func(gen uint64)) (context.Context, uint64, context.CancelFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancel != nil {
		f.cancel()
	}
	f.generation++
	f.state = domain.StateLoading

	var (
		fetchCtx context.Context
		cancel   context.CancelFunc
	)
	if timeout > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		fetchCtx, cancel = context.WithCancel(ctx)
	}
	f.cancel = cancel

	onStart(f.generation)
	return fetchCtx, f.generation, cancel
}

// ChartSlot owns at most one chart handle.
type ChartSlot struct {
	mu     sync.Mutex
	handle ChartHandle
}

// Swap releases the current handle, then installs the one returned by
// install (which may be nil).
func (s *ChartSlot) Swap(install func() ChartHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil {
		s.handle.Release()
		s.handle = nil
	}
	if install != nil {
		s.handle = install()
	}
}
