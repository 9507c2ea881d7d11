package dashboard

import (
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/hydro-feed-service/internal/domain"
	"github.com/couchcryptid/hydro-feed-service/internal/observability"
	"github.com/couchcryptid/hydro-feed-service/internal/pipeline"
	"github.com/jonboulle/clockwork"
)

// Gauge is the capacity indicator of a storage feed.
type Gauge struct {
	Percent float64 `json:"percent"`
	Fill    float64 `json:"fill"` // Percent clamped to [0, 100]
}

// FeedView is everything the dashboard shows for one feed.
type FeedView struct {
	Feed       string                `json:"feed"`
	Name       string                `json:"name"`
	Measure    string                `json:"measure"`
	Unit       string                `json:"unit"`
	State      domain.FeedState      `json:"state"`
	Generation uint64                `json:"generation"`
	Range      string                `json:"range,omitempty"`
	Message    string                `json:"message,omitempty"`
	Summary    string                `json:"summary,omitempty"`
	Advisory   string                `json:"advisory,omitempty"`
	Latest     *domain.SummaryRecord `json:"latest,omitempty"`
	Gauge      *Gauge                `json:"gauge,omitempty"`
	Chart      *domain.ChartSpec     `json:"chart,omitempty"`
	Table      []domain.TableRow     `json:"table"`
	UpdatedAt  time.Time             `json:"updated_at"`

	chartID uint64
}

// Board is the in-memory dashboard. It implements pipeline.Renderer and
// pipeline.ChartInstaller and fans view changes out to subscribers.
type Board struct {
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	mu        sync.RWMutex
	order     []string
	views     map[string]*FeedView
	charts    map[uint64]string // live chart id -> feed
	nextChart uint64

	subMu sync.Mutex
	subs  map[chan FeedView]struct{}
}

var (
	_ pipeline.Renderer       = (*Board)(nil)
	_ pipeline.ChartInstaller = (*Board)(nil)
)

// NewBoard creates a board with an idle view per site.
func NewBoard(sites []domain.SiteProfile, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Board {
	b := &Board{
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		views:   make(map[string]*FeedView, len(sites)),
		charts:  make(map[uint64]string),
		subs:    make(map[chan FeedView]struct{}),
	}
	for _, site := range sites {
		b.order = append(b.order, site.Key)
		b.views[site.Key] = &FeedView{
			Feed:    site.Key,
			Name:    site.Name,
			Measure: site.Measure,
			Unit:    site.UnitLabel,
			State:   domain.StateLoading,
			Message: LoadingText(site),
			Table:   []domain.TableRow{},
		}
	}
	return b
}

// RenderLoading implements pipeline.Renderer.
func (b *Board) RenderLoading(site domain.SiteProfile, generation uint64) {
	b.update(site.Key, func(v *FeedView) {
		v.State = domain.StateLoading
		v.Generation = generation
		v.Message = LoadingText(site)
	})
}

// RenderSnapshot implements pipeline.Renderer. Every state replaces the whole
// view so nothing from an earlier result survives.
func (b *Board) RenderSnapshot(site domain.SiteProfile, snap domain.Snapshot) {
	b.update(site.Key, func(v *FeedView) {
		v.State = snap.State
		v.Generation = snap.Generation
		v.Range = snap.Range
		v.Message = ""
		v.Summary = ""
		v.Advisory = ""
		v.Latest = nil
		v.Gauge = nil
		v.Table = snap.Projection.TableRows
		if v.Table == nil {
			v.Table = []domain.TableRow{}
		}

		switch snap.State {
		case domain.StateNoData:
			v.Message = NoDataText(site)
		case domain.StateError:
			v.Message = FailureText(site, snap.Message)
		case domain.StateReady:
			s := snap.Projection.Summary
			if s == nil {
				break
			}
			v.Latest = s
			v.Summary = SummaryText(site, *s)
			v.Advisory = AdvisoryText(site, *s)
			if s.PercentCapacity != nil {
				v.Gauge = &Gauge{Percent: *s.PercentCapacity, Fill: GaugeFill(*s.PercentCapacity)}
			}
		}
	})
}

// InstallChart implements pipeline.ChartInstaller. The chart replaces any
// chart shown for the same feed.
func (b *Board) InstallChart(spec domain.ChartSpec) pipeline.ChartHandle {
	b.mu.Lock()
	b.nextChart++
	id := b.nextChart
	b.charts[id] = spec.Feed
	live := len(b.charts)
	b.mu.Unlock()

	b.metrics.LiveCharts.Set(float64(live))
	b.update(spec.Feed, func(v *FeedView) {
		v.Chart = &spec
		v.chartID = id
	})
	return &chartHandle{board: b, id: id, feed: spec.Feed}
}

// LiveCharts returns the number of installed charts not yet released.
func (b *Board) LiveCharts() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.charts)
}

func (b *Board) releaseChart(id uint64, feed string) {
	b.mu.Lock()
	delete(b.charts, id)
	live := len(b.charts)
	b.mu.Unlock()

	b.metrics.LiveCharts.Set(float64(live))
	b.update(feed, func(v *FeedView) {
		if v.chartID == id {
			v.Chart = nil
			v.chartID = 0
		}
	})
}

type chartHandle struct {
	board *Board
	id    uint64
	feed  string
	once  sync.Once
}

func (h *chartHandle) Release() {
	h.once.Do(func() { h.board.releaseChart(h.id, h.feed) })
}

// View returns a copy of a feed's current view.
func (b *Board) View(feed string) (FeedView, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.views[feed]
	if !ok {
		return FeedView{}, false
	}
	return *v, true
}

// Views returns copies of all views in configuration order.
func (b *Board) Views() []FeedView {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]FeedView, 0, len(b.order))
	for _, key := range b.order {
		out = append(out, *b.views[key])
	}
	return out
}

// Subscribe registers a channel that receives every view change.
func (b *Board) Subscribe() chan FeedView {
	ch := make(chan FeedView, 16)
	b.subMu.Lock()
	b.subs[ch] = struct{}{}
	b.subMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (b *Board) Unsubscribe(ch chan FeedView) {
	if ch == nil {
		return
	}
	b.subMu.Lock()
	_, ok := b.subs[ch]
	delete(b.subs, ch)
	b.subMu.Unlock()
	if ok {
		close(ch)
	}
}

func (b *Board) update(feed string, fn func(*FeedView)) {
	b.mu.Lock()
	v, ok := b.views[feed]
	if !ok {
		b.mu.Unlock()
		b.logger.Warn("render for unknown feed", "feed", feed)
		return
	}
	fn(v)
	v.UpdatedAt = b.clock.Now().UTC()
	view := *v
	b.mu.Unlock()

	b.broadcast(view)
}

// broadcast delivers without blocking; slow subscribers miss updates.
func (b *Board) broadcast(view FeedView) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- view:
		default:
		}
	}
}
