package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/couchcryptid/hydro-feed-service/internal/dashboard"
	"github.com/couchcryptid/hydro-feed-service/internal/domain"
	"github.com/couchcryptid/hydro-feed-service/internal/observability"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Feeds is the refresh side of the service.
type Feeds interface {
	sharedobs.ReadinessChecker
	Keys() []string
	Profile(key string) (domain.SiteProfile, bool)
	Latest(key string) (domain.Snapshot, bool)
	Refresh(ctx context.Context, key string, rng domain.DateRange) error
	RefreshAll(ctx context.Context, rng domain.DateRange) error
}

// Views is the display side of the service.
type Views interface {
	Views() []dashboard.FeedView
	View(feed string) (dashboard.FeedView, bool)
	Subscribe() chan dashboard.FeedView
	Unsubscribe(ch chan dashboard.FeedView)
}

// Server exposes health, readiness, metrics, and the feed API.
type Server struct {
	httpServer   *http.Server
	feeds        Feeds
	views        Views
	defaultRange func() domain.DateRange
	metrics      *observability.Metrics
	logger       *slog.Logger

	// background refreshes outlive their request but not the server
	baseCtx    context.Context
	cancelBase context.CancelFunc
	bgMu       sync.Mutex
	closing    bool
	inflight   sync.WaitGroup
}

// NewServer creates an HTTP server with the health, metrics, and /api/v1 routes.
// defaultRange supplies the range for refresh requests that name none.
func NewServer(addr string, feeds Feeds, views Views, defaultRange func() domain.DateRange, logger *slog.Logger, metrics *observability.Metrics) *Server {
	mux := http.NewServeMux()
	baseCtx, cancel := context.WithCancel(context.Background())

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		feeds:        feeds,
		views:        views,
		defaultRange: defaultRange,
		metrics:      metrics,
		logger:       logger,
		baseCtx:      baseCtx,
		cancelBase:   cancel,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(feeds))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/feeds", s.handleListFeeds)
	mux.HandleFunc("GET /api/v1/feeds/{feed}", s.handleGetFeed)
	mux.HandleFunc("POST /api/v1/refresh", s.handleRefreshAll)
	mux.HandleFunc("POST /api/v1/feeds/{feed}/refresh", s.handleRefreshFeed)
	mux.HandleFunc("GET /api/v1/feeds/{feed}/export.xlsx", s.handleExport(formatXLSX))
	mux.HandleFunc("GET /api/v1/feeds/{feed}/export.pdf", s.handleExport(formatPDF))
	mux.HandleFunc("GET /api/v1/stream", s.handleStream)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline
// and cancels refreshes started by requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.bgMu.Lock()
	s.closing = true
	s.bgMu.Unlock()

	err := s.httpServer.Shutdown(ctx)
	s.cancelBase()
	s.inflight.Wait()
	return err
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	sharedobs.WriteJSON(w, status, v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
