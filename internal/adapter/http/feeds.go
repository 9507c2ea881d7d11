package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/couchcryptid/hydro-feed-service/internal/domain"
	"github.com/couchcryptid/hydro-feed-service/internal/export"
)

type exportFormat struct {
	ext         string
	contentType string
	render      func(domain.SiteProfile, domain.Snapshot) ([]byte, error)
}

var (
	formatXLSX = exportFormat{
		ext:         "xlsx",
		contentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		render:      export.TableXLSX,
	}
	formatPDF = exportFormat{
		ext:         "pdf",
		contentType: "application/pdf",
		render:      export.TablePDF,
	}
)

func (s *Server) handleListFeeds(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"feeds": s.views.Views()})
}

func (s *Server) handleGetFeed(w http.ResponseWriter, r *http.Request) {
	view, ok := s.views.View(r.PathValue("feed"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown feed")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	rng, err := s.parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	started := s.background(func() {
		if err := s.feeds.RefreshAll(s.baseCtx, rng); err != nil {
			s.logger.Warn("requested refresh had failures", "range", rng.String(), "error", err)
		}
	})
	if !started {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"feeds": s.feeds.Keys(), "range": rng.String()})
}

func (s *Server) handleRefreshFeed(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("feed")
	if _, ok := s.feeds.Profile(key); !ok {
		writeError(w, http.StatusNotFound, "unknown feed")
		return
	}
	rng, err := s.parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	started := s.background(func() {
		if err := s.feeds.Refresh(s.baseCtx, key, rng); err != nil {
			s.logger.Warn("requested refresh failed", "feed", key, "range", rng.String(), "error", err)
		}
	})
	if !started {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"feeds": []string{key}, "range": rng.String()})
}

func (s *Server) handleExport(format exportFormat) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("feed")
		site, ok := s.feeds.Profile(key)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown feed")
			return
		}
		snap, ok := s.feeds.Latest(key)
		if !ok || snap.State != domain.StateReady {
			writeError(w, http.StatusConflict, "feed has no data to export")
			return
		}

		data, err := format.render(site, snap)
		if err != nil {
			s.logger.Error("export failed", "feed", key, "format", format.ext, "error", err)
			writeError(w, http.StatusInternalServerError, "export failed")
			return
		}

		w.Header().Set("Content-Type", format.contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, key, format.ext))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

// parseRange reads start and end (YYYY-MM-DD) or period (ISO-8601) from the
// query string, falling back to the default range.
func (s *Server) parseRange(r *http.Request) (domain.DateRange, error) {
	q := r.URL.Query()
	start, end, period := q.Get("start"), q.Get("end"), q.Get("period")

	switch {
	case period != "" && (start != "" || end != ""):
		return domain.DateRange{}, errors.New("use either period or start and end")
	case period != "":
		return domain.NewPeriod(period)
	case start != "" || end != "":
		if start == "" || end == "" {
			return domain.DateRange{}, errors.New("start and end are both required")
		}
		return domain.ParseDateRange(start, end)
	default:
		return s.defaultRange(), nil
	}
}

// background runs fn outside the request. It reports false once Shutdown has
// begun, so no work is added while Shutdown waits on inflight.
func (s *Server) background(fn func()) bool {
	s.bgMu.Lock()
	defer s.bgMu.Unlock()
	if s.closing {
		return false
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		fn()
	}()
	return true
}
