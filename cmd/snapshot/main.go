// Command snapshot fetches feeds once and writes their current projection to
// disk as JSON, XLSX, and PDF, printing the dashboard summary of each feed.
//
// Usage:
//
//	go run ./cmd/snapshot \
//	  -feed lake-piru-storage \
//	  -start 2024-01-01 -end 2024-12-31 \
//	  -out data/snapshots \
//	  -formats json,xlsx,pdf
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	_ "time/tzdata"

	"github.com/couchcryptid/hydro-feed-service/internal/adapter/cdec"
	"github.com/couchcryptid/hydro-feed-service/internal/adapter/usgs"
	"github.com/couchcryptid/hydro-feed-service/internal/config"
	"github.com/couchcryptid/hydro-feed-service/internal/dashboard"
	"github.com/couchcryptid/hydro-feed-service/internal/domain"
	"github.com/couchcryptid/hydro-feed-service/internal/export"
	"github.com/couchcryptid/hydro-feed-service/internal/observability"
	"github.com/couchcryptid/hydro-feed-service/internal/pipeline"
	"github.com/jonboulle/clockwork"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	feed := flag.String("feed", "all", "feed key, or \"all\"")
	start := flag.String("start", "", "range start (YYYY-MM-DD)")
	end := flag.String("end", "", "range end (YYYY-MM-DD)")
	period := flag.String("period", "", "ISO-8601 period ending now, e.g. P30D")
	outDir := flag.String("out", ".", "output directory")
	formats := flag.String("formats", "json,xlsx,pdf", "comma-separated output formats")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	rng, err := selectRange(*start, *end, *period, clock, cfg.DefaultLookbackDays)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(cfg.Sites))
	for _, site := range cfg.Sites {
		keys = append(keys, site.Key)
	}
	if *feed != "all" {
		if _, ok := cfg.Site(*feed); !ok {
			return fmt.Errorf("%w: %s (known: %s)", domain.ErrUnknownFeed, *feed, strings.Join(keys, ", "))
		}
		keys = []string{*feed}
	}

	source := pipeline.Router{
		domain.FeatureCollection: usgs.NewClient(cfg.USGSBaseURL, cfg.FetchTimeout, metrics, logger),
		domain.FlatArray:         cdec.NewClient(cfg.CDECRelayURL, cfg.FetchTimeout, clock, metrics, logger),
	}
	board := dashboard.NewBoard(cfg.Sites, clock, logger, metrics)
	p := pipeline.New(cfg.Sites, source, board, board, logger, metrics,
		pipeline.WithClock(clock),
		pipeline.WithFetchTimeout(cfg.FetchTimeout),
		pipeline.WithRefreshConcurrency(cfg.RefreshConcurrency),
	)

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	ctx := context.Background()
	var failed int
	for _, key := range keys {
		if err := p.Refresh(ctx, key, rng); err != nil {
			failed++
		}
		view, _ := board.View(key)
		printView(view)

		snap, _ := p.Latest(key)
		site, _ := p.Profile(key)
		if err := writeOutputs(*outDir, strings.Split(*formats, ","), site, snap); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d feeds failed", failed, len(keys))
	}
	return nil
}

func selectRange(start, end, period string, clock clockwork.Clock, lookbackDays int) (domain.DateRange, error) {
	switch {
	case period != "":
		return domain.NewPeriod(period)
	case start != "" || end != "":
		return domain.ParseDateRange(start, end)
	default:
		return domain.LastDays(clock.Now(), lookbackDays), nil
	}
}

func printView(v dashboard.FeedView) {
	fmt.Printf("%s [%s]\n", v.Name, v.State)
	for _, line := range []string{v.Advisory, v.Summary, v.Message} {
		if line != "" {
			fmt.Printf("  %s\n", line)
		}
	}
}

func writeOutputs(dir string, formats []string, site domain.SiteProfile, snap domain.Snapshot) error {
	for _, format := range formats {
		format = strings.ToLower(strings.TrimSpace(format))

		var (
			data []byte
			err  error
		)
		switch format {
		case "json":
			data, err = json.MarshalIndent(snap, "", "  ")
		case "xlsx", "pdf":
			if snap.State != domain.StateReady {
				continue
			}
			if format == "xlsx" {
				data, err = export.TableXLSX(site, snap)
			} else {
				data, err = export.TablePDF(site, snap)
			}
		default:
			return fmt.Errorf("unknown format %q", format)
		}
		if err != nil {
			return fmt.Errorf("render %s %s: %w", site.Key, format, err)
		}

		path := filepath.Join(dir, site.Key+"."+format)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Printf("  wrote %s\n", path)
	}
	return nil
}
