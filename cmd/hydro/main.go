package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/couchcryptid/hydro-feed-service/internal/adapter/cdec"
	httpadapter "github.com/couchcryptid/hydro-feed-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/hydro-feed-service/internal/adapter/kafka"
	"github.com/couchcryptid/hydro-feed-service/internal/adapter/usgs"
	"github.com/couchcryptid/hydro-feed-service/internal/config"
	"github.com/couchcryptid/hydro-feed-service/internal/dashboard"
	"github.com/couchcryptid/hydro-feed-service/internal/domain"
	"github.com/couchcryptid/hydro-feed-service/internal/observability"
	"github.com/couchcryptid/hydro-feed-service/internal/pipeline"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	source := pipeline.Router{
		domain.FeatureCollection: usgs.NewClient(cfg.USGSBaseURL, cfg.FetchTimeout, metrics, logger),
		domain.FlatArray:         cdec.NewClient(cfg.CDECRelayURL, cfg.FetchTimeout, clock, metrics, logger),
	}
	board := dashboard.NewBoard(cfg.Sites, clock, logger, metrics)

	opts := []pipeline.Option{
		pipeline.WithClock(clock),
		pipeline.WithFetchTimeout(cfg.FetchTimeout),
		pipeline.WithRefreshConcurrency(cfg.RefreshConcurrency),
	}

	// Snapshot sink is feature-flagged via KAFKA_ENABLED.
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger, metrics)
		opts = append(opts, pipeline.WithPublisher(writer))
		logger.Info("kafka snapshot sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSnapshotTopic)
	} else {
		logger.Info("kafka snapshot sink disabled")
	}

	p := pipeline.New(cfg.Sites, source, board, board, logger, metrics, opts...)
	scheduler := pipeline.NewScheduler(p, clock, cfg.RefreshInterval, cfg.DefaultLookbackDays, logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, board, scheduler.DefaultRange, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start refresh scheduler.
	go func() {
		if err := scheduler.Run(ctx); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete", "live_charts", board.LiveCharts())
}
