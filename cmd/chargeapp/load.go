package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/knifflig/ChargeApp/internal/adapter/arcgis"
	kafkaadapter "github.com/knifflig/ChargeApp/internal/adapter/kafka"
	"github.com/knifflig/ChargeApp/internal/adapter/rediscache"
	"github.com/knifflig/ChargeApp/internal/config"
	"github.com/knifflig/ChargeApp/internal/domain"
	"github.com/knifflig/ChargeApp/internal/observability"
	"github.com/knifflig/ChargeApp/internal/pipeline"
)

func runLoad(cfg *config.Config, args []string, stderr io.Writer, logger *slog.Logger) int {
	fs := flag.NewFlagSet("load", flag.ContinueOnError)
	fs.SetOutput(stderr)
	force := fs.Bool("force", false, "drop and recreate existing tables")
	where := fs.String("where", "1=1", "district filter expression passed to the FeatureServer")
	kreis := fs.String("kreis", "", "comma-separated KREISIDs to load instead of -where")
	dryRun := fs.Bool("dry-run", false, "run against an in-memory store")
	if err := fs.Parse(args); err != nil {
		return exitFatal
	}
	ids, err := domain.ParseKreisIDs(*kreis)
	if err != nil {
		logger.Error("invalid -kreis", "error", err)
		return exitFatal
	}
	if *force {
		cfg.AllowDestructiveReset = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()
	st, closeStore, err := openStore(ctx, cfg, *dryRun, logger, metrics)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		return exitFatal
	}
	defer closeStore()

	regionQ, stationQ, closeCache := newQueriers(ctx, cfg, logger, metrics)
	defer closeCache()

	p := pipeline.New(
		arcgis.NewRegionClient(regionQ),
		arcgis.NewStationClient(stationQ, logger),
		pipeline.NewStoreLoader(st, logger),
		logger,
		metrics,
	)
	if cfg.KafkaEnabled() {
		writer := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		p.WithPublisher(writer)
		logger.Info("publishing region events", "topic", cfg.KafkaTopic)
	}

	if err := p.Prepare(ctx); err != nil {
		logger.Error("failed to provision tables", "error", err)
		return exitFatal
	}

	report, err := p.Run(ctx, pipeline.Selection{Where: *where, KreisIDs: ids})
	pushMetrics(cfg, report.RunID, logger)
	switch {
	case isCancelled(err):
		logger.Warn("load interrupted", "regions", report.Regions)
		return exitPartial
	case err != nil:
		logger.Error("load failed", "error", err)
		return exitPartial
	case report.Partial():
		for _, f := range report.Failures {
			logger.Warn("region not loaded", "kreis_id", f.KreisID, "error", f.Err)
		}
		return exitPartial
	}
	return exitOK
}

// newQueriers builds the region and station queriers: HTTP client, then the
// Redis cache when configured, then the in-process LRU.
func newQueriers(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (regions, stations arcgis.Querier, closeFn func()) {
	opts := arcgis.Options{
		Timeout:    cfg.APITimeout,
		MaxRetries: cfg.APIMaxRetries,
		Backoff:    cfg.APIRetryBackoff,
		RateLimit:  cfg.APIRateLimit,
	}
	regions = arcgis.NewClient("regions", cfg.RegionAPIURL, opts, logger, metrics)
	stations = arcgis.NewClient("stations", cfg.StationAPIURL, opts, logger, metrics)
	closeFn = func() {}

	if cfg.RedisEnabled() {
		rdb, err := rediscache.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Warn("redis unavailable, continuing without response cache", "addr", cfg.RedisAddr, "error", err)
		} else {
			regions = rediscache.New(regions, rdb, "regions", cfg.RegionAPIURL, cfg.RedisTTL, logger, metrics)
			stations = rediscache.New(stations, rdb, "stations", cfg.StationAPIURL, cfg.RedisTTL, logger, metrics)
			closeFn = func() { _ = rdb.Close() }
			logger.Info("redis response cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.RedisTTL)
		}
	}

	regions = arcgis.NewCachedQuerier(regions, "regions", cfg.APICacheSize, metrics)
	stations = arcgis.NewCachedQuerier(stations, "stations", cfg.APICacheSize, metrics)
	return regions, stations, closeFn
}

func pushMetrics(cfg *config.Config, runID string, logger *slog.Logger) {
	if cfg.PushgatewayURL == "" || runID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := observability.Push(ctx, cfg.PushgatewayURL, "chargeapp_load", runID, prometheus.DefaultGatherer); err != nil {
		logger.Warn("metrics push failed", "error", err)
		return
	}
	logger.Info("metrics pushed", "url", cfg.PushgatewayURL)
}
