package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/knifflig/ChargeApp/internal/adapter/parquet"
	"github.com/knifflig/ChargeApp/internal/config"
	"github.com/knifflig/ChargeApp/internal/domain"
	"github.com/knifflig/ChargeApp/internal/geojson"
	"github.com/knifflig/ChargeApp/internal/observability"
	"github.com/knifflig/ChargeApp/internal/store"
)

func runExport(cfg *config.Config, args []string, stdout, stderr io.Writer, logger *slog.Logger) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "", `GeoJSON output file, "-" for stdout`)
	stationsOut := fs.String("stations-parquet", "", "also write the stations of the exported districts to this Parquet file")
	kreis := fs.String("kreis", "", "comma-separated KREISIDs to export (default all)")
	reverseStations := fs.Bool("reverse-stations", geojson.DefaultOpacity.ReverseStations, "invert the station opacity channel")
	reverseEwzSta := fs.Bool("reverse-ewz-sta", geojson.DefaultOpacity.ReverseEwzSta, "invert the residents-per-station opacity channel")
	if err := fs.Parse(args); err != nil {
		return exitFatal
	}
	if *out == "" {
		fmt.Fprintln(stderr, "export: -out is required")
		fs.Usage()
		return exitFatal
	}
	ids, err := domain.ParseKreisIDs(*kreis)
	if err != nil {
		logger.Error("invalid -kreis", "error", err)
		return exitFatal
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, false, logger, observability.NewMetrics())
	if err != nil {
		logger.Error("failed to open store", "error", err)
		return exitFatal
	}
	defer closeStore()

	opts := geojson.OpacityOptions{ReverseStations: *reverseStations, ReverseEwzSta: *reverseEwzSta}
	fc, err := geojson.NewBuilder(st, opts, logger).Build(ctx, ids)
	if err != nil {
		logger.Error("failed to build feature collection", "error", err)
		return exitPartial
	}
	if err := writeCollection(*out, stdout, fc); err != nil {
		logger.Error("failed to write geojson", "error", err)
		return exitPartial
	}
	logger.Info("geojson exported", "out", *out, "features", len(fc.Features))

	if *stationsOut != "" {
		n, err := exportStations(ctx, st, ids, *stationsOut, logger)
		if err != nil {
			logger.Error("failed to export stations", "error", err)
			return exitPartial
		}
		logger.Info("stations exported", "out", *stationsOut, "stations", n)
	}
	return exitOK
}

func writeCollection(path string, stdout io.Writer, fc geojson.FeatureCollection) error {
	if path == "-" {
		return geojson.Export(stdout, fc)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := geojson.Export(f, fc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func exportStations(ctx context.Context, st *store.Store, ids []int64, path string, logger *slog.Logger) (int, error) {
	rows, err := st.FetchStations(ctx, ids)
	if err != nil {
		return 0, err
	}
	stations := make([]domain.Station, 0, len(rows))
	for _, rec := range rows {
		s, err := domain.StationFromRecord(rec)
		if err != nil {
			logger.Warn("skipping station row", "error", err)
			continue
		}
		stations = append(stations, s)
	}
	if err := parquet.WriteStations(path, stations); err != nil {
		return 0, err
	}
	return len(stations), nil
}
