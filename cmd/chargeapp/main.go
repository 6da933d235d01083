// Command chargeapp loads districts and charging stations from ArcGIS into
// PostgreSQL, exports the scored districts as GeoJSON and serves them over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/knifflig/ChargeApp/internal/config"
	"github.com/knifflig/ChargeApp/internal/observability"
	"github.com/knifflig/ChargeApp/internal/store"
)

// Exit codes.
const (
	exitOK      = 0
	exitPartial = 1
	exitFatal   = 2
)

const usage = `usage: chargeapp <command> [flags]

commands:
  load     fetch districts and stations and write them to the database
  export   write the scored district GeoJSON (and optionally stations as Parquet)
  serve    serve health, metrics and /kreise.geojson over HTTP
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitFatal
	}

	// .env.local is read first so it wins over .env; neither overrides the environment.
	for _, f := range []string{".env.local", ".env"} {
		_ = godotenv.Load(f)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return exitFatal
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	switch args[0] {
	case "load":
		return runLoad(cfg, args[1:], stderr, logger)
	case "export":
		return runExport(cfg, args[1:], stdout, stderr, logger)
	case "serve":
		return runServe(cfg, args[1:], stderr, logger)
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return exitFatal
	}
}

// openStore builds the store on PostgreSQL, or on an in-memory backend when
// dryRun is set. The returned close function releases the connection pool.
func openStore(ctx context.Context, cfg *config.Config, dryRun bool, logger *slog.Logger, metrics *observability.Metrics) (*store.Store, func(), error) {
	schema := store.DefaultSchema()
	if cfg.SchemaFile != "" {
		var err error
		if schema, err = store.LoadSchemaFile(cfg.SchemaFile); err != nil {
			return nil, nil, err
		}
		logger.Info("schema loaded", "file", cfg.SchemaFile)
	}
	opts := store.Options{AllowDestructiveReset: cfg.AllowDestructiveReset}

	if dryRun {
		logger.Info("dry run, using in-memory store")
		return store.New(store.NewMemoryBackend(), schema, opts, logger, metrics), func() {}, nil
	}

	backend, err := store.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return nil, nil, err
	}
	return store.New(backend, schema, opts, logger, metrics), backend.Close, nil
}

func isCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
