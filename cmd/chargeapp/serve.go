package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	httpadapter "github.com/knifflig/ChargeApp/internal/adapter/http"
	"github.com/knifflig/ChargeApp/internal/config"
	"github.com/knifflig/ChargeApp/internal/geojson"
	"github.com/knifflig/ChargeApp/internal/observability"
)

func runServe(cfg *config.Config, args []string, stderr io.Writer, logger *slog.Logger) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	origins := fs.String("cors-origins", "", "comma-separated allowed CORS origins (default any)")
	if err := fs.Parse(args); err != nil {
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

	var allowed []string
	for _, o := range strings.Split(*origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed = append(allowed, o)
		}
	}

	builder := geojson.NewBuilder(st, geojson.DefaultOpacity, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, st, builder, httpadapter.Options{AllowedOrigins: allowed}, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	code := exitOK
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("http server error", "error", err)
		code = exitFatal
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
	return code
}
