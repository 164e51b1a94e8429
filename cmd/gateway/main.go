// The gateway process serves the HTTP ingress API with graceful shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/liftplane/liftplane/broker"
	"github.com/liftplane/liftplane/core"
	"github.com/liftplane/liftplane/gateway"
	"github.com/liftplane/liftplane/store"
	"github.com/liftplane/liftplane/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := core.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	logger := core.NewLogger(cfg.Logging, "gateway")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Error("Telemetry initialization failed", map[string]interface{}{"error": err.Error()})
		return 1
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	rdb, err := core.NewRedisClient(cfg.Redis, logger)
	if err != nil {
		logger.Error("Redis connection failed", map[string]interface{}{"error": err.Error()})
		return 1
	}
	defer rdb.Close()

	gw := gateway.New(cfg, broker.NewStream(rdb, logger), store.New(rdb, logger), logger)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      otelhttp.NewHandler(gw.Router(), "gateway"),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Gateway listening", map[string]interface{}{"addr": cfg.HTTP.Addr})
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Gateway shutdown failed", map[string]interface{}{"error": err.Error()})
			return 1
		}
		logger.Info("Gateway exited cleanly", nil)
		return 0
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Gateway server failed", map[string]interface{}{"error": err.Error()})
			return 1
		}
		return 0
	}
}
