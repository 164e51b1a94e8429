// The controller process runs one controller per elevator. Adapters are
// constructed once here and injected; SIGINT/SIGTERM cancels all
// controllers, which drain their movement tasks before exit.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/liftplane/liftplane/broker"
	"github.com/liftplane/liftplane/controller"
	"github.com/liftplane/liftplane/core"
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

	logger := core.NewLogger(cfg.Logging, "controller")

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

	st := store.New(rdb, logger)
	bus := broker.NewPubSub(rdb, logger)

	g, ctx := errgroup.WithContext(ctx)
	for id := 1; id <= cfg.Elevators; id++ {
		c := controller.New(controller.Config{
			ElevatorID:        id,
			Floors:            cfg.Floors,
			FloorTravelTime:   cfg.Timing.FloorTravelTime,
			DoorOperationTime: cfg.Timing.DoorOperationTime,
			DwellTime:         cfg.Timing.DwellTime,
		}, st, bus, logger)
		g.Go(func() error {
			return c.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Controller process failed", map[string]interface{}{"error": err.Error()})
		return 1
	}

	logger.Info("Controller process exited cleanly", nil)
	return 0
}
