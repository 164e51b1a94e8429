// The scheduler process runs one scheduler instance, identified by
// SCHEDULER_ID, as a member of the scheduler consumer group. Multiple
// instances with distinct ids share the request stream.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/liftplane/liftplane/broker"
	"github.com/liftplane/liftplane/core"
	"github.com/liftplane/liftplane/scheduler"
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

	logger := core.NewLogger(cfg.Logging, "scheduler")

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

	s := scheduler.New(scheduler.Config{
		ID:        cfg.SchedulerID,
		Elevators: cfg.Elevators,
		Floors:    cfg.Floors,
	}, broker.NewStream(rdb, logger), broker.NewPubSub(rdb, logger), store.New(rdb, logger), logger)

	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Scheduler process failed", map[string]interface{}{"error": err.Error()})
		return 1
	}

	logger.Info("Scheduler process exited cleanly", nil)
	return 0
}
