// Package scheduler consumes the durable request stream as a member of the
// scheduler consumer group, selects a target elevator per request with a
// scoring policy over live elevator snapshots, and dispatches commands on
// the per-elevator command topics.
//
// Multiple scheduler instances may run as members of the same consumer
// group; the broker delivers each stream entry to exactly one member.
// Handlers stay idempotent on redelivery because commands are idempotent by
// the Elevator contract (re-adding a queued floor is a no-op).
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/liftplane/liftplane/broker"
	"github.com/liftplane/liftplane/building"
	"github.com/liftplane/liftplane/core"
	"github.com/liftplane/liftplane/store"
	"github.com/liftplane/liftplane/telemetry"
)

const readBatchSize = 10

// Config parameterizes one scheduler instance
type Config struct {
	// ID names this instance; the consumer name inside the group is
	// derived from it, so restarts resume the same pending list.
	ID        string
	Elevators int
	Floors    int
}

// Scheduler assigns passenger requests to elevators
type Scheduler struct {
	cfg      Config
	consumer string

	stream *broker.Stream
	bus    *broker.PubSub
	store  *store.Store
	logger core.Logger

	// states is a scoring cache only; the store snapshot is authoritative
	states map[int]*building.Elevator
}

// New creates a scheduler instance
func New(cfg Config, stream *broker.Stream, bus *broker.PubSub, st *store.Store, logger core.Logger) *Scheduler {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Scheduler{
		cfg:      cfg,
		consumer: "scheduler-" + cfg.ID,
		stream:   stream,
		bus:      bus,
		store:    st,
		logger:   logger,
		states:   make(map[int]*building.Elevator),
	}
}

// Run processes the request stream until ctx is cancelled. Startup order:
// ensure the consumer group exists (replaying only future entries for a new
// group), warm the snapshot cache, drain this consumer's pending backlog
// from a previous incarnation, then tail new entries. It returns nil on
// graceful shutdown and an error on persistent broker failure.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.stream.CreateGroup(ctx, core.RequestsStream, core.SchedulerGroup, "$"); err != nil {
		return fmt.Errorf("scheduler %s startup: %w", s.cfg.ID, err)
	}

	if err := s.loadElevatorStates(ctx); err != nil {
		return fmt.Errorf("scheduler %s startup: %w", s.cfg.ID, err)
	}

	if err := s.drainPending(ctx); err != nil {
		return fmt.Errorf("scheduler %s pending drain: %w", s.cfg.ID, err)
	}

	s.logger.Info("Scheduler started", map[string]interface{}{
		"scheduler_id": s.cfg.ID,
		"consumer":     s.consumer,
		"elevators":    s.cfg.Elevators,
	})

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped", map[string]interface{}{
				"scheduler_id": s.cfg.ID,
			})
			return nil
		default:
		}

		entries, err := s.stream.ReadGroup(ctx, broker.ReadArgs{
			Stream:   core.RequestsStream,
			Group:    core.SchedulerGroup,
			Consumer: s.consumer,
			Count:    readBatchSize,
			Block:    time.Second,
			LastID:   ">",
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			// Retries are exhausted inside the adapter; surface to the
			// supervisor for shutdown
			return fmt.Errorf("scheduler %s: %w", s.cfg.ID, err)
		}

		s.handleBatch(ctx, entries)
	}
}

// drainPending replays this consumer's unacknowledged backlog (entries
// delivered before a crash) by reading from id "0" until the backlog is empty.
func (s *Scheduler) drainPending(ctx context.Context) error {
	for {
		entries, err := s.stream.ReadGroup(ctx, broker.ReadArgs{
			Stream:   core.RequestsStream,
			Group:    core.SchedulerGroup,
			Consumer: s.consumer,
			Count:    readBatchSize,
			Block:    -1, // history reads never block; be explicit about it
			LastID:   "0",
		})
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		s.logger.Info("Replaying pending entries", map[string]interface{}{
			"scheduler_id": s.cfg.ID,
			"count":        len(entries),
		})
		s.handleBatch(ctx, entries)
	}
}

// handleBatch processes entries in stream order, acknowledging each one
// only after its handler succeeded. Entries whose dispatch failed stay in
// the pending list for the next drain pass.
func (s *Scheduler) handleBatch(ctx context.Context, entries []broker.Entry) {
	for _, entry := range entries {
		if err := s.process(ctx, entry); err != nil {
			s.logger.Error("Request handling failed, leaving pending", map[string]interface{}{
				"scheduler_id": s.cfg.ID,
				"entry_id":     entry.ID,
				"error":        err.Error(),
			})
			continue
		}
		if _, err := s.stream.Ack(ctx, core.RequestsStream, core.SchedulerGroup, entry.ID); err != nil {
			s.logger.Error("Acknowledge failed", map[string]interface{}{
				"scheduler_id": s.cfg.ID,
				"entry_id":     entry.ID,
				"error":        err.Error(),
			})
		}
	}
}

// process handles one stream entry. Parse failures are tolerated as poison
// pills: they are logged and reported as handled so the entry gets acked.
// Only dispatch failures return an error.
func (s *Scheduler) process(ctx context.Context, entry broker.Entry) error {
	ctx, span := telemetry.Tracer().Start(ctx, "scheduler.handle")
	defer span.End()
	span.SetAttributes(attribute.String("entry_id", entry.ID))

	request, err := building.RequestFromFields(entry.Fields)
	if err != nil {
		s.logger.Error("Discarding malformed request", map[string]interface{}{
			"scheduler_id": s.cfg.ID,
			"entry_id":     entry.ID,
			"error":        err.Error(),
		})
		return nil
	}

	span.SetAttributes(
		attribute.String("request_id", request.RequestID()),
		attribute.String("request_type", string(request.Kind())),
	)

	switch r := request.(type) {
	case *building.InternalRequest:
		return s.handleInternal(ctx, r)
	case *building.ExternalRequest:
		return s.handleExternal(ctx, r)
	default:
		// RequestFromFields only produces the two variants above
		return nil
	}
}

// handleInternal dispatches a cabin selection to its elevator unconditionally
func (s *Scheduler) handleInternal(ctx context.Context, r *building.InternalRequest) error {
	cmd := building.NewCommand(building.CommandAddDestination, r.DestinationFloor, r.ID)
	if err := s.dispatch(ctx, r.ElevatorID, cmd); err != nil {
		return err
	}

	s.logger.Info("Assigned internal request", map[string]interface{}{
		"scheduler_id": s.cfg.ID,
		"request_id":   r.ID,
		"elevator_id":  r.ElevatorID,
		"floor":        r.DestinationFloor,
	})
	return nil
}

// handleExternal scores the fleet and dispatches the hall call to the best
// elevator. When no elevator is available the request is dropped after
// logging; there is no client callback.
func (s *Scheduler) handleExternal(ctx context.Context, r *building.ExternalRequest) error {
	s.refreshStates(ctx)

	elevatorID, ok := s.selectBestElevator(r.Floor, r.Direction)
	if !ok {
		s.logger.Warn("no_suitable_elevator", map[string]interface{}{
			"scheduler_id": s.cfg.ID,
			"request_id":   r.ID,
			"floor":        r.Floor,
			"direction":    string(r.Direction),
		})
		telemetry.RecordRequestUnassigned()
		return nil
	}

	cmd := building.NewCommand(building.CommandGoToFloor, r.Floor, r.ID)
	if err := s.dispatch(ctx, elevatorID, cmd); err != nil {
		return err
	}

	s.logger.Info("Assigned external request", map[string]interface{}{
		"scheduler_id": s.cfg.ID,
		"request_id":   r.ID,
		"elevator_id":  elevatorID,
		"floor":        r.Floor,
	})
	return nil
}

func (s *Scheduler) dispatch(ctx context.Context, elevatorID int, cmd building.Command) error {
	payload, err := cmd.Encode()
	if err != nil {
		return err
	}
	if err := s.bus.Publish(ctx, core.CommandTopic(elevatorID), payload); err != nil {
		return err
	}
	telemetry.RecordCommandPublished(cmd.Command)
	return nil
}

// selectBestElevator returns the elevator with the minimum score for the
// request; ties break toward the lowest elevator id. The second return is
// false when no snapshot is available to score.
func (s *Scheduler) selectBestElevator(floor int, direction building.Direction) (int, bool) {
	bestID := 0
	bestScore := 0.0
	found := false

	for id := 1; id <= s.cfg.Elevators; id++ {
		state, ok := s.states[id]
		if !ok {
			continue
		}
		score := scoreElevator(state, floor, direction)
		s.logger.Debug("Elevator scored", map[string]interface{}{
			"elevator_id": id,
			"floor":       floor,
			"score":       score,
		})
		if !found || score < bestScore {
			found = true
			bestID = id
			bestScore = score
		}
	}
	return bestID, found
}

// scoreElevator computes the placement score: floor distance, with a bonus
// for idle cars, a 0.8 multiplier for moving cars that will pass the
// requested floor in the requested direction, and a 5.0 penalty otherwise.
// Lower is better.
func scoreElevator(e *building.Elevator, floor int, direction building.Direction) float64 {
	distance := abs(e.CurrentFloor - floor)
	score := float64(distance)

	switch e.Status {
	case building.StatusIdle:
		score -= 1
	case building.StatusMovingUp, building.StatusMovingDown:
		onWay := (e.Status == building.StatusMovingUp && direction == building.DirectionUp && floor >= e.CurrentFloor) ||
			(e.Status == building.StatusMovingDown && direction == building.DirectionDown && floor <= e.CurrentFloor)
		if onWay {
			score *= 0.8
		} else {
			score *= 5.0
		}
	}
	return score
}

// loadElevatorStates warms the scoring cache, initializing and persisting a
// default snapshot for any elevator that has none yet
func (s *Scheduler) loadElevatorStates(ctx context.Context) error {
	for id := 1; id <= s.cfg.Elevators; id++ {
		var e building.Elevator
		err := s.store.GetJSON(ctx, core.StatusKey(id), &e)
		switch {
		case err == nil:
			if e.Destinations == nil {
				e.Destinations = []int{}
			}
			s.states[id] = &e
		case errors.Is(err, core.ErrKeyNotFound):
			s.logger.Warn("Elevator snapshot missing, initializing", map[string]interface{}{
				"elevator_id": id,
			})
			fresh := building.NewElevator(id, 1)
			if err := s.store.SetJSON(ctx, core.StatusKey(id), fresh); err != nil {
				return err
			}
			s.states[id] = fresh
		default:
			return err
		}
	}
	return nil
}

// refreshStates re-reads the snapshots before scoring. A failed read keeps
// the cached copy; snapshots are advisory for placement either way.
func (s *Scheduler) refreshStates(ctx context.Context) {
	for id := 1; id <= s.cfg.Elevators; id++ {
		var e building.Elevator
		if err := s.store.GetJSON(ctx, core.StatusKey(id), &e); err != nil {
			s.logger.Debug("Snapshot refresh failed, using cached state", map[string]interface{}{
				"elevator_id": id,
				"error":       err.Error(),
			})
			continue
		}
		if e.Destinations == nil {
			e.Destinations = []int{}
		}
		s.states[id] = &e
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
