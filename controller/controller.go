// Package controller drives a single elevator. Each controller owns exactly
// one Elevator entity, subscribes to that elevator's command topic, runs at
// most one background movement task, publishes status change notifications,
// and persists the authoritative snapshot to the state store after every
// transition.
//
// Concurrency model: the command loop and the movement task mutate the same
// Elevator, so every transition+publish+persist triplet runs under the
// controller mutex. Timers (travel, door, dwell) sleep outside the lock and
// respond to context cancellation within one cycle.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/liftplane/liftplane/broker"
	"github.com/liftplane/liftplane/building"
	"github.com/liftplane/liftplane/core"
	"github.com/liftplane/liftplane/store"
	"github.com/liftplane/liftplane/telemetry"
)

// Config parameterizes one controller
type Config struct {
	ElevatorID int
	Floors     int

	FloorTravelTime   time.Duration
	DoorOperationTime time.Duration
	DwellTime         time.Duration
}

// Controller runs the state machine for one elevator
type Controller struct {
	cfg    Config
	store  *store.Store
	bus    *broker.PubSub
	logger core.Logger

	commandTopic string
	statusTopic  string
	statusKey    string

	mu             sync.Mutex
	elevator       *building.Elevator
	movementActive bool
	movement       sync.WaitGroup
}

// New creates a controller for the elevator identified in cfg
func New(cfg Config, st *store.Store, bus *broker.PubSub, logger core.Logger) *Controller {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cfg.FloorTravelTime <= 0 {
		cfg.FloorTravelTime = building.DefaultFloorTravelTime
	}
	if cfg.DoorOperationTime <= 0 {
		cfg.DoorOperationTime = building.DefaultDoorOperationTime
	}
	if cfg.DwellTime <= 0 {
		cfg.DwellTime = 2 * time.Second
	}

	return &Controller{
		cfg:          cfg,
		store:        st,
		bus:          bus,
		logger:       logger,
		commandTopic: core.CommandTopic(cfg.ElevatorID),
		statusTopic:  core.StatusTopic(cfg.ElevatorID),
		statusKey:    core.StatusKey(cfg.ElevatorID),
	}
}

// Run loads the elevator snapshot, subscribes to the command topic, and
// processes commands until ctx is cancelled. It returns nil on graceful
// shutdown and a non-nil error only for unrecoverable startup failures.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.loadState(ctx); err != nil {
		return fmt.Errorf("controller %d startup: %w", c.cfg.ElevatorID, err)
	}

	sub, err := c.bus.Subscribe(ctx, c.commandTopic)
	if err != nil {
		return fmt.Errorf("controller %d subscribe: %w", c.cfg.ElevatorID, err)
	}
	defer sub.Close()

	c.publishSystemEvent(ctx, "controller_started")
	c.logger.Info("Controller started", map[string]interface{}{
		"elevator_id": c.cfg.ElevatorID,
		"floor":       c.currentFloor(),
	})

	// A snapshot persisted mid-trip still carries its queue; resume it
	c.mu.Lock()
	if len(c.elevator.Destinations) > 0 {
		c.startMovementLocked(ctx)
	}
	c.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return c.shutdown()
		case msg, ok := <-sub.Channel():
			if !ok {
				return c.shutdown()
			}
			// One command is dispatched to completion before the next is
			// consumed, so go_to_floor prioritization stays observable
			c.handleCommand(ctx, msg.Payload)
		}
	}
}

func (c *Controller) shutdown() error {
	c.movement.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.publishSystemEvent(ctx, "controller_stopped")

	c.logger.Info("Controller stopped", map[string]interface{}{
		"elevator_id": c.cfg.ElevatorID,
	})
	return nil
}

func (c *Controller) handleCommand(ctx context.Context, payload string) {
	cmd, err := building.DecodeCommand([]byte(payload))
	if err != nil {
		c.logger.Error("Discarding malformed command", map[string]interface{}{
			"elevator_id": c.cfg.ElevatorID,
			"payload":     payload,
			"error":       err.Error(),
		})
		return
	}

	c.logger.Info("Command received", map[string]interface{}{
		"elevator_id": c.cfg.ElevatorID,
		"command":     cmd.Command,
		"floor":       cmd.Floor,
		"request_id":  cmd.RequestID,
	})

	switch cmd.Command {
	case building.CommandGoToFloor:
		c.goToFloor(ctx, cmd)
	case building.CommandAddDestination:
		c.addDestination(ctx, cmd)
	default:
		c.logger.Warn("Discarding unknown command", map[string]interface{}{
			"elevator_id": c.cfg.ElevatorID,
			"command":     cmd.Command,
		})
	}
}

// goToFloor serves a hall call: the floor becomes the highest-priority
// destination. When the cabin is already there and idle, only the doors cycle.
func (c *Controller) goToFloor(ctx context.Context, cmd building.Command) {
	if !c.validFloor(cmd.Floor) {
		return
	}

	c.mu.Lock()
	atFloorIdle := cmd.Floor == c.elevator.CurrentFloor && len(c.elevator.Destinations) == 0
	c.mu.Unlock()

	if atFloorIdle {
		c.doorCycle(ctx)
		return
	}

	c.mu.Lock()
	if c.elevator.PrependDestination(cmd.Floor) {
		c.publishAndPersistLocked(ctx)
	}
	c.startMovementLocked(ctx)
	c.mu.Unlock()
}

// addDestination serves a cabin selection: the floor joins the tail of the queue
func (c *Controller) addDestination(ctx context.Context, cmd building.Command) {
	if !c.validFloor(cmd.Floor) {
		return
	}

	c.mu.Lock()
	if c.elevator.AddDestination(cmd.Floor) {
		c.publishAndPersistLocked(ctx)
	}
	c.startMovementLocked(ctx)
	c.mu.Unlock()
}

func (c *Controller) validFloor(floor int) bool {
	if floor < 1 || floor > c.cfg.Floors {
		c.logger.Warn("Discarding command with invalid floor", map[string]interface{}{
			"elevator_id": c.cfg.ElevatorID,
			"floor":       floor,
			"floors":      c.cfg.Floors,
		})
		return false
	}
	return true
}

// startMovementLocked launches the movement task unless one is running.
// Caller holds c.mu.
func (c *Controller) startMovementLocked(ctx context.Context) {
	if c.movementActive || len(c.elevator.Destinations) == 0 {
		return
	}
	c.movementActive = true
	c.movement.Add(1)
	go c.runMovement(ctx)
}

// runMovement is the single background movement task: it works through the
// destination queue, sleeping for travel and door timings, until the queue
// empties or ctx is cancelled. Cancellation exits between transitions, so
// the last persisted snapshot stays consistent.
func (c *Controller) runMovement(ctx context.Context) {
	defer c.movement.Done()

	for {
		c.mu.Lock()
		if ctx.Err() != nil {
			c.movementActive = false
			c.mu.Unlock()
			return
		}

		target, ok := c.elevator.NextDestination()
		if !ok {
			// Flag is cleared under the same lock that observed the empty
			// queue, so a concurrent enqueue always restarts movement
			c.movementActive = false
			c.mu.Unlock()
			return
		}

		c.elevator.BeginTravel(target)
		travel := time.Duration(abs(target-c.elevator.CurrentFloor)) * c.cfg.FloorTravelTime
		c.publishAndPersistLocked(ctx)
		c.mu.Unlock()

		c.logger.Info("Moving to floor", map[string]interface{}{
			"elevator_id": c.cfg.ElevatorID,
			"target":      target,
			"travel_time": travel.String(),
		})

		if err := sleepCtx(ctx, travel); err != nil {
			c.endMovement()
			return
		}

		c.mu.Lock()
		c.elevator.Arrive(target)
		c.elevator.Status = building.StatusIdle
		c.publishAndPersistLocked(ctx)
		c.mu.Unlock()

		c.logger.Info("Arrived at floor", map[string]interface{}{
			"elevator_id": c.cfg.ElevatorID,
			"floor":       target,
		})

		if err := c.doorCycle(ctx); err != nil {
			c.endMovement()
			return
		}
	}
}

func (c *Controller) endMovement() {
	c.mu.Lock()
	c.movementActive = false
	c.mu.Unlock()
}

// doorCycle opens the doors, dwells for passengers, and closes again,
// publishing and persisting at each transition
func (c *Controller) doorCycle(ctx context.Context) error {
	c.mu.Lock()
	if err := c.elevator.OpenDoor(); err != nil {
		c.logger.Warn("Door cycle refused", map[string]interface{}{
			"elevator_id": c.cfg.ElevatorID,
			"error":       err.Error(),
		})
		c.mu.Unlock()
		return nil
	}
	c.publishAndPersistLocked(ctx)
	c.mu.Unlock()

	if err := sleepCtx(ctx, c.cfg.DoorOperationTime); err != nil {
		return err
	}
	if err := sleepCtx(ctx, c.cfg.DwellTime); err != nil {
		return err
	}

	c.mu.Lock()
	c.elevator.CloseDoor()
	c.publishAndPersistLocked(ctx)
	c.mu.Unlock()

	return sleepCtx(ctx, c.cfg.DoorOperationTime)
}

// publishAndPersistLocked publishes the status notification and writes the
// authoritative snapshot. Failures are logged and skipped: the next
// transition republishes a more current state. Caller holds c.mu.
func (c *Controller) publishAndPersistLocked(ctx context.Context) {
	update := building.NewStatusUpdate(c.elevator)
	if payload, err := json.Marshal(update); err == nil {
		if err := c.bus.Publish(ctx, c.statusTopic, string(payload)); err != nil {
			c.logger.Warn("Status publish failed", map[string]interface{}{
				"elevator_id": c.cfg.ElevatorID,
				"error":       err.Error(),
			})
		}
	}

	if err := c.store.SetJSON(ctx, c.statusKey, c.elevator); err != nil {
		c.logger.Warn("Snapshot persist failed", map[string]interface{}{
			"elevator_id": c.cfg.ElevatorID,
			"error":       err.Error(),
		})
	}

	telemetry.RecordElevatorState(c.elevator.ID, c.elevator.CurrentFloor, len(c.elevator.Destinations))
}

// loadState restores the persisted snapshot or initializes a fresh elevator
// at floor 1. A snapshot interrupted mid-trip is normalized: doors closed,
// idle unless destinations remain (those resume in Run).
func (c *Controller) loadState(ctx context.Context) error {
	var snapshot building.Elevator
	err := c.store.GetJSON(ctx, c.statusKey, &snapshot)
	switch {
	case err == nil:
		if snapshot.Destinations == nil {
			snapshot.Destinations = []int{}
		}
		snapshot.DoorStatus = building.DoorClosed
		if len(snapshot.Destinations) == 0 {
			snapshot.Status = building.StatusIdle
		}
		c.elevator = &snapshot
	case errors.Is(err, core.ErrKeyNotFound):
		c.logger.Warn("No persisted state, initializing", map[string]interface{}{
			"elevator_id": c.cfg.ElevatorID,
		})
		c.elevator = building.NewElevator(c.cfg.ElevatorID, 1)
	default:
		return err
	}

	c.elevator.FloorTravelTime = c.cfg.FloorTravelTime
	c.elevator.DoorOperationTime = c.cfg.DoorOperationTime

	c.mu.Lock()
	c.publishAndPersistLocked(ctx)
	c.mu.Unlock()
	return nil
}

func (c *Controller) publishSystemEvent(ctx context.Context, event string) {
	payload, err := json.Marshal(map[string]interface{}{
		"event":       event,
		"elevator_id": c.cfg.ElevatorID,
		"timestamp":   time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}
	if err := c.bus.Publish(ctx, core.SystemTopic, string(payload)); err != nil {
		c.logger.Debug("System event publish failed", map[string]interface{}{
			"event": event,
			"error": err.Error(),
		})
	}
}

func (c *Controller) currentFloor() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elevator.CurrentFloor
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// sleepCtx waits for d unless ctx is cancelled first
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
