// Package building holds the domain entities of the elevator control plane:
// the elevator itself with its pure state transitions, the tagged request
// variants that ride the request stream, and the command wire type delivered
// on the per-elevator command topics.
package building

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/liftplane/liftplane/core"
)

// Status is the movement state of an elevator
type Status string

const (
	StatusIdle       Status = "idle"
	StatusMovingUp   Status = "moving_up"
	StatusMovingDown Status = "moving_down"
)

// DoorStatus is the door state of an elevator
type DoorStatus string

const (
	DoorOpen   DoorStatus = "open"
	DoorClosed DoorStatus = "closed"
)

// Timing defaults for the simulated physical domain
const (
	DefaultFloorTravelTime   = 1 * time.Second
	DefaultDoorOperationTime = 1500 * time.Millisecond
)

// Elevator is the in-memory entity owned by exactly one controller.
// Invariants: the door is closed whenever the elevator is moving, the
// destination queue never contains the current floor, and it holds no
// duplicates. Travel timings are runtime configuration and are not part of
// the serialized snapshot.
type Elevator struct {
	ID           int        `json:"id"`
	CurrentFloor int        `json:"current_floor"`
	Status       Status     `json:"status"`
	DoorStatus   DoorStatus `json:"door_status"`
	Destinations []int      `json:"destinations"`

	FloorTravelTime   time.Duration `json:"-"`
	DoorOperationTime time.Duration `json:"-"`
}

// NewElevator creates an idle elevator with closed doors and an empty queue
func NewElevator(id, initialFloor int) *Elevator {
	return &Elevator{
		ID:                id,
		CurrentFloor:      initialFloor,
		Status:            StatusIdle,
		DoorStatus:        DoorClosed,
		Destinations:      []int{},
		FloorTravelTime:   DefaultFloorTravelTime,
		DoorOperationTime: DefaultDoorOperationTime,
	}
}

// AddDestination appends floor to the queue. It is a no-op (returning
// false) when floor is the current floor or already queued.
func (e *Elevator) AddDestination(floor int) bool {
	if floor == e.CurrentFloor {
		return false
	}
	for _, d := range e.Destinations {
		if d == floor {
			return false
		}
	}
	e.Destinations = append(e.Destinations, floor)
	return true
}

// PrependDestination makes floor the highest-priority destination. An
// occurrence elsewhere in the queue is moved to the head rather than
// duplicated. Returns false when floor is the current floor.
func (e *Elevator) PrependDestination(floor int) bool {
	if floor == e.CurrentFloor {
		return false
	}
	queue := make([]int, 0, len(e.Destinations)+1)
	queue = append(queue, floor)
	for _, d := range e.Destinations {
		if d != floor {
			queue = append(queue, d)
		}
	}
	e.Destinations = queue
	return true
}

// NextDestination peeks at the head of the queue without removing it
func (e *Elevator) NextDestination() (int, bool) {
	if len(e.Destinations) == 0 {
		return 0, false
	}
	return e.Destinations[0], true
}

// DirectionTo returns the movement status required to reach floor
func (e *Elevator) DirectionTo(floor int) Status {
	switch {
	case floor > e.CurrentFloor:
		return StatusMovingUp
	case floor < e.CurrentFloor:
		return StatusMovingDown
	default:
		return StatusIdle
	}
}

// BeginTravel marks the elevator as moving toward floor.
// The door must already be closed.
func (e *Elevator) BeginTravel(floor int) {
	e.Status = e.DirectionTo(floor)
}

// Arrive records arrival at floor: the current floor is updated, a matching
// queue head is popped, and the elevator goes idle when the queue empties.
// A destination is popped only here, never when travel begins.
func (e *Elevator) Arrive(floor int) {
	e.CurrentFloor = floor
	if len(e.Destinations) > 0 && e.Destinations[0] == floor {
		e.Destinations = e.Destinations[1:]
	}
	if len(e.Destinations) == 0 {
		e.Status = StatusIdle
	}
}

// OpenDoor opens the door. The door can only open while the elevator is idle.
func (e *Elevator) OpenDoor() error {
	if e.Status != StatusIdle {
		return fmt.Errorf("cannot open door while %s: %w", e.Status, core.ErrValidation)
	}
	e.DoorStatus = DoorOpen
	return nil
}

// CloseDoor closes the door
func (e *Elevator) CloseDoor() {
	e.DoorStatus = DoorClosed
}

// ToJSON serializes the snapshot fields
func (e *Elevator) ToJSON() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode elevator %d: %v: %w", e.ID, err, core.ErrBadArgument)
	}
	return string(data), nil
}

// ElevatorFromJSON restores an elevator from its snapshot. Timing fields
// are reset to defaults; controllers overwrite them from configuration.
func ElevatorFromJSON(data []byte) (*Elevator, error) {
	var e Elevator
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode elevator: %v: %w", err, core.ErrParse)
	}
	if e.Destinations == nil {
		e.Destinations = []int{}
	}
	e.FloorTravelTime = DefaultFloorTravelTime
	e.DoorOperationTime = DefaultDoorOperationTime
	return &e, nil
}

// StatusUpdate is the payload published on an elevator's status topic.
// The state-store snapshot is authoritative; this message is a best-effort
// change notification.
type StatusUpdate struct {
	ID           int        `json:"id"`
	CurrentFloor int        `json:"current_floor"`
	Status       Status     `json:"status"`
	DoorStatus   DoorStatus `json:"door_status"`
	Destinations []int      `json:"destinations"`
	Timestamp    float64    `json:"timestamp"`
}

// NewStatusUpdate captures the elevator's current state with a timestamp
func NewStatusUpdate(e *Elevator) StatusUpdate {
	destinations := make([]int, len(e.Destinations))
	copy(destinations, e.Destinations)
	return StatusUpdate{
		ID:           e.ID,
		CurrentFloor: e.CurrentFloor,
		Status:       e.Status,
		DoorStatus:   e.DoorStatus,
		Destinations: destinations,
		Timestamp:    float64(time.Now().UnixNano()) / float64(time.Second),
	}
}
