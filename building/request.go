package building

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/liftplane/liftplane/core"
)

// Direction of an external hall call
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// ParseDirection accepts "up"/"down" case-insensitively
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "up":
		return DirectionUp, nil
	case "down":
		return DirectionDown, nil
	default:
		return "", fmt.Errorf("direction %q: %w", s, core.ErrValidation)
	}
}

// RequestStatus of a request. The stream entry is immutable after creation;
// completion is signalled by consumer-group acknowledgement, so the field
// stays "pending" on the wire.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestCompleted RequestStatus = "completed"
)

// RequestKind tags the two request variants
type RequestKind string

const (
	KindExternal RequestKind = "external"
	KindInternal RequestKind = "internal"
)

// Request is the tagged variant consumed by the scheduler; concrete types
// are ExternalRequest and InternalRequest
type Request interface {
	RequestID() string
	Kind() RequestKind
}

// ExternalRequest is a hall call: a floor button pressed outside an elevator
type ExternalRequest struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Status    RequestStatus `json:"status"`
	Floor     int           `json:"floor"`
	Direction Direction     `json:"direction"`
}

// InternalRequest is a cabin selection: a destination button pressed inside
type InternalRequest struct {
	ID               string        `json:"id"`
	Timestamp        time.Time     `json:"timestamp"`
	Status           RequestStatus `json:"status"`
	ElevatorID       int           `json:"elevator_id"`
	DestinationFloor int           `json:"destination_floor"`
}

func (r *ExternalRequest) RequestID() string { return r.ID }
func (r *ExternalRequest) Kind() RequestKind { return KindExternal }
func (r *InternalRequest) RequestID() string { return r.ID }
func (r *InternalRequest) Kind() RequestKind { return KindInternal }

// NewExternalRequest validates the hall call against the building layout
func NewExternalRequest(floor int, direction Direction, floors int) (*ExternalRequest, error) {
	if floor < 1 || floor > floors {
		return nil, fmt.Errorf("floor %d out of range [1, %d]: %w", floor, floors, core.ErrValidation)
	}
	if direction != DirectionUp && direction != DirectionDown {
		return nil, fmt.Errorf("direction %q: %w", direction, core.ErrValidation)
	}
	return &ExternalRequest{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Status:    RequestPending,
		Floor:     floor,
		Direction: direction,
	}, nil
}

// NewInternalRequest validates the cabin selection against the building layout
func NewInternalRequest(elevatorID, destinationFloor, elevators, floors int) (*InternalRequest, error) {
	if elevatorID < 1 || elevatorID > elevators {
		return nil, fmt.Errorf("elevator id %d out of range [1, %d]: %w", elevatorID, elevators, core.ErrValidation)
	}
	if destinationFloor < 1 || destinationFloor > floors {
		return nil, fmt.Errorf("destination floor %d out of range [1, %d]: %w", destinationFloor, floors, core.ErrValidation)
	}
	return &InternalRequest{
		ID:               uuid.NewString(),
		Timestamp:        time.Now().UTC(),
		Status:           RequestPending,
		ElevatorID:       elevatorID,
		DestinationFloor: destinationFloor,
	}, nil
}

// Fields renders the request as the flat string map appended to the stream
func (r *ExternalRequest) Fields() map[string]interface{} {
	return map[string]interface{}{
		"id":           r.ID,
		"timestamp":    r.Timestamp.Format(time.RFC3339Nano),
		"status":       string(r.Status),
		"request_type": string(KindExternal),
		"floor":        strconv.Itoa(r.Floor),
		"direction":    string(r.Direction),
	}
}

// Fields renders the request as the flat string map appended to the stream
func (r *InternalRequest) Fields() map[string]interface{} {
	return map[string]interface{}{
		"id":                r.ID,
		"timestamp":         r.Timestamp.Format(time.RFC3339Nano),
		"status":            string(r.Status),
		"request_type":      string(KindInternal),
		"elevator_id":       strconv.Itoa(r.ElevatorID),
		"destination_floor": strconv.Itoa(r.DestinationFloor),
	}
}

// RequestFromFields parses a stream entry back into its tagged variant.
// It is tolerant of the ingress wire schema: a missing status defaults to
// pending and the timestamp accepts RFC 3339 or a unix epoch.
func RequestFromFields(fields map[string]string) (Request, error) {
	kind := RequestKind(fields["request_type"])
	id := fields["id"]
	if id == "" {
		return nil, fmt.Errorf("request without id: %w", core.ErrParse)
	}

	ts := parseTimestamp(fields["timestamp"])
	status := RequestStatus(fields["status"])
	if status == "" {
		status = RequestPending
	}

	switch kind {
	case KindExternal:
		floor, err := strconv.Atoi(fields["floor"])
		if err != nil {
			return nil, fmt.Errorf("external request %s floor %q: %w", id, fields["floor"], core.ErrParse)
		}
		direction, err := ParseDirection(fields["direction"])
		if err != nil {
			return nil, fmt.Errorf("external request %s: %w", id, core.ErrParse)
		}
		return &ExternalRequest{
			ID:        id,
			Timestamp: ts,
			Status:    status,
			Floor:     floor,
			Direction: direction,
		}, nil

	case KindInternal:
		elevatorID, err := strconv.Atoi(fields["elevator_id"])
		if err != nil {
			return nil, fmt.Errorf("internal request %s elevator_id %q: %w", id, fields["elevator_id"], core.ErrParse)
		}
		floor, err := strconv.Atoi(fields["destination_floor"])
		if err != nil {
			return nil, fmt.Errorf("internal request %s destination_floor %q: %w", id, fields["destination_floor"], core.ErrParse)
		}
		return &InternalRequest{
			ID:               id,
			Timestamp:        ts,
			Status:           status,
			ElevatorID:       elevatorID,
			DestinationFloor: floor,
		}, nil

	default:
		return nil, fmt.Errorf("unknown request type %q: %w", kind, core.ErrParse)
	}
}

func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if epoch, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(epoch)
		nsec := int64((epoch - float64(sec)) * float64(time.Second))
		return time.Unix(sec, nsec).UTC()
	}
	return time.Time{}
}
