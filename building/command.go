package building

import (
	"encoding/json"
	"fmt"

	"github.com/liftplane/liftplane/core"
)

// Command kinds understood by controllers
const (
	CommandGoToFloor      = "go_to_floor"
	CommandAddDestination = "add_destination"
)

// Command is the ephemeral directive the scheduler publishes on an
// elevator's command topic. RequestID carries the originating request id
// for correlation; commands are never persisted.
type Command struct {
	Command       string `json:"command"`
	Floor         int    `json:"floor"`
	RequestID     string `json:"request_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewCommand builds a command correlated to the originating request
func NewCommand(command string, floor int, requestID string) Command {
	return Command{
		Command:       command,
		Floor:         floor,
		RequestID:     requestID,
		CorrelationID: requestID,
	}
}

// Encode renders the command as its JSON wire form
func (c Command) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode command: %v: %w", err, core.ErrBadArgument)
	}
	return string(data), nil
}

// DecodeCommand parses a command topic payload
func DecodeCommand(payload []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(payload, &c); err != nil {
		return Command{}, fmt.Errorf("decode command: %v: %w", err, core.ErrParse)
	}
	return c, nil
}
