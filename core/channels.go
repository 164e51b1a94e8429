// Package core holds the shared configuration, error, logging, and naming
// conventions for the elevator control plane. The broker and store key names
// defined here are the single source of truth; schedulers, controllers, and
// the gateway all derive their topics and keys from these helpers so that
// publishers and subscribers can never drift apart.
package core

import "fmt"

const (
	// RequestsStream is the durable stream carrying passenger requests
	// from the ingress to the scheduler consumer group.
	RequestsStream = "elevator:requests:stream"

	// SchedulerGroup is the consumer group name on RequestsStream.
	SchedulerGroup = "scheduler-group"

	// SystemTopic carries system-wide lifecycle notifications.
	SystemTopic = "elevator:system"
)

// CommandTopic returns the pub/sub channel carrying directives for one elevator.
func CommandTopic(elevatorID int) string {
	return fmt.Sprintf("elevator:commands:%d", elevatorID)
}

// StatusTopic returns the pub/sub channel carrying status change
// notifications for one elevator.
func StatusTopic(elevatorID int) string {
	return fmt.Sprintf("elevator:status:%d", elevatorID)
}

// StatusKey returns the state store key holding the authoritative snapshot
// for one elevator. It matches StatusTopic by convention.
func StatusKey(elevatorID int) string {
	return StatusTopic(elevatorID)
}
