package telemetry

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registry is private so components can only record through the helpers;
// the gateway exposes it on /metrics via Handler.
var registry = prometheus.NewRegistry()

var (
	requestsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liftplane_requests_received_total",
			Help: "Passenger requests accepted by the ingress, by request type.",
		},
		[]string{"type"},
	)

	commandsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liftplane_commands_published_total",
			Help: "Commands dispatched to elevator command topics, by command.",
		},
		[]string{"command"},
	)

	requestsUnassigned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "liftplane_requests_unassigned_total",
			Help: "External requests dropped because no suitable elevator was found.",
		},
	)

	elevatorFloor = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "liftplane_elevator_current_floor",
			Help: "Current floor per elevator.",
		},
		[]string{"elevator_id"},
	)

	elevatorQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "liftplane_elevator_queue_depth",
			Help: "Number of queued destinations per elevator.",
		},
		[]string{"elevator_id"},
	)
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		requestsReceived,
		commandsPublished,
		requestsUnassigned,
		elevatorFloor,
		elevatorQueueDepth,
	)
}

// Handler returns the /metrics HTTP handler
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// RecordRequestReceived counts an accepted ingress request
func RecordRequestReceived(requestType string) {
	requestsReceived.WithLabelValues(requestType).Inc()
}

// RecordCommandPublished counts a dispatched elevator command
func RecordCommandPublished(command string) {
	commandsPublished.WithLabelValues(command).Inc()
}

// RecordRequestUnassigned counts a dropped external request
func RecordRequestUnassigned() {
	requestsUnassigned.Inc()
}

// RecordElevatorState updates the per-elevator gauges
func RecordElevatorState(elevatorID, currentFloor, queueDepth int) {
	id := strconv.Itoa(elevatorID)
	elevatorFloor.WithLabelValues(id).Set(float64(currentFloor))
	elevatorQueueDepth.WithLabelValues(id).Set(float64(queueDepth))
}
