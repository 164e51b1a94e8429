// Package gateway is the HTTP ingress of the control plane. It validates
// passenger requests and appends them to the durable request stream,
// exposes the fleet's snapshots, and offers the operator surface for stream
// inspection and trimming. A circuit breaker guards the enqueue path so the
// API fails fast while the broker is down.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/liftplane/liftplane/broker"
	"github.com/liftplane/liftplane/building"
	"github.com/liftplane/liftplane/core"
	"github.com/liftplane/liftplane/resilience"
	"github.com/liftplane/liftplane/store"
	"github.com/liftplane/liftplane/telemetry"
)

const rangeScanLimit = 100

// Gateway serves the ingress API
type Gateway struct {
	floors    int
	elevators int

	stream  *broker.Stream
	store   *store.Store
	logger  core.Logger
	breaker *resilience.CircuitBreaker
}

// New creates a gateway over the shared adapters
func New(cfg *core.Config, stream *broker.Stream, st *store.Store, logger core.Logger) *Gateway {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Gateway{
		floors:    cfg.Floors,
		elevators: cfg.Elevators,
		stream:    stream,
		store:     st,
		logger:    logger,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:   "request-enqueue",
			Logger: logger,
		}),
	}
}

// Router builds the HTTP routes
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/requests/external", g.handleExternalRequest)
		r.Post("/requests/internal", g.handleInternalRequest)
		r.Get("/requests", g.handleListRequests)
		r.Delete("/requests", g.handleTrimRequests)
		r.Get("/elevators", g.handleListElevators)
	})

	r.Get("/healthz", g.handleHealth)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	return r
}

type externalRequestBody struct {
	Floor     int    `json:"floor"`
	Direction string `json:"direction"`
}

type internalRequestBody struct {
	ElevatorID       int `json:"elevator_id"`
	DestinationFloor int `json:"destination_floor"`
}

func (g *Gateway) handleExternalRequest(w http.ResponseWriter, r *http.Request) {
	var body externalRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	direction, err := building.ParseDirection(body.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	request, err := building.NewExternalRequest(body.Floor, direction, g.floors)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	g.enqueue(r.Context(), w, request.ID, string(building.KindExternal), request.Fields())
}

func (g *Gateway) handleInternalRequest(w http.ResponseWriter, r *http.Request) {
	var body internalRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	request, err := building.NewInternalRequest(body.ElevatorID, body.DestinationFloor, g.elevators, g.floors)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	g.enqueue(r.Context(), w, request.ID, string(building.KindInternal), request.Fields())
}

// enqueue appends the request to the stream through the circuit breaker and
// answers 202 with the request and stream ids
func (g *Gateway) enqueue(ctx context.Context, w http.ResponseWriter, requestID, requestType string, fields map[string]interface{}) {
	var streamID string
	err := g.breaker.Execute(func() error {
		var publishErr error
		streamID, publishErr = g.stream.Publish(ctx, core.RequestsStream, fields)
		return publishErr
	})
	if err != nil {
		if errors.Is(err, core.ErrCircuitOpen) {
			writeError(w, http.StatusServiceUnavailable, "request intake temporarily unavailable")
			return
		}
		g.logger.Error("Request enqueue failed", map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		})
		writeError(w, http.StatusBadGateway, "failed to enqueue request")
		return
	}

	telemetry.RecordRequestReceived(requestType)
	g.logger.Info("Request accepted", map[string]interface{}{
		"request_id":   requestID,
		"request_type": requestType,
		"stream_id":    streamID,
	})

	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":        requestID,
		"stream_id": streamID,
	})
}

func (g *Gateway) handleListElevators(w http.ResponseWriter, r *http.Request) {
	elevators := make([]*building.Elevator, 0, g.elevators)
	for id := 1; id <= g.elevators; id++ {
		var e building.Elevator
		err := g.store.GetJSON(r.Context(), core.StatusKey(id), &e)
		switch {
		case err == nil:
			if e.Destinations == nil {
				e.Destinations = []int{}
			}
			elevators = append(elevators, &e)
		case errors.Is(err, core.ErrKeyNotFound):
			// Controller has not persisted yet; report the default state
			elevators = append(elevators, building.NewElevator(id, 1))
		default:
			writeError(w, http.StatusBadGateway, "state store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, elevators)
}

func (g *Gateway) handleListRequests(w http.ResponseWriter, r *http.Request) {
	entries, err := g.stream.Range(r.Context(), core.RequestsStream, "-", "+")
	if err != nil {
		writeError(w, http.StatusBadGateway, "broker unavailable")
		return
	}
	if len(entries) > rangeScanLimit {
		entries = entries[len(entries)-rangeScanLimit:]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
	})
}

func (g *Gateway) handleTrimRequests(w http.ResponseWriter, r *http.Request) {
	minID := r.URL.Query().Get("min_id")
	maxLenRaw := r.URL.Query().Get("maxlen")

	args := broker.TrimArgs{MinID: minID, Approximate: false}
	if maxLenRaw != "" {
		maxLen, err := strconv.ParseInt(maxLenRaw, 10, 64)
		if err != nil || maxLen < 0 {
			writeError(w, http.StatusBadRequest, "maxlen must be a non-negative integer")
			return
		}
		args.MaxLen = maxLen
	}

	trimmed, err := g.stream.Trim(r.Context(), core.RequestsStream, args)
	if err != nil {
		if errors.Is(err, core.ErrBadArgument) {
			writeError(w, http.StatusBadRequest, "provide exactly one of min_id and maxlen")
			return
		}
		writeError(w, http.StatusBadGateway, "broker unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"trimmed": trimmed})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := g.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "backing store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
