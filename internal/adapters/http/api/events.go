package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/okian/casemap/internal/adapters/mq/queue"
	"github.com/okian/casemap/internal/adapters/render"
	"github.com/okian/casemap/internal/domain/dedupe"
	"github.com/okian/casemap/pkg/metrics"
)

// EventDependencies defines the interface for event processing dependencies
type EventDependencies interface {
	dedupe.Deduper
	Enqueue(ctx context.Context, e render.Event) error
}

// EventsHandler handles surface event intake.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// eventRequest is the body of POST /map/events.
type eventRequest struct {
	EventID string  `json:"event_id"`
	Type    string  `json:"type"`
	Lng     float64 `json:"lng"`
	Lat     float64 `json:"lat"`
	Zoom    float64 `json:"zoom"`
	Code    int     `json:"code"`
}

func (e eventRequest) event() (render.Event, error) {
	t, err := render.ParseEventType(e.Type)
	if err != nil {
		return render.Event{}, err
	}
	if t == render.EventClick {
		return render.Event{}, errors.New("clicks are resolved by POST /map/click")
	}
	if t == render.EventError && e.Code == 0 {
		return render.Event{}, errors.New("missing code for error event")
	}
	if t == render.EventMove {
		if err := validCoordinate(e.Lng, e.Lat); err != nil {
			return render.Event{}, err
		}
	}
	id := e.EventID
	if id == "" {
		id = uuid.NewString()
	}
	return render.Event{
		ID:         id,
		Type:       t,
		Lng:        e.Lng,
		Lat:        e.Lat,
		Zoom:       e.Zoom,
		Code:       e.Code,
		ReceivedAt: time.Now(),
	}, nil
}

// HandlePostEvent handles POST /map/events requests. Events without an id
// get a server-side one and are never treated as duplicates.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	ev, err := req.event()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	// Idempotency check - mark as seen first
	if h.deps.SeenAndRecord(r.Context(), ev.ID) {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", EventID: ev.ID, Duplicate: true})
		return
	}

	if err := h.deps.Enqueue(r.Context(), ev); err != nil {
		// Rollback the "seen" status since enqueue failed
		h.deps.Unrecord(r.Context(), ev.ID)
		if errors.Is(err, queue.ErrFull) {
			writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
			return
		}
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", EventID: ev.ID})
}
