// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/casemap/internal/adapters/render"
	"github.com/okian/casemap/internal/adapters/surface"
	"github.com/okian/casemap/internal/domain/dedupe"
	"github.com/okian/casemap/internal/domain/geo"
	"github.com/okian/casemap/internal/domain/interaction"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	dedupe.Deduper

	// Enqueue pushes a surface event for async dispatch.
	Enqueue(ctx context.Context, e render.Event) error

	// Surface state.
	Setup() (render.Setup, bool)
	Token() (string, bool)
	CredentialError() error
	Frame() surface.Frame

	// Click resolves a click against the painted snapshot.
	Click(layerID, areaName string, at geo.Point) (interaction.Popup, error)
}

// Server wires HTTP routes for the map API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	eventsHandler *EventsHandler
	clickHandler  *ClickHandler
	mapHandler    *MapHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		eventsHandler: NewEventsHandler(deps),
		clickHandler:  NewClickHandler(deps),
		mapHandler:    NewMapHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/map/config", MetricsMiddleware(s.mapHandler.HandleConfig, "map_config"))
	mux.HandleFunc("/map/areas", MetricsMiddleware(s.mapHandler.HandleAreas, "map_areas"))
	mux.HandleFunc("/map/events", MetricsMiddleware(s.eventsHandler.HandlePostEvent, "map_events"))
	mux.HandleFunc("/map/click", MetricsMiddleware(s.clickHandler.HandleClick, "map_click"))
}

type ackResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
