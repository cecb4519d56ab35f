package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/casemap/internal/adapters/render"
	"github.com/okian/casemap/internal/adapters/surface"
	"github.com/okian/casemap/internal/domain/choropleth"
)

// MapDependencies exposes the surface state.
type MapDependencies interface {
	Setup() (render.Setup, bool)
	Token() (string, bool)
	CredentialError() error
	Frame() surface.Frame
}

// MapHandler serves the map setup and the painted feature collection.
type MapHandler struct {
	deps MapDependencies
}

// NewMapHandler creates a new map handler.
func NewMapHandler(deps MapDependencies) *MapHandler {
	return &MapHandler{deps: deps}
}

type mapConfigResponse struct {
	Token       string   `json:"token"`
	SourceID    string   `json:"source_id"`
	ClickLayers []string `json:"click_layers"`
	render.Setup
}

// HandleConfig handles GET /map/config. It answers 503 until the surface
// is configured, carrying the credential error when there is one.
func (h *MapHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	const op = "api.map_config"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	if err := h.deps.CredentialError(); err != nil {
		if _, ok := h.deps.Token(); !ok {
			writeError(w, http.StatusServiceUnavailable, "credential", WrapKind(op, ErrUnavailable, err))
			return
		}
	}
	setup, ok := h.deps.Setup()
	token, hasToken := h.deps.Token()
	if !ok || !hasToken {
		writeError(w, http.StatusServiceUnavailable, "unavailable",
			WrapKind(op, ErrUnavailable, errors.New("map not initialized")))
		return
	}
	writeJSON(w, http.StatusOK, mapConfigResponse{
		Token:       token,
		SourceID:    choropleth.SourceID,
		ClickLayers: []string{choropleth.ExtrusionLayerID},
		Setup:       setup,
	})
}

// HandleAreas handles GET /map/areas with the last painted collection.
func (h *MapHandler) HandleAreas(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	frame := h.deps.Frame()
	body := frame.Body
	if len(body) == 0 {
		body = []byte(`{"type":"FeatureCollection","features":[]}`)
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("X-Frame-Seq", strconv.FormatInt(frame.Seq, 10))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
