package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/casemap/internal/adapters/render"
	"github.com/okian/casemap/internal/domain/geo"
	"github.com/okian/casemap/internal/domain/interaction"
	"github.com/okian/casemap/pkg/metrics"
)

// ClickDependencies resolves clicks.
type ClickDependencies interface {
	Click(layerID, areaName string, at geo.Point) (interaction.Popup, error)
}

// ClickHandler resolves map clicks to popups.
type ClickHandler struct {
	deps ClickDependencies
}

// NewClickHandler creates a new click handler.
func NewClickHandler(deps ClickDependencies) *ClickHandler {
	return &ClickHandler{deps: deps}
}

type clickRequest struct {
	LayerID  string  `json:"layer_id"`
	AreaName string  `json:"area_name"`
	Lng      float64 `json:"lng"`
	Lat      float64 `json:"lat"`
}

func validCoordinate(lng, lat float64) error {
	if lng < -180 || lng > 180 || lat < -90 || lat > 90 {
		return fmt.Errorf("coordinate out of range: %g,%g", lng, lat)
	}
	return nil
}

// HandleClick handles POST /map/click. It answers synchronously with the
// popup for the clicked area, or a background popup off the extrusion layer.
func (h *ClickHandler) HandleClick(w http.ResponseWriter, r *http.Request) {
	const op = "api.click"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req clickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := validCoordinate(req.Lng, req.Lat); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	metrics.RecordSurfaceEvent(string(render.EventClick))

	popup, err := h.deps.Click(req.LayerID, req.AreaName, geo.Point{req.Lng, req.Lat})
	switch {
	case errors.Is(err, render.ErrUnknownArea):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	case errors.Is(err, render.ErrNotInitialized):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal", err)
	default:
		writeJSON(w, http.StatusOK, popup)
	}
}
