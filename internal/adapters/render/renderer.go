// Package render pushes dataset snapshots onto the live map surface and
// routes the discrete events the surface emits.
package render

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/casemap/internal/domain/choropleth"
	"github.com/okian/casemap/internal/domain/geo"
	"github.com/okian/casemap/internal/domain/interaction"
	"github.com/okian/casemap/internal/domain/model"
	"github.com/okian/casemap/pkg/logger"
	"github.com/okian/casemap/pkg/metrics"
)

const defaultMinPaintInterval = 250 * time.Millisecond

// Skip reasons, used as metric labels.
const (
	SkipUnchanged = "unchanged"
	SkipThrottled = "throttled"
)

// Credentials is what the renderer needs from the credential manager.
type Credentials interface {
	Token() (string, bool)
	FetchToken(ctx context.Context) (string, error)
}

// Renderer paints snapshots and handles surface events. One Renderer can
// drive several surfaces, each through its own Handle.
type Renderer struct {
	creds       Credentials
	resolver    *interaction.Resolver
	ramp        *choropleth.Ramp
	style       string
	minInterval time.Duration
	now         func() time.Time
	log         logger.Logger

	refreshes atomic.Int64
}

// New returns a Renderer using creds for the token and 401 recovery.
func New(creds Credentials, opts ...Option) *Renderer {
	r := &Renderer{
		creds:       creds,
		style:       DefaultStyle,
		minInterval: defaultMinPaintInterval,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.ramp == nil {
		r.ramp = choropleth.NewRamp()
	}
	if r.resolver == nil {
		r.resolver = interaction.NewResolver(interaction.WithRamp(r.ramp))
	}
	if r.log == nil {
		r.log = logger.Named("render")
	}
	return r
}

// PaintStats counts what SetData did with the snapshots it received.
type PaintStats struct {
	Paints           int64  `json:"paints"`
	SkippedUnchanged int64  `json:"skipped_unchanged"`
	SkippedThrottled int64  `json:"skipped_throttled"`
	Pending          bool   `json:"pending"`
	Version          uint64 `json:"version"`
	Hash             uint64 `json:"hash"`
}

// Handle is one initialized surface.
type Handle struct {
	surface Surface
	setup   Setup

	mu        sync.Mutex
	painted   bool
	lastHash  uint64
	lastPaint time.Time
	pending   *model.Dataset
	stats     PaintStats

	current atomic.Pointer[model.Dataset]
	camera  atomic.Pointer[Camera]
	ready   atomic.Bool
}

// Setup returns the configuration the surface was initialized with.
func (h *Handle) Setup() Setup { return h.setup }

// Ready reports whether the surface signalled load.
func (h *Handle) Ready() bool { return h.ready.Load() }

// Current returns the last painted snapshot, or nil.
func (h *Handle) Current() *model.Dataset { return h.current.Load() }

// Camera returns the last reported camera.
func (h *Handle) Camera() (Camera, bool) {
	c := h.camera.Load()
	if c == nil {
		return Camera{}, false
	}
	return *c, true
}

// Stats returns a copy of the paint counters.
func (h *Handle) Stats() PaintStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.stats
	s.Pending = h.pending != nil
	return s
}

// Initialize configures surface with the camera in view, the style, a
// navigation control, the GeoJSON source and both layers. A token must
// already be in the credential store.
func (r *Renderer) Initialize(surface Surface, view View) (*Handle, error) {
	if _, ok := r.creds.Token(); !ok {
		return nil, ErrNoCredential
	}
	setup := Setup{
		Style: r.style,
		View:  view,
		Controls: []Control{
			{Type: "navigation", Position: "bottom-right", VisualizePitch: true},
		},
		Sources: []Source{{ID: choropleth.SourceID, Type: "geojson"}},
		Layers:  []choropleth.Layer{r.ramp.ExtrusionLayer(), choropleth.LabelLayer()},
	}
	if err := surface.Configure(setup); err != nil {
		return nil, fmt.Errorf("%w: configure: %w", ErrSurface, err)
	}
	return &Handle{surface: surface, setup: setup}, nil
}

// SetData replaces the rendered collection with ds. A snapshot whose
// structural hash equals the painted one is dropped. A snapshot arriving
// within the minimum paint interval is held as pending, replacing any older
// pending one. It reports whether a paint happened.
func (r *Renderer) SetData(ctx context.Context, h *Handle, ds *model.Dataset) (bool, error) {
	if h == nil {
		return false, ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.painted && ds.Hash() == h.lastHash {
		h.pending = nil
		h.stats.SkippedUnchanged++
		metrics.RecordPaintSkipped(SkipUnchanged)
		return false, nil
	}
	if h.painted && r.now().Sub(h.lastPaint) < r.minInterval {
		h.pending = ds
		h.stats.SkippedThrottled++
		metrics.RecordPaintSkipped(SkipThrottled)
		return false, nil
	}
	if err := r.paint(ctx, h, ds); err != nil {
		return false, err
	}
	return true, nil
}

// Flush paints the pending snapshot, if any, without waiting for the
// interval to pass.
func (r *Renderer) Flush(ctx context.Context, h *Handle) (bool, error) {
	if h == nil {
		return false, ErrNotInitialized
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil {
		return false, nil
	}
	ds := h.pending
	if h.painted && ds.Hash() == h.lastHash {
		h.pending = nil
		return false, nil
	}
	if err := r.paint(ctx, h, ds); err != nil {
		return false, err
	}
	return true, nil
}

// paint must be called with h.mu held.
func (r *Renderer) paint(ctx context.Context, h *Handle, ds *model.Dataset) error {
	start := time.Now()
	fc := BuildFeatureCollection(ds, r.ramp)
	if err := h.surface.SetData(fc); err != nil {
		metrics.RecordErrorByComponent("render", "surface")
		return fmt.Errorf("%w: set data: %w", ErrSurface, err)
	}
	h.painted = true
	h.lastHash = ds.Hash()
	h.lastPaint = r.now()
	h.pending = nil
	h.stats.Paints++
	h.stats.Version = ds.Version()
	h.stats.Hash = ds.Hash()
	h.current.Store(ds)
	metrics.RecordPaint(float64(time.Since(start).Microseconds()) / 1000)
	r.log.Debug(ctx, "snapshot painted",
		logger.Any("version", ds.Version()),
		logger.Int("features", len(fc.Features)))
	return nil
}

// HandleEvent routes a surface event. A 401 error triggers exactly one
// credential refresh; the surface keeps its data and is not reconfigured.
func (r *Renderer) HandleEvent(ctx context.Context, h *Handle, ev Event) error {
	if h == nil {
		return ErrNotInitialized
	}
	metrics.RecordSurfaceEvent(string(ev.Type))
	switch ev.Type {
	case EventLoad:
		h.ready.Store(true)
		r.log.Info(ctx, "surface loaded", logger.String("event_id", ev.ID))
		return nil
	case EventMove:
		at := ev.ReceivedAt
		if at.IsZero() {
			at = r.now()
		}
		h.camera.Store(&Camera{
			Lng:       round(ev.Lng, 3),
			Lat:       round(ev.Lat, 3),
			Zoom:      round(ev.Zoom, 2),
			UpdatedAt: at,
		})
		return nil
	case EventClick:
		popup, err := r.Click(h, ev.LayerID, ev.AreaName, geo.Point{ev.Lng, ev.Lat})
		if err != nil {
			return err
		}
		r.log.Debug(ctx, "click resolved", logger.String("name", popup.Name))
		return nil
	case EventError:
		return r.handleError(ctx, ev)
	}
	return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
}

func (r *Renderer) handleError(ctx context.Context, ev Event) error {
	if ev.Code != http.StatusUnauthorized {
		r.log.Warn(ctx, "surface error",
			logger.String("event_id", ev.ID),
			logger.Int("code", ev.Code))
		return nil
	}
	metrics.RecordRenderAuthError()
	r.refreshes.Add(1)
	authErr := &RenderAuthError{Code: ev.Code, EventID: ev.ID}
	r.log.Warn(ctx, "surface unauthorized, refreshing token", logger.Error(authErr))
	if _, err := r.creds.FetchToken(ctx); err != nil {
		authErr.Refresh = err
		return authErr
	}
	return nil
}

// Refreshes returns how many 401 events triggered a credential refresh.
func (r *Renderer) Refreshes() int64 {
	return r.refreshes.Load()
}

// Click resolves a click against the last painted snapshot. A click on the
// extrusion layer names the area hit; anything else is a background click.
func (r *Renderer) Click(h *Handle, layerID, areaName string, at geo.Point) (interaction.Popup, error) {
	if h == nil {
		return interaction.Popup{}, ErrNotInitialized
	}
	if layerID != choropleth.ExtrusionLayerID || areaName == "" {
		return r.resolver.BackgroundClick(at), nil
	}
	ds := h.Current()
	if ds == nil {
		return interaction.Popup{}, fmt.Errorf("%w: %q", ErrUnknownArea, areaName)
	}
	area, ok := ds.Area(areaName)
	if !ok {
		return interaction.Popup{}, fmt.Errorf("%w: %q", ErrUnknownArea, areaName)
	}
	return r.resolver.FeatureClick(area, at), nil
}

// Sink adapts a Handle to the aggregator's Publisher.
type Sink struct {
	r *Renderer
	h *Handle
}

// Sink returns a publisher painting onto h.
func (r *Renderer) Sink(h *Handle) *Sink {
	return &Sink{r: r, h: h}
}

// Publish forwards ds to SetData.
func (s *Sink) Publish(ctx context.Context, ds *model.Dataset) error {
	_, err := s.r.SetData(ctx, s.h, ds)
	return err
}

// Flush paints whatever is still pending.
func (s *Sink) Flush(ctx context.Context) error {
	_, err := s.r.Flush(ctx, s.h)
	return err
}
