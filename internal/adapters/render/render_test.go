package render_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/okian/casemap/internal/adapters/credential"
	"github.com/okian/casemap/internal/adapters/gateway"
	"github.com/okian/casemap/internal/adapters/gateway/gatewaytest"
	"github.com/okian/casemap/internal/adapters/render"
	"github.com/okian/casemap/internal/domain/choropleth"
	"github.com/okian/casemap/internal/domain/geo"
	"github.com/okian/casemap/internal/domain/interaction"
	"github.com/okian/casemap/internal/domain/model"
	"github.com/okian/casemap/pkg/logger"
	"github.com/okian/casemap/pkg/metrics"
	geojson "github.com/paulmach/go.geojson"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type fakeSurface struct {
	mu        sync.Mutex
	setups    []render.Setup
	paints    []*geojson.FeatureCollection
	failPaint error
}

func (s *fakeSurface) Configure(setup render.Setup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setups = append(s.setups, setup)
	return nil
}

func (s *fakeSurface) SetData(fc *geojson.FeatureCollection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPaint != nil {
		return s.failPaint
	}
	s.paints = append(s.paints, fc)
	return nil
}

func (s *fakeSurface) paintCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paints)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func square(x float64) *geojson.Geometry {
	return geojson.NewPolygonGeometry([][][]float64{{
		{x, 0}, {x + 1, 0}, {x + 1, 1}, {x, 1}, {x, 0},
	}})
}

func dataset(version uint64, annexCases ...model.CaseRecord) *model.Dataset {
	annex := model.NewArea(95, "Annex", square(0), 2_000_000)
	for _, c := range annexCases {
		annex.Cases = append(annex.Cases, c)
		if !c.IsActive() {
			annex.Metrics[model.MetricActiveCases]++
		}
	}
	junction := model.NewArea(90, "Junction Area", square(2), 1_000_000)
	return model.NewDataset(version, []*model.Area{annex, junction})
}

func newManager(up *gatewaytest.Upstream) *credential.Manager {
	client, err := gateway.New(up.URL)
	So(err, ShouldBeNil)
	return credential.New(client)
}

func TestInitialize(t *testing.T) {
	Convey("Given a renderer", t, func() {
		ctx := context.Background()
		up := gatewaytest.New()
		defer up.Close()
		creds := newManager(up)
		r := render.New(creds)
		surface := &fakeSurface{}

		Convey("When no token has been fetched", func() {
			_, err := r.Initialize(surface, render.DefaultView())

			Convey("Then initialization should be refused", func() {
				So(errors.Is(err, render.ErrNoCredential), ShouldBeTrue)
				So(surface.setups, ShouldBeEmpty)
			})
		})

		Convey("When a token is available", func() {
			_, err := creds.FetchToken(ctx)
			So(err, ShouldBeNil)
			h, err := r.Initialize(surface, render.DefaultView())

			Convey("Then the surface should be configured once with the fixed view", func() {
				So(err, ShouldBeNil)
				So(len(surface.setups), ShouldEqual, 1)
				setup := surface.setups[0]
				So(setup.Style, ShouldEqual, render.DefaultStyle)
				So(setup.View, ShouldResemble, render.View{Lng: -79.404, Lat: 43.698, Zoom: 10, Pitch: 40, Bearing: 20, Antialias: true})
				So(setup.Controls, ShouldResemble, []render.Control{{Type: "navigation", Position: "bottom-right", VisualizePitch: true}})
				So(setup.Sources[0].ID, ShouldEqual, choropleth.SourceID)
				So(setup.Layers[0].ID, ShouldEqual, choropleth.ExtrusionLayerID)
				So(setup.Layers[1].ID, ShouldEqual, choropleth.LabelLayerID)
				So(h.Setup(), ShouldResemble, setup)
				So(h.Ready(), ShouldBeFalse)
			})
		})
	})
}

func TestSetData(t *testing.T) {
	Convey("Given an initialized surface with a 250ms paint interval", t, func() {
		ctx := context.Background()
		up := gatewaytest.New()
		defer up.Close()
		creds := newManager(up)
		_, err := creds.FetchToken(ctx)
		So(err, ShouldBeNil)
		clk := &clock{t: time.Unix(1_600_000_000, 0)}
		r := render.New(creds, render.WithClock(clk.now), render.WithMinPaintInterval(250*time.Millisecond))
		surface := &fakeSurface{}
		h, err := r.Initialize(surface, render.DefaultView())
		So(err, ShouldBeNil)

		Convey("When the same snapshot content is set twice", func() {
			first := dataset(1)
			second := dataset(2)
			painted1, err1 := r.SetData(ctx, h, first)
			clk.advance(time.Second)
			painted2, err2 := r.SetData(ctx, h, second)

			Convey("Then only the first call should paint", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(painted1, ShouldBeTrue)
				So(painted2, ShouldBeFalse)
				So(surface.paintCount(), ShouldEqual, 1)
				So(h.Stats().Paints, ShouldEqual, int64(1))
				So(h.Stats().SkippedUnchanged, ShouldEqual, int64(1))
			})
		})

		Convey("When changed snapshots arrive faster than the interval", func() {
			_, _ = r.SetData(ctx, h, dataset(1))
			clk.advance(100 * time.Millisecond)
			p2, _ := r.SetData(ctx, h, dataset(2, model.CaseRecord{AreaName: "Annex", Outcome: "RESOLVED"}))
			clk.advance(50 * time.Millisecond)
			latest := dataset(3, model.CaseRecord{AreaName: "Annex", Outcome: "RESOLVED"}, model.CaseRecord{AreaName: "Annex", Outcome: "FATAL"})
			p3, _ := r.SetData(ctx, h, latest)

			Convey("Then they should be held as one pending snapshot", func() {
				So(p2, ShouldBeFalse)
				So(p3, ShouldBeFalse)
				So(surface.paintCount(), ShouldEqual, 1)
				So(h.Stats().Pending, ShouldBeTrue)
				So(h.Stats().SkippedThrottled, ShouldEqual, int64(2))
			})

			Convey("Then Flush should paint the latest pending snapshot", func() {
				painted, err := r.Flush(ctx, h)
				So(err, ShouldBeNil)
				So(painted, ShouldBeTrue)
				So(surface.paintCount(), ShouldEqual, 2)
				So(h.Current().Hash(), ShouldEqual, latest.Hash())
				So(h.Stats().Pending, ShouldBeFalse)

				again, err := r.Flush(ctx, h)
				So(err, ShouldBeNil)
				So(again, ShouldBeFalse)
			})

			Convey("Then a later eligible SetData should paint its own snapshot", func() {
				clk.advance(time.Second)
				resolved := model.CaseRecord{AreaName: "Annex", Outcome: "RESOLVED"}
				newest := dataset(4, resolved, resolved, resolved)
				painted, err := r.SetData(ctx, h, newest)
				So(err, ShouldBeNil)
				So(painted, ShouldBeTrue)
				So(h.Stats().Pending, ShouldBeFalse)
				So(surface.paintCount(), ShouldEqual, 2)
				So(h.Current().Hash(), ShouldEqual, newest.Hash())
			})

			Convey("Then a later snapshot equal to the painted one should drop the pending one", func() {
				clk.advance(time.Second)
				painted, err := r.SetData(ctx, h, dataset(4))
				So(err, ShouldBeNil)
				So(painted, ShouldBeFalse)
				So(h.Stats().Pending, ShouldBeFalse)
				So(surface.paintCount(), ShouldEqual, 1)
			})
		})

		Convey("When the surface rejects a paint", func() {
			surface.failPaint = errors.New("webgl lost")
			_, err := r.SetData(ctx, h, dataset(1))

			Convey("Then ErrSurface should be returned and nothing recorded", func() {
				So(errors.Is(err, render.ErrSurface), ShouldBeTrue)
				So(h.Current(), ShouldBeNil)
			})
		})

		Convey("When the context is already canceled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := r.SetData(cctx, h, dataset(1))

			Convey("Then nothing should be painted", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(surface.paintCount(), ShouldEqual, 0)
			})
		})

		Convey("When a sink publishes", func() {
			sink := r.Sink(h)
			So(sink.Publish(ctx, dataset(1)), ShouldBeNil)
			So(sink.Flush(ctx), ShouldBeNil)

			Convey("Then the snapshot should be painted", func() {
				So(surface.paintCount(), ShouldEqual, 1)
			})
		})
	})
}

func TestBuildFeatureCollection(t *testing.T) {
	Convey("Given a snapshot", t, func() {
		ds := dataset(1,
			model.CaseRecord{AreaName: "Annex", Outcome: "RESOLVED", Hospitalized: "Yes"},
			model.CaseRecord{AreaName: "Annex", Outcome: "ACTIVE", Hospitalized: "No"},
		)

		Convey("When rendered", func() {
			fc := render.BuildFeatureCollection(ds, nil)

			Convey("Then features should follow ingestion order with paint properties", func() {
				So(len(fc.Features), ShouldEqual, 2)
				annex := fc.Features[0]
				So(annex.Properties[choropleth.PropName], ShouldEqual, "Annex")
				So(annex.Properties[choropleth.PropID], ShouldEqual, int64(95))
				So(annex.Properties[choropleth.PropActiveCases], ShouldEqual, 1)
				So(annex.Properties[choropleth.PropTotalCases], ShouldEqual, 2)
				So(annex.Properties[choropleth.PropShapeArea], ShouldEqual, 2_000_000.0)
				So(annex.Properties["density"], ShouldEqual, 0.5)
				So(annex.Geometry.IsPolygon(), ShouldBeTrue)
				So(fc.Features[1].Properties[choropleth.PropName], ShouldEqual, "Junction Area")
			})
		})

		Convey("When a nil snapshot is rendered", func() {
			fc := render.BuildFeatureCollection(nil, nil)

			Convey("Then the collection should be empty", func() {
				So(fc.Features, ShouldBeEmpty)
			})
		})
	})
}

func TestHandleEvent(t *testing.T) {
	Convey("Given a painted surface", t, func() {
		ctx := context.Background()
		up := gatewaytest.New()
		defer up.Close()
		up.SetTokens("tok-1", "tok-2")
		creds := newManager(up)
		_, err := creds.FetchToken(ctx)
		So(err, ShouldBeNil)
		r := render.New(creds, render.WithMinPaintInterval(0))
		surface := &fakeSurface{}
		h, err := r.Initialize(surface, render.DefaultView())
		So(err, ShouldBeNil)
		_, err = r.SetData(ctx, h, dataset(1))
		So(err, ShouldBeNil)
		callsBefore := creds.Calls()

		Convey("When the surface reports a 401", func() {
			err := r.HandleEvent(ctx, h, render.Event{ID: "e-1", Type: render.EventError, Code: http.StatusUnauthorized})

			Convey("Then exactly one credential refresh should happen and no data be re-pushed", func() {
				So(err, ShouldBeNil)
				So(creds.Calls()-callsBefore, ShouldEqual, int64(1))
				So(surface.paintCount(), ShouldEqual, 1)
				So(len(surface.setups), ShouldEqual, 1)
				tok, _ := creds.Token()
				So(tok, ShouldEqual, "tok-2")
				So(r.Refreshes(), ShouldEqual, int64(1))
			})
		})

		Convey("When a move event is handled", func() {
			labels := map[string]string{"type": "move"}
			before, _ := metrics.Value("casemap_map_surface_events_total", labels)
			So(r.HandleEvent(ctx, h, render.Event{ID: "e-m", Type: render.EventMove, Lng: -79.4, Lat: 43.7, Zoom: 11}), ShouldBeNil)
			after, err := metrics.Value("casemap_map_surface_events_total", labels)

			Convey("Then the event should be counted once", func() {
				So(err, ShouldBeNil)
				So(after-before, ShouldEqual, 1.0)
			})
		})

		Convey("When the refresh after a 401 fails", func() {
			up.SetTokenStatus(http.StatusInternalServerError)
			err := r.HandleEvent(ctx, h, render.Event{ID: "e-2", Type: render.EventError, Code: http.StatusUnauthorized})

			Convey("Then a RenderAuthError should carry the credential failure", func() {
				var authErr *render.RenderAuthError
				So(errors.As(err, &authErr), ShouldBeTrue)
				So(authErr.EventID, ShouldEqual, "e-2")
				So(errors.Is(err, render.ErrRenderAuth), ShouldBeTrue)
				So(errors.Is(err, credential.ErrCredential), ShouldBeTrue)
				So(creds.Calls()-callsBefore, ShouldEqual, int64(1))
			})
		})

		Convey("When the surface reports another error code", func() {
			err := r.HandleEvent(ctx, h, render.Event{Type: render.EventError, Code: 500})

			Convey("Then it should be logged only", func() {
				So(err, ShouldBeNil)
				So(creds.Calls(), ShouldEqual, callsBefore)
			})
		})

		Convey("When load and move events arrive", func() {
			So(r.HandleEvent(ctx, h, render.Event{Type: render.EventLoad}), ShouldBeNil)
			So(r.HandleEvent(ctx, h, render.Event{Type: render.EventMove, Lng: -79.40449, Lat: 43.69851, Zoom: 10.456}), ShouldBeNil)
			So(r.HandleEvent(ctx, h, render.Event{Type: render.EventMove, Lng: -79.1, Lat: 43.7, Zoom: 11.111}), ShouldBeNil)

			Convey("Then the surface should be ready and the camera hold the latest rounded move", func() {
				So(h.Ready(), ShouldBeTrue)
				cam, ok := h.Camera()
				So(ok, ShouldBeTrue)
				So(cam.Lng, ShouldEqual, -79.1)
				So(cam.Lat, ShouldEqual, 43.7)
				So(cam.Zoom, ShouldEqual, 11.11)
			})
		})

		Convey("When an unknown event arrives", func() {
			err := r.HandleEvent(ctx, h, render.Event{Type: "resize"})

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, render.ErrUnknownEvent), ShouldBeTrue)
			})
		})

		Convey("When the Annex polygon is clicked", func() {
			popup, err := r.Click(h, choropleth.ExtrusionLayerID, "Annex", geo.Point{0.9, 0.9})

			Convey("Then the popup should be anchored inside the polygon", func() {
				So(err, ShouldBeNil)
				So(popup.Name, ShouldEqual, "Annex")
				So(popup.Anchor[0], ShouldAlmostEqual, 0.5, 1e-3)
				So(popup.Anchor[1], ShouldAlmostEqual, 0.5, 1e-3)
			})
		})

		Convey("When the background is clicked", func() {
			popup, err := r.Click(h, "", "", geo.Point{-79.3, 43.6})

			Convey("Then the popup should sit at the click with no name", func() {
				So(err, ShouldBeNil)
				So(popup.Name, ShouldEqual, interaction.NoName)
				So(popup.Anchor, ShouldResemble, geo.Point{-79.3, 43.6})
				So(popup.Total, ShouldEqual, 0)
			})
		})

		Convey("When an unknown area is clicked", func() {
			_, err := r.Click(h, choropleth.ExtrusionLayerID, "Atlantis", geo.Point{})

			Convey("Then ErrUnknownArea should be returned", func() {
				So(errors.Is(err, render.ErrUnknownArea), ShouldBeTrue)
			})
		})
	})

	Convey("Given event type strings", t, func() {
		Convey("Then only the four surface events should parse", func() {
			for _, s := range []string{"load", "move", "click", "error"} {
				_, err := render.ParseEventType(s)
				So(err, ShouldBeNil)
			}
			_, err := render.ParseEventType("zoomend")
			So(errors.Is(err, render.ErrUnknownEvent), ShouldBeTrue)
		})
	})
}
