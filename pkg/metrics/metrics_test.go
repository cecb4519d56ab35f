package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	Convey("Given metrics options", t, func() {
		Convey("When applying them to a manager", func() {
			registry := prometheus.NewRegistry()
			m := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithMetricPrefix("pfx"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithRefreshInterval(5*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the manager should carry them", func() {
				So(m.namespace, ShouldEqual, "test_namespace")
				So(m.subsystem, ShouldEqual, "test_subsystem")
				So(m.metricPrefix, ShouldEqual, "pfx")
				So(m.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(m.RefreshInterval(), ShouldEqual, 5*time.Second)
				So(m.customLabels["env"], ShouldEqual, "test")
			})
		})

		Convey("When applying empty values", func() {
			m := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithRefreshInterval(0),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then the defaults should be kept", func() {
				So(m.namespace, ShouldEqual, "casemap")
				So(m.subsystem, ShouldEqual, "map")
				So(m.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
				So(m.refreshInterval, ShouldEqual, defaultRefreshInterval)
				So(RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})
	})
}

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given two managers on separate registries", t, func() {
		Convey("When both are created", func() {
			Convey("Then neither should panic on duplicate registration", func() {
				So(func() { NewManager(WithPrometheusRegistry(prometheus.NewRegistry())) }, ShouldNotPanic)
				So(func() { NewManager(WithPrometheusRegistry(prometheus.NewRegistry())) }, ShouldNotPanic)
			})
		})

		Convey("When a second manager shares a registry", func() {
			registry := prometheus.NewRegistry()
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then registration should panic", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestPipelineMetrics(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When pipeline counters are recorded", func() {
			before, _ := Value("casemap_map_join_misses_total", nil)
			RecordJoinMisses(3)
			after, err := Value("casemap_map_join_misses_total", nil)

			Convey("Then the counter should advance by the recorded amount", func() {
				So(err, ShouldBeNil)
				So(after-before, ShouldEqual, 3.0)
			})
		})

		Convey("When a labelled counter is recorded", func() {
			labels := map[string]string{"resource": "cases"}
			before, _ := Value("casemap_map_pages_fetched_total", labels)
			RecordPageFetched("cases", 12)
			after, err := Value("casemap_map_pages_fetched_total", labels)

			Convey("Then only that series should advance", func() {
				So(err, ShouldBeNil)
				So(after-before, ShouldEqual, 1.0)
			})
		})

		Convey("When gauges are set", func() {
			UpdateAreasTotal(140)
			UpdatePipelineState(4)

			Convey("Then their values should be readable", func() {
				areas, err := Value("casemap_map_areas_total", nil)
				So(err, ShouldBeNil)
				So(areas, ShouldEqual, 140.0)
				state, err := Value("casemap_map_pipeline_state", nil)
				So(err, ShouldBeNil)
				So(state, ShouldEqual, 4.0)
			})
		})

		Convey("When the remaining helpers are called", func() {
			Convey("Then none should panic", func() {
				So(func() {
					RecordPageError("geometry")
					RecordRecordsIngested("geometry", 100)
					RecordDuplicateArea()
					RecordFlush("final", 0.3)
					RecordPaint(1.5)
					RecordPaintSkipped("unchanged")
					RecordTokenFetch("ok")
					RecordRenderAuthError()
					RecordSurfaceEvent("move")
					RecordSurfaceEventDuplicate()
					RecordDispatchLatency(0.2)
					RecordDispatchError()
					UpdateQueueSize(10)
					UpdateQueueCapacity(100)
					UpdateQueueUtilization(0.1)
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError()
					RecordHTTPRequest("/map/areas", "GET", "200")
					RecordHTTPRequestDuration("/map/areas", "GET", "200", 5.0)
					RecordErrorByComponent("gateway", "parse")
					RecordErrorByType("parse", "error")
					RecordErrorByEndpoint("/map/click", "POST", "validation_error")
					RecordErrorLatency("gateway", "timeout", 100.0)
					UpdateSystemMemoryUsage(1 << 20)
					UpdateSystemGoroutineCount(12)
					RecordSystemGCPauseTime(0.5)
				}, ShouldNotPanic)
			})
		})
	})
}

func TestValue(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		Convey("When asking for a metric that does not exist", func() {
			_, err := Value("casemap_map_nope", nil)

			Convey("Then ErrNotFound should be returned", func() {
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the labels do not match any series", func() {
			RecordSurfaceEvent("load")
			_, err := Value("casemap_map_surface_events_total", map[string]string{"type": "unknown"})

			Convey("Then ErrNotFound should be returned", func() {
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When GetRegistry is called", func() {
			Convey("Then the custom registry should be returned", func() {
				So(GetRegistry(), ShouldEqual, customRegistry)
			})
		})
	})
}
