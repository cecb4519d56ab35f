package aggregate_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/okian/casemap/internal/domain/aggregate"
	"github.com/okian/casemap/internal/domain/model"
	"github.com/okian/casemap/pkg/logger"
	geojson "github.com/paulmach/go.geojson"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type recordingPublisher struct {
	snapshots []*model.Dataset
	hashes    []uint64
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, ds *model.Dataset) error {
	p.snapshots = append(p.snapshots, ds)
	p.hashes = append(p.hashes, ds.Hash())
	return p.err
}

func geometry(name string, id int64) model.GeometryRecord {
	x := float64(id)
	return model.GeometryRecord{
		AreaID:   id,
		AreaName: name,
		Geometry: geojson.NewPolygonGeometry([][][]float64{{
			{x, 0}, {x + 1, 0}, {x + 1, 1}, {x, 1}, {x, 0},
		}}),
		ShapeArea: 1e6,
	}
}

func caseFor(name, outcome, hosp string) model.CaseRecord {
	return model.CaseRecord{AreaName: name, Outcome: outcome, Hospitalized: hosp}
}

func TestIncrementRule(t *testing.T) {
	Convey("Given the increment rules", t, func() {
		Convey("When parsing config values", func() {
			nonActive, err1 := aggregate.ParseIncrementRule("non_active")
			active, err2 := aggregate.ParseIncrementRule("active")
			empty, err3 := aggregate.ParseIncrementRule("")
			_, err4 := aggregate.ParseIncrementRule("everything")

			Convey("Then known values should map to rules", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(err3, ShouldBeNil)
				So(nonActive, ShouldEqual, aggregate.IncrementNonActive)
				So(active, ShouldEqual, aggregate.IncrementActive)
				So(empty, ShouldEqual, aggregate.IncrementNonActive)
				So(active.String(), ShouldEqual, "active")
				So(errors.Is(err4, aggregate.ErrUnknownRule), ShouldBeTrue)
			})
		})

		Convey("When evaluating outcomes", func() {
			Convey("Then the literal rule should count everything but ACTIVE", func() {
				So(aggregate.IncrementNonActive.Counts(caseFor("A", "ACTIVE", "")), ShouldBeFalse)
				So(aggregate.IncrementNonActive.Counts(caseFor("A", "RESOLVED", "")), ShouldBeTrue)
				So(aggregate.IncrementNonActive.Counts(caseFor("A", "", "")), ShouldBeTrue)
				So(aggregate.IncrementActive.Counts(caseFor("A", "ACTIVE", "")), ShouldBeTrue)
				So(aggregate.IncrementActive.Counts(caseFor("A", "FATAL", "")), ShouldBeFalse)
			})
		})
	})
}

func TestAggregatorGeometry(t *testing.T) {
	Convey("Given an aggregator", t, func() {
		ctx := context.Background()
		pub := &recordingPublisher{}
		agg := aggregate.New(aggregate.WithPublisher(pub))

		Convey("When geometry pages arrive with suffixed names", func() {
			So(agg.ConsumeGeometryPage(ctx, 0, []model.GeometryRecord{
				geometry("Annex (95)", 95),
				geometry("Junction Area (90)", 90),
			}), ShouldBeNil)
			So(agg.CompleteGeometry(ctx), ShouldBeNil)

			Convey("Then areas should be keyed by cleaned name with zero metrics", func() {
				ds := agg.Snapshot()
				So(ds, ShouldNotBeNil)
				So(ds.Names(), ShouldResemble, []string{"Annex", "Junction Area"})
				annex, ok := ds.Area("Annex")
				So(ok, ShouldBeTrue)
				So(annex.ActiveCases(), ShouldEqual, 0)
				So(annex.Cases, ShouldBeEmpty)
			})

			Convey("Then the outlines should be published once", func() {
				So(len(pub.snapshots), ShouldEqual, 1)
			})

			Convey("Then further geometry should be rejected", func() {
				err := agg.ConsumeGeometryPage(ctx, 1, []model.GeometryRecord{geometry("Late", 1)})
				So(errors.Is(err, aggregate.ErrGeometryComplete), ShouldBeTrue)
			})
		})

		Convey("When case pages arrive before geometry completes", func() {
			So(agg.ConsumeGeometryPage(ctx, 0, []model.GeometryRecord{geometry("Annex (95)", 95)}), ShouldBeNil)
			err := agg.ConsumeCasePage(ctx, 0, []model.CaseRecord{caseFor("Annex", "RESOLVED", "")})

			Convey("Then they should be rejected and nothing counted", func() {
				So(errors.Is(err, aggregate.ErrGeometryPending), ShouldBeTrue)
				So(agg.Stats().CasePages, ShouldEqual, 0)
				So(agg.Stats().Matched, ShouldEqual, 0)
			})
		})

		Convey("When two records clean to the same name", func() {
			So(agg.ConsumeGeometryPage(ctx, 0, []model.GeometryRecord{
				geometry("Annex (95)", 95),
				geometry("Annex (96)", 96),
			}), ShouldBeNil)
			So(agg.CompleteGeometry(ctx), ShouldBeNil)

			Convey("Then the first should win and the duplicate be counted", func() {
				ds := agg.Snapshot()
				So(ds.Len(), ShouldEqual, 1)
				annex, _ := ds.Area("Annex")
				So(annex.ID, ShouldEqual, int64(95))
				So(agg.Stats().Duplicates, ShouldEqual, 1)
			})
		})
	})
}

func TestAggregatorCases(t *testing.T) {
	Convey("Given an aggregator with two areas", t, func() {
		ctx := context.Background()
		pub := &recordingPublisher{}
		agg := aggregate.New(aggregate.WithPublisher(pub))
		So(agg.ConsumeGeometryPage(ctx, 0, []model.GeometryRecord{
			geometry("Annex (95)", 95),
			geometry("Junction Area (90)", 90),
		}), ShouldBeNil)
		So(agg.CompleteGeometry(ctx), ShouldBeNil)

		Convey("When three Annex records arrive, two ACTIVE and one RESOLVED", func() {
			So(agg.ConsumeCasePage(ctx, 0, []model.CaseRecord{
				caseFor("Annex", "ACTIVE", "Yes"),
				caseFor("Annex", "ACTIVE", "No"),
				caseFor("Annex", "RESOLVED", "No"),
			}), ShouldBeNil)
			So(agg.CompleteCases(ctx), ShouldBeNil)

			Convey("Then the literal rule should yield one", func() {
				annex, _ := agg.Snapshot().Area("Annex")
				So(annex.ActiveCases(), ShouldEqual, 1)
				So(len(annex.Cases), ShouldEqual, 3)
			})
		})

		Convey("When the active rule is selected", func() {
			agg := aggregate.New(aggregate.WithIncrementRule(aggregate.IncrementActive))
			So(agg.ConsumeGeometryPage(ctx, 0, []model.GeometryRecord{geometry("Annex (95)", 95)}), ShouldBeNil)
			So(agg.CompleteGeometry(ctx), ShouldBeNil)
			So(agg.ConsumeCasePage(ctx, 0, []model.CaseRecord{
				caseFor("Annex", "ACTIVE", ""),
				caseFor("Annex", "ACTIVE", ""),
				caseFor("Annex", "FATAL", ""),
			}), ShouldBeNil)
			So(agg.CompleteCases(ctx), ShouldBeNil)

			Convey("Then only ACTIVE records should count", func() {
				annex, _ := agg.Snapshot().Area("Annex")
				So(annex.ActiveCases(), ShouldEqual, 2)
				So(agg.Rule(), ShouldEqual, aggregate.IncrementActive)
			})
		})

		Convey("When records arrive across pages for known and unknown names", func() {
			input := [][]model.CaseRecord{
				{caseFor("Annex", "ACTIVE", ""), caseFor("Nowhere", "ACTIVE", ""), caseFor("Junction Area", "FATAL", "")},
				{caseFor("Annex", "RESOLVED", ""), caseFor("Annex (95)", "ACTIVE", ""), caseFor("annex", "ACTIVE", "")},
				{caseFor("Junction Area", "RESOLVED", "Yes")},
			}
			for page, batch := range input {
				So(agg.ConsumeCasePage(ctx, page, batch), ShouldBeNil)
			}
			So(agg.CompleteCases(ctx), ShouldBeNil)

			Convey("Then each area should hold exactly its matching records", func() {
				want := map[string]int{}
				for _, batch := range input {
					for _, rec := range batch {
						want[rec.AreaName]++
					}
				}
				ds := agg.Snapshot()
				for _, name := range ds.Names() {
					area, _ := ds.Area(name)
					So(len(area.Cases), ShouldEqual, want[name])
				}
			})

			Convey("Then misses should be counted, not turned into areas", func() {
				stats := agg.Stats()
				So(stats.Dropped, ShouldEqual, 3)
				So(stats.Matched, ShouldEqual, 4)
				So(stats.CasePages, ShouldEqual, 3)
				So(agg.Snapshot().Len(), ShouldEqual, 2)
			})
		})
	})
}

func TestAggregatorFlush(t *testing.T) {
	Convey("Given an aggregator flushing every fifth case page", t, func() {
		ctx := context.Background()
		pub := &recordingPublisher{}
		agg := aggregate.New(aggregate.WithPublisher(pub), aggregate.WithFlushEvery(5))
		So(agg.ConsumeGeometryPage(ctx, 0, []model.GeometryRecord{geometry("Annex", 1)}), ShouldBeNil)
		So(agg.CompleteGeometry(ctx), ShouldBeNil)

		Convey("When twelve case pages are consumed and the stream completes", func() {
			for page := 0; page < 12; page++ {
				So(agg.ConsumeCasePage(ctx, page, []model.CaseRecord{caseFor("Annex", "RESOLVED", "")}), ShouldBeNil)
			}
			So(agg.CompleteCases(ctx), ShouldBeNil)

			Convey("Then snapshots should follow geometry, pages 5 and 10, and the end", func() {
				So(len(pub.snapshots), ShouldEqual, 4)
				counts := make([]int, 0, len(pub.snapshots))
				for _, ds := range pub.snapshots {
					a, _ := ds.Area("Annex")
					counts = append(counts, a.ActiveCases())
				}
				So(counts, ShouldResemble, []int{0, 5, 10, 12})
			})

			Convey("Then versions should increase", func() {
				for i := 1; i < len(pub.snapshots); i++ {
					So(pub.snapshots[i].Version(), ShouldBeGreaterThan, pub.snapshots[i-1].Version())
				}
			})

			Convey("Then delivered snapshots should never change afterwards", func() {
				for i, ds := range pub.snapshots {
					So(ds.Hash(), ShouldEqual, pub.hashes[i])
				}
			})
		})

		Convey("When a snapshot is taken and ingestion continues", func() {
			first, err := agg.Flush(ctx, "manual")
			So(err, ShouldBeNil)
			before := first.Hash()
			for page := 0; page < 3; page++ {
				So(agg.ConsumeCasePage(ctx, page, []model.CaseRecord{caseFor("Annex", "FATAL", "")}), ShouldBeNil)
			}

			Convey("Then the earlier snapshot's structural hash should be unchanged", func() {
				So(first.Hash(), ShouldEqual, before)
				annex, _ := first.Area("Annex")
				So(annex.Cases, ShouldBeEmpty)
			})
		})
	})

	Convey("Given an aggregator whose flush guard trips", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		pub := &recordingPublisher{}
		agg := aggregate.New(
			aggregate.WithPublisher(pub),
			aggregate.WithFlushGuard(func(ctx context.Context) error { return ctx.Err() }),
		)

		Convey("When the context is cancelled before a flush", func() {
			cancel()
			err := agg.CompleteGeometry(ctx)

			Convey("Then nothing should be published", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(pub.snapshots, ShouldBeEmpty)
				So(agg.Snapshot(), ShouldBeNil)
			})
		})
	})

	Convey("Given a publisher that fails", t, func() {
		ctx := context.Background()
		pub := &recordingPublisher{err: fmt.Errorf("surface gone")}
		agg := aggregate.New(aggregate.WithPublisher(pub))

		Convey("When flushing", func() {
			ds, err := agg.Flush(ctx, aggregate.FlushFinal)

			Convey("Then the error should wrap ErrPublish and the snapshot still be kept", func() {
				So(errors.Is(err, aggregate.ErrPublish), ShouldBeTrue)
				So(ds, ShouldNotBeNil)
				So(agg.Snapshot(), ShouldEqual, ds)
			})
		})
	})
}
