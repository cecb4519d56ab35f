package pagination_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/casemap/internal/adapters/pagination"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTracker(t *testing.T) {
	Convey("Given a fresh tracker", t, func() {
		ctx := context.Background()
		tr := pagination.NewTracker()

		Convey("Then it should be idle", func() {
			So(tr.Current().Phase, ShouldEqual, pagination.PhaseIdle)
			So(tr.Err(), ShouldBeNil)
		})

		Convey("When a full run is walked", func() {
			So(tr.BeginMetadata("geo-pkg"), ShouldBeNil)
			So(tr.BeginPage(ctx, "geo", 0), ShouldBeNil)
			So(tr.BeginPage(ctx, "geo", 1), ShouldBeNil)
			So(tr.BeginFlush(ctx), ShouldBeNil)
			So(tr.BeginMetadata("case-pkg"), ShouldBeNil)
			So(tr.BeginPage(ctx, "cases", 0), ShouldBeNil)
			So(tr.BeginFlush(ctx), ShouldBeNil)
			So(tr.Complete(), ShouldBeNil)

			Convey("Then the history should record every state in order", func() {
				phases := []pagination.Phase{}
				for _, s := range tr.History() {
					phases = append(phases, s.Phase)
				}
				So(phases, ShouldResemble, []pagination.Phase{
					pagination.PhaseIdle,
					pagination.PhaseFetchingMetadata,
					pagination.PhaseFetchingPage,
					pagination.PhaseFetchingPage,
					pagination.PhaseFlushing,
					pagination.PhaseFetchingMetadata,
					pagination.PhaseFetchingPage,
					pagination.PhaseFlushing,
					pagination.PhaseCompleted,
				})
				So(tr.History()[3], ShouldResemble, pagination.State{Phase: pagination.PhaseFetchingPage, Resource: "geo", Page: 1})
			})

			Convey("Then terminal states should refuse further moves", func() {
				So(errors.Is(tr.BeginMetadata("x"), pagination.ErrInvalidTransition), ShouldBeTrue)
				So(errors.Is(tr.Fail(errors.New("late")), pagination.ErrInvalidTransition), ShouldBeTrue)
			})
		})

		Convey("When a page is requested before metadata", func() {
			err := tr.BeginPage(ctx, "geo", 0)

			Convey("Then the transition should be rejected", func() {
				So(errors.Is(err, pagination.ErrInvalidTransition), ShouldBeTrue)
				So(tr.Current().Phase, ShouldEqual, pagination.PhaseIdle)
			})
		})

		Convey("When the context is canceled before a page", func() {
			So(tr.BeginMetadata("geo-pkg"), ShouldBeNil)
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			err := tr.BeginPage(cctx, "geo", 0)

			Convey("Then the tracker should fail with ErrCanceled", func() {
				So(errors.Is(err, pagination.ErrCanceled), ShouldBeTrue)
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(tr.Current().Phase, ShouldEqual, pagination.PhaseFailed)
				So(errors.Is(tr.Err(), pagination.ErrCanceled), ShouldBeTrue)
			})

			Convey("Then a flush should be refused as well", func() {
				So(errors.Is(tr.BeginFlush(cctx), pagination.ErrCanceled), ShouldBeTrue)
			})
		})

		Convey("When phases are rendered", func() {
			Convey("Then names should be stable", func() {
				So(pagination.PhaseFetchingPage.String(), ShouldEqual, "fetching_page")
				So(pagination.Phase(42).String(), ShouldEqual, "phase(42)")
				text, err := pagination.PhaseCompleted.MarshalText()
				So(err, ShouldBeNil)
				So(string(text), ShouldEqual, "completed")
				So(pagination.PhaseFailed.Terminal(), ShouldBeTrue)
				So(pagination.PhaseFlushing.Terminal(), ShouldBeFalse)
			})
		})
	})
}
