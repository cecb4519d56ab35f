package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/okian/casemap/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()

		Convey("When recording an id for the first time", func() {
			d := dedupe.NewInMemoryDeduper()
			seen := d.SeenAndRecord(ctx, "evt-1")

			Convey("Then it should be reported as new", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, int64(1))
			})
		})

		Convey("When the same id is posted again", func() {
			d := dedupe.NewInMemoryDeduper()
			d.SeenAndRecord(ctx, "evt-401")
			seen := d.SeenAndRecord(ctx, "evt-401")

			Convey("Then it should be reported as seen", func() {
				So(seen, ShouldBeTrue)
				So(d.Size(), ShouldEqual, int64(1))
			})
		})

		Convey("When an id is unrecorded", func() {
			d := dedupe.NewInMemoryDeduper()
			d.SeenAndRecord(ctx, "evt-1")
			d.Unrecord(ctx, "evt-1")
			d.Unrecord(ctx, "never-seen")

			Convey("Then it can be recorded again", func() {
				So(d.Size(), ShouldEqual, int64(0))
				So(d.SeenAndRecord(ctx, "evt-1"), ShouldBeFalse)
			})
		})

		Convey("When more ids than the window holds are recorded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
			for i := 1; i <= 4; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("evt-%d", i))
			}

			Convey("Then the oldest should be forgotten first", func() {
				So(d.Size(), ShouldEqual, int64(3))
				So(d.SeenAndRecord(ctx, "evt-4"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "evt-3"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "evt-1"), ShouldBeFalse)
			})
		})

		Convey("When an unrecorded slot is reused", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2))
			d.SeenAndRecord(ctx, "a")
			d.Unrecord(ctx, "a")
			d.SeenAndRecord(ctx, "b")
			d.SeenAndRecord(ctx, "a")
			d.SeenAndRecord(ctx, "c")

			Convey("Then only live ids should be evicted", func() {
				So(d.Size(), ShouldEqual, int64(2))
				So(d.SeenAndRecord(ctx, "c"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "a"), ShouldBeTrue)
			})
		})

		Convey("When a non-positive size is given", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))

			Convey("Then the default window should be used", func() {
				So(d.SeenAndRecord(ctx, "x"), ShouldBeFalse)
				So(d.SeenAndRecord(ctx, "x"), ShouldBeTrue)
			})
		})
	})
}

func TestInMemoryDeduperConcurrency(t *testing.T) {
	Convey("Given concurrent posts of the same event id", t, func() {
		d := dedupe.NewInMemoryDeduper()
		ctx := context.Background()

		var wg sync.WaitGroup
		var mu sync.Mutex
		fresh := 0
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !d.SeenAndRecord(ctx, "evt-401") {
					mu.Lock()
					fresh++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly one should be treated as new", func() {
			So(fresh, ShouldEqual, 1)
		})
	})
}
