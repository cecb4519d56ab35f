// Package aggregate joins the geometry and case streams into per-area
// metrics and produces immutable Dataset snapshots.
//
// The working set is owned by the single pipeline goroutine that feeds it.
// Readers on other goroutines only see published snapshots and stats copies.
package aggregate

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okian/casemap/internal/config"
	"github.com/okian/casemap/internal/domain/model"
	"github.com/okian/casemap/pkg/logger"
	"github.com/okian/casemap/pkg/metrics"
)

const defaultFlushEvery = 5

// Flush reasons, used as log fields and metric labels.
const (
	FlushGeometry = "geometry"
	FlushPeriodic = "periodic"
	FlushFinal    = "final"
)

// IncrementRule decides which case records advance covidActiveCases.
type IncrementRule int

const (
	// IncrementNonActive counts every record whose outcome is not ACTIVE.
	IncrementNonActive IncrementRule = iota
	// IncrementActive counts only ACTIVE records.
	IncrementActive
)

// ParseIncrementRule maps a config value to a rule.
func ParseIncrementRule(s string) (IncrementRule, error) {
	switch s {
	case "", config.IncrementRuleNonActive:
		return IncrementNonActive, nil
	case config.IncrementRuleActive:
		return IncrementActive, nil
	}
	return IncrementNonActive, fmt.Errorf("%w: %q", ErrUnknownRule, s)
}

func (r IncrementRule) String() string {
	if r == IncrementActive {
		return config.IncrementRuleActive
	}
	return config.IncrementRuleNonActive
}

// Counts reports whether c advances the metric under r.
func (r IncrementRule) Counts(c model.CaseRecord) bool {
	if r == IncrementActive {
		return c.IsActive()
	}
	return !c.IsActive()
}

// Publisher receives every flushed snapshot.
type Publisher interface {
	Publish(ctx context.Context, ds *model.Dataset) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ds *model.Dataset) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, ds *model.Dataset) error { return f(ctx, ds) }

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, *model.Dataset) error { return nil }

// JoinStats counts what happened to ingested records.
type JoinStats struct {
	Areas      int `json:"areas"`
	Duplicates int `json:"duplicates"`
	Matched    int `json:"matched"`
	Dropped    int `json:"dropped"`
	CasePages  int `json:"case_pages"`
	Flushes    int `json:"flushes"`
}

// Aggregator owns the mutable working set of Areas.
type Aggregator struct {
	rule       IncrementRule
	flushEvery int
	publisher  Publisher
	guard      func(ctx context.Context) error
	log        logger.Logger

	areas        []*model.Area
	index        map[string]*model.Area
	geometryDone bool
	version      uint64
	stats        JoinStats

	latest    atomic.Pointer[model.Dataset]
	published atomic.Pointer[JoinStats]
}

// New creates an Aggregator with the literal increment rule and a flush every
// fifth case page unless overridden.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		rule:       IncrementNonActive,
		flushEvery: defaultFlushEvery,
		publisher:  noopPublisher{},
		guard:      func(context.Context) error { return nil },
		index:      make(map[string]*model.Area),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logger.Named("aggregate")
	}
	a.publishStats()
	return a
}

// ConsumeGeometryPage creates one Area per record, keyed by cleaned name.
// A name already present keeps its first Area; the duplicate is skipped.
func (a *Aggregator) ConsumeGeometryPage(ctx context.Context, page int, batch []model.GeometryRecord) error {
	if a.geometryDone {
		return ErrGeometryComplete
	}
	for _, rec := range batch {
		name := model.CleanName(rec.AreaName)
		if _, exists := a.index[name]; exists {
			a.stats.Duplicates++
			metrics.RecordDuplicateArea()
			a.log.Warn(ctx, "duplicate area name skipped",
				logger.String("name", name),
				logger.String("raw_name", rec.AreaName),
				logger.Int64("area_id", rec.AreaID),
				logger.Int("page", page))
			continue
		}
		area := model.NewArea(rec.AreaID, name, rec.Geometry, rec.ShapeArea)
		a.areas = append(a.areas, area)
		a.index[name] = area
	}
	a.stats.Areas = len(a.areas)
	metrics.RecordRecordsIngested("geometry", len(batch))
	metrics.UpdateAreasTotal(len(a.areas))
	a.publishStats()
	return nil
}

// CompleteGeometry closes the geometry stream and flushes the outlines.
func (a *Aggregator) CompleteGeometry(ctx context.Context) error {
	a.geometryDone = true
	_, err := a.Flush(ctx, FlushGeometry)
	return err
}

// ConsumeCasePage joins each record to its Area by exact name. Records with
// no matching Area are dropped and counted. Every flushEvery-th page flushes.
// Cases are rejected until CompleteGeometry has run.
func (a *Aggregator) ConsumeCasePage(ctx context.Context, page int, batch []model.CaseRecord) error {
	if !a.geometryDone {
		return ErrGeometryPending
	}
	dropped := 0
	for _, rec := range batch {
		area, ok := a.index[rec.AreaName]
		if !ok {
			dropped++
			continue
		}
		area.Cases = append(area.Cases, rec)
		if a.rule.Counts(rec) {
			area.Metrics[model.MetricActiveCases]++
		}
		a.stats.Matched++
	}
	a.stats.Dropped += dropped
	a.stats.CasePages++
	metrics.RecordRecordsIngested("cases", len(batch))
	if dropped > 0 {
		metrics.RecordJoinMisses(dropped)
		a.log.Debug(ctx, "case records without area",
			logger.Int("page", page),
			logger.Int("dropped", dropped))
	}
	a.publishStats()

	if a.stats.CasePages%a.flushEvery == 0 {
		if _, err := a.Flush(ctx, FlushPeriodic); err != nil {
			return err
		}
	}
	return nil
}

// CompleteCases flushes unconditionally once the case stream has ended.
func (a *Aggregator) CompleteCases(ctx context.Context) error {
	_, err := a.Flush(ctx, FlushFinal)
	return err
}

// Flush builds a fresh snapshot of the working set and hands it to the
// publisher. The guard runs first; if it fails nothing is built.
func (a *Aggregator) Flush(ctx context.Context, reason string) (*model.Dataset, error) {
	if err := a.guard(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	a.version++
	ds := model.NewDataset(a.version, a.areas)
	a.latest.Store(ds)
	a.stats.Flushes++
	a.publishStats()
	metrics.RecordFlush(reason, float64(time.Since(start).Microseconds())/1000)

	a.log.Debug(ctx, "snapshot flushed",
		logger.String("reason", reason),
		logger.Any("version", ds.Version()),
		logger.Int("areas", ds.Len()))

	if err := a.publisher.Publish(ctx, ds); err != nil {
		return ds, fmt.Errorf("%w: %w", ErrPublish, err)
	}
	return ds, nil
}

// Snapshot returns the most recently flushed Dataset, or nil.
func (a *Aggregator) Snapshot() *model.Dataset {
	return a.latest.Load()
}

// Rule returns the active increment rule.
func (a *Aggregator) Rule() IncrementRule {
	return a.rule
}

// Stats returns a copy of the join counters. Safe from any goroutine.
func (a *Aggregator) Stats() JoinStats {
	if s := a.published.Load(); s != nil {
		return *s
	}
	return JoinStats{}
}

func (a *Aggregator) publishStats() {
	s := a.stats
	a.published.Store(&s)
}
