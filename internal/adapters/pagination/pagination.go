// Package pagination walks a paginated upstream resource whose size is only
// known after a metadata query, one page at a time.
package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/casemap/internal/adapters/gateway"
	"github.com/okian/casemap/internal/config"
	"github.com/okian/casemap/pkg/logger"
	"github.com/okian/casemap/pkg/metrics"
)

// Rounding decides how a partial last page is treated.
type Rounding int

const (
	// RoundDown truncates total/pageSize; a partial last page is not fetched.
	RoundDown Rounding = iota
	// RoundUp fetches the partial last page as well.
	RoundUp
)

// ParseRounding maps a config value to a Rounding.
func ParseRounding(s string) (Rounding, error) {
	switch s {
	case "", config.PageRoundingFloor:
		return RoundDown, nil
	case config.PageRoundingCeil:
		return RoundUp, nil
	}
	return RoundDown, fmt.Errorf("%w: %q", ErrUnknownRounding, s)
}

func (r Rounding) String() string {
	if r == RoundUp {
		return config.PageRoundingCeil
	}
	return config.PageRoundingFloor
}

// PageCount returns how many pages cover total records.
func PageCount(total, pageSize int, r Rounding) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	n := total / pageSize
	if r == RoundUp && total%pageSize != 0 {
		n++
	}
	return n
}

// MetadataSource answers the package-show query.
type MetadataSource interface {
	PackageShow(ctx context.Context, packageID string) (gateway.Package, error)
}

// Extractor fetches and validates one page of a resource.
type Extractor[T any] func(ctx context.Context, resourceID string, page int) ([]T, error)

// Consumer receives one page. The next page is not requested until it returns.
type Consumer[T any] func(ctx context.Context, page int, batch []T) error

// Result describes one pagination run.
type Result struct {
	PackageID    string `json:"package_id"`
	ResourceID   string `json:"resource_id,omitempty"`
	Title        string `json:"title,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	Total        int    `json:"total"`
	Pages        int    `json:"pages"`
	Fetched      int    `json:"fetched"`
	Records      int    `json:"records"`
	Skipped      bool   `json:"skipped"`
}

// Engine drives pagination runs and shares one Tracker across them.
type Engine struct {
	meta     MetadataSource
	rounding Rounding
	tracker  *Tracker
	log      logger.Logger
}

// NewEngine returns an Engine with truncating page counts.
func NewEngine(meta MetadataSource, opts ...Option) *Engine {
	e := &Engine{meta: meta, rounding: RoundDown}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracker == nil {
		e.tracker = NewTracker()
	}
	if e.log == nil {
		e.log = logger.Named("pagination")
	}
	return e
}

// Tracker returns the engine's state machine.
func (e *Engine) Tracker() *Tracker {
	return e.tracker
}

// Rounding returns the page count mode.
func (e *Engine) Rounding() Rounding {
	return e.rounding
}

// FetchAllPages resolves the active resource of packageID and hands its pages
// to consume in order. A package without an active resource is skipped. The
// first failing page aborts the run with a PageFetchError; consumer errors
// are returned as they are.
func FetchAllPages[T any](
	ctx context.Context,
	e *Engine,
	packageID string,
	pageSize int,
	extract Extractor[T],
	consume Consumer[T],
) (Result, error) {
	res := Result{PackageID: packageID}
	if pageSize <= 0 {
		return res, fmt.Errorf("%w: %d", ErrInvalidPageSize, pageSize)
	}
	if err := e.tracker.BeginMetadata(packageID); err != nil {
		return res, err
	}

	pkg, err := e.meta.PackageShow(ctx, packageID)
	if err != nil {
		metrics.RecordPageError(packageID)
		return res, &PageFetchError{Resource: packageID, Page: MetadataPage, Err: err}
	}
	resource, ok := pkg.ActiveResource()
	if !ok {
		res.Skipped = true
		e.log.Warn(ctx, "no active resource, skipping package",
			logger.String("package_id", packageID),
			logger.Int("resources", len(pkg.Resources)))
		return res, nil
	}

	res.ResourceID = resource.ID
	res.Title = pkg.Title
	res.LastModified = resource.LastModified
	res.Total = resource.Total
	res.Pages = PageCount(resource.Total, pageSize, e.rounding)

	log := e.log.With(
		logger.String("package_id", packageID),
		logger.String("resource_id", resource.ID))
	log.Info(ctx, "paginating resource",
		logger.Int("total", res.Total),
		logger.Int("pages", res.Pages),
		logger.String("rounding", e.rounding.String()))

	for page := 0; page < res.Pages; page++ {
		if err := e.tracker.BeginPage(ctx, resource.ID, page); err != nil {
			return res, err
		}
		start := time.Now()
		batch, err := extract(ctx, resource.ID, page)
		if err != nil {
			metrics.RecordPageError(resource.ID)
			log.Error(ctx, "page fetch failed, abandoning resource",
				logger.Int("page", page),
				logger.Error(err))
			return res, &PageFetchError{Resource: resource.ID, Page: page, Err: err}
		}
		metrics.RecordPageFetched(resource.ID, float64(time.Since(start).Milliseconds()))
		res.Fetched++
		res.Records += len(batch)

		if err := consume(ctx, page, batch); err != nil {
			return res, err
		}
	}

	log.Info(ctx, "resource complete",
		logger.Int("fetched", res.Fetched),
		logger.Int("records", res.Records))
	return res, nil
}
