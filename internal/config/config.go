// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load(ctx) layers a YAML file and environment variables over the defaults.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"time"
)

// Page rounding modes.
const (
	PageRoundingFloor = "floor"
	PageRoundingCeil  = "ceil"
)

// Increment rules.
const (
	IncrementRuleNonActive = "non_active"
	IncrementRuleActive    = "active"
)

// Default upstream package ids for the neighbourhood geometry and case datasets.
const (
	DefaultNeighbourhoodsPackageID = "4def3f65-2a65-4a4f-83c4-b2a4aed72d46"
	DefaultCasesPackageID          = "64b54586-6180-4485-83eb-81e8fae3b8fe"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// GatewayBaseURL is the root of the token and dataset endpoints.
	GatewayBaseURL string `koanf:"gateway_base_url"`

	// HTTPTimeoutMS bounds every upstream request.
	HTTPTimeoutMS int `koanf:"http_timeout_ms"`

	// NeighbourhoodsPackageID and CasesPackageID select the upstream packages.
	NeighbourhoodsPackageID string `koanf:"neighbourhoods_package_id"`
	CasesPackageID          string `koanf:"cases_package_id"`

	// PageSize is the fixed datastore page size.
	PageSize int `koanf:"page_size"`

	// PageRounding is "floor" (total/pageSize truncated) or "ceil".
	PageRounding string `koanf:"page_rounding"`

	// FlushEvery publishes a snapshot after every N case pages.
	FlushEvery int `koanf:"flush_every"`

	// IncrementRule is "non_active" or "active".
	IncrementRule string `koanf:"increment_rule"`

	// MinPaintIntervalMS is the minimum spacing between two paints.
	MinPaintIntervalMS int `koanf:"min_paint_interval_ms"`

	// EventQueueSize bounds the in-memory surface event queue.
	EventQueueSize int `koanf:"event_queue_size"`

	// DedupeSize sets the size of the surface event id cache.
	DedupeSize int `koanf:"dedupe_size"`

	// LabelPrecision is the pole-of-inaccessibility precision in degrees.
	LabelPrecision float64 `koanf:"label_precision"`

	// MapStyle, InitialLng, InitialLat and InitialZoom set up the camera.
	MapStyle    string  `koanf:"map_style"`
	InitialLng  float64 `koanf:"initial_lng"`
	InitialLat  float64 `koanf:"initial_lat"`
	InitialZoom float64 `koanf:"initial_zoom"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		Addr:                    ":9080",
		GatewayBaseURL:          "http://localhost:4000",
		HTTPTimeoutMS:           10_000,
		NeighbourhoodsPackageID: DefaultNeighbourhoodsPackageID,
		CasesPackageID:          DefaultCasesPackageID,
		PageSize:                100,
		PageRounding:            PageRoundingFloor,
		FlushEvery:              5,
		IncrementRule:           IncrementRuleNonActive,
		MinPaintIntervalMS:      250,
		EventQueueSize:          1024,
		DedupeSize:              10_000,
		LabelPrecision:          1e-5,
		MapStyle:                "mapbox://styles/mapbox/dark-v10",
		InitialLng:              -79.404,
		InitialLat:              43.698,
		InitialZoom:             10,
	}
}

// HTTPTimeout returns HTTPTimeoutMS as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMS) * time.Millisecond
}

// MinPaintInterval returns MinPaintIntervalMS as a duration.
func (c *Config) MinPaintInterval() time.Duration {
	return time.Duration(c.MinPaintIntervalMS) * time.Millisecond
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.GatewayBaseURL == "":
		return fmt.Errorf("%w: gateway_base_url must not be empty", ErrInvalidConfig)
	case c.HTTPTimeoutMS <= 0:
		return fmt.Errorf("%w: http_timeout_ms must be positive", ErrInvalidConfig)
	case c.NeighbourhoodsPackageID == "" || c.CasesPackageID == "":
		return fmt.Errorf("%w: package ids must not be empty", ErrInvalidConfig)
	case c.PageSize <= 0:
		return fmt.Errorf("%w: page_size must be positive", ErrInvalidConfig)
	case c.PageRounding != PageRoundingFloor && c.PageRounding != PageRoundingCeil:
		return fmt.Errorf("%w: page_rounding must be %q or %q", ErrInvalidConfig, PageRoundingFloor, PageRoundingCeil)
	case c.FlushEvery <= 0:
		return fmt.Errorf("%w: flush_every must be positive", ErrInvalidConfig)
	case c.IncrementRule != IncrementRuleNonActive && c.IncrementRule != IncrementRuleActive:
		return fmt.Errorf("%w: increment_rule must be %q or %q", ErrInvalidConfig, IncrementRuleNonActive, IncrementRuleActive)
	case c.MinPaintIntervalMS < 0:
		return fmt.Errorf("%w: min_paint_interval_ms must not be negative", ErrInvalidConfig)
	case c.EventQueueSize <= 0:
		return fmt.Errorf("%w: event_queue_size must be positive", ErrInvalidConfig)
	case c.DedupeSize <= 0:
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	case c.LabelPrecision <= 0:
		return fmt.Errorf("%w: label_precision must be positive", ErrInvalidConfig)
	}
	return nil
}
