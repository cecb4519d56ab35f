package render

import (
	"time"

	"github.com/okian/casemap/internal/domain/choropleth"
	"github.com/okian/casemap/internal/domain/interaction"
	"github.com/okian/casemap/pkg/logger"
)

// Option applies a configuration option to the Renderer.
type Option func(*Renderer)

// WithMinPaintInterval sets the shortest gap between two paints.
func WithMinPaintInterval(d time.Duration) Option {
	return func(r *Renderer) {
		if d >= 0 {
			r.minInterval = d
		}
	}
}

// WithStyle sets the map style URL.
func WithStyle(style string) Option {
	return func(r *Renderer) {
		if style != "" {
			r.style = style
		}
	}
}

// WithRamp sets the paint ramp.
func WithRamp(ramp *choropleth.Ramp) Option {
	return func(r *Renderer) {
		if ramp != nil {
			r.ramp = ramp
		}
	}
}

// WithResolver sets the click resolver.
func WithResolver(res *interaction.Resolver) Option {
	return func(r *Renderer) {
		if res != nil {
			r.resolver = res
		}
	}
}

// WithClock replaces time.Now for throttling.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the renderer logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.log = l
		}
	}
}
