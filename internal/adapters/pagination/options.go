package pagination

import "github.com/okian/casemap/pkg/logger"

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithRounding selects how the page count is derived from the total.
func WithRounding(r Rounding) Option {
	return func(e *Engine) {
		e.rounding = r
	}
}

// WithTracker shares a state machine with other pipeline stages.
func WithTracker(t *Tracker) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracker = t
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}
