package aggregate

import (
	"context"

	"github.com/okian/casemap/pkg/logger"
)

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithIncrementRule selects which case outcomes advance covidActiveCases.
func WithIncrementRule(rule IncrementRule) Option {
	return func(a *Aggregator) {
		a.rule = rule
	}
}

// WithFlushEvery sets how many case pages are consumed between snapshots.
func WithFlushEvery(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.flushEvery = n
		}
	}
}

// WithPublisher sets the snapshot sink.
func WithPublisher(p Publisher) Option {
	return func(a *Aggregator) {
		if p != nil {
			a.publisher = p
		}
	}
}

// WithFlushGuard sets a check run before every flush; a non-nil error
// aborts the flush and is returned to the caller.
func WithFlushGuard(guard func(ctx context.Context) error) Option {
	return func(a *Aggregator) {
		if guard != nil {
			a.guard = guard
		}
	}
}

// WithLogger sets the aggregator logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.log = l
		}
	}
}
