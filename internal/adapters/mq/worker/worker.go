// Package worker runs the dispatcher that hands queued surface events to the
// renderer, one at a time, off the request goroutines.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/casemap/internal/adapters/mq/queue"
	"github.com/okian/casemap/pkg/logger"
	"github.com/okian/casemap/pkg/metrics"
)

// Event is what the dispatcher reads off the queue.
type Event = queue.Event

// Handler processes one surface event.
type Handler interface {
	Handle(ctx context.Context, e Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, e Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, e Event) error { return f(ctx, e) } //nolint:gocritic // hugeParam: Event is passed by value for channel semantics

// Queue defines how the dispatcher receives events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes events until stopped.
type Worker interface {
	// Run starts the loop until ctx is canceled, Shutdown is called or the
	// queue is drained after close.
	Run(ctx context.Context)

	// Shutdown stops the loop and waits for it.
	Shutdown(ctx context.Context) error
}

// Dispatcher implements Worker with a single loop, so events are handled in
// arrival order and a later move always wins over an earlier one.
type Dispatcher struct {
	queue   Queue
	handler Handler
	name    string

	processed atomic.Int64
	failed    atomic.Int64

	shutdown chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	logger logger.Logger
}

// NewDispatcher creates a dispatcher reading from q.
func NewDispatcher(q Queue, h Handler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:    q,
		handler:  h,
		name:     "dispatcher",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logger.Named(d.name)
	}
	return d
}

// Run starts the dispatch loop.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)

	events := d.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.shutdown:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := d.dispatch(ctx, e); err != nil {
				d.logger.Error(ctx, "error dispatching event", logger.Error(err))
			}
		}
	}
}

// Shutdown signals the loop to stop and waits for it or for ctx.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.stopOnce.Do(func() { close(d.shutdown) })
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		d.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("%w: %w", ErrShutdownTimeout, ctx.Err())
	}
}

// Done is closed once Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Processed returns how many events were handled without error.
func (d *Dispatcher) Processed() int64 { return d.processed.Load() }

// Failed returns how many events the handler rejected.
func (d *Dispatcher) Failed() int64 { return d.failed.Load() }

func (d *Dispatcher) dispatch(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordDispatchLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if err := d.handler.Handle(ctx, e); err != nil {
		d.failed.Add(1)
		metrics.RecordDispatchError()
		metrics.RecordErrorByComponent("dispatcher", string(e.Type))
		return fmt.Errorf("event %s (%s): %w", e.ID, e.Type, err)
	}
	d.processed.Add(1)
	return nil
}
