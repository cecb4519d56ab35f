package pagination

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/casemap/pkg/metrics"
)

// Phase is a pipeline state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFetchingMetadata
	PhaseFetchingPage
	PhaseFlushing
	PhaseCompleted
	PhaseFailed
)

var phaseNames = map[Phase]string{
	PhaseIdle:             "idle",
	PhaseFetchingMetadata: "fetching_metadata",
	PhaseFetchingPage:     "fetching_page",
	PhaseFlushing:         "flushing",
	PhaseCompleted:        "completed",
	PhaseFailed:           "failed",
}

func (p Phase) String() string {
	if n, ok := phaseNames[p]; ok {
		return n
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText renders the phase name in JSON payloads.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

var transitions = map[Phase][]Phase{
	PhaseIdle:             {PhaseFetchingMetadata},
	PhaseFetchingMetadata: {PhaseFetchingMetadata, PhaseFetchingPage, PhaseFlushing, PhaseCompleted},
	PhaseFetchingPage:     {PhaseFetchingMetadata, PhaseFetchingPage, PhaseFlushing, PhaseCompleted},
	PhaseFlushing:         {PhaseFetchingMetadata, PhaseFetchingPage, PhaseFlushing, PhaseCompleted},
}

// State is a Phase with the resource and page it refers to.
type State struct {
	Phase    Phase  `json:"phase"`
	Resource string `json:"resource,omitempty"`
	Page     int    `json:"page"`
}

// Tracker is the pipeline state machine. Entering FetchingPage or Flushing
// checks the context first; a canceled context fails the tracker.
type Tracker struct {
	mu      sync.Mutex
	state   State
	err     error
	history []State
}

// NewTracker returns a Tracker in PhaseIdle.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.history = append(t.history, t.state)
	return t
}

func (t *Tracker) move(next State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !allowed(t.state.Phase, next.Phase) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.state.Phase, next.Phase)
	}
	t.set(next)
	return nil
}

func (t *Tracker) set(next State) {
	t.state = next
	t.history = append(t.history, next)
	metrics.UpdatePipelineState(int(next.Phase))
}

func allowed(from, to Phase) bool {
	if to == PhaseFailed {
		return !from.Terminal()
	}
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

func (t *Tracker) live(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		cerr := fmt.Errorf("%w: %w", ErrCanceled, err)
		_ = t.Fail(cerr)
		return cerr
	}
	return nil
}

// BeginMetadata enters FetchingMetadata for a package.
func (t *Tracker) BeginMetadata(packageID string) error {
	return t.move(State{Phase: PhaseFetchingMetadata, Resource: packageID, Page: MetadataPage})
}

// BeginPage enters FetchingPage(page) for a resource.
func (t *Tracker) BeginPage(ctx context.Context, resource string, page int) error {
	if err := t.live(ctx); err != nil {
		return err
	}
	return t.move(State{Phase: PhaseFetchingPage, Resource: resource, Page: page})
}

// BeginFlush enters Flushing. It is shaped to serve as a flush guard.
func (t *Tracker) BeginFlush(ctx context.Context) error {
	if err := t.live(ctx); err != nil {
		return err
	}
	t.mu.Lock()
	resource, page := t.state.Resource, t.state.Page
	t.mu.Unlock()
	return t.move(State{Phase: PhaseFlushing, Resource: resource, Page: page})
}

// Complete enters Completed.
func (t *Tracker) Complete() error {
	return t.move(State{Phase: PhaseCompleted})
}

// Fail enters Failed and records err. Failing a terminal tracker is an error.
func (t *Tracker) Fail(err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Phase.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.state.Phase, PhaseFailed)
	}
	t.err = err
	t.set(State{Phase: PhaseFailed, Resource: t.state.Resource, Page: t.state.Page})
	return nil
}

// Current returns the current state.
func (t *Tracker) Current() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the error the tracker failed with, if any.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// History returns every state entered, oldest first.
func (t *Tracker) History() []State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]State(nil), t.history...)
}
