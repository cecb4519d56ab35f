// Package service wires the map pipeline together and implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okian/casemap/internal/adapters/credential"
	"github.com/okian/casemap/internal/adapters/gateway"
	eventqueue "github.com/okian/casemap/internal/adapters/mq/queue"
	"github.com/okian/casemap/internal/adapters/mq/worker"
	"github.com/okian/casemap/internal/adapters/pagination"
	"github.com/okian/casemap/internal/adapters/render"
	"github.com/okian/casemap/internal/adapters/surface"
	"github.com/okian/casemap/internal/config"
	"github.com/okian/casemap/internal/domain/aggregate"
	"github.com/okian/casemap/internal/domain/choropleth"
	"github.com/okian/casemap/internal/domain/dedupe"
	"github.com/okian/casemap/internal/domain/geo"
	"github.com/okian/casemap/internal/domain/interaction"
	"github.com/okian/casemap/internal/domain/model"
	"github.com/okian/casemap/internal/domain/types"
	"github.com/okian/casemap/pkg/logger"
	"github.com/okian/casemap/pkg/metrics"
)

const dispatcherShutdownTimeout = 5 * time.Second

// ErrNotStarted is returned by operations that need a started service.
var ErrNotStarted = errors.New("service not started")

// Service owns one pipeline run: credential, geometry pages, case pages,
// final flush. It also serves the surface state and event intake.
type Service struct {
	mu sync.RWMutex

	cfg        config.Config
	httpClient *http.Client
	logger     logger.Logger

	// Core components
	gateway    *gateway.Client
	creds      *credential.Manager
	tracker    *pagination.Tracker
	engine     *pagination.Engine
	aggregator *aggregate.Aggregator
	renderer   *render.Renderer
	live       *surface.Live
	deduper    dedupe.Deduper
	eventQueue *eventqueue.InMemoryQueue
	dispatcher *worker.Dispatcher
	handle     atomic.Pointer[render.Handle]

	// Run state
	runID      string
	started    bool
	cancel     context.CancelFunc
	done       chan struct{}
	startedAt  time.Time
	finishedAt time.Time
	runErr     error
	streams    map[string]types.StreamStats
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:     *config.New(),
		streams: make(map[string]types.StreamStats),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}
	return s
}

// Start builds the components, starts the event dispatcher and launches
// the pipeline on its own goroutine. It does not wait for the pipeline.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	if err := s.build(); err != nil {
		return err
	}

	s.done = make(chan struct{})
	s.runID = uuid.NewString()
	s.startedAt = time.Now()
	s.logger = s.logger.With(logger.String("run_id", s.runID))

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.dispatcher.Run(runCtx)
	go s.run(runCtx)

	s.started = true
	s.logger.Info(ctx, "map service started",
		logger.String("gateway", s.cfg.GatewayBaseURL),
		logger.Int("page_size", s.cfg.PageSize),
		logger.String("page_rounding", s.cfg.PageRounding),
		logger.String("increment_rule", s.cfg.IncrementRule),
		logger.Int("flush_every", s.cfg.FlushEvery),
	)
	return nil
}

func (s *Service) build() error {
	gwOpts := []gateway.Option{gateway.WithTimeout(s.cfg.HTTPTimeout())}
	if s.httpClient != nil {
		gwOpts = append(gwOpts, gateway.WithHTTPClient(s.httpClient))
	}
	gw, err := gateway.New(s.cfg.GatewayBaseURL, gwOpts...)
	if err != nil {
		return err
	}
	rounding, err := pagination.ParseRounding(s.cfg.PageRounding)
	if err != nil {
		return err
	}
	rule, err := aggregate.ParseIncrementRule(s.cfg.IncrementRule)
	if err != nil {
		return err
	}

	ramp := choropleth.NewRamp()
	s.gateway = gw
	s.creds = credential.New(gw)
	s.tracker = pagination.NewTracker()
	s.engine = pagination.NewEngine(gw,
		pagination.WithRounding(rounding),
		pagination.WithTracker(s.tracker))
	s.renderer = render.New(s.creds,
		render.WithStyle(s.cfg.MapStyle),
		render.WithRamp(ramp),
		render.WithMinPaintInterval(s.cfg.MinPaintInterval()),
		render.WithResolver(interaction.NewResolver(
			interaction.WithPrecision(s.cfg.LabelPrecision),
			interaction.WithRamp(ramp))))
	s.live = surface.NewLive(s.creds.Store())
	s.aggregator = aggregate.New(
		aggregate.WithIncrementRule(rule),
		aggregate.WithFlushEvery(s.cfg.FlushEvery),
		aggregate.WithFlushGuard(s.tracker.BeginFlush),
		aggregate.WithPublisher(aggregate.PublisherFunc(s.publish)))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))
	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.cfg.EventQueueSize))
	s.dispatcher = worker.NewDispatcher(s.eventQueue, worker.HandlerFunc(s.dispatch))
	return nil
}

func (s *Service) view() render.View {
	v := render.DefaultView()
	v.Lng, v.Lat, v.Zoom = s.cfg.InitialLng, s.cfg.InitialLat, s.cfg.InitialZoom
	return v
}

// publish forwards a flushed snapshot to the painted surface.
func (s *Service) publish(ctx context.Context, ds *model.Dataset) error {
	h := s.handle.Load()
	if h == nil {
		return render.ErrNotInitialized
	}
	return s.renderer.Sink(h).Publish(ctx, ds)
}

func (s *Service) dispatch(ctx context.Context, e worker.Event) error { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	h := s.handle.Load()
	if h == nil {
		return render.ErrNotInitialized
	}
	return s.renderer.HandleEvent(ctx, h, e)
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)
	err := s.pipeline(ctx)

	s.mu.Lock()
	s.finishedAt = time.Now()
	s.runErr = err
	s.mu.Unlock()

	if err != nil {
		if !s.tracker.Current().Phase.Terminal() {
			_ = s.tracker.Fail(err)
		}
		metrics.RecordErrorByComponent("service", "pipeline")
		s.logger.Error(ctx, "pipeline failed",
			logger.String("state", s.tracker.Current().Phase.String()),
			logger.Error(err))
		return
	}
	s.logger.Info(ctx, "pipeline completed",
		logger.Any("join", s.aggregator.Stats()),
		logger.Duration("took", time.Since(s.startedAt)))
}

// pipeline runs credential -> geometry -> cases -> final flush. Page
// failures stay within their stream; cancellation, credential and publish
// failures end the run.
func (s *Service) pipeline(ctx context.Context) error {
	if _, err := s.creds.FetchToken(ctx); err != nil {
		return err
	}
	h, err := s.renderer.Initialize(s.live, s.view())
	if err != nil {
		return err
	}
	s.handle.Store(h)

	res, err := pagination.FetchAllPages(ctx, s.engine, s.cfg.NeighbourhoodsPackageID, s.cfg.PageSize,
		s.gateway.NeighbourhoodPage, s.aggregator.ConsumeGeometryPage)
	if err := s.recordStream(ctx, types.StreamGeometry, res, err); err != nil {
		return err
	}
	if err := s.aggregator.CompleteGeometry(ctx); err != nil {
		return err
	}

	res, err = pagination.FetchAllPages(ctx, s.engine, s.cfg.CasesPackageID, s.cfg.PageSize,
		s.gateway.CasePage, s.aggregator.ConsumeCasePage)
	if err := s.recordStream(ctx, types.StreamCases, res, err); err != nil {
		return err
	}
	if err := s.aggregator.CompleteCases(ctx); err != nil {
		return err
	}
	if _, err := s.renderer.Flush(ctx, h); err != nil {
		return err
	}
	return s.tracker.Complete()
}

// recordStream keeps the outcome of one stream and returns err only if it
// must end the run.
func (s *Service) recordStream(ctx context.Context, stream string, res pagination.Result, err error) error {
	st := types.StreamStats{Result: res}
	if err != nil {
		st.Error = err.Error()
	}
	s.mu.Lock()
	s.streams[stream] = st
	s.mu.Unlock()

	var pfe *pagination.PageFetchError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &pfe):
		metrics.RecordErrorByComponent("service", "page_fetch")
		s.logger.Warn(ctx, "stream aborted, keeping flushed data",
			logger.String("stream", stream),
			logger.String("resource", pfe.Resource),
			logger.Int("page", pfe.Page),
			logger.Error(err))
		return nil
	default:
		return fmt.Errorf("%s stream: %w", stream, err)
	}
}

// Stop cancels the pipeline, waits for it and stops the dispatcher.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping map service...")
	cancel()
	<-done
	_ = s.eventQueue.Close()
	sctx, scancel := context.WithTimeout(ctx, dispatcherShutdownTimeout)
	defer scancel()
	if err := s.dispatcher.Shutdown(sctx); err != nil {
		s.logger.Warn(ctx, "dispatcher shutdown", logger.Error(err))
	}
	s.logger.Info(ctx, "map service stopped")
}

// Wait blocks until the pipeline has finished or ctx is done, and returns
// the error that ended the run.
func (s *Service) Wait(ctx context.Context) error {
	s.mu.RLock()
	done := s.done
	s.mu.RUnlock()
	if done == nil {
		return ErrNotStarted
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runErr
}

// Setup returns the surface setup once the surface is initialized.
func (s *Service) Setup() (render.Setup, bool) {
	if s.live == nil {
		return render.Setup{}, false
	}
	return s.live.Setup()
}

// Token returns the current access token.
func (s *Service) Token() (string, bool) {
	if s.creds == nil {
		return "", false
	}
	return s.creds.Token()
}

// CredentialError returns the last token failure, if any.
func (s *Service) CredentialError() error {
	if s.creds == nil {
		return nil
	}
	return s.creds.LastError()
}

// Frame returns the last painted feature collection.
func (s *Service) Frame() surface.Frame {
	if s.live == nil {
		return surface.Frame{}
	}
	return s.live.Frame()
}

// Click resolves a click synchronously against the painted snapshot.
func (s *Service) Click(layerID, areaName string, at geo.Point) (interaction.Popup, error) {
	h := s.handle.Load()
	if h == nil {
		return interaction.Popup{}, render.ErrNotInitialized
	}
	return s.renderer.Click(h, layerID, areaName, at)
}

// SeenAndRecord reports whether a surface event id was already seen.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	if s.deduper == nil {
		return false
	}
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordSurfaceEventDuplicate()
	}
	return seen
}

// Unrecord forgets an event id so it can be retried.
func (s *Service) Unrecord(ctx context.Context, id string) {
	if s.deduper != nil {
		s.deduper.Unrecord(ctx, id)
	}
}

// Size returns the number of remembered event ids.
func (s *Service) Size() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// Enqueue hands a surface event to the dispatcher.
func (s *Service) Enqueue(ctx context.Context, e render.Event) error { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}
	if err := s.eventQueue.Enqueue(ctx, e); err != nil {
		return err
	}
	s.logger.Debug(ctx, "surface event queued",
		logger.String("event_id", e.ID),
		logger.String("type", string(e.Type)))
	return nil
}

// Dataset returns the last painted snapshot, or nil.
func (s *Service) Dataset() *model.Dataset {
	if h := s.handle.Load(); h != nil {
		return h.Current()
	}
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() types.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := types.Stats{
		RunID:     s.runID,
		Started:   s.started,
		StartedAt: s.startedAt,
		Rule:      s.cfg.IncrementRule,
		Streams:   make(map[string]types.StreamStats, len(s.streams)),
	}
	for k, v := range s.streams {
		stats.Streams[k] = v
	}
	if s.runErr != nil {
		stats.Error = s.runErr.Error()
	}
	if !s.finishedAt.IsZero() {
		finished := s.finishedAt
		stats.FinishedAt = &finished
	}
	// The case resource date wins, as it is fetched last.
	for _, name := range []string{types.StreamGeometry, types.StreamCases} {
		if st, ok := s.streams[name]; ok && st.Result.LastModified != "" {
			stats.LastModified = st.Result.LastModified
		}
	}
	if s.tracker == nil {
		return stats
	}

	stats.State = s.tracker.Current()
	stats.Loaded = stats.State.Phase == pagination.PhaseCompleted
	stats.Join = s.aggregator.Stats()
	_, hasToken := s.creds.Token()
	stats.Credential = types.CredentialStats{
		Calls:     s.creds.Calls(),
		Refreshes: s.renderer.Refreshes(),
		HasToken:  hasToken,
	}
	if err := s.creds.LastError(); err != nil {
		stats.Credential.Error = err.Error()
	}
	if h := s.handle.Load(); h != nil {
		stats.Paint = h.Stats()
	}
	stats.Events = types.EventStats{
		QueueLength:   s.eventQueue.Len(),
		QueueCapacity: s.eventQueue.Capacity(),
		Dispatched:    s.dispatcher.Processed(),
		Failed:        s.dispatcher.Failed(),
		SeenIDs:       s.deduper.Size(),
	}
	return stats
}
