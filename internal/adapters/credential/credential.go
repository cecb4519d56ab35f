// Package credential acquires the map access token and keeps it in a
// process-wide store read by the render surface.
package credential

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/okian/casemap/pkg/logger"
	"github.com/okian/casemap/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// TokenSource creates access tokens.
type TokenSource interface {
	CreateToken(ctx context.Context) (string, error)
}

// Store holds the current access token. The zero value is empty and ready.
type Store struct {
	token atomic.Pointer[string]
}

// Token returns the stored token and whether one is set.
func (s *Store) Token() (string, bool) {
	p := s.token.Load()
	if p == nil {
		return "", false
	}
	return *p, true
}

// Set overwrites the stored token.
func (s *Store) Set(token string) {
	s.token.Store(&token)
}

// Manager fetches tokens on demand. Concurrent refreshes share one request.
type Manager struct {
	source TokenSource
	store  *Store
	group  singleflight.Group
	calls  atomic.Int64
	last   atomic.Pointer[CredentialError]
	log    logger.Logger
}

// New creates a Manager reading tokens from source.
func New(source TokenSource, opts ...Option) *Manager {
	m := &Manager{
		source: source,
		store:  &Store{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logger.Named("credential")
	}
	return m
}

// FetchToken requests a fresh token and stores it. There is no retry; a
// failure leaves the previous token in place and returns a CredentialError.
func (m *Manager) FetchToken(ctx context.Context) (string, error) {
	v, err, shared := m.group.Do("token", func() (interface{}, error) {
		return m.fetch(ctx)
	})
	if shared {
		m.log.Debug(ctx, "token refresh coalesced")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) fetch(ctx context.Context) (string, error) {
	n := m.calls.Add(1)
	start := time.Now()
	token, err := m.source.CreateToken(ctx)
	if err != nil {
		cerr := &CredentialError{Err: err}
		m.last.Store(cerr)
		metrics.RecordTokenFetch("error")
		metrics.RecordErrorByComponent("credential", "fetch")
		m.log.Error(ctx, "token fetch failed",
			logger.Int64("attempt", n),
			logger.Error(err))
		return "", cerr
	}
	m.store.Set(token)
	m.last.Store(nil)
	metrics.RecordTokenFetch("ok")
	m.log.Info(ctx, "token stored",
		logger.Int64("attempt", n),
		logger.Duration("took", time.Since(start)))
	return token, nil
}

// Token returns the stored token and whether one is set.
func (m *Manager) Token() (string, bool) {
	return m.store.Token()
}

// Store returns the backing credential store.
func (m *Manager) Store() *Store {
	return m.store
}

// Calls returns how many token requests reached the source.
func (m *Manager) Calls() int64 {
	return m.calls.Load()
}

// LastError returns the error of the most recent request, or nil after a
// success.
func (m *Manager) LastError() error {
	if e := m.last.Load(); e != nil {
		return e
	}
	return nil
}
