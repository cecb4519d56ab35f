package credential

import "github.com/okian/casemap/pkg/logger"

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithStore shares an existing credential store.
func WithStore(s *Store) Option {
	return func(m *Manager) {
		if s != nil {
			m.store = s
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}
