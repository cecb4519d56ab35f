// Package types holds the payloads shared by the service and the HTTP API.
package types

import (
	"time"

	"github.com/okian/casemap/internal/adapters/pagination"
	"github.com/okian/casemap/internal/adapters/render"
	"github.com/okian/casemap/internal/domain/aggregate"
)

// Stream names.
const (
	StreamGeometry = "geometry"
	StreamCases    = "cases"
)

// StreamStats describes one paginated stream of the last run.
type StreamStats struct {
	Result pagination.Result `json:"result"`
	Error  string            `json:"error,omitempty"`
}

// CredentialStats describes token acquisition.
type CredentialStats struct {
	Calls     int64  `json:"calls"`
	Refreshes int64  `json:"refreshes"`
	HasToken  bool   `json:"has_token"`
	Error     string `json:"error,omitempty"`
}

// EventStats describes the surface event path.
type EventStats struct {
	QueueLength   int   `json:"queue_length"`
	QueueCapacity int   `json:"queue_capacity"`
	Dispatched    int64 `json:"dispatched"`
	Failed        int64 `json:"failed"`
	SeenIDs       int64 `json:"seen_ids"`
}

// Stats is the service snapshot served on /stats.
type Stats struct {
	RunID        string                 `json:"run_id"`
	Started      bool                   `json:"started"`
	Loaded       bool                   `json:"loaded"`
	State        pagination.State       `json:"state"`
	Error        string                 `json:"error,omitempty"`
	StartedAt    time.Time              `json:"started_at"`
	FinishedAt   *time.Time             `json:"finished_at,omitempty"`
	LastModified string                 `json:"last_modified,omitempty"`
	Rule         string                 `json:"increment_rule"`
	Streams      map[string]StreamStats `json:"streams"`
	Join         aggregate.JoinStats    `json:"join"`
	Paint        render.PaintStats      `json:"paint"`
	Credential   CredentialStats        `json:"credential"`
	Events       EventStats             `json:"events"`
}
