package aggregate

import "errors"

// Sentinel kinds for aggregation errors.
var (
	ErrUnknownRule      = errors.New("unknown increment rule")
	ErrGeometryComplete = errors.New("geometry ingestion already complete")
	ErrGeometryPending  = errors.New("geometry ingestion not complete")
	ErrPublish          = errors.New("publish snapshot failed")
)
