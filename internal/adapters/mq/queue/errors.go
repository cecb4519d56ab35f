package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrFull   = errors.New("event queue full")
	ErrClosed = errors.New("event queue closed")
)
