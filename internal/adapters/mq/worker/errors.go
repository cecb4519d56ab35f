package worker

import "errors"

// ErrShutdownTimeout is returned when the loop does not stop in time.
var ErrShutdownTimeout = errors.New("dispatcher shutdown timed out")
