package surface

import "errors"

// Sentinel kinds for surface errors.
var (
	ErrAlreadyConfigured = errors.New("surface already configured")
	ErrNotConfigured     = errors.New("surface not configured")
	ErrEncode            = errors.New("encode feature collection")
)
