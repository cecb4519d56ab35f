package render

import (
	"errors"
	"fmt"
)

// Sentinel kinds for render errors.
var (
	ErrRenderAuth     = errors.New("render surface unauthorized")
	ErrNoCredential   = errors.New("no access token available")
	ErrSurface        = errors.New("render surface failed")
	ErrUnknownEvent   = errors.New("unknown surface event")
	ErrUnknownArea    = errors.New("no area with that name")
	ErrNotInitialized = errors.New("surface not initialized")
)

// RenderAuthError is a 401 reported by the surface. Refresh holds the error
// of the credential refresh it triggered, if that failed.
type RenderAuthError struct {
	Code    int
	EventID string
	Refresh error
}

func (e *RenderAuthError) Error() string {
	msg := fmt.Sprintf("%s: code %d", ErrRenderAuth, e.Code)
	if e.EventID != "" {
		msg += " (event " + e.EventID + ")"
	}
	if e.Refresh != nil {
		msg += ": refresh: " + e.Refresh.Error()
	}
	return msg
}

// Unwrap lets errors.Is match ErrRenderAuth and the refresh failure.
func (e *RenderAuthError) Unwrap() []error {
	if e.Refresh == nil {
		return []error{ErrRenderAuth}
	}
	return []error{ErrRenderAuth, e.Refresh}
}
