package pagination

import (
	"errors"
	"fmt"
)

// Sentinel kinds for pagination errors.
var (
	ErrPageFetch         = errors.New("page fetch failed")
	ErrCanceled          = errors.New("pipeline canceled")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrInvalidPageSize   = errors.New("page size must be positive")
	ErrUnknownRounding   = errors.New("unknown page rounding")
)

// MetadataPage is the Page of a PageFetchError raised by the metadata query.
const MetadataPage = -1

// PageFetchError is a failed page of a resource. The remaining pages of that
// resource are not requested.
type PageFetchError struct {
	Resource string
	Page     int
	Err      error
}

func (e *PageFetchError) Error() string {
	if e.Page == MetadataPage {
		return fmt.Sprintf("%s: metadata for %s: %v", ErrPageFetch, e.Resource, e.Err)
	}
	return fmt.Sprintf("%s: %s page %d: %v", ErrPageFetch, e.Resource, e.Page, e.Err)
}

// Unwrap lets errors.Is match ErrPageFetch and the underlying cause.
func (e *PageFetchError) Unwrap() []error {
	return []error{ErrPageFetch, e.Err}
}
