package credential

import (
	"errors"
)

// ErrCredential marks every failed token acquisition.
var ErrCredential = errors.New("credential fetch failed")

// CredentialError carries the message of the failed token request.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string {
	if e.Err == nil {
		return ErrCredential.Error()
	}
	return ErrCredential.Error() + ": " + e.Err.Error()
}

// Unwrap lets errors.Is match ErrCredential and the transport cause.
func (e *CredentialError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCredential}
	}
	return []error{ErrCredential, e.Err}
}
