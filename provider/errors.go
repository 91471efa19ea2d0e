package provider

import (
	"errors"
	"fmt"
)

// ErrUnavailable is the sentinel for selection failures; UnavailableError
// unwraps to it.
var ErrUnavailable = errors.New("provider: no usable provider")

// UnavailableError reports that a provider (or every provider) could not
// serve a request: disabled, missing credential, or not configured.
type UnavailableError struct {
	ID     string // offending provider, empty when no provider qualified
	Reason string
}

func (e *UnavailableError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("provider: no usable provider: %s", e.Reason)
	}
	return fmt.Sprintf("provider %q unavailable: %s", e.ID, e.Reason)
}

func (e *UnavailableError) Unwrap() error { return ErrUnavailable }
