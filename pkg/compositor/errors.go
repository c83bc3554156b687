package compositor

import (
	"errors"
	"fmt"
)

// ErrContextUnavailable is returned when the active window cannot be
// resolved. Callers treat it as an absent context, never as fatal.
var ErrContextUnavailable = errors.New("window context unavailable")

// ErrMalformedResponse is returned for compositor replies that cannot be decoded
var ErrMalformedResponse = errors.New("malformed compositor response")

func unavailable(kind Kind, cause error) error {
	return fmt.Errorf("%w (%s): %w", ErrContextUnavailable, kind, cause)
}
