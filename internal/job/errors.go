package job

import (
	"errors"
	"fmt"

	"kiln/internal/signer"
)

var (
	// ErrNoSHAGiven is returned by ValidateSHA when the code is empty.
	ErrNoSHAGiven = fmt.Errorf("job: %w", signer.ErrNoCode)
	// ErrIncorrectSHA is returned by ValidateSHA when the code does not match.
	ErrIncorrectSHA = fmt.Errorf("job: %w", signer.ErrIncorrectCode)
	// ErrNoDatastore is returned when a fetch or store runs without a datastore.
	ErrNoDatastore = errors.New("no datastore configured")
)

// ErrorResponse reports a non-success HTTP response from a fetch_url step.
type ErrorResponse struct {
	URL    string
	Status int
	Body   string
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
}
