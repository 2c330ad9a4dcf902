package serializer

import "errors"

var (
	// ErrInvalidArray marks a decoded structure that is not an array of
	// non-empty arrays led by a step abbreviation.
	ErrInvalidArray = errors.New("invalid step array")
	// ErrBadString marks a token that cannot be decoded: blank input, a
	// broken payload, or a legacy token while legacy support is disabled.
	ErrBadString = errors.New("bad string")
	// ErrMaliciousString marks a legacy token carrying an object payload.
	ErrMaliciousString = errors.New("potentially malicious string")
	// ErrUndecodable marks a token that matches no known format.
	ErrUndecodable = errors.New("unrecognized token format")
)
