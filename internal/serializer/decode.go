package serializer

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Options controls which token formats Decode accepts.
type Options struct {
	// AllowLegacy enables the Marshal decode path.
	AllowLegacy bool
}

type strategy struct {
	name   string
	match  func(raw []byte) bool
	decode func(raw []byte, opts Options) (any, error)
}

// strategies are tried in order; the first matching one decides the result.
var strategies = []strategy{
	{name: "json", match: json.Valid, decode: func(raw []byte, _ Options) (any, error) {
		return JSONDecode(raw)
	}},
	{name: "marshal", match: looksMarshal, decode: func(raw []byte, opts Options) (any, error) {
		if !opts.AllowLegacy {
			return nil, fmt.Errorf("%w: legacy token support is disabled", ErrBadString)
		}
		return MarshalDecode(raw)
	}},
}

// Encode renders steps as a URL-safe token.
func Encode(steps [][]any) (string, error) {
	outer := make([]any, len(steps))
	for i, step := range steps {
		outer[i] = step
	}
	raw, err := JSONEncode(outer)
	if err != nil {
		return "", err
	}
	return B64Encode(raw), nil
}

// Decode parses a token produced by Encode, or by legacy Marshal-based
// encoders when opts.AllowLegacy is set, and validates its structure.
func Decode(token string, opts Options) ([][]any, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: cannot decode blank string", ErrBadString)
	}
	raw, err := B64Decode(token)
	if err != nil {
		return nil, err
	}
	for _, s := range strategies {
		if !s.match(raw) {
			continue
		}
		v, err := s.decode(raw, opts)
		if err != nil {
			return nil, fmt.Errorf("decode %s token: %w", s.name, err)
		}
		return ValidateArray(v)
	}
	return nil, fmt.Errorf("%w: %d bytes", ErrUndecodable, len(raw))
}

// ValidateArray checks that v is a list of non-empty lists whose first
// element is a string and returns it in typed form. An empty list is valid.
func ValidateArray(v any) ([][]any, error) {
	outer, ok := v.([]any)
	if !ok {
		return nil, invalidArray(v)
	}
	steps := make([][]any, 0, len(outer))
	for _, item := range outer {
		step, ok := item.([]any)
		if !ok || len(step) == 0 {
			return nil, invalidArray(v)
		}
		if _, ok := step[0].(string); !ok {
			return nil, invalidArray(v)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func invalidArray(v any) error {
	return fmt.Errorf("%w: cannot interpret %v, expected a list of steps", ErrInvalidArray, v)
}
