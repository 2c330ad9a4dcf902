package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// JSONEncode renders v as compact JSON without HTML escaping.
func JSONEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(Normalize(v)); err != nil {
		return nil, fmt.Errorf("json encode: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// JSONDecode parses data with numbers normalized to int64 or float64.
func JSONDecode(data []byte) (any, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("%w: cannot decode blank string", ErrBadString)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: json: %w", ErrBadString, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: json: trailing data", ErrBadString)
	}
	return Normalize(v), nil
}
