package serializer

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// B64Encode returns URL-safe base64 without padding.
func B64Encode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// B64Decode accepts both base64 alphabets, optional padding, and the "~"
// substitute for "/" used by older URL builders.
func B64Decode(token string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '~', '_':
			return '/'
		case '-':
			return '+'
		case '=', '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, token)
	data, err := base64.RawStdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %w", ErrUndecodable, err)
	}
	return data, nil
}
