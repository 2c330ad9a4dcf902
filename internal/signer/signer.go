// Package signer derives and checks the short URL verification codes that
// protect job tokens from tampering.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// CodeLength is the number of hex characters in a verification code.
const CodeLength = 8

var (
	// ErrNoCode is returned when verification is requested without a code.
	ErrNoCode = errors.New("no verification code given")
	// ErrIncorrectCode is returned when the code does not match the payload.
	ErrIncorrectCode = errors.New("incorrect verification code")
)

// Signer computes HMAC-SHA256 codes keyed by a server secret.
type Signer struct {
	secret []byte
}

// New returns a Signer for secret. An empty secret is allowed but yields
// codes anyone can forge.
func New(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns the lowercase hex code for payload.
func (s *Signer) Sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))[:CodeLength]
}

// Verify checks code against payload in constant time.
func (s *Signer) Verify(payload, code string) error {
	if code == "" {
		return ErrNoCode
	}
	if !hmac.Equal([]byte(s.Sign(payload)), []byte(code)) {
		return fmt.Errorf("%w: %q", ErrIncorrectCode, code)
	}
	return nil
}
