// Package serializer converts a job's step list between its canonical
// array-of-arrays form and the compact tokens embedded in URLs.
//
// The current token format is URL-safe, padding-free base64 over compact
// JSON. Tokens minted by older deployments used Ruby's Marshal format; they
// are still decoded when legacy support is enabled, after a pre-check rejects
// payloads that reference instance variables (the signature of a serialized
// object rather than plain data).
//
// # Entry Points
//
// Encode / Decode: token <-> [][]any.
// ValidateArray: structural check shared by every decode path.
// UniqueString: deterministic rendering used for signing and cache keys.
// Normalize: canonicalize argument values so decode(encode(x)) equals x.
package serializer
