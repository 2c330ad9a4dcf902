// Package codec holds the binary encodings kiln writes to disk: deterministic
// CBOR for metadata headers and the zstd/lz4 compressors shared by the
// encode processor and the result cache.
package codec
