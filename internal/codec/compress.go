package codec

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression names a compression algorithm.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// ParseCompression resolves a configured algorithm name.
func ParseCompression(name string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(name))); c {
	case CompressionNone, CompressionZstd, CompressionLZ4:
		return c, nil
	case "":
		return CompressionNone, nil
	}
	return "", fmt.Errorf("unsupported compression %q", name)
}

// Ext returns the conventional file extension for the algorithm.
func (c Compression) Ext() string {
	switch c {
	case CompressionZstd:
		return "zst"
	case CompressionLZ4:
		return "lz4"
	}
	return ""
}

func (c Compression) valid() bool {
	return c == CompressionNone || c == CompressionZstd || c == CompressionLZ4
}

// zstd encoders and decoders are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// Compress encodes data as a self-describing frame. Empty input stays empty.
func Compress(c Compression, data []byte) ([]byte, error) {
	if len(data) == 0 && c.valid() {
		return []byte{}, nil
	}
	switch c {
	case CompressionNone:
		return append([]byte(nil), data...), nil
	case CompressionZstd:
		return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unsupported compression %q", c)
}

// Decompress reverses Compress.
func Decompress(c Compression, data []byte) ([]byte, error) {
	if len(data) == 0 && c.valid() {
		return []byte{}, nil
	}
	switch c {
	case CompressionNone:
		return append([]byte(nil), data...), nil
	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return out, nil
	case CompressionLZ4:
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported compression %q", c)
}
