package resultcache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"kiln/internal/codec"
	"kiln/internal/content"
	"kiln/internal/serializer"
)

var entryMagic = []byte("KLN1")

// maxHeaderBytes bounds the CBOR header so a corrupt length cannot force a
// large allocation.
const maxHeaderBytes = 1 << 20

var errCorruptEntry = errors.New("corrupt cache entry")

type entryHeader struct {
	Key         string         `cbor:"key"`
	Compression string         `cbor:"compression"`
	Size        int            `cbor:"size"`
	Meta        map[string]any `cbor:"meta"`
	CreatedAt   time.Time      `cbor:"created_at"`
}

func encodeEntry(key string, c *content.Content, comp codec.Compression, now time.Time) ([]byte, error) {
	payload, err := codec.Compress(comp, c.Data())
	if err != nil {
		return nil, err
	}
	meta, _ := serializer.Normalize(c.Meta()).(map[string]any)
	header, err := codec.Marshal(entryHeader{
		Key:         key,
		Compression: string(comp),
		Size:        c.Size(),
		Meta:        meta,
		CreatedAt:   now.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(len(entryMagic) + 4 + len(header) + len(payload))
	buf.Write(entryMagic)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(header)))
	buf.Write(lenBuf[:])
	buf.Write(header)
	buf.Write(payload)
	return buf.Bytes(), nil
}

func decodeEntry(raw []byte) (entryHeader, []byte, error) {
	var header entryHeader
	if len(raw) < len(entryMagic)+4 || !bytes.Equal(raw[:len(entryMagic)], entryMagic) {
		return header, nil, fmt.Errorf("%w: bad magic", errCorruptEntry)
	}
	rest := raw[len(entryMagic):]
	headerLen := binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]
	if headerLen > maxHeaderBytes || int(headerLen) > len(rest) {
		return header, nil, fmt.Errorf("%w: header length %d", errCorruptEntry, headerLen)
	}
	if err := codec.Unmarshal(rest[:headerLen], &header); err != nil {
		return header, nil, fmt.Errorf("%w: %w", errCorruptEntry, err)
	}
	comp, err := codec.ParseCompression(header.Compression)
	if err != nil {
		return header, nil, fmt.Errorf("%w: %w", errCorruptEntry, err)
	}
	data, err := codec.Decompress(comp, rest[headerLen:])
	if err != nil {
		return header, nil, fmt.Errorf("%w: %w", errCorruptEntry, err)
	}
	if len(data) != header.Size {
		return header, nil, fmt.Errorf("%w: size %d, header says %d", errCorruptEntry, len(data), header.Size)
	}
	return header, data, nil
}
