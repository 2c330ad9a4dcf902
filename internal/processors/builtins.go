package processors

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"kiln/internal/codec"
	"kiln/internal/content"
	"kiln/internal/registry"
	"kiln/internal/urlattrs"
)

// Metadata keys written by the builtins.
const (
	MetaEncoding = "encoding"
	AttrExt      = "ext"
)

// TextName is the file name the text generator assigns.
const TextName = "text.txt"

// RegisterBuiltins adds every builtin callable to reg.
func RegisterBuiltins(reg *registry.Registry) {
	reg.AddProcessor("truncate", registry.ProcessorFunc(Truncate))
	reg.AddProcessor("encode", registry.WithURLUpdate(registry.ProcessorFunc(Encode), encodeURL))
	reg.AddProcessor("rename", registry.WithURLUpdate(registry.ProcessorFunc(Rename), renameURL))
	reg.AddGenerator("text", registry.GeneratorWithURLUpdate(registry.GeneratorFunc(Text), textURL))
	reg.AddAnalyser("size", registry.AnalyserFunc(Size))
	reg.AddAnalyser("count_bytes", registry.AnalyserFunc(CountBytes))
}

// Truncate keeps the first n bytes.
func Truncate(_ context.Context, c *content.Content, args ...any) error {
	n, err := intArg("truncate", args, 0)
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("truncate: %w: length %d is negative", ErrBadArgument, n)
	}
	data := c.Data()
	if int64(len(data)) > n {
		data = data[:n]
	}
	c.Update(append([]byte(nil), data...), nil)
	return nil
}

func encodingArg(args []any) (codec.Compression, error) {
	name, err := stringArg("encode", args, 0)
	if err != nil {
		return "", err
	}
	comp, err := codec.ParseCompression(name)
	if err != nil || comp == codec.CompressionNone {
		return "", fmt.Errorf("encode: %w: unsupported encoding %q", ErrBadArgument, name)
	}
	return comp, nil
}

// Encode compresses the data with zstd or lz4 and records the encoding.
func Encode(_ context.Context, c *content.Content, args ...any) error {
	comp, err := encodingArg(args)
	if err != nil {
		return err
	}
	packed, err := codec.Compress(comp, c.Data())
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	meta := map[string]any{MetaEncoding: string(comp)}
	if name := c.Name(); name != "" {
		meta[content.MetaName] = name + "." + comp.Ext()
	}
	c.Update(packed, meta)
	return nil
}

func encodeURL(attrs urlattrs.Attrs, args ...any) {
	if comp, err := encodingArg(args); err == nil {
		attrs.Set(AttrExt, comp.Ext())
	}
}

// Rename sets the content's file name.
func Rename(_ context.Context, c *content.Content, args ...any) error {
	name, err := stringArg("rename", args, 0)
	if err != nil {
		return err
	}
	if strings.ContainsAny(name, "/\\") || name == "" {
		return fmt.Errorf("rename: %w: invalid name %q", ErrBadArgument, name)
	}
	c.Update(c.Data(), map[string]any{content.MetaName: name})
	return nil
}

func renameURL(attrs urlattrs.Attrs, args ...any) {
	if name, err := stringArg("rename", args, 0); err == nil && name != "" {
		attrs.Set(urlattrs.Name, name)
	}
}

// Text replaces the data with its arguments joined by spaces.
func Text(_ context.Context, c *content.Content, args ...any) error {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = fmt.Sprint(arg)
	}
	c.Update([]byte(strings.Join(parts, " ")), map[string]any{content.MetaName: TextName})
	return nil
}

func textURL(attrs urlattrs.Attrs, _ ...any) {
	attrs.Set(urlattrs.Name, TextName)
}

// Size reports the byte length of the data.
func Size(_ context.Context, c *content.Content, _ ...any) (any, error) {
	return int64(c.Size()), nil
}

// CountBytes reports the non-overlapping occurrences of a byte sequence.
func CountBytes(_ context.Context, c *content.Content, args ...any) (any, error) {
	needle, err := stringArg("count_bytes", args, 0)
	if err != nil {
		return nil, err
	}
	if needle == "" {
		return nil, fmt.Errorf("count_bytes: %w: empty sequence", ErrBadArgument)
	}
	return int64(bytes.Count(c.Data(), []byte(needle))), nil
}
