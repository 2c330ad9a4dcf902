package content

import (
	"encoding/base64"
	"maps"
	"mime"
	"path"
	"strings"
)

// MetaName is the metadata key carrying the artifact's file name.
const MetaName = "name"

const defaultMimeType = "application/octet-stream"

// Content is a byte buffer plus metadata.
type Content struct {
	data []byte
	meta map[string]any
}

// New returns Content seeded with a copy of data.
func New(data []byte) *Content {
	c := &Content{meta: map[string]any{}}
	if len(data) > 0 {
		c.data = append([]byte(nil), data...)
	}
	return c
}

// Update replaces the data and merges meta over the existing metadata.
func (c *Content) Update(data []byte, meta map[string]any) {
	c.data = data
	if c.meta == nil {
		c.meta = map[string]any{}
	}
	maps.Copy(c.meta, meta)
}

// Data returns the current bytes. Callers must not modify the slice.
func (c *Content) Data() []byte {
	if c.data == nil {
		return []byte{}
	}
	return c.data
}

// Size reports the byte length of the data.
func (c *Content) Size() int {
	return len(c.data)
}

// Meta returns the metadata map. It is never nil.
func (c *Content) Meta() map[string]any {
	if c.meta == nil {
		c.meta = map[string]any{}
	}
	return c.meta
}

// SetMeta replaces the metadata wholesale.
func (c *Content) SetMeta(meta map[string]any) {
	c.meta = cloneMeta(meta)
}

// Clone returns a deep, independent copy.
func (c *Content) Clone() *Content {
	clone := &Content{meta: cloneMeta(c.meta)}
	if c.data != nil {
		clone.data = append([]byte(nil), c.data...)
	}
	return clone
}

// Name returns meta["name"] or "" when unset.
func (c *Content) Name() string {
	name, _ := c.Meta()[MetaName].(string)
	return name
}

// Basename returns the name without its extension.
func (c *Content) Basename() string {
	name := c.Name()
	if name == "" {
		return ""
	}
	return strings.TrimSuffix(name, path.Ext(name))
}

// Ext returns the name's extension without the leading dot.
func (c *Content) Ext() string {
	return strings.TrimPrefix(path.Ext(c.Name()), ".")
}

// MimeType derives the media type from the name's extension.
func (c *Content) MimeType() string {
	ext := c.Ext()
	if ext == "" {
		return defaultMimeType
	}
	if mt := mime.TypeByExtension("." + strings.ToLower(ext)); mt != "" {
		if base, _, ok := strings.Cut(mt, ";"); ok {
			return strings.TrimSpace(base)
		}
		return mt
	}
	return defaultMimeType
}

// B64Data renders the data as a base64 data URI.
func (c *Content) B64Data() string {
	return "data:" + c.MimeType() + ";base64," + base64.StdEncoding.EncodeToString(c.Data())
}

func cloneMeta(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return cloneMeta(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = deepCopy(item)
		}
		return out
	case []byte:
		return append([]byte(nil), typed...)
	default:
		return v
	}
}
