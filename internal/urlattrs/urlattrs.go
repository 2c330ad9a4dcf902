// Package urlattrs carries the key/value attributes a job accumulates while
// it is being built. URL formatting reads them (for example the trailing file
// name segment); they never influence the job's signature.
package urlattrs

import "kiln/internal/serializer"

// Name is the attribute URL builders use for the trailing file name.
const Name = "name"

// Attrs is a string-keyed attribute map. The zero value is usable for reads;
// use New before writing.
type Attrs map[string]any

// New returns an empty attribute map.
func New() Attrs {
	return Attrs{}
}

// Get returns the value stored under key.
func (a Attrs) Get(key string) (any, bool) {
	v, ok := a[key]
	return v, ok
}

// String returns the value under key when it is a string.
func (a Attrs) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Set stores value under key. Setting nil removes the key.
func (a Attrs) Set(key string, value any) {
	if value == nil {
		delete(a, key)
		return
	}
	a[key] = value
}

// Name returns the "name" attribute.
func (a Attrs) Name() string {
	return a.String(Name)
}

// Merge copies every entry of other into a; other wins on conflicts.
func (a Attrs) Merge(other map[string]any) {
	for k, v := range other {
		a.Set(k, serializer.DeepCopy(v))
	}
}

// Clone returns an independent copy. Nested maps and slices are copied too.
func (a Attrs) Clone() Attrs {
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = serializer.DeepCopy(v)
	}
	return out
}
