package serializer

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// UniqueString renders v deterministically: lists concatenate their
// elements, maps concatenate key+value sorted by key, scalars render
// as text and nil renders empty.
func UniqueString(v any) string {
	var b strings.Builder
	writeUnique(&b, Normalize(v))
	return b.String()
}

func writeUnique(b *strings.Builder, v any) {
	switch typed := v.(type) {
	case nil:
	case string:
		b.WriteString(typed)
	case bool:
		b.WriteString(strconv.FormatBool(typed))
	case int64:
		b.WriteString(strconv.FormatInt(typed, 10))
	case float64:
		switch {
		case math.IsInf(typed, 1):
			b.WriteString("Infinity")
		case math.IsInf(typed, -1):
			b.WriteString("-Infinity")
		case math.IsNaN(typed):
			b.WriteString("NaN")
		default:
			b.WriteString(strconv.FormatFloat(typed, 'f', -1, 64))
		}
	case []any:
		for _, item := range typed {
			writeUnique(b, item)
		}
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for k := range typed {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			b.WriteString(k)
			writeUnique(b, typed[k])
		}
	default:
		fmt.Fprint(b, typed)
	}
}
