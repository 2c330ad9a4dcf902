package serializer

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Marshal format 4.8 header bytes.
const (
	marshalMajor = 4
	marshalMinor = 8
)

// maxMarshalDepth bounds nesting of arrays, hashes and ivar wrappers.
const maxMarshalDepth = 100

// maliciousPattern matches an instance variable reference such as "@data".
// Plain data never carries one; serialized objects always do.
var maliciousPattern = regexp.MustCompile(`(?i)@[a-z_]`)

func looksMarshal(raw []byte) bool {
	return len(raw) >= 2 && raw[0] == marshalMajor && raw[1] == marshalMinor
}

// MarshalDecode parses the plain-data subset of Ruby's Marshal format:
// nil, booleans, fixnums, floats, strings, symbols, arrays and hashes along
// with the ivar wrapper and symbol/object links. Symbols decode as strings
// and hash keys are stringified.
func MarshalDecode(raw []byte) (any, error) {
	if maliciousPattern.Match(raw) {
		return nil, fmt.Errorf("%w: instance variable reference in legacy payload", ErrMaliciousString)
	}
	if !looksMarshal(raw) {
		return nil, fmt.Errorf("%w: missing marshal header", ErrBadString)
	}
	r := &marshalReader{data: raw, pos: 2}
	v, err := r.value()
	if err != nil {
		return nil, err
	}
	if r.pos != len(r.data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrBadString, len(r.data)-r.pos)
	}
	return v, nil
}

type marshalReader struct {
	data    []byte
	pos     int
	symbols []string
	objects []any
	depth   int
}

func (r *marshalReader) fail(format string, args ...any) error {
	return fmt.Errorf("%w: marshal offset %d: %s", ErrBadString, r.pos, fmt.Sprintf(format, args...))
}

func (r *marshalReader) readByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, r.fail("unexpected end of data")
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *marshalReader) readBytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, r.fail("length %d out of range", n)
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *marshalReader) long() (int64, error) {
	b, err := r.readByte()
	if err != nil {
		return 0, err
	}
	c := int8(b)
	switch {
	case c == 0:
		return 0, nil
	case c >= 5:
		return int64(c) - 5, nil
	case c <= -5:
		return int64(c) + 5, nil
	case c > 0:
		raw, err := r.readBytes(int(c))
		if err != nil {
			return 0, err
		}
		var x int64
		for i, v := range raw {
			x |= int64(v) << (8 * i)
		}
		return x, nil
	default:
		n := int(-c)
		raw, err := r.readBytes(n)
		if err != nil {
			return 0, err
		}
		var x int64
		for i, v := range raw {
			x |= int64(v) << (8 * i)
		}
		return x - (int64(1) << (8 * n)), nil
	}
}

func (r *marshalReader) rawString() ([]byte, error) {
	n, err := r.long()
	if err != nil {
		return nil, err
	}
	return r.readBytes(int(n))
}

func (r *marshalReader) register(v any) int {
	r.objects = append(r.objects, v)
	return len(r.objects) - 1
}

func (r *marshalReader) symbol() (string, error) {
	b, err := r.readByte()
	if err != nil {
		return "", err
	}
	switch b {
	case ':':
		raw, err := r.rawString()
		if err != nil {
			return "", err
		}
		r.symbols = append(r.symbols, string(raw))
		return string(raw), nil
	case ';':
		idx, err := r.long()
		if err != nil {
			return "", err
		}
		if idx < 0 || int(idx) >= len(r.symbols) {
			return "", r.fail("symbol link %d out of range", idx)
		}
		return r.symbols[idx], nil
	}
	return "", r.fail("expected symbol, got %q", b)
}

func (r *marshalReader) value() (any, error) {
	r.depth++
	defer func() { r.depth-- }()
	if r.depth > maxMarshalDepth {
		return nil, r.fail("nesting deeper than %d", maxMarshalDepth)
	}
	tag, err := r.readByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case '0':
		return nil, nil
	case 'T':
		return true, nil
	case 'F':
		return false, nil
	case 'i':
		return r.long()
	case ':', ';':
		r.pos--
		return r.symbol()
	case '"':
		raw, err := r.rawString()
		if err != nil {
			return nil, err
		}
		s := string(raw)
		r.register(s)
		return s, nil
	case 'f':
		raw, err := r.rawString()
		if err != nil {
			return nil, err
		}
		f, err := parseMarshalFloat(string(raw))
		if err != nil {
			return nil, r.fail("float %q: %v", raw, err)
		}
		r.register(f)
		return f, nil
	case 'I':
		v, err := r.value()
		if err != nil {
			return nil, err
		}
		count, err := r.long()
		if err != nil {
			return nil, err
		}
		for range count {
			if _, err := r.symbol(); err != nil {
				return nil, err
			}
			if _, err := r.value(); err != nil {
				return nil, err
			}
		}
		return v, nil
	case '@':
		idx, err := r.long()
		if err != nil {
			return nil, err
		}
		if idx < 0 || int(idx) >= len(r.objects) {
			return nil, r.fail("object link %d out of range", idx)
		}
		if r.objects[idx] == nil {
			return nil, r.fail("recursive object link %d", idx)
		}
		return r.objects[idx], nil
	case '[':
		count, err := r.long()
		if err != nil {
			return nil, err
		}
		if count < 0 || count > int64(len(r.data)) {
			return nil, r.fail("array length %d out of range", count)
		}
		slot := r.register(nil)
		out := make([]any, 0, count)
		for range count {
			v, err := r.value()
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		r.objects[slot] = out
		return out, nil
	case '{':
		count, err := r.long()
		if err != nil {
			return nil, err
		}
		if count < 0 || count > int64(len(r.data)) {
			return nil, r.fail("hash size %d out of range", count)
		}
		slot := r.register(nil)
		out := make(map[string]any, count)
		for range count {
			k, err := r.value()
			if err != nil {
				return nil, err
			}
			v, err := r.value()
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = v
		}
		r.objects[slot] = out
		return out, nil
	}
	return nil, r.fail("unsupported type tag %q", tag)
}

func parseMarshalFloat(s string) (float64, error) {
	switch s {
	case "inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	case "nan":
		return math.NaN(), nil
	}
	// Older writers append mantissa bytes after a NUL.
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return strconv.ParseFloat(s, 64)
}

// MarshalEncode writes v in the Marshal subset read by MarshalDecode.
// Strings are written as UTF-8 tagged ivars; integers outside the fixnum
// range are rejected. It exists to mint legacy tokens for compatibility
// testing and tooling.
func MarshalEncode(v any) ([]byte, error) {
	w := &marshalWriter{symbols: map[string]int{}}
	w.buf.WriteByte(marshalMajor)
	w.buf.WriteByte(marshalMinor)
	if err := w.value(Normalize(v)); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

type marshalWriter struct {
	buf     bytes.Buffer
	symbols map[string]int
}

func (w *marshalWriter) long(n int64) {
	switch {
	case n == 0:
		w.buf.WriteByte(0)
	case n > 0 && n < 123:
		w.buf.WriteByte(byte(n + 5))
	case n < 0 && n > -124:
		w.buf.WriteByte(byte(int8(n - 5)))
	default:
		var raw []byte
		x := n
		for range 4 {
			raw = append(raw, byte(x))
			x >>= 8
			if (n >= 0 && x == 0) || (n < 0 && x == -1) {
				break
			}
		}
		if n >= 0 {
			w.buf.WriteByte(byte(len(raw)))
		} else {
			w.buf.WriteByte(byte(int8(-len(raw))))
		}
		w.buf.Write(raw)
	}
}

func (w *marshalWriter) rawString(s string) {
	w.long(int64(len(s)))
	w.buf.WriteString(s)
}

func (w *marshalWriter) symbol(s string) {
	if idx, ok := w.symbols[s]; ok {
		w.buf.WriteByte(';')
		w.long(int64(idx))
		return
	}
	w.symbols[s] = len(w.symbols)
	w.buf.WriteByte(':')
	w.rawString(s)
}

func (w *marshalWriter) value(v any) error {
	switch typed := v.(type) {
	case nil:
		w.buf.WriteByte('0')
	case bool:
		if typed {
			w.buf.WriteByte('T')
		} else {
			w.buf.WriteByte('F')
		}
	case int64:
		if typed < -(1<<30) || typed >= 1<<30 {
			return fmt.Errorf("%w: integer %d outside fixnum range", ErrBadString, typed)
		}
		w.buf.WriteByte('i')
		w.long(typed)
	case float64:
		w.buf.WriteByte('f')
		switch {
		case math.IsInf(typed, 1):
			w.rawString("inf")
		case math.IsInf(typed, -1):
			w.rawString("-inf")
		case math.IsNaN(typed):
			w.rawString("nan")
		default:
			w.rawString(strconv.FormatFloat(typed, 'g', -1, 64))
		}
	case string:
		w.buf.WriteByte('I')
		w.buf.WriteByte('"')
		w.rawString(typed)
		w.long(1)
		w.symbol("E")
		w.buf.WriteByte('T')
	case []any:
		w.buf.WriteByte('[')
		w.long(int64(len(typed)))
		for _, item := range typed {
			if err := w.value(item); err != nil {
				return err
			}
		}
	case map[string]any:
		w.buf.WriteByte('{')
		w.long(int64(len(typed)))
		keys := make([]string, 0, len(typed))
		for k := range typed {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			if err := w.value(k); err != nil {
				return err
			}
			if err := w.value(typed[k]); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: cannot marshal %T", ErrBadString, v)
	}
	return nil
}
