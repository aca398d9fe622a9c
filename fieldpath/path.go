// Package fieldpath addresses values inside nested form data.
//
// A path is a string such as "employees[0].friends[1].name". Object keys are
// separated by dots and array elements use zero-based indices, written either
// as "[1]" or ".1" (both parse to the same Segment). Parsing is permissive:
// leading/trailing delimiters and empty segments are skipped.
//
// The accessors work on the plain trees produced by JSON/YAML decoding:
// map[string]any, []any and primitives. Writes are copy-on-write: the root and
// every container along the written path are shallow-cloned while siblings keep
// their identity, so callers can detect changes with reference comparisons.
package fieldpath

import (
	"strconv"
	"strings"
)

// Segment is one step of a parsed path: either an object key or an array index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// KeySeg returns an object-key segment.
func KeySeg(k string) Segment { return Segment{Key: k} }

// IndexSeg returns an array-index segment.
func IndexSeg(i int) Segment { return Segment{Index: i, IsIndex: true} }

// key returns the map key for the segment. Index segments address maps by
// their decimal form so that {"0": ...} objects stay reachable.
func (s Segment) key() string {
	if s.IsIndex {
		return strconv.Itoa(s.Index)
	}
	return s.Key
}

// String renders a single segment in canonical form.
func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Key
}

// Parse splits a path into typed segments.
func Parse(path string) []Segment {
	if path == "" {
		return nil
	}
	segs := make([]Segment, 0, 4)
	i := 0
	for i < len(path) {
		switch path[i] {
		case '.', ']':
			i++
		case '[':
			end := strings.IndexByte(path[i+1:], ']')
			var raw string
			if end < 0 {
				raw = path[i+1:]
				i = len(path)
			} else {
				raw = path[i+1 : i+1+end]
				i += end + 2
			}
			raw = strings.Trim(raw, `"'`)
			if raw == "" {
				continue
			}
			segs = append(segs, segmentOf(raw))
		default:
			j := i
			for j < len(path) && path[j] != '.' && path[j] != '[' && path[j] != ']' {
				j++
			}
			segs = append(segs, segmentOf(path[i:j]))
			i = j
		}
	}
	return segs
}

func segmentOf(raw string) Segment {
	if isIndex(raw) {
		n, err := strconv.Atoi(raw)
		if err == nil {
			return IndexSeg(n)
		}
	}
	return KeySeg(raw)
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Format renders segments using the canonical addressing scheme.
func Format(segs []Segment) string {
	if len(segs) == 0 {
		return ""
	}
	b := &strings.Builder{}
	for i, s := range segs {
		if s.IsIndex {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(s.Index))
			b.WriteByte(']')
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.Key)
	}
	return b.String()
}

// Canonical normalizes a path, e.g. "items.0.name" -> "items[0].name".
func Canonical(path string) string { return Format(Parse(path)) }

// Join appends child path segments to base and returns the canonical result.
func Join(base string, child ...string) string {
	segs := Parse(base)
	for _, c := range child {
		segs = append(segs, Parse(c)...)
	}
	return Format(segs)
}

// Index returns the canonical path of element i of the array at base.
func Index(base string, i int) string {
	return Format(append(Parse(base), IndexSeg(i)))
}

// HasPrefix reports whether path equals prefix or lies beneath it. The check is
// segment-aware: "items[0]" is under "items" but "itemsX" is not.
func HasPrefix(path, prefix string) bool {
	ps, qs := Parse(path), Parse(prefix)
	if len(qs) > len(ps) {
		return false
	}
	for i, q := range qs {
		if ps[i] != q {
			return false
		}
	}
	return true
}

// FromPointer converts an RFC 6901 JSON Pointer ("/items/2/price") into a
// canonical path ("items[2].price"). The root pointer maps to "".
func FromPointer(ptr string) string {
	if ptr == "" || ptr == "/" {
		return ""
	}
	parts := strings.Split(strings.TrimPrefix(ptr, "/"), "/")
	segs := make([]Segment, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		p = strings.ReplaceAll(strings.ReplaceAll(p, "~1", "/"), "~0", "~")
		segs = append(segs, segmentOf(p))
	}
	return Format(segs)
}

// ToPointer converts a path into a JSON Pointer. The empty path maps to "/".
func ToPointer(path string) string {
	segs := Parse(path)
	if len(segs) == 0 {
		return "/"
	}
	b := &strings.Builder{}
	for _, s := range segs {
		b.WriteByte('/')
		b.WriteString(strings.ReplaceAll(strings.ReplaceAll(s.key(), "~", "~0"), "/", "~1"))
	}
	return b.String()
}
