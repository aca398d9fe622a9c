package fieldpath

import (
	"maps"
	"reflect"
)

// maxIndex bounds how far Set may grow an array in one write.
const maxIndex = 1 << 20

// Get returns the value at path. The second result is false when any segment
// is missing or not indexable. The empty path addresses root itself.
func Get(root any, path string) (any, bool) {
	return GetSegments(root, Parse(path))
}

// GetSegments is Get for pre-parsed segments.
func GetSegments(root any, segs []Segment) (any, bool) {
	cur := root
	for _, s := range segs {
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[s.key()]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			if !s.IsIndex || s.Index < 0 || s.Index >= len(c) {
				return nil, false
			}
			cur = c[s.Index]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Set returns a copy of root with value stored at path. Containers on the path
// are cloned, missing ones are created (an array when the next segment is an
// index, an object otherwise) and scalars in the way are overwritten. Invalid
// writes (negative index, key on an array) leave root untouched.
func Set(root any, path string, value any) any {
	return SetSegments(root, Parse(path), value)
}

// SetSegments is Set for pre-parsed segments.
func SetSegments(root any, segs []Segment, value any) any {
	out, ok := setAt(root, segs, value)
	if !ok {
		return root
	}
	return out
}

func setAt(cur any, segs []Segment, value any) (any, bool) {
	if len(segs) == 0 {
		return value, true
	}
	s, rest := segs[0], segs[1:]
	switch c := cur.(type) {
	case map[string]any:
		child, ok := setAt(c[s.key()], rest, value)
		if !ok {
			return nil, false
		}
		out := make(map[string]any, len(c)+1)
		maps.Copy(out, c)
		out[s.key()] = child
		return out, true
	case []any:
		if !s.IsIndex || s.Index < 0 || s.Index > maxIndex {
			return nil, false
		}
		var old any
		if s.Index < len(c) {
			old = c[s.Index]
		}
		child, ok := setAt(old, rest, value)
		if !ok {
			return nil, false
		}
		n := len(c)
		if s.Index >= n {
			n = s.Index + 1
		}
		out := make([]any, n)
		copy(out, c)
		out[s.Index] = child
		return out, true
	default:
		// absent or scalar: create the container the segment expects
		if s.IsIndex {
			if s.Index < 0 || s.Index > maxIndex {
				return nil, false
			}
			child, ok := setAt(nil, rest, value)
			if !ok {
				return nil, false
			}
			out := make([]any, s.Index+1)
			out[s.Index] = child
			return out, true
		}
		child, ok := setAt(nil, rest, value)
		if !ok {
			return nil, false
		}
		return map[string]any{s.Key: child}, true
	}
}

// Delete returns a copy of root without the value at path. Array elements are
// spliced out. A missing path leaves root untouched.
func Delete(root any, path string) any {
	segs := Parse(path)
	if len(segs) == 0 {
		return root
	}
	parentSegs, last := segs[:len(segs)-1], segs[len(segs)-1]
	parent, ok := GetSegments(root, parentSegs)
	if !ok {
		return root
	}
	switch c := parent.(type) {
	case map[string]any:
		if _, exists := c[last.key()]; !exists {
			return root
		}
		out := maps.Clone(c)
		delete(out, last.key())
		return SetSegments(root, parentSegs, out)
	case []any:
		if !last.IsIndex {
			return root
		}
		return RemoveArrayItem(root, Format(parentSegs), last.Index)
	}
	return root
}

// AddArrayItem returns a copy of root with item appended to the array at
// arrayPath. A missing (or non-array) value is replaced by a new array.
func AddArrayItem(root any, arrayPath string, item any) any {
	segs := Parse(arrayPath)
	cur, _ := GetSegments(root, segs)
	arr, _ := cur.([]any)
	out := make([]any, len(arr), len(arr)+1)
	copy(out, arr)
	out = append(out, item)
	return SetSegments(root, segs, out)
}

// RemoveArrayItem returns a copy of root with element index removed from the
// array at arrayPath; later elements shift down by one. Out-of-range indices
// and non-array targets leave root untouched.
func RemoveArrayItem(root any, arrayPath string, index int) any {
	segs := Parse(arrayPath)
	cur, ok := GetSegments(root, segs)
	if !ok {
		return root
	}
	arr, ok := cur.([]any)
	if !ok || index < 0 || index >= len(arr) {
		return root
	}
	out := make([]any, 0, len(arr)-1)
	out = append(out, arr[:index]...)
	out = append(out, arr[index+1:]...)
	return SetSegments(root, segs, out)
}

// Normalize converts typed slices and string-keyed maps (for example
// []map[string]any or map[string]string) into the []any / map[string]any
// shapes the accessors understand. Other values are returned as-is.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Normalize(e)
		}
		return out
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		fallthrough
	case reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		it := rv.MapRange()
		for it.Next() {
			out[it.Key().String()] = Normalize(it.Value().Interface())
		}
		return out
	}
	return v
}
