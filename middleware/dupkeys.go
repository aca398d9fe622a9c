package middleware

import (
	"bytes"
	"errors"
	"io"

	"github.com/goccy/go-json"
	"github.com/reoring/formskema/fieldpath"
)

// dupFrame tracks one open container while scanning tokens.
type dupFrame struct {
	object       bool
	keys         map[string]struct{}
	expectingKey bool
	key          string // current key of an object
	index        int    // current element of an array
}

// findDuplicateKey scans data and returns the canonical path of the first
// key repeated within one object.
func findDuplicateKey(data []byte) (path string, found bool, err error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var stack []dupFrame

	valueDone := func() {
		if len(stack) == 0 {
			return
		}
		top := &stack[len(stack)-1]
		if top.object {
			top.expectingKey = true
		} else {
			top.index++
		}
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		switch v := tok.(type) {
		case json.Delim:
			switch v {
			case '{':
				stack = append(stack, dupFrame{object: true, keys: map[string]struct{}{}, expectingKey: true})
			case '[':
				stack = append(stack, dupFrame{})
			case '}', ']':
				if len(stack) > 0 {
					stack = stack[:len(stack)-1]
				}
				valueDone()
			}
		case string:
			if n := len(stack); n > 0 && stack[n-1].object && stack[n-1].expectingKey {
				top := &stack[n-1]
				if _, dup := top.keys[v]; dup {
					return pathOf(stack[:n-1], v), true, nil
				}
				top.keys[v] = struct{}{}
				top.key = v
				top.expectingKey = false
				continue
			}
			valueDone()
		default:
			valueDone()
		}
	}
}

func pathOf(stack []dupFrame, key string) string {
	segs := make([]fieldpath.Segment, 0, len(stack)+1)
	for _, f := range stack {
		if f.object {
			segs = append(segs, fieldpath.KeySeg(f.key))
		} else {
			segs = append(segs, fieldpath.IndexSeg(f.index))
		}
	}
	return fieldpath.Format(append(segs, fieldpath.KeySeg(key)))
}
