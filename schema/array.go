package schema

import (
	"context"
	"reflect"

	"github.com/reoring/formskema/fieldpath"
	js "github.com/reoring/formskema/jsonschema"
)

// ArraySchema validates a list whose elements all satisfy elem.
type ArraySchema struct {
	elem     Schema
	minLen   int
	maxLen   int
	optional bool
	msgs     map[string]string
}

// Array returns an array schema with the given element schema.
func Array(elem Schema) *ArraySchema {
	return &ArraySchema{elem: elem, minLen: -1, maxLen: -1, msgs: map[string]string{}}
}

// Min sets the minimum length.
func (a *ArraySchema) Min(n int, msg ...string) *ArraySchema {
	a.minLen = n
	a.msgs[CodeTooFewItems] = firstMsg(msg)
	return a
}

// Max sets the maximum length.
func (a *ArraySchema) Max(n int, msg ...string) *ArraySchema {
	a.maxLen = n
	a.msgs[CodeTooManyItems] = firstMsg(msg)
	return a
}

// Optional accepts nil.
func (a *ArraySchema) Optional() *ArraySchema { a.optional = true; return a }

func (a *ArraySchema) Parse(ctx context.Context, v any) (any, error) {
	if v == nil && a.optional {
		return nil, nil
	}
	src, ok := asList(v)
	if !ok {
		return nil, Issues{rootIssue(CodeInvalidType, "", "expected", "array")}
	}
	var iss Issues
	if a.minLen >= 0 && len(src) < a.minLen {
		iss = append(iss, rootIssue(CodeTooFewItems, a.msgs[CodeTooFewItems], "min", a.minLen, "got", len(src)))
	}
	if a.maxLen >= 0 && len(src) > a.maxLen {
		iss = append(iss, rootIssue(CodeTooManyItems, a.msgs[CodeTooManyItems], "max", a.maxLen, "got", len(src)))
	}
	out := make([]any, len(src))
	for i, el := range src {
		if a.elem == nil {
			out[i] = el
			continue
		}
		pv, err := a.elem.Parse(ctx, el)
		if err != nil {
			iss = append(iss, rebase(Root().Index(i).Pointer(), issuesFromErr("/", err))...)
			continue
		}
		out[i] = pv
	}
	if len(iss) > 0 {
		return nil, iss
	}
	return out, nil
}

func (a *ArraySchema) SafeParse(ctx context.Context, v any) ParseResult { return safeParse(ctx, a, v) }

func (a *ArraySchema) JSONSchema() *js.Schema {
	out := &js.Schema{Type: "array"}
	if a.elem != nil {
		out.Items = a.elem.JSONSchema()
	}
	if a.minLen >= 0 {
		out.MinItems = js.Int(a.minLen)
	}
	if a.maxLen >= 0 {
		out.MaxItems = js.Int(a.maxLen)
	}
	return out
}

// asList accepts []any directly and any other slice through reflection.
func asList(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return l, true
	}
	if v == nil {
		return nil, false
	}
	if k := reflect.TypeOf(v).Kind(); k != reflect.Slice && k != reflect.Array {
		return nil, false
	}
	l, ok := fieldpath.Normalize(v).([]any)
	return l, ok
}
