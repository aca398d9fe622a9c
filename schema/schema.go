package schema

import (
	"context"
	"fmt"

	"github.com/reoring/formskema/i18n"
	js "github.com/reoring/formskema/jsonschema"
)

// Schema is implemented by every schema in this package.
type Schema interface {
	// Parse validates v and returns the normalized value. Failures are
	// reported as Issues.
	Parse(ctx context.Context, v any) (any, error)
	// SafeParse is the non-throwing counterpart of Parse.
	SafeParse(ctx context.Context, v any) ParseResult
	// JSONSchema projects the schema into a JSON Schema representation.
	JSONSchema() *js.Schema
}

// ParseResult is the outcome of SafeParse: Data on success, Error otherwise.
type ParseResult struct {
	Success bool
	Data    any
	Error   Issues
}

// safeParse adapts a Parse implementation to the ParseResult shape.
func safeParse(ctx context.Context, s Schema, v any) ParseResult {
	out, err := s.Parse(ctx, v)
	if err != nil {
		return ParseResult{Error: issuesFromErr("/", err)}
	}
	return ParseResult{Success: true, Data: out}
}

// Is returns true if v conforms to s.
func Is(ctx context.Context, s Schema, v any) bool {
	_, err := s.Parse(ctx, v)
	return err == nil
}

// message resolves the text of an issue: the caller-supplied override when
// present, the i18n catalog otherwise.
func message(code string, custom string, params map[string]any) string {
	if custom != "" {
		return custom
	}
	var data map[string]string
	if len(params) > 0 {
		data = make(map[string]string, len(params))
		for k, v := range params {
			data[k] = fmt.Sprint(v)
		}
	}
	return i18n.T(code, data)
}

func rootIssue(code, custom string, kv ...any) Issue {
	is := Root().Issue(code, "", kv...)
	is.Message = message(code, custom, is.Params)
	return is
}

func firstMsg(msg []string) string {
	if len(msg) > 0 {
		return msg[0]
	}
	return ""
}

// refined wraps a schema with an extra check run after a successful parse.
type refined struct {
	inner Schema
	fn    func(ctx context.Context, v any) error
}

// Refine returns s extended with fn. fn may return Issues (paths relative to
// the value) or a plain error, which becomes a custom issue at the root.
func Refine(s Schema, fn func(ctx context.Context, v any) error) Schema {
	return &refined{inner: s, fn: fn}
}

func (r *refined) Parse(ctx context.Context, v any) (any, error) {
	out, err := r.inner.Parse(ctx, v)
	if err != nil {
		return nil, err
	}
	if r.fn == nil {
		return out, nil
	}
	if err := r.fn(ctx, out); err != nil {
		return nil, issuesFromErr("/", err)
	}
	return out, nil
}

func (r *refined) SafeParse(ctx context.Context, v any) ParseResult { return safeParse(ctx, r, v) }
func (r *refined) JSONSchema() *js.Schema                           { return r.inner.JSONSchema() }
