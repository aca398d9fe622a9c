// Package validate runs heterogeneous validators behind one call and
// normalizes their output into a flat map of canonical path to message.
//
// Supported validator kinds are detected structurally, first match wins:
//
//   - Func / FormFunc: plain Go callbacks.
//   - StandardSchema: anything exposing Standard() StandardProps.
//   - schema.Schema style: anything exposing SafeParse(ctx, v) schema.ParseResult.
//   - Tags / TagRules: go-playground/validator tag strings.
//   - *jsonschema.Schema: compiled santhosh-tekuri/jsonschema documents.
//   - *LuaScript: compiled gopher-lua chunks returning a result table.
//
// Anything else yields {"form": "Unsupported schema type"}. Run never panics
// and never returns an error; every failure ends up in Result.Errors.
package validate

import (
	"context"
	"fmt"

	"github.com/reoring/formskema/fieldpath"
	"github.com/reoring/formskema/i18n"
	"github.com/reoring/formskema/schema"
	sjs "github.com/santhosh-tekuri/jsonschema/v5"
)

// FormKey is the error-map key for form-level messages.
const FormKey = "form"

// Context is what a validator sees. FieldName is empty at form scope, in
// which case Values is the validated subject.
type Context struct {
	Value     any
	Values    map[string]any
	FieldName string
}

// Subject returns the value being validated: Value for a field, Values for
// the whole form.
func (c Context) Subject() any {
	if c.FieldName == "" {
		return c.Values
	}
	return c.Value
}

// target is the key a message without a path lands on.
func (c Context) target() string {
	if c.FieldName == "" {
		return FormKey
	}
	return c.FieldName
}

// at resolves a relative canonical path against the current scope.
func (c Context) at(rel string) string {
	rel = fieldpath.Canonical(rel)
	if rel == "" {
		return c.target()
	}
	if c.FieldName == "" {
		return rel
	}
	return fieldpath.Join(c.FieldName, rel)
}

// Result is the normalized outcome of a validator run.
type Result struct {
	Valid  bool
	Errors map[string]string
}

// Ok is the valid result.
func Ok() Result { return Result{Valid: true, Errors: map[string]string{}} }

// Merge folds other into r. Existing messages win.
func (r Result) Merge(other Result) Result {
	out := Result{Valid: r.Valid && other.Valid, Errors: make(map[string]string, len(r.Errors)+len(other.Errors))}
	for k, v := range r.Errors {
		out.Errors[k] = v
	}
	for k, v := range other.Errors {
		if _, ok := out.Errors[k]; !ok {
			out.Errors[k] = v
		}
	}
	if len(out.Errors) > 0 {
		out.Valid = false
	}
	return out
}

// Func is a field or form validator. An empty message means valid.
type Func func(ctx context.Context, c Context) (string, error)

// FormErrors is what a FormFunc reports: an optional whole-form message and
// per-field messages keyed by path.
type FormErrors struct {
	Form   string
	Fields map[string]string
}

// FormFunc validates the whole form and may attribute errors to fields.
type FormFunc func(ctx context.Context, c Context) (FormErrors, error)

// SafeParser is the convention of the schema package.
type SafeParser interface {
	SafeParse(ctx context.Context, v any) schema.ParseResult
}

// Kind tags the detected validator family.
type Kind int

const (
	KindUnsupported Kind = iota
	KindFunc
	KindFormFunc
	KindStandard
	KindSafeParse
	KindTags
	KindJSONSchema
	KindLua
)

func (k Kind) String() string {
	switch k {
	case KindFunc:
		return "func"
	case KindFormFunc:
		return "form_func"
	case KindStandard:
		return "standard"
	case KindSafeParse:
		return "safe_parse"
	case KindTags:
		return "tags"
	case KindJSONSchema:
		return "json_schema"
	case KindLua:
		return "lua"
	}
	return "unsupported"
}

// Detect classifies v. Order matters: the first matching family wins.
func Detect(v any) Kind {
	switch t := v.(type) {
	case nil:
		return KindUnsupported
	case Func, func(context.Context, Context) (string, error):
		return KindFunc
	case FormFunc, func(context.Context, Context) (FormErrors, error):
		return KindFormFunc
	case StandardSchema:
		return KindStandard
	case SafeParser:
		return KindSafeParse
	case Tags, TagRules:
		return KindTags
	case *sjs.Schema:
		if t != nil {
			return KindJSONSchema
		}
	case *LuaScript:
		if t != nil && t.proto != nil {
			return KindLua
		}
	}
	return KindUnsupported
}

// Run executes validator against c and normalizes the outcome.
func Run(ctx context.Context, validator any, c Context) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = failure(c, fmt.Errorf("panic: %v", r))
		}
	}()
	if ctx == nil {
		ctx = context.Background()
	}
	switch Detect(validator) {
	case KindFunc:
		return runFunc(ctx, asFunc(validator), c)
	case KindFormFunc:
		return runFormFunc(ctx, asFormFunc(validator), c)
	case KindStandard:
		return runStandard(ctx, validator.(StandardSchema), c)
	case KindSafeParse:
		return runSafeParse(ctx, validator.(SafeParser), c)
	case KindTags:
		return runTags(ctx, validator, c)
	case KindJSONSchema:
		return runJSONSchema(validator.(*sjs.Schema), c)
	case KindLua:
		return runLua(ctx, validator.(*LuaScript), c)
	}
	return Result{Valid: false, Errors: map[string]string{FormKey: i18n.T("unsupported_schema", nil)}}
}

func asFunc(v any) Func {
	if f, ok := v.(Func); ok {
		return f
	}
	return v.(func(context.Context, Context) (string, error))
}

func asFormFunc(v any) FormFunc {
	if f, ok := v.(FormFunc); ok {
		return f
	}
	return v.(func(context.Context, Context) (FormErrors, error))
}

// failure turns an error raised by a validator into a message at the
// scope's target.
func failure(c Context, err error) Result {
	return Result{Valid: false, Errors: map[string]string{
		c.target(): i18n.T("validator_error", map[string]string{"cause": err.Error()}),
	}}
}

func fromMap(errs map[string]string) Result {
	if len(errs) == 0 {
		return Ok()
	}
	return Result{Valid: false, Errors: errs}
}

// put records msg at key unless a message is already there.
func put(errs map[string]string, key, msg string) {
	if msg == "" {
		return
	}
	if _, ok := errs[key]; !ok {
		errs[key] = msg
	}
}

func runFunc(ctx context.Context, fn Func, c Context) Result {
	if fn == nil {
		return Ok()
	}
	msg, err := fn(ctx, c)
	if err != nil {
		return failure(c, err)
	}
	if msg == "" {
		return Ok()
	}
	return Result{Valid: false, Errors: map[string]string{c.target(): msg}}
}

func runFormFunc(ctx context.Context, fn FormFunc, c Context) Result {
	if fn == nil {
		return Ok()
	}
	fe, err := fn(ctx, c)
	if err != nil {
		return failure(c, err)
	}
	errs := map[string]string{}
	for k, v := range fe.Fields {
		put(errs, c.at(k), v)
	}
	put(errs, c.target(), fe.Form)
	return fromMap(errs)
}

func runSafeParse(ctx context.Context, p SafeParser, c Context) Result {
	pr := p.SafeParse(ctx, c.Subject())
	if pr.Success {
		return Ok()
	}
	errs := map[string]string{}
	for _, is := range pr.Error {
		put(errs, c.at(fieldpath.FromPointer(is.Path)), is.Message)
	}
	if len(errs) == 0 {
		errs[c.target()] = i18n.T("invalid", nil)
	}
	return Result{Valid: false, Errors: errs}
}
