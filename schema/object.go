package schema

import (
	"context"
	"sort"

	js "github.com/reoring/formskema/jsonschema"
)

type objRefine struct {
	name string
	fn   func(context.Context, map[string]any) error
}

// ObjectBuilder assembles an ObjectSchema.
type ObjectBuilder struct {
	fields   map[string]Schema
	required map[string]struct{}
	refines  []objRefine
	msgs     map[string]string
}

// FieldStep is returned by Field so the field can be marked required inline.
type FieldStep struct {
	b    *ObjectBuilder
	name string
}

// Object creates a new object builder. Keys without a field schema are passed
// through untouched.
func Object() *ObjectBuilder {
	return &ObjectBuilder{
		fields:   map[string]Schema{},
		required: map[string]struct{}{},
		msgs:     map[string]string{},
	}
}

// Field registers a field schema.
func (b *ObjectBuilder) Field(name string, s Schema) *FieldStep {
	b.fields[name] = s
	return &FieldStep{b: b, name: name}
}

// Required marks the field as required and returns the builder.
func (f *FieldStep) Required(msg ...string) *ObjectBuilder {
	f.b.required[f.name] = struct{}{}
	if m := firstMsg(msg); m != "" {
		f.b.msgs[f.name] = m
	}
	return f.b
}

// Optional marks the field as optional (default) and returns the builder.
func (f *FieldStep) Optional() *ObjectBuilder {
	delete(f.b.required, f.name)
	return f.b
}

func (f *FieldStep) Field(name string, s Schema) *FieldStep { return f.b.Field(name, s) }
func (f *FieldStep) Require(names ...string) *ObjectBuilder  { return f.b.Require(names...) }
func (f *FieldStep) Refine(name string, fn func(context.Context, map[string]any) error) *ObjectBuilder {
	return f.b.Refine(name, fn)
}
func (f *FieldStep) Build() (*ObjectSchema, error) { return f.b.Build() }
func (f *FieldStep) MustBuild() *ObjectSchema      { return f.b.MustBuild() }

// Require marks one or more fields as required.
func (b *ObjectBuilder) Require(names ...string) *ObjectBuilder {
	for _, n := range names {
		b.required[n] = struct{}{}
	}
	return b
}

// Refine adds an object-level check. It runs only after every field parsed
// successfully, in registration order.
func (b *ObjectBuilder) Refine(name string, fn func(context.Context, map[string]any) error) *ObjectBuilder {
	if fn == nil {
		return b
	}
	b.refines = append(b.refines, objRefine{name: name, fn: fn})
	return b
}

// Build validates the builder and returns the schema.
func (b *ObjectBuilder) Build() (*ObjectSchema, error) {
	var iss Issues
	for n := range b.required {
		if n == "" {
			iss = append(iss, Issue{Path: "/", Code: CodeParseError, Message: message(CodeParseError, "", nil)})
		}
	}
	if len(iss) > 0 {
		return nil, iss
	}
	keys := make([]string, 0, len(b.fields)+len(b.required))
	seen := map[string]struct{}{}
	for k := range b.fields {
		keys = append(keys, k)
		seen[k] = struct{}{}
	}
	for k := range b.required {
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return &ObjectSchema{
		fields:     b.fields,
		required:   b.required,
		refines:    b.refines,
		msgs:       b.msgs,
		sortedKeys: keys,
	}, nil
}

// MustBuild is Build that panics on error.
func (b *ObjectBuilder) MustBuild() *ObjectSchema {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

// ObjectSchema validates map[string]any values field by field.
type ObjectSchema struct {
	fields     map[string]Schema
	required   map[string]struct{}
	refines    []objRefine
	msgs       map[string]string
	sortedKeys []string
}

// Shape returns the field schemas keyed by name.
func (o *ObjectSchema) Shape() map[string]Schema {
	out := make(map[string]Schema, len(o.fields))
	for k, v := range o.fields {
		out[k] = v
	}
	return out
}

func (o *ObjectSchema) Parse(ctx context.Context, v any) (any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, Issues{rootIssue(CodeInvalidType, "", "expected", "object")}
	}
	out := make(map[string]any, len(m))
	for k, val := range m {
		out[k] = val
	}
	var iss Issues
	for _, name := range o.sortedKeys {
		val, present := m[name]
		if val == nil {
			present = false
		}
		path := Root().Field(name)
		if !present {
			if _, req := o.required[name]; req {
				is := path.Issue(CodeRequired, "")
				is.Message = message(CodeRequired, o.msgs[name], nil)
				iss = append(iss, is)
			}
			continue
		}
		fs, ok := o.fields[name]
		if !ok {
			continue
		}
		pv, err := fs.Parse(ctx, val)
		if err != nil {
			iss = append(iss, rebase(path.Pointer(), issuesFromErr("/", err))...)
			continue
		}
		out[name] = pv
	}
	if len(iss) > 0 {
		return nil, iss
	}
	for _, r := range o.refines {
		if err := r.fn(ctx, out); err != nil {
			iss = append(iss, issuesFromErr("/", err)...)
		}
	}
	if len(iss) > 0 {
		return nil, iss
	}
	return out, nil
}

func (o *ObjectSchema) SafeParse(ctx context.Context, v any) ParseResult { return safeParse(ctx, o, v) }

func (o *ObjectSchema) JSONSchema() *js.Schema {
	out := &js.Schema{Type: "object", Properties: map[string]*js.Schema{}}
	for name, fs := range o.fields {
		out.Properties[name] = fs.JSONSchema()
	}
	for _, name := range o.sortedKeys {
		if _, ok := o.required[name]; ok {
			out.Required = append(out.Required, name)
		}
	}
	return out
}
