package formdef

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"time"

	formskema "github.com/reoring/formskema"
	"github.com/reoring/formskema/fieldpath"
	"github.com/reoring/formskema/rules"
	"github.com/reoring/formskema/schema"
	"github.com/reoring/formskema/validate"
)

var ops = map[string]rules.Op{"": rules.Eq, "eq": rules.Eq, "ne": rules.Ne, "lt": rules.Lt, "le": rules.Le, "gt": rules.Gt, "ge": rules.Ge}

// Schema builds the object schema of the definition's fields.
func (d *Definition) Schema() (*schema.ObjectSchema, error) {
	return objectOf(d.Fields)
}

// Options compiles the definition. The object schema, rules, form-level
// Lua script and JSON Schema are folded into Options.Schema; tag and Lua
// field validators go to Options.FieldValidators.
func (d *Definition) Options() (formskema.Options, error) {
	obj, err := d.Schema()
	if err != nil {
		return formskema.Options{}, err
	}
	formVals := []any{obj}
	if len(d.Rules) > 0 {
		rs := make([]rules.Rule, 0, len(d.Rules))
		for _, r := range d.Rules {
			rs = append(rs, r.rule())
		}
		formVals = append(formVals, rules.All(rs...))
	}
	if d.Lua != "" {
		script, err := validate.CompileLua(nameOr(d.Name, "form")+".lua", d.Lua)
		if err != nil {
			return formskema.Options{}, err
		}
		formVals = append(formVals, script)
	}
	if len(d.JSONSchema) > 0 {
		sch, err := validate.CompileJSONSchema(nameOr(d.Name, "form")+".json", string(d.JSONSchema))
		if err != nil {
			return formskema.Options{}, fmt.Errorf("json_schema: %w", err)
		}
		formVals = append(formVals, sch)
	}

	fieldVals := map[string]*formskema.ValidatorConfig{}
	if err := collectFieldValidators("", d.Fields, time.Duration(d.Debounce), fieldVals); err != nil {
		return formskema.Options{}, err
	}

	opts := formskema.Options{
		DefaultValues:   d.Defaults,
		ValidateOn:      formskema.ValidateOn(d.ValidateOn),
		FieldValidators: fieldVals,
	}
	if len(formVals) == 1 {
		opts.Schema = obj
	} else {
		opts.Schema = combine(formVals...)
	}
	return opts, nil
}

// New builds a form from the definition.
func (d *Definition) New() (*formskema.Form, error) {
	opts, err := d.Options()
	if err != nil {
		return nil, err
	}
	return formskema.New(opts), nil
}

func objectOf(fields []Field) (*schema.ObjectSchema, error) {
	b := schema.Object()
	var errs []error
	for _, f := range fields {
		s, err := f.schema()
		if err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", f.Name, err))
			continue
		}
		step := b.Field(f.Name, s)
		if f.Required {
			step.Required(f.Message)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return b.Build()
}

func (f Field) schema() (schema.Schema, error) {
	switch f.Type {
	case "", "string":
		s := schema.String()
		if f.Trim {
			s.Trim()
		}
		if f.Required {
			s.NonEmpty(f.Message)
		} else {
			s.Optional()
		}
		if f.Min != nil {
			s.Min(int(*f.Min))
		}
		if f.Max != nil {
			s.Max(int(*f.Max))
		}
		if f.Pattern != "" {
			re, err := regexp.Compile(f.Pattern)
			if err != nil {
				return nil, fmt.Errorf("pattern: %w", err)
			}
			s.Pattern(re)
		}
		switch f.Format {
		case "":
		case "email":
			s.Email()
		default:
			return nil, fmt.Errorf("unknown format %q", f.Format)
		}
		return s, nil
	case "number", "integer":
		s := schema.Number().Coerce()
		if f.Type == "integer" {
			s.Int()
		}
		if f.Min != nil {
			s.Min(*f.Min)
		}
		if f.Max != nil {
			s.Max(*f.Max)
		}
		return s, nil
	case "boolean":
		s := schema.Bool()
		if f.Required {
			s.True(f.Message)
		}
		return s, nil
	case "enum":
		s := schema.Enum(f.Options...)
		if f.Message != "" {
			s.Message(f.Message)
		}
		return s, nil
	case "array":
		if f.Items == nil {
			return nil, errors.New("array needs items")
		}
		elem, err := f.Items.schema()
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		s := schema.Array(elem)
		if f.Min != nil {
			s.Min(int(*f.Min))
		}
		if f.Max != nil {
			s.Max(int(*f.Max))
		}
		return s, nil
	case "object":
		return objectOf(f.Fields)
	}
	return nil, fmt.Errorf("unknown type %q", f.Type)
}

// collectFieldValidators walks object fields; array items are not
// addressable by a fixed path and get no field validators.
func collectFieldValidators(prefix string, fields []Field, debounce time.Duration, out map[string]*formskema.ValidatorConfig) error {
	for _, f := range fields {
		path := fieldpath.Join(prefix, f.Name)
		if f.Type == "object" {
			if err := collectFieldValidators(path, f.Fields, debounce, out); err != nil {
				return err
			}
		}
		var vals []any
		if f.Tags != "" {
			vals = append(vals, validate.Tags(f.Tags))
		}
		if f.Lua != "" {
			script, err := validate.CompileLua(path+".lua", f.Lua)
			if err != nil {
				return err
			}
			vals = append(vals, script)
		}
		if len(vals) == 0 {
			continue
		}
		v := vals[0]
		if len(vals) > 1 {
			v = chain(vals...)
		}
		cfg := &formskema.ValidatorConfig{AsyncDebounce: debounce}
		if f.Debounce != 0 {
			cfg.AsyncDebounce = time.Duration(f.Debounce)
		}
		slot(cfg, f.On, f.Async, v)
		out[path] = cfg
	}
	return nil
}

func slot(cfg *formskema.ValidatorConfig, on string, async bool, v any) {
	switch {
	case on == "blur" && async:
		cfg.OnBlurAsync = v
	case on == "blur":
		cfg.OnBlur = v
	case on == "submit" && async:
		cfg.OnSubmitAsync = v
	case on == "submit":
		cfg.OnSubmit = v
	case async:
		cfg.OnChangeAsync = v
	default:
		cfg.OnChange = v
	}
}

func (r Rule) rule() rules.Rule {
	switch {
	case r.AtLeastOne != "":
		return rules.AtLeastOne(r.AtLeastOne, r.Message)
	case r.UniqueBy != nil:
		return rules.UniqueBy(r.UniqueBy.Path, r.UniqueBy.Key, r.Message)
	case r.Matches != nil:
		return rules.Matches(r.Matches.Path, r.Matches.Other, r.Message)
	case r.RequiredIf != nil:
		req := rules.Required(r.RequiredIf.Then...)
		if r.Message != "" {
			msg := r.Message
			var checks []rules.Rule
			for _, p := range r.RequiredIf.Then {
				checks = append(checks, rules.Check(p, func(values map[string]any) bool {
					v, ok := fieldpath.Get(values, p)
					return ok && v != nil && v != ""
				}, msg))
			}
			req = rules.All(checks...)
		}
		return rules.If(r.RequiredIf.Path, ops[r.RequiredIf.Op], r.RequiredIf.Value).Then(req)
	}
	return nil
}

// chain runs field validators in order and reports the first message.
func chain(vals ...any) validate.Func {
	return func(ctx context.Context, c validate.Context) (string, error) {
		for _, v := range vals {
			res := validate.Run(ctx, v, c)
			if res.Valid {
				continue
			}
			if msg, ok := res.Errors[c.FieldName]; ok {
				return msg, nil
			}
			if keys := slices.Sorted(maps.Keys(res.Errors)); len(keys) > 0 {
				return res.Errors[keys[0]], nil
			}
		}
		return "", nil
	}
}

// combine runs form validators in order and merges their errors; earlier
// validators win on the same path.
func combine(vals ...any) validate.FormFunc {
	return func(ctx context.Context, c validate.Context) (validate.FormErrors, error) {
		res := validate.Ok()
		for _, v := range vals {
			res = res.Merge(validate.Run(ctx, v, c))
		}
		fe := validate.FormErrors{Form: res.Errors[validate.FormKey]}
		for k, msg := range res.Errors {
			if k == validate.FormKey {
				continue
			}
			if fe.Fields == nil {
				fe.Fields = map[string]string{}
			}
			fe.Fields[k] = msg
		}
		return fe, nil
	}
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
