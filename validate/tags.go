package validate

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/reoring/formskema/fieldpath"
	"github.com/reoring/formskema/i18n"
)

// Tags is a go-playground/validator tag expression applied to a single value,
// e.g. "required,email" or "gte=0,lte=130".
type Tags string

// TagRules maps field paths to tag expressions (or nested TagRules) and is
// applied to a map value, typically the whole form.
type TagRules map[string]any

var (
	tagOnce sync.Once
	tagV    *validator.Validate
)

// tagValidator returns the shared validator instance. validator.Validate
// caches parsed tags and is safe for concurrent use.
func tagValidator() *validator.Validate {
	tagOnce.Do(func() { tagV = validator.New() })
	return tagV
}

func runTags(ctx context.Context, v any, c Context) Result {
	switch t := v.(type) {
	case Tags:
		err := tagValidator().VarCtx(ctx, fieldpath.Normalize(c.Subject()), string(t))
		return fromTagError(c, "", err)
	case TagRules:
		m, ok := c.Subject().(map[string]any)
		if !ok {
			return Result{Valid: false, Errors: map[string]string{
				c.target(): i18n.T("invalid_type", map[string]string{"expected": "object"}),
			}}
		}
		out := tagValidator().ValidateMapCtx(ctx, m, toRuleMap(t))
		errs := map[string]string{}
		flattenMapErrors(c, "", out, errs)
		return fromMap(errs)
	}
	return Ok()
}

func toRuleMap(r TagRules) map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		switch t := v.(type) {
		case TagRules:
			out[k] = toRuleMap(t)
		case map[string]any:
			out[k] = toRuleMap(TagRules(t))
		case Tags:
			out[k] = string(t)
		default:
			out[k] = v
		}
	}
	return out
}

// flattenMapErrors walks the nested result of ValidateMap. Keys are visited in
// order so the first message per path is deterministic.
func flattenMapErrors(c Context, base string, res map[string]any, errs map[string]string) {
	keys := make([]string, 0, len(res))
	for k := range res {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		path := fieldpath.Join(base, k)
		switch t := res[k].(type) {
		case map[string]any:
			flattenMapErrors(c, path, t, errs)
		case error:
			r := fromTagError(c, path, t)
			for p, m := range r.Errors {
				put(errs, p, m)
			}
		}
	}
}

func fromTagError(c Context, rel string, err error) Result {
	if err == nil {
		return Ok()
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return failure(c, err)
	}
	errs := map[string]string{}
	for _, fe := range ves {
		put(errs, c.at(rel), tagMessage(fe))
	}
	return fromMap(errs)
}

// tagMessage maps a failed tag onto the shared message catalog.
func tagMessage(fe validator.FieldError) string {
	p := fe.Param()
	switch fe.Tag() {
	case "required", "required_if", "required_with", "required_without":
		return i18n.T("required", nil)
	case "min", "gte":
		return i18n.T(sizeCode(fe.Kind(), "too_short", "too_few_items", "too_small"), map[string]string{"min": p})
	case "max", "lte":
		return i18n.T(sizeCode(fe.Kind(), "too_long", "too_many_items", "too_big"), map[string]string{"max": p})
	case "gt":
		return i18n.T("too_small", map[string]string{"min": p})
	case "lt":
		return i18n.T("too_big", map[string]string{"max": p})
	case "email", "url", "uri", "uuid", "hostname", "ip", "ipv4", "ipv6", "datetime":
		return i18n.T("invalid_format", map[string]string{"format": fe.Tag()})
	case "oneof":
		return i18n.T("invalid_enum", map[string]string{"options": p})
	case "eqfield", "eqcsfield":
		return i18n.T("mismatch", map[string]string{"other": p})
	case "unique":
		return i18n.T("uniqueness", nil)
	case "number", "numeric", "alphanum", "alpha":
		return i18n.T("pattern", nil)
	}
	return i18n.T("validator_error", map[string]string{"cause": fe.Tag()})
}

func sizeCode(k reflect.Kind, str, list, num string) string {
	switch k {
	case reflect.String:
		return str
	case reflect.Slice, reflect.Array, reflect.Map:
		return list
	}
	return num
}
