// Package rules provides cross-field form rules. Every helper returns a
// validate.FormFunc, so rules plug into any form-level validator slot and
// compose with All, Any and If(...).Then(...).
//
// Paths are canonical form paths ("items", "items[0].sku").
package rules

import (
	"context"
	"fmt"
	"reflect"

	"github.com/reoring/formskema/fieldpath"
	"github.com/reoring/formskema/i18n"
	"github.com/reoring/formskema/validate"
)

// Rule is a form-level validator.
type Rule = validate.FormFunc

// Op defines simple comparison operators for If(...).Then(...)
type Op int

const (
	Eq Op = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

// Conditional composes conditional execution of rules.
type Conditional struct {
	path string
	op   Op
	want any
	all  []Conditional // composite AND
	any  []Conditional // composite OR
}

// If builds a conditional that compares the value at path with want.
// A missing path never satisfies the condition.
func If(path string, op Op, want any) Conditional {
	return Conditional{path: fieldpath.Canonical(path), op: op, want: want}
}

// IfAll builds a conditional that requires all conditions to hold.
func IfAll(conds ...Conditional) Conditional { return Conditional{all: conds} }

// IfAny builds a conditional that requires any condition to hold.
func IfAny(conds ...Conditional) Conditional { return Conditional{any: conds} }

// And combines the receiver with additional conditions using logical AND.
func (c Conditional) And(others ...Conditional) Conditional {
	return IfAll(append([]Conditional{c}, others...)...)
}

// Or combines the receiver with additional conditions using logical OR.
func (c Conditional) Or(others ...Conditional) Conditional {
	return IfAny(append([]Conditional{c}, others...)...)
}

// Holds evaluates the condition against values.
func (c Conditional) Holds(values map[string]any) bool {
	if len(c.all) > 0 {
		for _, it := range c.all {
			if !it.Holds(values) {
				return false
			}
		}
		return true
	}
	if len(c.any) > 0 {
		for _, it := range c.any {
			if it.Holds(values) {
				return true
			}
		}
		return false
	}
	cur, ok := fieldpath.Get(values, c.path)
	if !ok {
		return false
	}
	return compare(cur, c.op, c.want)
}

// Then runs rules only when the condition holds.
func (c Conditional) Then(rules ...Rule) Rule {
	inner := All(rules...)
	return func(ctx context.Context, vc validate.Context) (validate.FormErrors, error) {
		if !c.Holds(vc.Values) {
			return validate.FormErrors{}, nil
		}
		return inner(ctx, vc)
	}
}

// Required reports a required error at each path that is missing, nil or "".
func Required(paths ...string) Rule {
	ps := canonicalAll(paths)
	return func(_ context.Context, vc validate.Context) (validate.FormErrors, error) {
		fe := validate.FormErrors{}
		for _, p := range ps {
			v, ok := fieldpath.Get(vc.Values, p)
			if !ok || v == nil || v == "" {
				fe = addField(fe, p, i18n.T("required", nil))
			}
		}
		return fe, nil
	}
}

// AtLeastOne ensures the array at path has at least one element. A missing
// array counts as empty.
func AtLeastOne(path string, msg ...string) Rule {
	p := fieldpath.Canonical(path)
	return func(_ context.Context, vc validate.Context) (validate.FormErrors, error) {
		v, _ := fieldpath.Get(vc.Values, p)
		if v == nil || lenOf(v) == 0 {
			return addField(validate.FormErrors{}, p, pick(msg, i18n.T("too_few_items", map[string]string{"min": "1"}))), nil
		}
		return validate.FormErrors{}, nil
	}
}

// UniqueBy ensures elements of the array at path have distinct values at
// keyPath (relative to each element; "" compares the elements themselves).
// Duplicates are reported at the later element's key. Elements without the
// key are skipped.
// Note: keys are compared by their printed form, so 1 and "1" collide. Keep
// the key a single type.
func UniqueBy(path, keyPath string, msg ...string) Rule {
	p := fieldpath.Canonical(path)
	kp := fieldpath.Canonical(keyPath)
	return func(_ context.Context, vc validate.Context) (validate.FormErrors, error) {
		fe := validate.FormErrors{}
		v, _ := fieldpath.Get(vc.Values, p)
		arr, ok := v.([]any)
		if !ok {
			return fe, nil
		}
		seen := map[string]int{}
		for i, elem := range arr {
			kv, ok := fieldpath.Get(elem, kp)
			if !ok || kv == nil {
				continue
			}
			key := fmt.Sprint(kv)
			if _, dup := seen[key]; dup {
				at := fieldpath.Index(p, i)
				if kp != "" {
					at = fieldpath.Join(at, kp)
				}
				fe = addField(fe, at, pick(msg, i18n.T("uniqueness", nil)))
				continue
			}
			seen[key] = i
		}
		return fe, nil
	}
}

// Matches ensures the value at path equals the value at other, the
// "confirm password" rule. The error lands on path.
func Matches(path, other string, msg ...string) Rule {
	p, o := fieldpath.Canonical(path), fieldpath.Canonical(other)
	return func(_ context.Context, vc validate.Context) (validate.FormErrors, error) {
		a, _ := fieldpath.Get(vc.Values, p)
		b, _ := fieldpath.Get(vc.Values, o)
		if reflect.DeepEqual(a, b) {
			return validate.FormErrors{}, nil
		}
		return addField(validate.FormErrors{}, p, pick(msg, i18n.T("mismatch", map[string]string{"other": o}))), nil
	}
}

// Check wraps a predicate over the form values. When ok is false, msg is
// reported at path, or as the form-level message when path is "".
func Check(path string, ok func(values map[string]any) bool, msg string) Rule {
	p := fieldpath.Canonical(path)
	return func(_ context.Context, vc validate.Context) (validate.FormErrors, error) {
		if ok == nil || ok(vc.Values) {
			return validate.FormErrors{}, nil
		}
		if p == "" {
			return validate.FormErrors{Form: msg}, nil
		}
		return addField(validate.FormErrors{}, p, msg), nil
	}
}

// ---------- Rule combinators ----------

// All executes every rule and merges their errors; the first message for a
// path wins. An error from a rule aborts the run.
func All(rules ...Rule) Rule {
	return func(ctx context.Context, vc validate.Context) (validate.FormErrors, error) {
		out := validate.FormErrors{}
		for _, r := range rules {
			if r == nil {
				continue
			}
			fe, err := r(ctx, vc)
			if err != nil {
				return validate.FormErrors{}, err
			}
			if out.Form == "" {
				out.Form = fe.Form
			}
			for k, v := range fe.Fields {
				out = addField(out, k, v)
			}
		}
		return out, nil
	}
}

// Any succeeds if any rule reports nothing. When all fail, the branch with
// the fewest errors is returned.
func Any(rules ...Rule) Rule {
	return func(ctx context.Context, vc validate.Context) (validate.FormErrors, error) {
		var best validate.FormErrors
		bestSet := false
		for _, r := range rules {
			if r == nil {
				continue
			}
			fe, err := r(ctx, vc)
			if err != nil {
				return validate.FormErrors{}, err
			}
			if count(fe) == 0 {
				return validate.FormErrors{}, nil
			}
			if !bestSet || count(fe) < count(best) {
				best, bestSet = fe, true
			}
		}
		return best, nil
	}
}

// ------- helpers -------

func addField(fe validate.FormErrors, path, msg string) validate.FormErrors {
	if msg == "" {
		return fe
	}
	if fe.Fields == nil {
		fe.Fields = map[string]string{}
	}
	if _, ok := fe.Fields[path]; !ok {
		fe.Fields[path] = msg
	}
	return fe
}

func count(fe validate.FormErrors) int {
	n := len(fe.Fields)
	if fe.Form != "" {
		n++
	}
	return n
}

func pick(msg []string, fallback string) string {
	if len(msg) > 0 && msg[0] != "" {
		return msg[0]
	}
	return fallback
}

func canonicalAll(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = fieldpath.Canonical(p)
	}
	return out
}

func lenOf(v any) int {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return rv.Len()
	}
	return -1
}

func compare(cur any, op Op, want any) bool {
	switch op {
	case Eq:
		return equal(cur, want)
	case Ne:
		return !equal(cur, want)
	case Lt, Le, Gt, Ge:
		return compareOrdered(cur, op, want)
	default:
		return false
	}
}

// equal treats numbers of different Go types as equal when their values
// are, since form input yields float64 where callers write int literals.
func equal(a, b any) bool {
	x, okA := toFloat64(a)
	y, okB := toFloat64(b)
	if okA && okB {
		return x == y
	}
	return reflect.DeepEqual(a, b)
}

func compareOrdered(cur any, op Op, want any) bool {
	a, okA := toFloat64(cur)
	b, okB := toFloat64(want)
	if !okA || !okB {
		return false
	}
	switch op {
	case Lt:
		return a < b
	case Le:
		return a <= b
	case Gt:
		return a > b
	case Ge:
		return a >= b
	}
	return false
}

func toFloat64(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
