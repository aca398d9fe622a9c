package formskema

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/reoring/formskema/fieldpath"
)

// State is an immutable snapshot of a form. Every transition produces a new
// State whose maps are fresh copies when they changed, so snapshots handed to
// subscribers can be compared by reference and are never mutated later.
type State struct {
	// ID identifies the form instance.
	ID string
	// Values is the current value tree (map[string]any / []any / scalars).
	Values map[string]any
	// Errors maps canonical paths (e.g. "employees[0].name") to messages.
	// Form-level messages use the key "form".
	Errors map[string]string
	// Touched is set on blur and on submit for registered fields.
	Touched map[string]bool
	// Validating marks paths with an async validation scheduled or running.
	Validating map[string]bool

	IsSubmitting bool
	// IsValid is true iff the last full validation produced no errors.
	IsValid bool
	// IsDirty is true iff Values differs structurally from the initial values.
	IsDirty bool
	// SubmitCount counts submit attempts since creation or the last reset.
	SubmitCount int
}

// FieldState is the per-field slice of State observed by WatchField.
type FieldState struct {
	Value   any
	Error   string
	Touched bool
}

// Field derives the FieldState of path.
func (s State) Field(path string) FieldState {
	p := fieldpath.Canonical(path)
	v, _ := fieldpath.Get(s.Values, p)
	return FieldState{Value: v, Error: s.Errors[p], Touched: s.Touched[p]}
}

// HasErrors reports whether any error is recorded.
func (s State) HasErrors() bool { return len(s.Errors) > 0 }

func isDirty(values, initial map[string]any) bool {
	return !cmp.Equal(values, initial, cmpopts.EquateEmpty())
}

// withKey returns a copy of m with k set to v.
func withKey[V any](m map[string]V, k string, v V) map[string]V {
	out := make(map[string]V, len(m)+1)
	for key, val := range m {
		out[key] = val
	}
	out[k] = v
	return out
}

// withoutPrefix returns m without the keys at or beneath any of prefixes.
// m itself is returned when nothing matches.
func withoutPrefix[V any](m map[string]V, prefixes ...string) map[string]V {
	hit := false
	for k := range m {
		if underAny(k, prefixes) {
			hit = true
			break
		}
	}
	if !hit {
		return m
	}
	out := make(map[string]V, len(m))
	for k, v := range m {
		if !underAny(k, prefixes) {
			out[k] = v
		}
	}
	return out
}

func underAny(k string, prefixes []string) bool {
	for _, p := range prefixes {
		if k == p || (p != "" && p != formKey && fieldpath.HasPrefix(k, p)) {
			return true
		}
	}
	return false
}

// mergeErrors returns errs with add laid over it, or errs when add is empty.
func mergeErrors(errs, add map[string]string) map[string]string {
	if len(add) == 0 {
		return errs
	}
	out := make(map[string]string, len(errs)+len(add))
	for k, v := range errs {
		out[k] = v
	}
	for k, v := range add {
		out[k] = v
	}
	return out
}

// scoped keeps the entries of errs that belong to path or to the form.
func scoped(errs map[string]string, path string) map[string]string {
	out := map[string]string{}
	for k, v := range errs {
		if k == formKey || fieldpath.HasPrefix(k, path) {
			out[k] = v
		}
	}
	return out
}

// withoutKey returns a copy of m without k.
func withoutKey[V any](m map[string]V, k string) map[string]V {
	out := make(map[string]V, len(m))
	for key, val := range m {
		if key != k {
			out[key] = val
		}
	}
	return out
}
