package formskema

import (
	"strconv"
	"strings"

	"github.com/reoring/formskema/fieldpath"
)

// InputEvent is the part of a UI input event the store needs: the input
// type ("text", "checkbox", "number", ...), its raw value and checked flag.
type InputEvent struct {
	Type    string
	Value   any
	Checked bool
}

// Binding ties one input to a path.
type Binding struct {
	// Name is the canonical path.
	Name string
	// Value is the value at Name when the binding was created.
	Value any
	// OnChange coerces the event and writes the value.
	OnChange func(InputEvent)
	// OnBlur marks the field touched and runs blur validators.
	OnBlur func()
}

// Register marks path as a form field and returns its input binding.
// Registered fields are touched and validated on submit.
func (f *Form) Register(path string) Binding {
	p := fieldpath.Canonical(path)
	f.mu.Lock()
	if !f.closed {
		f.registered[p] = struct{}{}
	}
	v, _ := fieldpath.Get(f.state.Values, p)
	f.mu.Unlock()
	return Binding{
		Name:     p,
		Value:    v,
		OnChange: func(ev InputEvent) { f.SetValue(p, Coerce(ev)) },
		OnBlur:   func() { f.Blur(p) },
	}
}

// Coerce turns a raw input event into a typed value: checkboxes yield bool,
// number and range inputs yield float64 or nil when empty or unparsable, and
// anything else passes through.
func Coerce(ev InputEvent) any {
	switch strings.ToLower(ev.Type) {
	case "checkbox":
		return ev.Checked
	case "number", "range":
		return toNumber(ev.Value)
	}
	return ev.Value
}

func toNumber(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return f
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case int32:
		return float64(t)
	}
	return nil
}
