package formskema

import (
	"sync"

	"github.com/reoring/formskema/fieldpath"
)

// Selection is a live view of a slice of form state. onChange fires only
// when the selected value differs from the previous one under the equality
// function.
type Selection[T any] struct {
	mu     sync.Mutex
	value  T
	cancel func()
}

// Value returns the latest selected value.
func (s *Selection[T]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Close stops the selection. It is idempotent.
func (s *Selection[T]) Close() { s.cancel() }

type selectConfig[T any] struct {
	equal func(a, b T) bool
}

// SelectOption configures Select.
type SelectOption[T any] func(*selectConfig[T])

// WithEqual replaces the default reference equality.
func WithEqual[T any](eq func(a, b T) bool) SelectOption[T] {
	return func(c *selectConfig[T]) {
		if eq != nil {
			c.equal = eq
		}
	}
}

// ShallowEqual compares slices and maps element by element using reference
// equality, and other values with ==. Use it with WithEqual for selectors
// that build a fresh array or object on every call.
func ShallowEqual[T any](a, b T) bool { return fieldpath.ShallowEqual(a, b) }

// Select observes selector(state). selector must be pure and must not call
// into the form. The default equality is reference
// identity: maps and slices are equal only when they are the same instance,
// which copy-on-write updates guarantee for untouched subtrees.
func Select[T any](f *Form, selector func(State) T, onChange func(T), opts ...SelectOption[T]) *Selection[T] {
	cfg := selectConfig[T]{equal: func(a, b T) bool { return fieldpath.SameRef(a, b) }}
	for _, o := range opts {
		if o != nil {
			o(&cfg)
		}
	}
	sel := &Selection[T]{}
	var once sync.Once
	unsubscribe := f.subscribe(func(s State) {
		v := selector(s)
		sel.mu.Lock()
		if cfg.equal(sel.value, v) {
			sel.mu.Unlock()
			return
		}
		sel.value = v
		sel.mu.Unlock()
		if onChange != nil {
			onChange(v)
		}
	}, func(s State) { sel.value = selector(s) })
	sel.cancel = func() { once.Do(unsubscribe) }
	return sel
}

// WatchField observes the value, error and touched flag of one path. It
// does not fire when unrelated paths change.
func WatchField(f *Form, path string, onChange func(FieldState)) *Selection[FieldState] {
	p := fieldpath.Canonical(path)
	return Select(f, func(s State) FieldState { return s.Field(p) }, onChange, WithEqual(equalFieldState))
}

func equalFieldState(a, b FieldState) bool {
	return a.Error == b.Error && a.Touched == b.Touched && fieldpath.SameRef(a.Value, b.Value)
}
