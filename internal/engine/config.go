package engine

import "time"

// EventType is the lifecycle event that triggered a validation.
type EventType string

const (
	Change EventType = "change"
	Blur   EventType = "blur"
	Submit EventType = "submit"
)

// Event selects a validator slot: the lifecycle event plus sync or async.
type Event struct {
	Type  EventType
	Async bool
}

func (e Event) String() string {
	if e.Async {
		return string(e.Type) + "_async"
	}
	return string(e.Type)
}

// Config enumerates the validators attached to one field or to the form,
// keyed by event and by sync/async. Each slot holds anything validate.Run
// understands. A Config must not be modified once handed to a form.
type Config struct {
	OnChange      any
	OnBlur        any
	OnSubmit      any
	OnChangeAsync any
	OnBlurAsync   any
	OnSubmitAsync any

	// AsyncDebounce is the default delay for async slots. Zero runs them
	// immediately.
	AsyncDebounce time.Duration
	// Per-event overrides. Zero means unset (use AsyncDebounce); a negative
	// value forces an immediate run.
	OnChangeAsyncDebounce time.Duration
	OnBlurAsyncDebounce   time.Duration
	OnSubmitAsyncDebounce time.Duration

	// AsyncAlways runs the async slot even when the sync slot for the same
	// event already failed.
	AsyncAlways bool
}

// Validator returns the validator configured for ev, or nil.
func (c *Config) Validator(ev Event) any {
	if c == nil {
		return nil
	}
	switch ev.Type {
	case Change:
		if ev.Async {
			return c.OnChangeAsync
		}
		return c.OnChange
	case Blur:
		if ev.Async {
			return c.OnBlurAsync
		}
		return c.OnBlur
	case Submit:
		if ev.Async {
			return c.OnSubmitAsync
		}
		return c.OnSubmit
	}
	return nil
}

// Has reports whether a validator is configured for ev.
func (c *Config) Has(ev Event) bool { return c.Validator(ev) != nil }

// HasAny reports whether either slot of t is configured.
func (c *Config) HasAny(t EventType) bool {
	return c.Has(Event{Type: t}) || c.Has(Event{Type: t, Async: true})
}

// Debounce resolves the async delay for t: per-event override, then the
// global default, then zero.
func (c *Config) Debounce(t EventType) time.Duration {
	if c == nil {
		return 0
	}
	var override time.Duration
	switch t {
	case Change:
		override = c.OnChangeAsyncDebounce
	case Blur:
		override = c.OnBlurAsyncDebounce
	case Submit:
		override = c.OnSubmitAsyncDebounce
	}
	switch {
	case override < 0:
		return 0
	case override > 0:
		return override
	case c.AsyncDebounce > 0:
		return c.AsyncDebounce
	}
	return 0
}
