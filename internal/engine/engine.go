// Package engine decides which validator runs for a lifecycle event and
// manages debounced async validation per field and event.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/reoring/formskema/fieldpath"
	"github.com/reoring/formskema/validate"
)

var (
	// ErrSuperseded is returned for an async validation that was replaced by
	// a newer event for the same field and event type, or cleared.
	ErrSuperseded = errors.New("engine: validation superseded")
	// ErrClosed is returned once the engine has been closed.
	ErrClosed = errors.New("engine: closed")
)

// Result aliases the adapter result so callers need a single import.
type Result = validate.Result

type scope uint8

const (
	scopeField scope = iota
	scopeForm
)

// key identifies one debounce slot.
type key struct {
	scope scope
	field string
	event EventType
}

// pending is a scheduled async run waiting for its timer.
type pending struct {
	timer  *time.Timer
	fire   chan struct{}
	cancel chan struct{}
	once   sync.Once
}

func (p *pending) abort() {
	p.once.Do(func() {
		if p.timer != nil {
			p.timer.Stop()
		}
		close(p.cancel)
	})
}

// Engine runs validators and owns the debounce table. The zero value is not
// usable; call New.
type Engine struct {
	mu     sync.Mutex
	timers map[key]*pending
	seq    map[key]uint64
	closed bool
	log    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger for the Engine.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// New returns an engine with an empty timer table.
func New(opts ...Option) *Engine {
	e := &Engine{
		timers: make(map[key]*pending),
		seq:    make(map[key]uint64),
		log:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// ValidateField runs the validator cfg holds for ev against one field.
// A missing validator is valid. Sync validators run inline; async ones are
// debounced per (field, event type). The returned error is ErrSuperseded,
// ErrClosed or ctx.Err(); validator failures are always in the Result.
func (e *Engine) ValidateField(ctx context.Context, field string, value any, values map[string]any, cfg *Config, ev Event) (Result, error) {
	v := cfg.Validator(ev)
	if v == nil {
		return validate.Ok(), nil
	}
	vc := validate.Context{Value: value, Values: values, FieldName: field}
	if !ev.Async {
		return validate.Run(ctx, v, vc), nil
	}
	k := key{scope: scopeField, field: fieldpath.Canonical(field), event: ev.Type}
	return e.runAsync(ctx, k, cfg.Debounce(ev.Type), v, vc)
}

// ValidateForm is ValidateField at form scope: the validator sees the whole
// value tree and messages without a path land on "form".
func (e *Engine) ValidateForm(ctx context.Context, values map[string]any, cfg *Config, ev Event) (Result, error) {
	v := cfg.Validator(ev)
	if v == nil {
		return validate.Ok(), nil
	}
	vc := validate.Context{Values: values}
	if !ev.Async {
		return validate.Run(ctx, v, vc), nil
	}
	k := key{scope: scopeForm, event: ev.Type}
	return e.runAsync(ctx, k, cfg.Debounce(ev.Type), v, vc)
}

// ValidateFields validates each named field concurrently against its config
// and merges the results. A field that was superseded or cancelled yields no
// result; the first such error (in name order) is returned and the merged
// Result must then not be taken as complete.
func (e *Engine) ValidateFields(ctx context.Context, names []string, values map[string]any, cfgs map[string]*Config, ev Event) (Result, error) {
	results := make([]Result, len(names))
	errs := make([]error, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			val, _ := fieldpath.Get(values, name)
			results[i], errs[i] = e.ValidateField(ctx, name, val, values, cfgs[name], ev)
		}(i, name)
	}
	wg.Wait()

	out := validate.Ok()
	var firstErr error
	for i := range names {
		if errs[i] != nil {
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		out = out.Merge(results[i])
	}
	return out, firstErr
}

// runAsync debounces and then runs v. Each call takes a new sequence number
// for its key; a result whose number is no longer current is discarded.
func (e *Engine) runAsync(ctx context.Context, k key, delay time.Duration, v any, vc validate.Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return Result{}, ErrClosed
	}
	e.seq[k]++
	my := e.seq[k]
	if prev := e.timers[k]; prev != nil {
		prev.abort()
		delete(e.timers, k)
		e.log.Debug("engine.debounce.cancel", slog.String("field", k.field), slog.String("event", string(k.event)))
	}
	var p *pending
	if delay > 0 {
		p = &pending{fire: make(chan struct{}), cancel: make(chan struct{})}
		p.timer = time.AfterFunc(delay, func() {
			e.mu.Lock()
			current := e.timers[k] == p
			if current {
				delete(e.timers, k)
			}
			e.mu.Unlock()
			if current {
				close(p.fire)
			}
		})
		e.timers[k] = p
	}
	e.mu.Unlock()

	if p != nil {
		select {
		case <-p.fire:
		case <-p.cancel:
			return Result{}, e.staleErr()
		case <-ctx.Done():
			e.mu.Lock()
			if e.timers[k] == p {
				delete(e.timers, k)
			}
			e.mu.Unlock()
			p.abort()
			return Result{}, ctx.Err()
		}
	}

	res := validate.Run(ctx, v, vc)

	e.mu.Lock()
	stale := e.closed || e.seq[k] != my
	e.mu.Unlock()
	if stale {
		e.log.Debug("engine.async.stale", slog.String("field", k.field), slog.String("event", string(k.event)), slog.Uint64("seq", my))
		return Result{}, e.staleErr()
	}
	return res, nil
}

func (e *Engine) staleErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return ErrSuperseded
}

// clear cancels the timers of the matching keys and invalidates any of their
// in-flight runs. Must be called with e.mu held.
func (e *Engine) clear(match func(key) bool) {
	for k, p := range e.timers {
		if match(k) {
			p.abort()
			delete(e.timers, k)
		}
	}
	for k := range e.seq {
		if match(k) {
			e.seq[k]++
		}
	}
}

// ClearDebounce cancels the pending timer for (field, t) without running it.
func (e *Engine) ClearDebounce(field string, t EventType) {
	want := key{scope: scopeField, field: fieldpath.Canonical(field), event: t}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clear(func(k key) bool { return k == want })
}

// ClearFieldDebounce cancels every pending timer of field and of the fields
// nested beneath it.
func (e *Engine) ClearFieldDebounce(field string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clear(func(k key) bool { return k.scope == scopeField && fieldpath.HasPrefix(k.field, field) })
}

// ClearFormDebounce cancels the pending form-scope timer for t.
func (e *Engine) ClearFormDebounce(t EventType) {
	want := key{scope: scopeForm, event: t}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clear(func(k key) bool { return k == want })
}

// ClearAllDebounce cancels every pending timer.
func (e *Engine) ClearAllDebounce() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clear(func(key) bool { return true })
}

// Pending lists the fields with a scheduled timer, sorted. The form scope is
// reported as validate.FormKey.
func (e *Engine) Pending() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	seen := map[string]struct{}{}
	for k := range e.timers {
		name := k.field
		if k.scope == scopeForm {
			name = validate.FormKey
		}
		seen[name] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Close cancels every timer; later async calls fail with ErrClosed.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.clear(func(key) bool { return true })
	e.closed = true
}
