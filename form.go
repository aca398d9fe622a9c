package formskema

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/reoring/formskema/fieldpath"
	"github.com/reoring/formskema/internal/engine"
	"github.com/reoring/formskema/validate"
)

const formKey = validate.FormKey

// ValidatorConfig lists the validators of one field or of the form per
// lifecycle event; see engine.Config.
type ValidatorConfig = engine.Config

// EventType re-exports the lifecycle events.
type EventType = engine.EventType

const (
	Change = engine.Change
	Blur   = engine.Blur
	Submit = engine.Submit
)

// Result is the normalized validation outcome.
type Result = validate.Result

// ValidateOn selects when Options.Schema runs.
type ValidateOn string

const (
	ValidateOnSubmit ValidateOn = "onSubmit"
	ValidateOnChange ValidateOn = "onChange"
	ValidateOnBlur   ValidateOn = "onBlur"
	// ValidateManual runs the schema only on submit and on Validate.
	ValidateManual ValidateOn = "manual"
)

// Options configure New.
type Options struct {
	// DefaultValues seeds Values and is the baseline for IsDirty and Reset.
	DefaultValues map[string]any
	// Schema is a form-level validator run according to ValidateOn, and
	// always on submit.
	Schema any
	// Validators holds form-level validators per event.
	Validators *ValidatorConfig
	// FieldValidators holds per-field validators keyed by path.
	FieldValidators map[string]*ValidatorConfig
	// ValidateOn defaults to ValidateOnSubmit.
	ValidateOn ValidateOn
	// Logger receives debug events; discarded when nil.
	Logger *slog.Logger
}

type subscriber struct {
	id   string
	fn   func(State)
	from uint64 // commits up to this one predate the subscription
}

// queued is a committed snapshot awaiting delivery.
type queued struct {
	seq   uint64
	state State
}

// asyncSlot identifies the async validation of one key (field or form) for
// one event type.
type asyncSlot struct {
	key   string
	event engine.EventType
}

// asyncJob is a scheduled async validation for one field or the form.
type asyncJob struct {
	field  string // "" for form scope
	path   string // path whose change or blur triggered the job
	event  engine.EventType
	cfg    *ValidatorConfig
	values map[string]any
	gen    uint64
	token  uint64
	ctx    context.Context // cancelled when the slot is superseded
}

// key is the Validating entry of the job.
func (j asyncJob) key() string {
	if j.field == "" {
		return formKey
	}
	return j.field
}

func (j asyncJob) slot() asyncSlot { return asyncSlot{key: j.key(), event: j.event} }

// Form is the form state store. All methods are safe for concurrent use.
// Validators run while the store is locked and must not call back into the
// form; subscribers are notified outside the lock and may.
type Form struct {
	id         string
	mu         sync.Mutex
	state      State
	initial    map[string]any
	formCfg    *ValidatorConfig
	fieldCfgs  map[string]*ValidatorConfig
	registered map[string]struct{}
	eng        *engine.Engine
	log        *slog.Logger

	subs       []subscriber
	queue      []queued
	commitSeq  uint64
	delivering bool

	// tokens advance whenever a slot is rescheduled or cancelled; a result
	// carrying an older token is dropped. live holds the cancel func of the
	// job whose result is still wanted, per slot.
	tokens map[asyncSlot]uint64
	live   map[asyncSlot]context.CancelFunc

	// vmu serializes full validations (submit and Validate).
	vmu sync.Mutex

	inflight int
	idle     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	gen    uint64
	closed bool
}

// New creates a form. It never fails: unusable validators surface as errors
// in State.Errors when they run.
func New(opts Options) *Form {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	initial, _ := fieldpath.Normalize(opts.DefaultValues).(map[string]any)
	if initial == nil {
		initial = map[string]any{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	f := &Form{
		id:         uuid.NewString(),
		initial:    initial,
		formCfg:    formConfig(opts),
		fieldCfgs:  make(map[string]*ValidatorConfig, len(opts.FieldValidators)),
		registered: map[string]struct{}{},
		eng:        engine.New(engine.WithLogger(log)),
		log:        log,
		tokens:     map[asyncSlot]uint64{},
		live:       map[asyncSlot]context.CancelFunc{},
		ctx:        ctx,
		cancel:     cancel,
	}
	for name, cfg := range opts.FieldValidators {
		if cfg != nil {
			f.fieldCfgs[fieldpath.Canonical(name)] = cfg
		}
	}
	f.state = State{
		ID:         f.id,
		Values:     initial,
		Errors:     map[string]string{},
		Touched:    map[string]bool{},
		Validating: map[string]bool{},
	}
	return f
}

// formConfig folds Options.Schema into the form-level config according to
// ValidateOn. Explicit Validators slots win over the schema.
func formConfig(opts Options) *ValidatorConfig {
	cfg := &ValidatorConfig{}
	if opts.Validators != nil {
		*cfg = *opts.Validators
	}
	if opts.Schema == nil {
		return cfg
	}
	if cfg.OnSubmit == nil {
		cfg.OnSubmit = opts.Schema
	}
	switch opts.ValidateOn {
	case ValidateOnChange:
		if cfg.OnChange == nil {
			cfg.OnChange = opts.Schema
		}
	case ValidateOnBlur:
		if cfg.OnBlur == nil {
			cfg.OnBlur = opts.Schema
		}
	}
	return cfg
}

// submitView returns cfg with its submit sync slot falling back to the change
// and blur validators, so fields validated only while typing still gate submit.
func submitView(cfg *ValidatorConfig) *ValidatorConfig {
	if cfg == nil {
		return nil
	}
	out := *cfg
	if out.OnSubmit == nil {
		out.OnSubmit = cfg.OnChange
	}
	if out.OnSubmit == nil {
		out.OnSubmit = cfg.OnBlur
	}
	return &out
}

// ID returns the form instance id.
func (f *Form) ID() string { return f.id }

// State returns the current snapshot.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Get reads the current value at path.
func (f *Form) Get(path string) (any, bool) {
	return fieldpath.Get(f.State().Values, path)
}

// commit installs next and queues it for delivery. f.mu must be held.
func (f *Form) commit(next State) {
	f.state = next
	f.commitSeq++
	f.queue = append(f.queue, queued{seq: f.commitSeq, state: next})
}

// flush delivers queued snapshots in commit order. Only one goroutine
// delivers at a time; a commit made from inside a subscriber is delivered by
// the outer loop once the current pass finishes.
func (f *Form) flush() {
	f.mu.Lock()
	if f.delivering {
		f.mu.Unlock()
		return
	}
	f.delivering = true
	for len(f.queue) > 0 {
		q := f.queue[0]
		f.queue = f.queue[1:]
		subs := append([]subscriber(nil), f.subs...)
		f.mu.Unlock()
		for _, sub := range subs {
			if q.seq > sub.from {
				sub.fn(q.state)
			}
		}
		f.mu.Lock()
	}
	f.delivering = false
	f.mu.Unlock()
}

// Subscribe registers fn for every state transition. The returned function
// unsubscribes; it is idempotent.
func (f *Form) Subscribe(fn func(State)) (unsubscribe func()) {
	return f.subscribe(fn, nil)
}

// subscribe registers fn for commits made after the call. init, when set,
// sees the current state under the same lock, so no commit falls between
// the two.
func (f *Form) subscribe(fn func(State), init func(State)) (unsubscribe func()) {
	f.mu.Lock()
	if init != nil {
		init(f.state)
	}
	if fn == nil || f.closed {
		f.mu.Unlock()
		return func() {}
	}
	id := uuid.NewString()
	f.subs = append(f.subs, subscriber{id: id, fn: fn, from: f.commitSeq})
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, s := range f.subs {
			if s.id == id {
				f.subs = append(f.subs[:i:i], f.subs[i+1:]...)
				return
			}
		}
	}
}

// SetValue writes value at path and runs the change pipeline: the path's
// errors are cleared, dirty is recomputed, and change validators run.
func (f *Form) SetValue(path string, value any) {
	f.mutate(path, engine.Change, func(s *State) {
		s.Values = asMap(fieldpath.Set(s.Values, path, fieldpath.Normalize(value)))
	}, nil)
}

// AddArrayItem appends item to the array at path, creating it if absent.
// Errors, touched flags and pending validations beneath path are dropped,
// since index-keyed entries no longer line up.
func (f *Form) AddArrayItem(path string, item any) {
	f.mutateArray(path, func(s *State) {
		s.Values = asMap(fieldpath.AddArrayItem(s.Values, path, fieldpath.Normalize(item)))
	})
}

// RemoveArrayItem removes element index of the array at path. Out of range
// indices leave the values untouched.
func (f *Form) RemoveArrayItem(path string, index int) {
	f.mutateArray(path, func(s *State) {
		s.Values = asMap(fieldpath.RemoveArrayItem(s.Values, path, index))
	})
}

func (f *Form) mutateArray(path string, apply func(*State)) {
	p := fieldpath.Canonical(path)
	f.mutate(p, engine.Change, apply, func(s *State) {
		f.dropSlots(p)
		keepTouched, hadTouched := s.Touched[p]
		s.Touched = withoutPrefix(s.Touched, p)
		if hadTouched {
			s.Touched = withKey(s.Touched, p, keepTouched)
		}
		s.Validating = withoutPrefix(s.Validating, p)
	})
}

// mutate is the shared change pipeline. cleanup runs only when apply changed
// the values.
func (f *Form) mutate(path string, ev engine.EventType, apply, cleanup func(*State)) {
	p := fieldpath.Canonical(path)
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	next := f.state
	apply(&next)
	if sameMap(next.Values, f.state.Values) {
		// invalid write, nothing changed
		f.mu.Unlock()
		return
	}
	if cleanup != nil {
		cleanup(&next)
	}
	next.Errors = withoutPrefix(next.Errors, p)
	next.IsDirty = isDirty(next.Values, f.initial)
	jobs := f.runEvent(&next, p, ev)
	f.commit(next)
	f.mu.Unlock()
	f.flush()
	f.launch(jobs)
}

// Blur marks path touched and runs blur validators.
func (f *Form) Blur(path string) {
	p := fieldpath.Canonical(path)
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	next := f.state
	if !next.Touched[p] {
		next.Touched = withKey(next.Touched, p, true)
	}
	var jobs []asyncJob
	if f.fieldCfgs[p].HasAny(engine.Blur) || f.formCfg.HasAny(engine.Blur) {
		next.Errors = withoutPrefix(next.Errors, p)
		jobs = f.runEvent(&next, p, engine.Blur)
	}
	f.commit(next)
	f.mu.Unlock()
	f.flush()
	f.launch(jobs)
}

// runEvent runs the sync validators of the field and the form for ev, merges
// their errors into next, and returns the async validations to start. An
// async slot that is not restarted is cancelled, so a result computed for an
// older value never lands. f.mu must be held.
func (f *Form) runEvent(next *State, p string, ev engine.EventType) []asyncJob {
	var jobs []asyncJob
	syncEv := engine.Event{Type: ev}
	asyncEv := engine.Event{Type: ev, Async: true}

	if cfg := f.fieldCfgs[p]; cfg != nil {
		value, _ := fieldpath.Get(next.Values, p)
		res, _ := f.eng.ValidateField(f.ctx, p, value, next.Values, cfg, syncEv)
		f.mergeInto(next, res.Errors)
		if cfg.Has(asyncEv) {
			if res.Valid || cfg.AsyncAlways {
				jobs = append(jobs, asyncJob{field: p, path: p, event: ev, cfg: cfg})
			} else {
				f.eng.ClearDebounce(p, ev)
				f.track(next, asyncSlot{key: p, event: ev}, false)
			}
		}
	}
	if f.formCfg.HasAny(ev) {
		next.Errors = withoutPrefix(next.Errors, formKey)
		res, _ := f.eng.ValidateForm(f.ctx, next.Values, f.formCfg, syncEv)
		own := scoped(res.Errors, p)
		f.mergeInto(next, own)
		if f.formCfg.Has(asyncEv) {
			if len(own) == 0 || f.formCfg.AsyncAlways {
				jobs = append(jobs, asyncJob{path: p, event: ev, cfg: f.formCfg})
			} else {
				f.eng.ClearFormDebounce(ev)
				f.track(next, asyncSlot{key: formKey, event: ev}, false)
			}
		}
	}
	for i := range jobs {
		jobs[i].values = next.Values
		jobs[i].gen = f.gen
		jobs[i].token, jobs[i].ctx = f.track(next, jobs[i].slot(), true)
	}
	return jobs
}

// track advances the token of s and cancels its previous job. When live, a
// context for the new job is returned. The Validating flag of the key is
// updated. f.mu must be held.
func (f *Form) track(next *State, s asyncSlot, live bool) (uint64, context.Context) {
	f.tokens[s]++
	if stop := f.live[s]; stop != nil {
		stop()
		delete(f.live, s)
	}
	var ctx context.Context
	if live {
		var stop context.CancelFunc
		ctx, stop = context.WithCancel(f.ctx)
		f.live[s] = stop
	}
	f.syncValidating(next, s.key)
	return f.tokens[s], ctx
}

func (f *Form) syncValidating(next *State, k string) {
	want := false
	for s := range f.live {
		if s.key == k {
			want = true
			break
		}
	}
	switch {
	case want && !next.Validating[k]:
		next.Validating = withKey(next.Validating, k, true)
	case !want && next.Validating[k]:
		next.Validating = withoutKey(next.Validating, k)
	}
}

// dropSlots cancels the async work of prefix and every field beneath it.
// The caller clears the matching Validating entries. f.mu must be held.
func (f *Form) dropSlots(prefix string) {
	f.eng.ClearFieldDebounce(prefix)
	for s := range f.tokens {
		if s.key == formKey || !fieldpath.HasPrefix(s.key, prefix) {
			continue
		}
		f.tokens[s]++
		if stop := f.live[s]; stop != nil {
			stop()
			delete(f.live, s)
		}
	}
}

func (f *Form) mergeInto(next *State, errs map[string]string) {
	if len(errs) == 0 {
		return
	}
	next.Errors = mergeErrors(next.Errors, errs)
	next.IsValid = false
}

// launch starts the async jobs. Their results re-enter through runAsync.
func (f *Form) launch(jobs []asyncJob) {
	if len(jobs) == 0 {
		return
	}
	f.mu.Lock()
	if f.inflight == 0 {
		f.idle = make(chan struct{})
	}
	f.inflight += len(jobs)
	f.mu.Unlock()
	for _, j := range jobs {
		go func(j asyncJob) {
			defer f.jobDone()
			f.runAsync(j)
		}(j)
	}
}

func (f *Form) jobDone() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight--
	if f.inflight == 0 {
		close(f.idle)
	}
}

func (f *Form) runAsync(j asyncJob) {
	ev := engine.Event{Type: j.event, Async: true}
	var (
		res Result
		err error
	)
	if j.field == "" {
		res, err = f.eng.ValidateForm(j.ctx, j.values, j.cfg, ev)
	} else {
		value, _ := fieldpath.Get(j.values, j.field)
		res, err = f.eng.ValidateField(j.ctx, j.field, value, j.values, j.cfg, ev)
	}
	if err != nil && isStale(err) {
		f.log.Debug("form.validate.async.stale", slog.String("path", j.key()), slog.String("event", string(j.event)))
	}

	f.mu.Lock()
	if f.closed || f.gen != j.gen || f.tokens[j.slot()] != j.token {
		f.mu.Unlock()
		return
	}
	next := f.state
	if err == nil {
		errs := res.Errors
		if j.field == "" {
			errs = scoped(errs, j.path)
		}
		f.mergeInto(&next, errs)
	}
	if stop := f.live[j.slot()]; stop != nil {
		stop()
		delete(f.live, j.slot())
	}
	f.syncValidating(&next, j.key())
	f.commit(next)
	f.mu.Unlock()
	if err == nil {
		f.log.Debug("form.validate.async.done", slog.String("path", j.key()), slog.Bool("valid", res.Valid))
	}
	f.flush()
}

// Unregister forgets path: its value is deleted, and its errors, touched
// flags and pending validations (including nested ones) are dropped.
func (f *Form) Unregister(path string) {
	p := fieldpath.Canonical(path)
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	delete(f.registered, p)
	f.dropSlots(p)
	next := f.state
	next.Values = asMap(fieldpath.Delete(next.Values, p))
	next.Errors = withoutPrefix(next.Errors, p)
	next.Touched = withoutPrefix(next.Touched, p)
	next.Validating = withoutPrefix(next.Validating, p)
	next.IsDirty = isDirty(next.Values, f.initial)
	f.commit(next)
	f.mu.Unlock()
	f.flush()
}

// SetError records msg at path (for example a server-side error after
// submit) and marks the form invalid.
func (f *Form) SetError(path, msg string) {
	p := fieldpath.Canonical(path)
	if p == "" {
		p = formKey
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	next := f.state
	next.Errors = withKey(next.Errors, p, msg)
	next.IsValid = false
	f.commit(next)
	f.mu.Unlock()
	f.flush()
}

// ClearErrors removes the errors at and beneath paths, or all errors when
// none are given.
func (f *Form) ClearErrors(paths ...string) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	next := f.state
	if len(paths) == 0 {
		next.Errors = map[string]string{}
	} else {
		ps := make([]string, len(paths))
		for i, p := range paths {
			ps[i] = fieldpath.Canonical(p)
			if ps[i] == "" {
				ps[i] = formKey
			}
		}
		next.Errors = withoutPrefix(next.Errors, ps...)
	}
	f.commit(next)
	f.mu.Unlock()
	f.flush()
}

// Reset restores the initial values, clears errors, touched and pending
// validations, and cancels every debounce timer. A submit in progress
// returns ErrReset without calling back.
func (f *Form) Reset() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.resetLocked()
	f.mu.Unlock()
	f.log.Debug("form.reset", slog.String("form", f.id))
	f.flush()
}

// ResetTo makes values the new initial snapshot and resets to it.
func (f *Form) ResetTo(values map[string]any) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.initial, _ = fieldpath.Normalize(values).(map[string]any)
	if f.initial == nil {
		f.initial = map[string]any{}
	}
	f.resetLocked()
	f.mu.Unlock()
	f.flush()
}

// resetLocked keeps IsSubmitting: a running submit handler owns it and
// clears it when it returns with ErrReset.
func (f *Form) resetLocked() {
	f.eng.ClearAllDebounce()
	f.gen++
	for _, stop := range f.live {
		stop()
	}
	clear(f.live)
	f.commit(State{
		ID:           f.id,
		Values:       f.initial,
		Errors:       map[string]string{},
		Touched:      map[string]bool{},
		Validating:   map[string]bool{},
		IsSubmitting: f.state.IsSubmitting,
	})
}

// Wait blocks until every async validation started so far has settled.
func (f *Form) Wait(ctx context.Context) error {
	f.mu.Lock()
	if f.inflight == 0 {
		f.mu.Unlock()
		return nil
	}
	idle := f.idle
	f.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disposes the form: timers are cancelled, subscribers dropped, and
// in-flight async results discarded. Later mutations are no-ops.
func (f *Form) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.subs = nil
	f.queue = nil
	f.mu.Unlock()
	f.eng.Close()
	f.cancel()
	f.log.Debug("form.close", slog.String("form", f.id))
}

// fieldNames lists registered fields and fields with validators, sorted.
// f.mu must be held.
func (f *Form) fieldNames() []string {
	seen := make(map[string]struct{}, len(f.registered)+len(f.fieldCfgs))
	for n := range f.registered {
		seen[n] = struct{}{}
	}
	for n := range f.fieldCfgs {
		seen[n] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	if m == nil {
		return map[string]any{}
	}
	return m
}

func sameMap(a, b map[string]any) bool { return fieldpath.SameRef(a, b) }
