package formskema

import (
	"cmp"
	"context"
	"log/slog"

	"github.com/reoring/formskema/internal/engine"
	"github.com/reoring/formskema/validate"
)

// SubmitHandler runs one submission. It returns ErrSubmitInProgress when a
// submission is already running, ErrClosed after Close, ErrReset when the
// form was reset before validation finished, ErrSuperseded when an async
// validation was cancelled, the context error, and otherwise the error of
// the onValid callback. Neither callback runs when an error other than the
// onValid one is returned.
type SubmitHandler func(ctx context.Context) error

// HandleSubmit builds a submission handler. The handler marks registered
// fields touched, runs full validation (form and field submit validators,
// sync then async), replaces Errors with the outcome, and calls onValid with
// the values or onError with the errors. IsSubmitting stays true until the
// callback returns.
func (f *Form) HandleSubmit(onValid func(ctx context.Context, values map[string]any) error, onError func(ctx context.Context, errs map[string]string)) SubmitHandler {
	return func(ctx context.Context) error {
		if ctx == nil {
			ctx = context.Background()
		}
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return ErrClosed
		}
		if f.state.IsSubmitting {
			f.mu.Unlock()
			f.log.Debug("form.submit.ignored", slog.String("form", f.id))
			return ErrSubmitInProgress
		}
		next := f.state
		next.IsSubmitting = true
		next.SubmitCount++
		touched := make(map[string]bool, len(next.Touched)+len(f.registered))
		for k, v := range next.Touched {
			touched[k] = v
		}
		for name := range f.registered {
			touched[name] = true
		}
		next.Touched = touched
		f.commit(next)
		f.mu.Unlock()
		f.flush()

		defer func() {
			f.mu.Lock()
			if f.closed {
				f.mu.Unlock()
				return
			}
			next := f.state
			next.IsSubmitting = false
			f.commit(next)
			f.mu.Unlock()
			f.flush()
		}()

		f.log.Debug("form.submit.start", slog.String("form", f.id), slog.Int("count", next.SubmitCount))
		res, values, err := f.validateAll(ctx)
		if err != nil {
			f.log.Debug("form.submit.abandoned", slog.String("form", f.id), slog.String("err", err.Error()))
			return err
		}
		if !res.Valid {
			f.log.Debug("form.submit.invalid", slog.String("form", f.id), slog.Int("errors", len(res.Errors)))
			if onError != nil {
				onError(ctx, res.Errors)
			}
			return nil
		}
		f.log.Debug("form.submit.valid", slog.String("form", f.id))
		if onValid != nil {
			return onValid(ctx, values)
		}
		return nil
	}
}

// Validate runs full validation now, as a submit would, and records the
// outcome in Errors and IsValid. It waits for a full validation already
// running (for example a submit's) to finish first. When validation cannot
// complete the result is invalid with the reason under "form", and State is
// left as it was.
func (f *Form) Validate(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	res, _, err := f.validateAll(ctx)
	if err != nil {
		return Result{Valid: false, Errors: map[string]string{formKey: err.Error()}}
	}
	return res
}

// validateAll runs the submit validators against the current values and
// installs the result. Full validations never overlap, since they share the
// submit debounce slots. On error nothing is installed.
func (f *Form) validateAll(ctx context.Context) (res Result, values map[string]any, err error) {
	f.vmu.Lock()
	res, values, err = f.validateLocked(ctx)
	f.vmu.Unlock()
	if err == nil {
		f.flush()
	}
	return res, values, err
}

func (f *Form) validateLocked(ctx context.Context) (res Result, values map[string]any, err error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return validate.Ok(), nil, ErrClosed
	}
	values = f.state.Values
	gen := f.gen
	names := f.fieldNames()
	cfgs := make(map[string]*ValidatorConfig, len(names))
	for _, n := range names {
		cfgs[n] = submitView(f.fieldCfgs[n])
	}
	formCfg := submitView(f.formCfg)
	f.mu.Unlock()

	syncEv := engine.Event{Type: engine.Submit}
	asyncEv := engine.Event{Type: engine.Submit, Async: true}

	fieldRes, _ := f.eng.ValidateFields(ctx, names, values, cfgs, syncEv)
	formRes, _ := f.eng.ValidateForm(ctx, values, formCfg, syncEv)

	var asyncNames []string
	for _, n := range names {
		cfg := cfgs[n]
		if !cfg.Has(asyncEv) {
			continue
		}
		if cfg.AsyncAlways || !hasErrorAt(fieldRes.Errors, n) {
			asyncNames = append(asyncNames, n)
		}
	}
	res = fieldRes.Merge(formRes)
	var asyncErr error
	if len(asyncNames) > 0 {
		ar, err := f.eng.ValidateFields(ctx, asyncNames, values, cfgs, asyncEv)
		res = res.Merge(ar)
		asyncErr = err
	}
	if formCfg.Has(asyncEv) && (formRes.Valid || formCfg.AsyncAlways) {
		ar, err := f.eng.ValidateForm(ctx, values, formCfg, asyncEv)
		if err != nil {
			asyncErr = cmp.Or(asyncErr, err)
		} else {
			res = res.Merge(ar)
		}
	}
	if err := ctx.Err(); err != nil {
		return res, values, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.closed:
		return res, values, ErrClosed
	case f.gen != gen:
		return res, values, ErrReset
	case asyncErr != nil:
		return res, values, asyncErr
	}
	next := f.state
	next.Errors = res.Errors
	next.IsValid = res.Valid
	f.commit(next)
	return res, values, nil
}

func hasErrorAt(errs map[string]string, path string) bool {
	for k := range errs {
		if k == path || underAny(k, []string{path}) {
			return true
		}
	}
	return false
}
