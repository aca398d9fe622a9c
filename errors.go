package formskema

import (
	"errors"

	"github.com/reoring/formskema/internal/engine"
)

var (
	// ErrSubmitInProgress is returned by a submit handler invoked while a
	// previous submission of the same form is still running. The second call
	// is ignored.
	ErrSubmitInProgress = errors.New("formskema: submit already in progress")
	// ErrClosed is returned by operations on a closed form.
	ErrClosed = errors.New("formskema: form closed")
	// ErrReset is returned by a submit handler whose form was reset before
	// validation finished. Neither callback runs.
	ErrReset = errors.New("formskema: form reset during submit")
	// ErrSuperseded is returned by a submit handler when one of its async
	// validations was cancelled (for example by RemoveArrayItem or
	// Unregister on the field). Neither callback runs.
	ErrSuperseded = engine.ErrSuperseded
)

// isStale reports whether err only means the result was superseded.
func isStale(err error) bool {
	return errors.Is(err, engine.ErrSuperseded) || errors.Is(err, engine.ErrClosed)
}
