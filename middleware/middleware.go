// Package middleware validates JSON form submissions on the server with the
// same validators the form uses on the client side. Each request is loaded
// into a headless form and validated as a submit would; failures answer 422
// with the error map.
//
// The echo and gin adapters live in nested modules under this directory.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/elnormous/contenttype"
	"github.com/goccy/go-json"
	formskema "github.com/reoring/formskema"
)

const defaultMaxBody = 1 << 20

var jsonMediaType = contenttype.NewMediaType("application/json")

var (
	// ErrUnsupportedMediaType is returned for requests that are not JSON.
	ErrUnsupportedMediaType = errors.New("content-type must be application/json")
	// ErrMalformedBody is returned when the body is not a JSON object.
	ErrMalformedBody = errors.New("malformed JSON body")
	// ErrDuplicateKey is returned when an object repeats a key; it wraps
	// ErrMalformedBody.
	ErrDuplicateKey = fmt.Errorf("%w: duplicate key", ErrMalformedBody)
)

// Config configures Check and ValidateJSON.
type Config struct {
	// Form supplies the validators. DefaultValues is ignored; the request
	// body becomes the values.
	Form formskema.Options
	// MaxBodyBytes caps the request body; 1 MiB when zero.
	MaxBodyBytes int64
	// AllowDuplicateKeys accepts objects that repeat a key (the last one
	// wins). By default they are rejected.
	AllowDuplicateKeys bool
	// Logger receives debug events; discarded when nil.
	Logger *slog.Logger
}

// Submission is a decoded and validated request body.
type Submission struct {
	Values map[string]any
	Valid  bool
	Errors map[string]string
}

// Check decodes the JSON object body of r and validates it. Errors are
// ErrUnsupportedMediaType, ErrMalformedBody (wrapped) or the request
// context's error; validation failures are reported in the Submission.
func Check(r *http.Request, cfg Config) (Submission, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		log.DebugContext(r.Context(), "http.content_type.unsupported", slog.String("content_type", r.Header.Get("Content-Type")))
		return Submission{}, ErrUnsupportedMediaType
	}
	limit := cfg.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBody
	}
	values, err := decodeObject(io.LimitReader(r.Body, limit+1), limit, !cfg.AllowDuplicateKeys)
	if err != nil {
		log.DebugContext(r.Context(), "http.body.malformed", slog.String("err", err.Error()))
		return Submission{}, err
	}

	opts := cfg.Form
	opts.DefaultValues = values
	if opts.Logger == nil {
		opts.Logger = log
	}
	f := formskema.New(opts)
	defer f.Close()
	res := f.Validate(r.Context())
	if err := r.Context().Err(); err != nil {
		return Submission{}, err
	}
	log.DebugContext(r.Context(), "http.submission.validated", slog.Bool("valid", res.Valid), slog.Int("errors", len(res.Errors)))
	return Submission{Values: f.State().Values, Valid: res.Valid, Errors: res.Errors}, nil
}

func decodeObject(r io.Reader, limit int64, rejectDup bool) (map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrMalformedBody, limit)
	}
	if rejectDup {
		path, dup, err := findDuplicateKey(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}
		if dup {
			return nil, fmt.Errorf("%w %q", ErrDuplicateKey, path)
		}
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedBody)
	}
	return m, nil
}

// Status maps a Check error to an HTTP status.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrMalformedBody):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// ErrorPayload shapes a validation error map for JSON responses.
func ErrorPayload(errs map[string]string) map[string]any {
	return map[string]any{"errors": errs}
}

type ctxKeyValues struct{}

// ContextWithValues attaches validated values to ctx.
func ContextWithValues(ctx context.Context, values map[string]any) context.Context {
	return context.WithValue(ctx, ctxKeyValues{}, values)
}

// ValuesFromContext retrieves values stored by ValidateJSON.
func ValuesFromContext(ctx context.Context) (map[string]any, bool) {
	v, ok := ctx.Value(ctxKeyValues{}).(map[string]any)
	return v, ok
}

// ValidateJSON validates the request body before next runs. Valid values
// are stored in the request context (see ValuesFromContext); invalid
// submissions answer 422 with {"errors": {...}}.
func ValidateJSON(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub, err := Check(r, cfg)
			if err != nil {
				WriteJSON(w, Status(err), map[string]any{"error": err.Error()})
				return
			}
			if !sub.Valid {
				WriteJSON(w, http.StatusUnprocessableEntity, ErrorPayload(sub.Errors))
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithValues(r.Context(), sub.Values)))
		})
	}
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
