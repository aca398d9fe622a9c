package validate

import (
	"context"
	"errors"
	"fmt"

	"github.com/reoring/formskema/fieldpath"
	"github.com/reoring/formskema/i18n"
)

// StandardSchema is the vendor-neutral validator interface: any library can
// expose its schemas through it without this package knowing the library.
type StandardSchema interface {
	Standard() StandardProps
}

// StandardProps describes a standard-interface validator.
type StandardProps struct {
	Version  int
	Vendor   string
	Validate func(ctx context.Context, v any) StandardResult
}

// StandardResult is the validation outcome. No issues means success.
type StandardResult struct {
	Value  any
	Issues []StandardIssue
}

// StandardIssue is one problem. Path elements are strings (keys) or ints
// (indices); an empty path addresses the validated value itself.
type StandardIssue struct {
	Message string
	Path    []any
}

// PathString renders the issue path canonically, e.g. friends[1].name.
func (is StandardIssue) PathString() string {
	segs := make([]fieldpath.Segment, 0, len(is.Path))
	for _, p := range is.Path {
		switch t := p.(type) {
		case int:
			segs = append(segs, fieldpath.IndexSeg(t))
		case int64:
			segs = append(segs, fieldpath.IndexSeg(int(t)))
		case float64:
			segs = append(segs, fieldpath.IndexSeg(int(t)))
		case string:
			segs = append(segs, fieldpath.Parse(t)...)
		default:
			segs = append(segs, fieldpath.KeySeg(fmt.Sprint(t)))
		}
	}
	return fieldpath.Format(segs)
}

var errNoStandardValidate = errors.New("standard schema has no Validate function")

// StandardFunc adapts a plain function to StandardSchema.
type StandardFunc func(ctx context.Context, v any) StandardResult

func (f StandardFunc) Standard() StandardProps {
	return StandardProps{Version: 1, Vendor: "formskema", Validate: f}
}

func runStandard(ctx context.Context, s StandardSchema, c Context) Result {
	props := s.Standard()
	if props.Validate == nil {
		return failure(c, errNoStandardValidate)
	}
	sr := props.Validate(ctx, c.Subject())
	errs := map[string]string{}
	for _, is := range sr.Issues {
		msg := is.Message
		if msg == "" {
			msg = i18n.T("invalid", nil)
		}
		put(errs, c.at(is.PathString()), msg)
	}
	return fromMap(errs)
}
