package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/reoring/formskema/fieldpath"
	"github.com/reoring/formskema/i18n"
	sjs "github.com/santhosh-tekuri/jsonschema/v5"
)

// CompileJSONSchema compiles a JSON Schema document held in memory. url only
// names the resource in error messages.
func CompileJSONSchema(url, doc string) (*sjs.Schema, error) {
	if url == "" {
		url = "form.json"
	}
	s, err := sjs.CompileString(url, doc)
	if err != nil {
		return nil, fmt.Errorf("compile json schema %s: %w", url, err)
	}
	return s, nil
}

func runJSONSchema(s *sjs.Schema, c Context) Result {
	inst, err := jsonValue(c.Subject())
	if err != nil {
		return failure(c, err)
	}
	err = s.Validate(inst)
	if err == nil {
		return Ok()
	}
	var ve *sjs.ValidationError
	if !errors.As(err, &ve) {
		return failure(c, err)
	}
	errs := map[string]string{}
	for _, leaf := range leaves(ve) {
		collectJSONSchemaIssue(c, leaf, errs)
	}
	if len(errs) == 0 {
		errs[c.target()] = ve.Message
	}
	return Result{Valid: false, Errors: errs}
}

// jsonValue round-trips v through JSON so the validator sees only the types
// encoding/json produces (ints become float64, typed slices become []any).
func jsonValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode instance: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode instance: %w", err)
	}
	return out, nil
}

func leaves(ve *sjs.ValidationError) []*sjs.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjs.ValidationError{ve}
	}
	var out []*sjs.ValidationError
	for _, c := range ve.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}

var missingProps = regexp.MustCompile(`'([^']+)'`)

// collectJSONSchemaIssue attributes a leaf error to the instance path. A
// "missing properties" failure is reported on each missing child instead of
// the parent object, since that is where a form shows it.
func collectJSONSchemaIssue(c Context, ve *sjs.ValidationError, errs map[string]string) {
	base := fieldpath.FromPointer(ve.InstanceLocation)
	if strings.HasPrefix(ve.Message, "missing properties") {
		names := missingProps.FindAllStringSubmatch(ve.Message, -1)
		for _, n := range names {
			put(errs, c.at(fieldpath.Join(base, n[1])), i18n.T("required", nil))
		}
		if len(names) > 0 {
			return
		}
	}
	put(errs, c.at(base), ve.Message)
}
