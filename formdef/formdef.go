// Package formdef loads declarative form definitions from YAML or JSON and
// turns them into formskema.Options.
//
// A definition lists fields with their schema constraints, optional
// go-playground tag and Lua validators per field, cross-field rules, an
// optional whole-form JSON Schema, the validation timing and defaults:
//
//	name: signup
//	validate_on: onBlur
//	defaults:
//	  age: 17
//	fields:
//	  - name: email
//	    type: string
//	    required: true
//	    format: email
//	  - name: username
//	    tags: "alphanum,min=3"
//	    lua: 'return value ~= "admin" or "reserved"'
//	    async: true
//	    debounce: 300ms
//	  - name: age
//	    type: integer
//	    min: 18
//	rules:
//	  - matches: {path: confirm, other: password}
package formdef

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Definition is a whole form.
type Definition struct {
	Name       string          `json:"name,omitempty"`
	ValidateOn string          `json:"validate_on,omitempty"`
	Debounce   Duration        `json:"debounce,omitempty"`
	Defaults   map[string]any  `json:"defaults,omitempty"`
	Fields     []Field         `json:"fields,omitempty"`
	Rules      []Rule          `json:"rules,omitempty"`
	Lua        string          `json:"lua,omitempty"`
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

// Field describes one value of the form.
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"` // string (default), number, integer, boolean, enum, array, object
	Required bool   `json:"required,omitempty"`
	// Message replaces the required message.
	Message string   `json:"message,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Pattern string   `json:"pattern,omitempty"`
	Format  string   `json:"format,omitempty"` // email
	Trim    bool     `json:"trim,omitempty"`
	Options []string `json:"options,omitempty"`
	Items   *Field   `json:"items,omitempty"`
	Fields  []Field  `json:"fields,omitempty"`

	// Tags and Lua add field validators beside the schema.
	Tags string `json:"tags,omitempty"`
	Lua  string `json:"lua,omitempty"`
	// On selects the event the field validators run on: change (default),
	// blur or submit.
	On string `json:"on,omitempty"`
	// Async moves the field validators to the async slot of On.
	Async    bool     `json:"async,omitempty"`
	Debounce Duration `json:"debounce,omitempty"`
}

// Rule is one cross-field rule. Exactly one of the rule fields is set.
type Rule struct {
	AtLeastOne string      `json:"at_least_one,omitempty"`
	UniqueBy   *UniqueBy   `json:"unique_by,omitempty"`
	Matches    *Matches    `json:"matches,omitempty"`
	RequiredIf *RequiredIf `json:"required_if,omitempty"`
	Message    string      `json:"message,omitempty"`
}

type UniqueBy struct {
	Path string `json:"path"`
	Key  string `json:"key,omitempty"`
}

type Matches struct {
	Path  string `json:"path"`
	Other string `json:"other"`
}

// RequiredIf requires Then when the value at Path compares to Value under
// Op (eq, ne, lt, le, gt, ge; default eq).
type RequiredIf struct {
	Path  string   `json:"path"`
	Op    string   `json:"op,omitempty"`
	Value any      `json:"value"`
	Then  []string `json:"then"`
}

// Duration accepts "300ms" style strings or a number of milliseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		return nil
	}
	if s[0] == '"' {
		unq, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("duration %s: %w", s, err)
		}
		if unq == "" {
			*d = 0
			return nil
		}
		v, err := time.ParseDuration(unq)
		if err != nil {
			return fmt.Errorf("duration %s: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	ms, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("duration %s: %w", s, err)
	}
	*d = Duration(time.Duration(ms * float64(time.Millisecond)))
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Load reads a definition file. Files ending in .json are decoded as JSON,
// anything else as YAML.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read form definition: %w", err)
	}
	var def *Definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		def, err = ParseJSON(data)
	default:
		def, err = ParseYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// ParseYAML decodes a YAML definition. Duplicate keys are rejected.
func ParseYAML(data []byte) (*Definition, error) {
	v, err := decodeYAML(data)
	if err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if v == nil {
		return nil, errors.New("decode yaml: empty document")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return ParseJSON(b)
}

// ParseJSON decodes a JSON definition. Unknown keys are rejected.
func ParseJSON(data []byte) (*Definition, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("decode form definition: %w", err)
	}
	if err := def.Check(); err != nil {
		return nil, err
	}
	return &def, nil
}

var validateOn = map[string]bool{"": true, "onSubmit": true, "onChange": true, "onBlur": true, "manual": true}

var fieldTypes = map[string]bool{"": true, "string": true, "number": true, "integer": true, "boolean": true, "enum": true, "array": true, "object": true}

var events = map[string]bool{"": true, "change": true, "blur": true, "submit": true}

// Check reports structural problems: unknown types or events, missing
// names, duplicate fields and malformed rules. All problems are joined.
func (d *Definition) Check() error {
	var errs []error
	if !validateOn[d.ValidateOn] {
		errs = append(errs, fmt.Errorf("validate_on: unknown value %q", d.ValidateOn))
	}
	errs = append(errs, checkFields("", d.Fields)...)
	for i, r := range d.Rules {
		if err := r.check(); err != nil {
			errs = append(errs, fmt.Errorf("rules[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func checkFields(prefix string, fields []Field) []error {
	var errs []error
	seen := map[string]bool{}
	for i, f := range fields {
		where := fmt.Sprintf("%sfields[%d]", prefix, i)
		if f.Name == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", where))
		} else if seen[f.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate field %q", where, f.Name))
		}
		seen[f.Name] = true
		errs = append(errs, f.check(where)...)
	}
	return errs
}

func (f Field) check(where string) []error {
	var errs []error
	if !fieldTypes[f.Type] {
		errs = append(errs, fmt.Errorf("%s: unknown type %q", where, f.Type))
	}
	if !events[f.On] {
		errs = append(errs, fmt.Errorf("%s: unknown event %q", where, f.On))
	}
	switch f.Type {
	case "enum":
		if len(f.Options) == 0 {
			errs = append(errs, fmt.Errorf("%s: enum needs options", where))
		}
	case "array":
		if f.Items == nil {
			errs = append(errs, fmt.Errorf("%s: array needs items", where))
		} else {
			errs = append(errs, f.Items.check(where+".items")...)
		}
	case "object":
		errs = append(errs, checkFields(where+".", f.Fields)...)
	}
	return errs
}

func (r Rule) check() error {
	n := 0
	if r.AtLeastOne != "" {
		n++
	}
	if r.UniqueBy != nil {
		n++
		if r.UniqueBy.Path == "" {
			return errors.New("unique_by: path is required")
		}
	}
	if r.Matches != nil {
		n++
		if r.Matches.Path == "" || r.Matches.Other == "" {
			return errors.New("matches: path and other are required")
		}
	}
	if r.RequiredIf != nil {
		n++
		if r.RequiredIf.Path == "" || len(r.RequiredIf.Then) == 0 {
			return errors.New("required_if: path and then are required")
		}
		if _, ok := ops[r.RequiredIf.Op]; !ok {
			return fmt.Errorf("required_if: unknown op %q", r.RequiredIf.Op)
		}
	}
	if n != 1 {
		return fmt.Errorf("expected exactly one rule, got %d", n)
	}
	return nil
}
