package schema

import (
	"context"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	js "github.com/reoring/formskema/jsonschema"
)

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// StringSchema validates strings. Builder methods mutate and return the
// receiver so they can be chained: String().Min(3).Max(20).
type StringSchema struct {
	optional bool
	trim     bool
	minLen   *int
	maxLen   *int
	pattern  *regexp.Regexp
	email    bool
	msgs     map[string]string
}

// String returns a string schema.
func String() *StringSchema { return &StringSchema{msgs: map[string]string{}} }

// Optional accepts nil and the empty string without running other checks.
func (s *StringSchema) Optional() *StringSchema { s.optional = true; return s }

// Trim strips surrounding whitespace before checking.
func (s *StringSchema) Trim() *StringSchema { s.trim = true; return s }

// Min requires at least n characters (runes).
func (s *StringSchema) Min(n int, msg ...string) *StringSchema {
	s.minLen = &n
	s.msgs[CodeTooShort] = firstMsg(msg)
	return s
}

// Max allows at most n characters (runes).
func (s *StringSchema) Max(n int, msg ...string) *StringSchema {
	s.maxLen = &n
	s.msgs[CodeTooLong] = firstMsg(msg)
	return s
}

// NonEmpty rejects the empty string with a "required" issue.
func (s *StringSchema) NonEmpty(msg ...string) *StringSchema {
	one := 1
	s.minLen = &one
	s.msgs[CodeRequired] = firstMsg(msg)
	if s.msgs[CodeRequired] == "" {
		s.msgs[CodeRequired] = message(CodeRequired, "", nil)
	}
	return s
}

// Pattern requires the value to match re.
func (s *StringSchema) Pattern(re *regexp.Regexp, msg ...string) *StringSchema {
	s.pattern = re
	s.msgs[CodePattern] = firstMsg(msg)
	return s
}

// Email requires a plausible e-mail address.
func (s *StringSchema) Email(msg ...string) *StringSchema {
	s.email = true
	s.msgs[CodeInvalidFormat] = firstMsg(msg)
	return s
}

func (s *StringSchema) Parse(ctx context.Context, v any) (any, error) {
	if v == nil && s.optional {
		return nil, nil
	}
	str, ok := v.(string)
	if !ok {
		return nil, Issues{rootIssue(CodeInvalidType, "", "expected", "string")}
	}
	if s.trim {
		str = strings.TrimSpace(str)
	}
	if str == "" && s.optional {
		return str, nil
	}
	var iss Issues
	n := utf8.RuneCountInString(str)
	if s.minLen != nil && n < *s.minLen {
		if custom, ok := s.msgs[CodeRequired]; ok && n == 0 {
			iss = append(iss, rootIssue(CodeRequired, custom))
		} else {
			iss = append(iss, rootIssue(CodeTooShort, s.msgs[CodeTooShort], "min", *s.minLen, "got", n))
		}
	}
	if s.maxLen != nil && n > *s.maxLen {
		iss = append(iss, rootIssue(CodeTooLong, s.msgs[CodeTooLong], "max", *s.maxLen, "got", n))
	}
	if s.pattern != nil && !s.pattern.MatchString(str) {
		iss = append(iss, rootIssue(CodePattern, s.msgs[CodePattern], "pattern", s.pattern.String()))
	}
	if s.email && !emailRe.MatchString(str) {
		iss = append(iss, rootIssue(CodeInvalidFormat, s.msgs[CodeInvalidFormat], "format", "email"))
	}
	if len(iss) > 0 {
		return nil, iss
	}
	return str, nil
}

func (s *StringSchema) SafeParse(ctx context.Context, v any) ParseResult { return safeParse(ctx, s, v) }

func (s *StringSchema) JSONSchema() *js.Schema {
	out := &js.Schema{Type: "string", MinLength: s.minLen, MaxLength: s.maxLen}
	if s.pattern != nil {
		out.Pattern = s.pattern.String()
	}
	if s.email {
		out.Format = "email"
	}
	return out
}

// NumberSchema validates numbers. Go numeric kinds and json.Number are
// accepted; strings only when Coerce is set.
type NumberSchema struct {
	optional bool
	coerce   bool
	integer  bool
	min      *float64
	max      *float64
	msgs     map[string]string
}

// Number returns a number schema.
func Number() *NumberSchema { return &NumberSchema{msgs: map[string]string{}} }

// Optional accepts nil without running other checks.
func (s *NumberSchema) Optional() *NumberSchema { s.optional = true; return s }

// Coerce accepts numeric strings such as "42" or "3.5".
func (s *NumberSchema) Coerce() *NumberSchema { s.coerce = true; return s }

// Int requires an integral value.
func (s *NumberSchema) Int(msg ...string) *NumberSchema {
	s.integer = true
	s.msgs[CodeNotInteger] = firstMsg(msg)
	return s
}

// Min sets an inclusive minimum.
func (s *NumberSchema) Min(n float64, msg ...string) *NumberSchema {
	s.min = &n
	s.msgs[CodeTooSmall] = firstMsg(msg)
	return s
}

// Max sets an inclusive maximum.
func (s *NumberSchema) Max(n float64, msg ...string) *NumberSchema {
	s.max = &n
	s.msgs[CodeTooBig] = firstMsg(msg)
	return s
}

func (s *NumberSchema) Parse(ctx context.Context, v any) (any, error) {
	if v == nil && s.optional {
		return nil, nil
	}
	f, ok := toFloat(v, s.coerce)
	if !ok {
		return nil, Issues{rootIssue(CodeInvalidType, "", "expected", "number")}
	}
	var iss Issues
	if s.integer && f != math.Trunc(f) {
		iss = append(iss, rootIssue(CodeNotInteger, s.msgs[CodeNotInteger], "got", f))
	}
	if s.min != nil && f < *s.min {
		iss = append(iss, rootIssue(CodeTooSmall, s.msgs[CodeTooSmall], "min", formatFloat(*s.min), "got", f))
	}
	if s.max != nil && f > *s.max {
		iss = append(iss, rootIssue(CodeTooBig, s.msgs[CodeTooBig], "max", formatFloat(*s.max), "got", f))
	}
	if len(iss) > 0 {
		return nil, iss
	}
	return f, nil
}

func (s *NumberSchema) SafeParse(ctx context.Context, v any) ParseResult { return safeParse(ctx, s, v) }

func (s *NumberSchema) JSONSchema() *js.Schema {
	typ := "number"
	if s.integer {
		typ = "integer"
	}
	return &js.Schema{Type: typ, Minimum: s.min, Maximum: s.max}
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func toFloat(v any, coerce bool) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		if !coerce {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// BoolSchema validates booleans.
type BoolSchema struct {
	optional bool
	mustTrue bool
	msg      string
}

// Bool returns a boolean schema.
func Bool() *BoolSchema { return &BoolSchema{} }

// Optional accepts nil.
func (s *BoolSchema) Optional() *BoolSchema { s.optional = true; return s }

// True requires the value to be true (e.g. an "accept terms" checkbox).
func (s *BoolSchema) True(msg ...string) *BoolSchema {
	s.mustTrue = true
	s.msg = firstMsg(msg)
	return s
}

func (s *BoolSchema) Parse(ctx context.Context, v any) (any, error) {
	if v == nil && s.optional {
		return nil, nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil, Issues{rootIssue(CodeInvalidType, "", "expected", "boolean")}
	}
	if s.mustTrue && !b {
		return nil, Issues{rootIssue(CodeRequired, s.msg)}
	}
	return b, nil
}

func (s *BoolSchema) SafeParse(ctx context.Context, v any) ParseResult { return safeParse(ctx, s, v) }

func (s *BoolSchema) JSONSchema() *js.Schema {
	out := &js.Schema{Type: "boolean"}
	if s.mustTrue {
		out.Enum = []any{true}
	}
	return out
}

// EnumSchema accepts one of a fixed set of strings.
type EnumSchema struct {
	options  []string
	optional bool
	msg      string
}

// Enum returns a schema accepting exactly the given options.
func Enum(options ...string) *EnumSchema { return &EnumSchema{options: options} }

// Optional accepts nil and the empty string.
func (s *EnumSchema) Optional() *EnumSchema { s.optional = true; return s }

// Message overrides the invalid_enum message.
func (s *EnumSchema) Message(msg string) *EnumSchema { s.msg = msg; return s }

func (s *EnumSchema) Parse(ctx context.Context, v any) (any, error) {
	if s.optional && (v == nil || v == "") {
		return v, nil
	}
	str, ok := v.(string)
	if !ok {
		return nil, Issues{rootIssue(CodeInvalidType, "", "expected", "string")}
	}
	for _, o := range s.options {
		if o == str {
			return str, nil
		}
	}
	return nil, Issues{rootIssue(CodeInvalidEnum, s.msg, "options", strings.Join(s.options, ", "))}
}

func (s *EnumSchema) SafeParse(ctx context.Context, v any) ParseResult { return safeParse(ctx, s, v) }

func (s *EnumSchema) JSONSchema() *js.Schema {
	enum := make([]any, len(s.options))
	for i, o := range s.options {
		enum[i] = o
	}
	return &js.Schema{Type: "string", Enum: enum}
}
