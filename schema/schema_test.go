package schema_test

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/reoring/formskema/schema"
)

func codesAt(iss schema.Issues) map[string]string {
	out := map[string]string{}
	for _, it := range iss {
		out[it.Path] = it.Code
	}
	return out
}

func TestPrimitives_Basics(t *testing.T) {
	ctx := context.Background()

	if v, err := schema.String().Parse(ctx, "hello"); err != nil || v != "hello" {
		t.Fatalf("string parse ok expected, got v=%v err=%v", v, err)
	}
	if _, err := schema.String().Parse(ctx, 1); err == nil {
		t.Fatalf("expected invalid_type for non-string")
	}
	if v, err := schema.Bool().Parse(ctx, true); err != nil || v != true {
		t.Fatalf("bool parse ok expected, got v=%v err=%v", v, err)
	}
	if _, err := schema.Bool().True("accept the terms").Parse(ctx, false); err == nil {
		t.Fatalf("expected error for unchecked box")
	}

	// numbers: Go kinds and json.Number, strings only when coerced
	for _, in := range []any{3, int64(3), 3.0, float32(3), json.Number("3")} {
		if v, err := schema.Number().Parse(ctx, in); err != nil || v != 3.0 {
			t.Fatalf("number parse of %T expected 3, got v=%v err=%v", in, v, err)
		}
	}
	if _, err := schema.Number().Parse(ctx, "3"); err == nil {
		t.Fatalf("expected invalid_type for string without Coerce")
	}
	if v, err := schema.Number().Coerce().Parse(ctx, " 3.5 "); err != nil || v != 3.5 {
		t.Fatalf("coerced parse expected 3.5, got v=%v err=%v", v, err)
	}
	if _, err := schema.Number().Int().Parse(ctx, 1.5); err == nil {
		t.Fatalf("expected not_integer")
	}
}

func TestString_Constraints(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		s    schema.Schema
		in   any
		code string
	}{
		{"min", schema.String().Min(3), "ab", schema.CodeTooShort},
		{"min counts runes", schema.String().Min(3), "日本語", ""},
		{"max", schema.String().Max(2), "abc", schema.CodeTooLong},
		{"pattern", schema.String().Pattern(regexp.MustCompile(`^\d+$`)), "x1", schema.CodePattern},
		{"email", schema.String().Email(), "nope", schema.CodeInvalidFormat},
		{"email ok", schema.String().Email(), "a@b.io", ""},
		{"non empty", schema.String().NonEmpty(), "", schema.CodeRequired},
		{"optional empty", schema.String().Min(3).Optional(), "", ""},
		{"optional nil", schema.String().Optional(), nil, ""},
		{"trim", schema.String().Trim().Min(1), "   ", schema.CodeTooShort},
		{"enum", schema.Enum("a", "b"), "c", schema.CodeInvalidEnum},
		{"enum ok", schema.Enum("a", "b"), "b", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := tc.s.SafeParse(ctx, tc.in)
			if tc.code == "" {
				if !res.Success {
					t.Fatalf("expected success, got %v", res.Error)
				}
				return
			}
			if res.Success {
				t.Fatalf("expected %s, got success", tc.code)
			}
			if res.Error[0].Code != tc.code || res.Error[0].Path != "/" {
				t.Fatalf("expected %s at /, got %+v", tc.code, res.Error[0])
			}
		})
	}
}

func TestMessages_CustomAndCatalog(t *testing.T) {
	ctx := context.Background()
	res := schema.String().Min(3, "too short!").SafeParse(ctx, "a")
	if res.Error[0].Message != "too short!" {
		t.Fatalf("custom message not used: %q", res.Error[0].Message)
	}
	res = schema.Number().Min(18).SafeParse(ctx, 3)
	if res.Error[0].Message != "must be at least 18" {
		t.Fatalf("catalog message not interpolated: %q", res.Error[0].Message)
	}
}

func TestArray_ElementIssuesCarryIndex(t *testing.T) {
	ctx := context.Background()
	tags := schema.Array(schema.String().Min(2)).Min(1)

	if _, err := tags.Parse(ctx, []any{}); err == nil {
		t.Fatalf("expected too_few_items")
	}
	res := tags.SafeParse(ctx, []any{"ok", "x", 3})
	want := map[string]string{"/1": schema.CodeTooShort, "/2": schema.CodeInvalidType}
	if diff := cmp.Diff(want, codesAt(res.Error)); diff != "" {
		t.Fatalf("issues mismatch (-want +got):\n%s", diff)
	}
	// typed slices are accepted
	if _, err := tags.Parse(ctx, []string{"ab"}); err != nil {
		t.Fatalf("unexpected err for []string: %v", err)
	}
}

func TestObject_RequiredNestedAndPassthrough(t *testing.T) {
	ctx := context.Background()
	friend := schema.Object().
		Field("name", schema.String().Min(1)).Required().
		MustBuild()
	s := schema.Object().
		Field("firstName", schema.String()).Required("first name is required").
		Field("age", schema.Number().Min(0)).
		Field("friends", schema.Array(friend)).
		MustBuild()

	res := s.SafeParse(ctx, map[string]any{
		"firstName": nil,
		"age":       -1,
		"friends":   []any{map[string]any{"name": "a"}, map[string]any{}},
	})
	want := map[string]string{
		"/firstName":      schema.CodeRequired,
		"/age":            schema.CodeTooSmall,
		"/friends/1/name": schema.CodeRequired,
	}
	if diff := cmp.Diff(want, codesAt(res.Error)); diff != "" {
		t.Fatalf("issues mismatch (-want +got):\n%s", diff)
	}
	for _, it := range res.Error {
		if it.Path == "/firstName" && it.Message != "first name is required" {
			t.Fatalf("custom required message lost: %q", it.Message)
		}
	}

	v, err := s.Parse(ctx, map[string]any{"firstName": "Ada", "extra": 1})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"firstName": "Ada", "extra": 1}, v); diff != "" {
		t.Fatalf("unknown keys should pass through (-want +got):\n%s", diff)
	}
}

func TestObject_RefineRunsAfterFields(t *testing.T) {
	ctx := context.Background()
	calls := 0
	s := schema.Object().
		Field("password", schema.String().Min(1)).Required().
		Field("confirm", schema.String()).Required().
		Refine("password==confirm", func(ctx context.Context, v map[string]any) error {
			calls++
			if v["password"] != v["confirm"] {
				return schema.Issues{schema.At("/confirm").Issue(schema.CodeMismatch, "passwords differ")}
			}
			return nil
		}).
		MustBuild()

	if _, err := s.Parse(ctx, map[string]any{"password": "", "confirm": "x"}); err == nil {
		t.Fatalf("expected field error")
	}
	if calls != 0 {
		t.Fatalf("refine should not run while fields fail, ran %d times", calls)
	}
	res := s.SafeParse(ctx, map[string]any{"password": "x", "confirm": "y"})
	if res.Success || res.Error[0].Path != "/confirm" || res.Error[0].Message != "passwords differ" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRefine_PlainErrorBecomesCustomIssue(t *testing.T) {
	ctx := context.Background()
	s := schema.Refine(schema.String(), func(ctx context.Context, v any) error {
		if v == "admin" {
			return errReserved
		}
		return nil
	})
	res := s.SafeParse(ctx, "admin")
	if res.Success || res.Error[0].Code != schema.CodeCustom || res.Error[0].Message != "reserved" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !schema.Is(ctx, s, "bob") {
		t.Fatalf("bob should pass")
	}
}

type reservedErr struct{}

func (reservedErr) Error() string { return "reserved" }

var errReserved = reservedErr{}

func TestIssues_ErrorSummary(t *testing.T) {
	iss := schema.Issues{
		{Path: "/a", Code: "x"}, {Path: "/b", Code: "y"},
		{Path: "/c", Code: "z"}, {Path: "/d", Code: "w"},
	}
	want := "x at /a; y at /b; z at /c; ... (total 4)"
	if got := iss.Error(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if _, ok := schema.AsIssues(error(iss)); !ok {
		t.Fatalf("AsIssues should unwrap Issues")
	}
}

func TestJSONSchemaExport(t *testing.T) {
	s := schema.Object().
		Field("name", schema.String().Min(1)).Required().
		Field("age", schema.Number().Int().Min(0)).
		Field("tags", schema.Array(schema.Enum("a", "b")).Max(2)).
		MustBuild()
	got := s.JSONSchema()
	if got.Type != "object" || len(got.Required) != 1 || got.Required[0] != "name" {
		t.Fatalf("unexpected root: %+v", got)
	}
	if got.Properties["age"].Type != "integer" || *got.Properties["age"].Minimum != 0 {
		t.Fatalf("unexpected age: %+v", got.Properties["age"])
	}
	if *got.Properties["tags"].MaxItems != 2 || len(got.Properties["tags"].Items.Enum) != 2 {
		t.Fatalf("unexpected tags: %+v", got.Properties["tags"])
	}
}
