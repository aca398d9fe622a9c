package formdef_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/reoring/formskema/formdef"
)

const signup = `
name: signup
defaults:
  age: 17
fields:
  - name: email
    required: true
    format: email
  - name: age
    type: integer
    min: 18
  - name: password
    required: true
    message: password is required
  - name: confirm
rules:
  - matches: {path: confirm, other: password}
    message: passwords differ
`

func TestParseYAML_BuildsWorkingForm(t *testing.T) {
	def, err := formdef.ParseYAML([]byte(signup))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	f, err := def.New()
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	defer f.Close()

	res := f.Validate(context.Background())
	if res.Valid {
		t.Fatalf("expected invalid defaults")
	}
	if res.Errors["email"] == "" || !strings.Contains(res.Errors["age"], "18") || res.Errors["password"] != "password is required" {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}

	f.SetValue("email", "ada@example.com")
	f.SetValue("age", 20)
	f.SetValue("password", "s3cret")
	f.SetValue("confirm", "other")
	res = f.Validate(context.Background())
	if diff := cmp.Diff(map[string]string{"confirm": "passwords differ"}, res.Errors); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	f.SetValue("confirm", "s3cret")
	if res := f.Validate(context.Background()); !res.Valid {
		t.Fatalf("expected valid, got %v", res.Errors)
	}
}

func TestFieldTagsAndLua(t *testing.T) {
	def, err := formdef.ParseYAML([]byte(`
fields:
  - name: username
    tags: "alphanum,min=3"
    lua: 'return value ~= "admin" or "reserved"'
`))
	if err != nil {
		t.Fatal(err)
	}
	f, err := def.New()
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	f.SetValue("username", "ab")
	if f.State().Errors["username"] == "" {
		t.Fatalf("expected tag error, got %v", f.State().Errors)
	}
	f.SetValue("username", "admin")
	if got := f.State().Errors["username"]; got != "reserved" {
		t.Fatalf("expected lua error, got %q", got)
	}
	f.SetValue("username", "alice")
	if len(f.State().Errors) != 0 {
		t.Fatalf("expected no errors, got %v", f.State().Errors)
	}
}

func TestAsyncFieldWithDebounce(t *testing.T) {
	def, err := formdef.ParseYAML([]byte(`
debounce: 10ms
fields:
  - name: code
    lua: 'return value == "ok" or "bad code"'
    async: true
`))
	if err != nil {
		t.Fatal(err)
	}
	opts, err := def.Options()
	if err != nil {
		t.Fatal(err)
	}
	cfg := opts.FieldValidators["code"]
	if cfg == nil || cfg.OnChangeAsync == nil || cfg.OnChange != nil || cfg.AsyncDebounce != 10*time.Millisecond {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	f, err := def.New()
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	f.SetValue("code", "nope")
	if err := f.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := f.State().Errors["code"]; got != "bad code" {
		t.Fatalf("expected async error, got %q", got)
	}
}

func TestJSONSchemaBlock(t *testing.T) {
	def, err := formdef.ParseYAML([]byte(`
json_schema:
  type: object
  properties:
    qty: {type: integer, minimum: 1}
  required: [qty]
`))
	if err != nil {
		t.Fatal(err)
	}
	f, err := def.New()
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	res := f.Validate(context.Background())
	if res.Errors["qty"] == "" {
		t.Fatalf("expected qty error, got %v", res.Errors)
	}
	f.SetValue("qty", 2)
	if res := f.Validate(context.Background()); !res.Valid {
		t.Fatalf("expected valid, got %v", res.Errors)
	}
}

func TestParseYAML_DuplicateKey(t *testing.T) {
	_, err := formdef.ParseYAML([]byte("name: a\nname: b\n"))
	var dup *formdef.DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateKeyError, got %v", err)
	}
	if dup.Key != "name" || dup.Line != 2 || dup.FirstLine != 1 {
		t.Fatalf("unexpected positions: %+v", dup)
	}
}

func TestParse_RejectsBadDefinitions(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{"unknown key", `{"fields": [], "colour": "red"}`, "colour"},
		{"unknown type", `{"fields": [{"name": "a", "type": "money"}]}`, "unknown type"},
		{"enum without options", `{"fields": [{"name": "a", "type": "enum"}]}`, "options"},
		{"array without items", `{"fields": [{"name": "a", "type": "array"}]}`, "items"},
		{"duplicate field", `{"fields": [{"name": "a"}, {"name": "a"}]}`, "duplicate"},
		{"two rules in one", `{"rules": [{"at_least_one": "a", "matches": {"path": "b", "other": "c"}}]}`, "exactly one"},
		{"bad event", `{"fields": [{"name": "a", "on": "hover"}]}`, "unknown event"},
		{"bad validate_on", `{"validate_on": "always"}`, "validate_on"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := formdef.ParseJSON([]byte(tc.src))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestOptions_CompileErrors(t *testing.T) {
	cases := []string{
		`{"fields": [{"name": "a", "pattern": "("}]}`,
		`{"fields": [{"name": "a", "lua": "return ("}]}`,
		`{"lua": "if then"}`,
		`{"fields": [{"name": "a", "format": "uuid"}]}`,
	}
	for _, src := range cases {
		def, err := formdef.ParseJSON([]byte(src))
		if err != nil {
			t.Fatalf("parse %s: %v", src, err)
		}
		if _, err := def.Options(); err == nil {
			t.Fatalf("expected compile error for %s", src)
		}
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	yml := filepath.Join(dir, "signup.yaml")
	if err := os.WriteFile(yml, []byte(signup), 0o644); err != nil {
		t.Fatal(err)
	}
	js := filepath.Join(dir, "order.json")
	if err := os.WriteFile(js, []byte(`{"name":"order","validate_on":"onChange","debounce":250,"fields":[{"name":"items","type":"array","min":1,"items":{"type":"object","fields":[{"name":"sku","required":true}]}}],"rules":[{"unique_by":{"path":"items","key":"sku"}}]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	def, err := formdef.Load(yml)
	if err != nil {
		t.Fatal(err)
	}
	if def.Name != "signup" || len(def.Fields) != 4 {
		t.Fatalf("unexpected definition: %+v", def)
	}

	def, err = formdef.Load(js)
	if err != nil {
		t.Fatal(err)
	}
	if def.ValidateOn != "onChange" || time.Duration(def.Debounce) != 250*time.Millisecond {
		t.Fatalf("unexpected definition: %+v", def)
	}
	f, err := def.New()
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	f.AddArrayItem("items", map[string]any{"sku": "A"})
	f.AddArrayItem("items", map[string]any{"sku": "A"})
	res := f.Validate(context.Background())
	if res.Errors["items[1].sku"] == "" {
		t.Fatalf("expected duplicate sku error, got %v", res.Errors)
	}

	if _, err := formdef.Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSchemaExport(t *testing.T) {
	def, err := formdef.ParseYAML([]byte(signup))
	if err != nil {
		t.Fatal(err)
	}
	obj, err := def.Schema()
	if err != nil {
		t.Fatal(err)
	}
	js := obj.JSONSchema()
	if diff := cmp.Diff([]string{"email", "password"}, js.Required); diff != "" {
		t.Fatalf("required (-want +got):\n%s", diff)
	}
	if js.Properties["email"].Format != "email" || js.Properties["age"].Type != "integer" {
		t.Fatalf("unexpected properties: %+v", js.Properties)
	}
}
