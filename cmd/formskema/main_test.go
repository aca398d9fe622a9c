package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
)

const defYAML = `
name: signup
fields:
  - name: email
    required: true
    format: email
  - name: age
    type: integer
    min: 18
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	def := writeFile(t, dir, "signup.yaml", defYAML)
	bad := writeFile(t, dir, "bad.json", `{"email": "nope", "age": 17}`)
	good := writeFile(t, dir, "good.json", `{"email": "ada@example.com", "age": 30}`)

	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"validate", "-def", def, "-data", bad}, nil, &out, &errOut)
	if code != exitInvalid {
		t.Fatalf("exit = %d stderr=%s", code, errOut.String())
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "age: ") || !strings.HasPrefix(lines[1], "email: ") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}

	out.Reset()
	code = run(context.Background(), []string{"validate", "-def", def, "-data", good}, nil, &out, &errOut)
	if code != exitOK || strings.TrimSpace(out.String()) != "valid" {
		t.Fatalf("exit = %d out=%q", code, out.String())
	}
}

func TestValidateCommand_JSONFromStdin(t *testing.T) {
	dir := t.TempDir()
	def := writeFile(t, dir, "signup.yaml", defYAML)
	var out, errOut bytes.Buffer
	stdin := strings.NewReader(`{"email": "ada@example.com", "age": 12}`)
	code := run(context.Background(), []string{"validate", "-def", def, "-data", "-", "-json"}, stdin, &out, &errOut)
	if code != exitInvalid {
		t.Fatalf("exit = %d stderr=%s", code, errOut.String())
	}
	var rep report
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
	if rep.Valid || len(rep.Errors) != 1 || rep.Errors["age"] == "" {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestSchemaCommand(t *testing.T) {
	dir := t.TempDir()
	def := writeFile(t, dir, "signup.yaml", defYAML)
	var out, errOut bytes.Buffer
	if code := run(context.Background(), []string{"schema", "-def", def}, nil, &out, &errOut); code != exitOK {
		t.Fatalf("exit = %d stderr=%s", code, errOut.String())
	}
	var doc struct {
		Schema     string                    `json:"$schema"`
		Title      string                    `json:"title"`
		Required   []string                  `json:"required"`
		Properties map[string]map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Title != "signup" || !strings.Contains(doc.Schema, "2020-12") {
		t.Fatalf("unexpected header: %+v", doc)
	}
	if diff := cmp.Diff([]string{"email"}, doc.Required); diff != "" {
		t.Fatalf("required (-want +got):\n%s", diff)
	}
	if doc.Properties["age"]["type"] != "integer" {
		t.Fatalf("unexpected age: %v", doc.Properties["age"])
	}
}

func TestUsageAndErrors(t *testing.T) {
	var out, errOut bytes.Buffer
	cases := []struct {
		args []string
		want int
	}{
		{nil, exitUsage},
		{[]string{"frobnicate"}, exitUsage},
		{[]string{"validate"}, exitUsage},
		{[]string{"validate", "-def", "/does/not/exist.yaml"}, exitError},
		{[]string{"help"}, exitOK},
	}
	for _, tc := range cases {
		if got := run(context.Background(), tc.args, nil, &out, &errOut); got != tc.want {
			t.Fatalf("run(%v) = %d, want %d", tc.args, got, tc.want)
		}
	}
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestWatchCommand_RevalidatesOnChange(t *testing.T) {
	dir := t.TempDir()
	def := writeFile(t, dir, "signup.yaml", defYAML)
	data := writeFile(t, dir, "values.json", `{"email": "nope", "age": 30}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var out, errOut syncBuffer
	done := make(chan int, 1)
	go func() { done <- run(ctx, []string{"watch", "-def", def, "-data", data}, nil, &out, &errOut) }()

	waitFor(t, func() bool { return strings.Contains(out.String(), "email: ") })
	writeFile(t, dir, "values.json", `{"email": "ada@example.com", "age": 30}`)
	waitFor(t, func() bool { return strings.Contains(out.String(), "valid\n") })

	cancel()
	select {
	case code := <-done:
		if code != exitOK {
			t.Fatalf("exit = %d stderr=%s", code, errOut.String())
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watch did not stop")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
