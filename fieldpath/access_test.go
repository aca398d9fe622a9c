package fieldpath_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/reoring/formskema/fieldpath"
)

func sampleTree() map[string]any {
	return map[string]any{
		"name": "acme",
		"address": map[string]any{
			"city": "Kyoto",
			"zip":  "600-0000",
		},
		"employees": []any{
			map[string]any{"name": "a", "friends": []any{map[string]any{"name": "x"}}},
			map[string]any{"name": "b"},
		},
		"tags": []any{"x", "y"},
	}
}

func TestGet(t *testing.T) {
	root := sampleTree()
	cases := []struct {
		path string
		want any
		ok   bool
	}{
		{"name", "acme", true},
		{"address.city", "Kyoto", true},
		{"employees[0].friends[0].name", "x", true},
		{"employees.1.name", "b", true},
		{"tags[1]", "y", true},
		{"employees[5].name", nil, false},
		{"employees[-1]", nil, false},
		{"address.city.length", nil, false},
		{"missing.deep.path", nil, false},
		{"tags.first", nil, false},
	}
	for _, c := range cases {
		got, ok := fieldpath.Get(root, c.path)
		if ok != c.ok || got != c.want {
			t.Errorf("Get(%q) = (%v, %v), want (%v, %v)", c.path, got, ok, c.want, c.ok)
		}
	}
	if got, ok := fieldpath.Get(root, ""); !ok || !fieldpath.SameRef(got, root) {
		t.Fatalf("empty path should return root")
	}
	if _, ok := fieldpath.Get(nil, "a"); ok {
		t.Fatalf("Get on nil root must report missing")
	}
}

func TestSet_RoundTrip(t *testing.T) {
	root := sampleTree()
	values := []struct {
		path string
		v    any
	}{
		{"name", "globex"},
		{"address.city", "Osaka"},
		{"employees[1].friends[0].name", "z"},
		{"brand.new.path", 42},
		{"list[2]", true},
		{"tags.0", "first"},
	}
	for _, c := range values {
		next := fieldpath.Set(root, c.path, c.v)
		got, ok := fieldpath.Get(next, c.path)
		if !ok || got != c.v {
			t.Errorf("Get(Set(%q)) = (%v, %v), want %v", c.path, got, ok, c.v)
		}
	}
}

func TestSet_CopyOnWriteIsolation(t *testing.T) {
	root := sampleTree()
	next := fieldpath.Set(root, "employees[0].name", "changed").(map[string]any)

	if fieldpath.SameRef(next, root) {
		t.Fatalf("root must get a new reference")
	}
	if !fieldpath.SameRef(next["address"], root["address"]) {
		t.Fatalf("unrelated subtree address must keep its reference")
	}
	if !fieldpath.SameRef(next["tags"], root["tags"]) {
		t.Fatalf("unrelated subtree tags must keep its reference")
	}
	if fieldpath.SameRef(next["employees"], root["employees"]) {
		t.Fatalf("employees lies on the path and must be cloned")
	}
	oldEmp := root["employees"].([]any)
	newEmp := next["employees"].([]any)
	if !fieldpath.SameRef(newEmp[1], oldEmp[1]) {
		t.Fatalf("sibling array element must keep its reference")
	}
	if got, _ := fieldpath.Get(root, "employees[0].name"); got != "a" {
		t.Fatalf("original tree was mutated: %v", got)
	}
}

func TestSet_CreatesContainersFromNextSegment(t *testing.T) {
	got := fieldpath.Set(map[string]any{}, "rows[1].cells.0", "v")
	want := map[string]any{
		"rows": []any{nil, map[string]any{"cells": []any{"v"}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Set mismatch (-want +got):\n%s", diff)
	}
}

func TestSet_OverwritesScalarInTheWay(t *testing.T) {
	root := map[string]any{"a": "scalar"}
	got := fieldpath.Set(root, "a.b", 1)
	want := map[string]any{"a": map[string]any{"b": 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Set mismatch (-want +got):\n%s", diff)
	}
}

func TestSet_InvalidWritesAreNoOps(t *testing.T) {
	root := map[string]any{"tags": []any{"x"}}
	if got := fieldpath.Set(root, "tags[-1]", "y"); !fieldpath.SameRef(got, root) {
		t.Fatalf("negative index should leave root untouched")
	}
	if got := fieldpath.Set(root, "tags.name", "y"); !fieldpath.SameRef(got, root) {
		t.Fatalf("key on array should leave root untouched")
	}
}

func TestAddArrayItem(t *testing.T) {
	root := map[string]any{"items": []any{}, "other": map[string]any{"k": 1}}
	item := map[string]any{"name": "x", "price": 1}
	next := fieldpath.AddArrayItem(root, "items", item).(map[string]any)

	items := next["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}
	if diff := cmp.Diff(item, items[0]); diff != "" {
		t.Fatalf("added item mismatch (-want +got):\n%s", diff)
	}
	if fieldpath.SameRef(next["items"], root["items"]) || fieldpath.SameRef(next, root) {
		t.Fatalf("items and root must get new references")
	}
	if !fieldpath.SameRef(next["other"], root["other"]) {
		t.Fatalf("unrelated subtree must keep its reference")
	}

	created := fieldpath.AddArrayItem(map[string]any{}, "a.list", "v")
	if got, _ := fieldpath.Get(created, "a.list[0]"); got != "v" {
		t.Fatalf("AddArrayItem should create the missing array, got %v", created)
	}
}

func TestAddArrayItem_DoesNotAliasBackingArray(t *testing.T) {
	backing := make([]any, 1, 8)
	backing[0] = "a"
	root := map[string]any{"items": backing}
	first := fieldpath.AddArrayItem(root, "items", "b")
	second := fieldpath.AddArrayItem(root, "items", "c")
	if got, _ := fieldpath.Get(first, "items[1]"); got != "b" {
		t.Fatalf("first append clobbered: %v", got)
	}
	if got, _ := fieldpath.Get(second, "items[1]"); got != "c" {
		t.Fatalf("second append = %v", got)
	}
}

func TestRemoveArrayItem(t *testing.T) {
	root := map[string]any{"items": []any{"first", "second"}}
	next := fieldpath.RemoveArrayItem(root, "items", 0).(map[string]any)
	items := next["items"].([]any)
	if len(items) != 1 || items[0] != "second" {
		t.Fatalf("items = %v, want [second]", items)
	}
	if len(root["items"].([]any)) != 2 {
		t.Fatalf("original array must not change")
	}

	for _, idx := range []int{-1, 2, 10} {
		if got := fieldpath.RemoveArrayItem(root, "items", idx); !fieldpath.SameRef(got, root) {
			t.Errorf("RemoveArrayItem(%d) should be a no-op", idx)
		}
	}
	if got := fieldpath.RemoveArrayItem(root, "missing", 0); !fieldpath.SameRef(got, root) {
		t.Fatalf("missing array should be a no-op")
	}
}

func TestDelete(t *testing.T) {
	root := sampleTree()
	next := fieldpath.Delete(root, "address.zip")
	if _, ok := fieldpath.Get(next, "address.zip"); ok {
		t.Fatalf("address.zip should be gone")
	}
	if _, ok := fieldpath.Get(root, "address.zip"); !ok {
		t.Fatalf("original must keep address.zip")
	}
	next = fieldpath.Delete(root, "employees[0]")
	if got, _ := fieldpath.Get(next, "employees[0].name"); got != "b" {
		t.Fatalf("array delete should splice, got %v", got)
	}
	if got := fieldpath.Delete(root, "nope.nothing"); !fieldpath.SameRef(got, root) {
		t.Fatalf("missing delete should be a no-op")
	}
}

func TestNormalize(t *testing.T) {
	in := map[string]any{
		"rows":  []map[string]any{{"a": 1}},
		"names": []string{"x", "y"},
		"meta":  map[string]string{"k": "v"},
		"raw":   []byte("ok"),
	}
	got := fieldpath.Normalize(in)
	want := map[string]any{
		"rows":  []any{map[string]any{"a": 1}},
		"names": []any{"x", "y"},
		"meta":  map[string]any{"k": "v"},
		"raw":   []byte("ok"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Normalize mismatch (-want +got):\n%s", diff)
	}
}

func TestSameRefAndShallowEqual(t *testing.T) {
	m := map[string]any{"a": 1}
	if !fieldpath.SameRef(m, m) {
		t.Fatalf("same map should be SameRef")
	}
	if fieldpath.SameRef(m, map[string]any{"a": 1}) {
		t.Fatalf("distinct maps must not be SameRef")
	}
	if !fieldpath.SameRef("x", "x") || fieldpath.SameRef(1, 1.0) {
		t.Fatalf("scalar comparison broken")
	}
	child := map[string]any{"k": "v"}
	a := []any{child, "s"}
	b := []any{child, "s"}
	if fieldpath.SameRef(a, b) {
		t.Fatalf("distinct slices must not be SameRef")
	}
	if !fieldpath.ShallowEqual(a, b) {
		t.Fatalf("slices with identical elements should be ShallowEqual")
	}
	if fieldpath.ShallowEqual(a, []any{map[string]any{"k": "v"}, "s"}) {
		t.Fatalf("different element references must not be ShallowEqual")
	}
}
