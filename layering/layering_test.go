package layering

import (
	"reflect"
	"testing"
)

type limits struct {
	Daily   int
	Monthly *int
}

type settings struct {
	Name    string
	Tags    []string
	Limits  *limits
	Extra   map[string]any
	Payload any
	hidden  []int
}

func intPtr(v int) *int { return &v }

func TestCloneDeepCopiesStateTrees(t *testing.T) {
	original := map[string]any{
		"user": map[string]any{"name": "ada"},
		"list": []any{map[string]any{"id": 1}},
		"nil":  nil,
	}
	cloned := Clone(original)

	if !reflect.DeepEqual(original, cloned) {
		t.Fatalf("expected equal clone, got %#v", cloned)
	}
	cloned["user"].(map[string]any)["name"] = "changed"
	cloned["list"].([]any)[0].(map[string]any)["id"] = 2
	if original["user"].(map[string]any)["name"] != "ada" {
		t.Fatalf("expected nested mapping detached")
	}
	if original["list"].([]any)[0].(map[string]any)["id"] != 1 {
		t.Fatalf("expected nested sequence detached")
	}
	if _, ok := cloned["nil"]; !ok {
		t.Fatalf("expected nil entries preserved")
	}
}

func TestCloneAnyValues(t *testing.T) {
	var nothing any
	if got := Clone(nothing); got != nil {
		t.Fatalf("expected nil clone, got %#v", got)
	}
	var boxed any = []any{1, "x"}
	got := Clone(boxed)
	if !reflect.DeepEqual(got, boxed) {
		t.Fatalf("expected equal clone, got %#v", got)
	}
	got.([]any)[0] = 9
	if boxed.([]any)[0] != 1 {
		t.Fatalf("expected boxed slice detached")
	}
	if Clone(42) != 42 || Clone("s") != "s" {
		t.Fatalf("expected scalars returned as is")
	}
}

func TestCloneStructs(t *testing.T) {
	original := settings{
		Name:   "base",
		Tags:   []string{"a"},
		Limits: &limits{Daily: 1, Monthly: intPtr(10)},
		Extra:  map[string]any{"k": []any{1}},
		hidden: []int{1},
	}
	cloned := Clone(original)

	cloned.Tags[0] = "b"
	*cloned.Limits.Monthly = 20
	cloned.Extra["k"].([]any)[0] = 2
	if original.Tags[0] != "a" || *original.Limits.Monthly != 10 || original.Extra["k"].([]any)[0] != 1 {
		t.Fatalf("expected struct clone detached, got %#v", original)
	}
	if len(cloned.hidden) != 1 {
		t.Fatalf("expected unexported fields shallow copied")
	}
}

func TestMergeLayersStrongestFirst(t *testing.T) {
	strong := settings{
		Name:   "user",
		Extra:  map[string]any{"theme": "dark"},
		Limits: &limits{Daily: 5},
	}
	weak := settings{
		Name:    "defaults",
		Tags:    []string{"default"},
		Extra:   map[string]any{"theme": "light", "lang": "en"},
		Limits:  &limits{Daily: 1, Monthly: intPtr(30)},
		Payload: map[string]any{"v": 1},
	}

	merged := MergeLayers(strong, weak)

	if merged.Name != "user" {
		t.Fatalf("expected strong scalar to win, got %q", merged.Name)
	}
	if !reflect.DeepEqual(merged.Tags, []string{"default"}) {
		t.Fatalf("expected nil slice to fall through, got %#v", merged.Tags)
	}
	if merged.Extra["theme"] != "dark" || merged.Extra["lang"] != "en" {
		t.Fatalf("expected maps merged key by key, got %#v", merged.Extra)
	}
	if merged.Limits.Daily != 5 || merged.Limits.Monthly == nil || *merged.Limits.Monthly != 30 {
		t.Fatalf("expected pointers merged, got %#v", merged.Limits)
	}
	if !reflect.DeepEqual(merged.Payload, map[string]any{"v": 1}) {
		t.Fatalf("expected nil interface to fall through, got %#v", merged.Payload)
	}

	*merged.Limits.Monthly = 1
	if *weak.Limits.Monthly != 30 {
		t.Fatalf("expected merged result detached from layers")
	}
}

func TestMergeLayersSlicesReplace(t *testing.T) {
	merged := MergeLayers(
		map[string]any{"list": []any{"strong"}},
		map[string]any{"list": []any{"weak", "weaker"}, "only": true},
	)
	if !reflect.DeepEqual(merged, map[string]any{"list": []any{"strong"}, "only": true}) {
		t.Fatalf("unexpected merge %#v", merged)
	}
}

func TestMergeLayersEmpty(t *testing.T) {
	if got := MergeLayers[map[string]any](); got != nil {
		t.Fatalf("expected zero value, got %#v", got)
	}
	single := MergeLayers(map[string]any{"a": 1})
	if single["a"] != 1 {
		t.Fatalf("expected single layer copy, got %#v", single)
	}
}
