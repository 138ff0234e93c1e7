package hydrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"
)

func TestDecoderFromFixtures(t *testing.T) {
	fx := loadFixture(t, "hydrate_slices.json")

	for _, tc := range fx.Cases {
		t.Run(tc.Name, func(t *testing.T) {
			decoder := NewDecoder[profile](buildOptions(tc)...)

			result, err := decoder.Decode(Context{Namespace: tc.Namespace}, tc.Input)

			if tc.ExpectErr != "" {
				if err == nil {
					t.Fatalf("expected error %q, got nil", tc.ExpectErr)
				}
				if !strings.Contains(err.Error(), tc.ExpectErr) {
					t.Fatalf("expected error containing %q, got %v", tc.ExpectErr, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected decode error: %v", err)
			}

			if !reflect.DeepEqual(tc.Expect, result) {
				t.Fatalf("decoded slice mismatch:\nwant: %#v\n got: %#v", tc.Expect, result)
			}
		})
	}
}

func TestDecoderDoesNotMutatePayload(t *testing.T) {
	payload := map[string]any{"name": "ada", "range": "1-2"}
	decoder := NewDecoder[profile](WithPreHook[profile](rangeSplitPreHook))

	if _, err := decoder.Decode(Context{Namespace: "ns"}, payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload["range"] != "1-2" {
		t.Fatalf("expected caller payload untouched, got %#v", payload["range"])
	}
}

func TestDecoderScalarPayload(t *testing.T) {
	decoder := NewDecoder[int]()
	got, err := decoder.Decode(Context{Namespace: "ns", Path: "count"}, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestDecoderCustomDecoder(t *testing.T) {
	decoder := NewDecoder[profile](WithCustomDecoder[profile](func(ctx Context, payload any) (profile, error) {
		raw, ok := payload.(string)
		if !ok {
			return profile{}, fmt.Errorf("expected string payload at %s", ctx)
		}
		return profile{Name: raw}, nil
	}))

	got, err := decoder.Decode(Context{Namespace: "ns"}, "solo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "solo" {
		t.Fatalf("expected name solo, got %q", got.Name)
	}

	_, err = decoder.Decode(Context{Namespace: "ns", Path: "inner"}, 7)
	if err == nil || !strings.Contains(err.Error(), "ns.inner") {
		t.Fatalf("expected error naming ns.inner, got %v", err)
	}
}

func TestDecoderPostHookError(t *testing.T) {
	sentinel := errors.New("rejected")
	decoder := NewDecoder[profile](WithPostHook[profile](func(Context, *profile) error {
		return sentinel
	}))
	_, err := decoder.Decode(Context{Namespace: "ns"}, map[string]any{"name": "x"})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
}

func buildOptions(tc fixtureCase) []DecoderOption[profile] {
	options := []DecoderOption[profile]{}

	for _, optName := range tc.Options {
		switch optName {
		case "use_number":
			options = append(options, WithUseNumber[profile]())
		case "disallow_unknown":
			options = append(options, WithDisallowUnknownFields[profile]())
		case "allow_nil":
			options = append(options, WithAllowNil[profile]())
		}
	}

	for _, hookName := range tc.PreHooks {
		switch hookName {
		case "range_split":
			options = append(options, WithPreHook[profile](rangeSplitPreHook))
		}
	}

	for _, hookName := range tc.PostHooks {
		switch hookName {
		case "namespace_tag":
			options = append(options, WithPostHook[profile](namespaceTagPostHook))
		}
	}

	return options
}

func rangeSplitPreHook(_ Context, payload any) (any, error) {
	mapping, ok := payload.(map[string]any)
	if !ok {
		return payload, nil
	}
	value, ok := mapping["range"].(string)
	if !ok || value == "" {
		return payload, nil
	}

	parts := strings.Split(value, "-")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid range payload %q", value)
	}
	lo, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, err
	}
	hi, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, err
	}

	mapping["range"] = map[string]any{"min": lo, "max": hi}
	return mapping, nil
}

func namespaceTagPostHook(ctx Context, value *profile) error {
	if value == nil {
		return errors.New("value is nil")
	}
	if len(value.Tags) > 0 {
		return nil
	}
	value.Tags = []string{ctx.Namespace}
	return nil
}

type fixture struct {
	Description string        `json:"description"`
	Cases       []fixtureCase `json:"cases"`
}

type fixtureCase struct {
	Name      string   `json:"name"`
	Namespace string   `json:"namespace"`
	Input     any      `json:"input"`
	Expect    profile  `json:"expect"`
	ExpectErr string   `json:"expectErr"`
	PreHooks  []string `json:"preHooks"`
	PostHooks []string `json:"postHooks"`
	Options   []string `json:"options"`
}

type profile struct {
	Name  string    `json:"name"`
	Count int       `json:"count"`
	Range valueSpan `json:"range"`
	Tags  []string  `json:"tags"`
}

type valueSpan struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func loadFixture(t *testing.T, name string) fixture {
	t.Helper()
	path := filepath.Join("testdata", name)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read hydrate fixture %q: %v", name, err)
	}
	var fx fixture
	if err := json.Unmarshal(raw, &fx); err != nil {
		t.Fatalf("failed to unmarshal hydrate fixture %q: %v", name, err)
	}
	return fx
}
