package util

import (
	"reflect"
	"testing"
)

func TestRedactAny(t *testing.T) {
	in := map[string]any{
		"apiKey": "abc",
		"nested": map[string]any{
			"token":     "t1",
			"safeField": "ok",
		},
		"list":  []any{map[string]any{"password": "p"}},
		"count": float64(3),
	}
	out := RedactAny(in).(map[string]any)
	if out["apiKey"] != "***REDACTED***" {
		t.Fatalf("apiKey should be redacted")
	}
	nested := out["nested"].(map[string]any)
	if nested["token"] != "***REDACTED***" {
		t.Fatalf("nested token should be redacted")
	}
	if nested["safeField"] != "ok" {
		t.Fatalf("safe field should be unchanged")
	}
	item := out["list"].([]any)[0].(map[string]any)
	if item["password"] != "***REDACTED***" {
		t.Fatalf("password inside list should be redacted")
	}
	if out["count"] != float64(3) {
		t.Fatalf("non-secret scalar should be unchanged")
	}
}

func TestRedactAny_EmptySecretStaysEmpty(t *testing.T) {
	out := RedactAny(map[string]any{"apiKey": ""}).(map[string]any)
	if out["apiKey"] != "" {
		t.Fatalf("empty secret should stay empty, got=%v", out["apiKey"])
	}
}

func TestShouldRedactKey(t *testing.T) {
	for _, k := range []string{"apiKey", "API_KEY", "webdavPassword", "secretAccessKey", " token "} {
		if !ShouldRedactKey(k) {
			t.Fatalf("expected %q to be treated as a secret", k)
		}
	}
	for _, k := range []string{"name", "baseUrl", "model"} {
		if ShouldRedactKey(k) {
			t.Fatalf("did not expect %q to be treated as a secret", k)
		}
	}
}

func TestDedupe(t *testing.T) {
	got := Dedupe([]string{"b", " a ", "", "b", "a"})
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got=%v want=%v", got, want)
	}
	if Dedupe(nil) != nil {
		t.Fatalf("nil input should stay nil")
	}
}
