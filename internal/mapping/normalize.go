// Package mapping translates provider/model/assistant/sync configuration
// between the two backup schemas through one canonical vocabulary. All state
// (alias tables included) is scoped to a single call; nothing leaks between
// conversions running in the same process.
package mapping

import (
	"strings"

	"rikkaport/internal/canon"
	"rikkaport/internal/ir"
)

// DefaultAssistantID is RikkaHub's built-in default assistant.
const DefaultAssistantID = "0950e2dc-9bd5-4801-afa3-aa887aa36b4e"

// EnsureNormalizedSettings populates ir.Settings from the source config when
// it is still empty. Idempotent: a populated Settings map is left untouched.
func EnsureNormalizedSettings(in *ir.BackupIR) []string {
	if in == nil || len(in.Settings) > 0 {
		return nil
	}
	settings, warnings := normalizeFromSource(in)
	in.Settings = settings
	in.Warnings = append(in.Warnings, warnings...)
	return warnings
}

func normalizeFromSource(in *ir.BackupIR) (map[string]any, []string) {
	switch strings.ToLower(strings.TrimSpace(in.SourceFormat)) {
	case "cherry":
		// The cherry parser nests decoded persist slices under this key.
		if slices := asMap(in.Config["cherry.persistSlices"]); len(slices) > 0 {
			return NormalizeFromCherryConfig(slices)
		}
		return NormalizeFromCherryConfig(in.Config)
	case "rikka":
		return NormalizeFromRikkaConfig(in.Config)
	default:
		return defaultNormalizedSettings(), nil
	}
}

// defaultNormalizedSettings returns the full canonical key set. Settings is
// all-or-nothing: every top-level key is present even when empty.
func defaultNormalizedSettings() map[string]any {
	return map[string]any{
		"core.providers":    []any{},
		"core.models":       map[string]any{},
		"core.assistants":   []any{},
		"core.selection":    map[string]any{},
		"sync.webdav":       map[string]any{},
		"sync.s3":           map[string]any{},
		"sync.local":        map[string]any{},
		"ui.profile":        map[string]any{},
		"search":            map[string]any{},
		"mcp":               map[string]any{},
		"tts":               map[string]any{},
		"raw.cherry":        map[string]any{},
		"raw.rikka":         map[string]any{},
		"raw.unsupported":   []any{},
		"normalizer.ver":    1,
		"normalizer.source": "",
	}
}

func providerEnabled(mappedType string, models []any) bool {
	return strings.TrimSpace(mappedType) != "" && len(models) > 0
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneAny(v)
	}
	return out
}

func cloneSlice(in []any) []any {
	if in == nil {
		return nil
	}
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = cloneAny(v)
	}
	return out
}

func cloneAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		return cloneSlice(t)
	default:
		return t
	}
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	if m == nil {
		return map[string]any{}
	}
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	if s == nil {
		return []any{}
	}
	return s
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func pickFirstString(values ...any) string {
	for _, v := range values {
		if s := str(v); s != "" {
			return s
		}
	}
	return ""
}

func setIfPresent(dst map[string]any, key string, val any) {
	switch t := val.(type) {
	case nil:
		return
	case string:
		if strings.TrimSpace(t) == "" {
			return
		}
	case map[string]any:
		if len(t) == 0 {
			return
		}
	case []any:
		if len(t) == 0 {
			return
		}
	}
	dst[key] = val
}

func mergeMissing(dst, src map[string]any) {
	for k, v := range src {
		if _, ok := dst[k]; ok {
			continue
		}
		dst[k] = cloneAny(v)
	}
}

func appendUnique(list []string, items ...string) []string {
	set := make(map[string]struct{}, len(list))
	for _, v := range list {
		set[v] = struct{}{}
	}
	for _, v := range items {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		list = append(list, v)
	}
	return list
}

// ensureEntryID fills a canonical entry's id, deriving a stable UUID from the
// entry kind and name when the source record carried none.
func ensureEntryID(m map[string]any, kind string) string {
	id := pickFirstString(m["id"], m["uuid"])
	if id == "" {
		id = canon.DeriveUUID(kind, "unnamed", pickFirstString(m["name"]))
		m["id"] = id
	}
	return id
}
