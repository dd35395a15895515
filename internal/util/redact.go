package util

import (
	"sort"
	"strings"
)

const redactedMarker = "***REDACTED***"

var secretKeyTokens = []string{
	"api_key",
	"apikey",
	"token",
	"secret",
	"password",
	"access_key",
	"secretaccesskey",
}

func ShouldRedactKey(k string) bool {
	k = strings.ToLower(strings.TrimSpace(k))
	for _, token := range secretKeyTokens {
		if strings.Contains(k, token) {
			return true
		}
	}
	return false
}

// RedactAny walks a decoded JSON tree and replaces values under secret-looking
// keys. Non-string secret values are replaced with the marker outright.
func RedactAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if ShouldRedactKey(k) {
				if s, ok := val.(string); ok && s == "" {
					out[k] = s
				} else {
					out[k] = redactedMarker
				}
				continue
			}
			out[k] = RedactAny(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = RedactAny(val)
		}
		return out
	default:
		return v
	}
}

// RedactMap is RedactAny specialized to the map roots the callers hold.
func RedactMap(m map[string]any) map[string]any {
	out, _ := RedactAny(m).(map[string]any)
	if out == nil {
		return map[string]any{}
	}
	return out
}

// Dedupe trims, deduplicates and sorts warning strings so diagnostics are
// deterministic across runs.
func Dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, item := range in {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}
