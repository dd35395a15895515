package cherry

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// epochRFC3339 is the terminal timestamp fallback. Builders never mint wall
// clock values into archive documents, so a record with no usable time in the
// source gets the epoch and stays byte-identical across runs.
const epochRFC3339 = "1970-01-01T00:00:00Z"

func str(v any) string {
	s, _ := v.(string)
	return s
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	if m == nil {
		return map[string]any{}
	}
	return m
}

func toSlice(v any) []any {
	arr, _ := v.([]any)
	return arr
}

func toStringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// fallbackTime returns the first non-empty candidate, ending at the epoch.
func fallbackTime(candidates ...string) string {
	if v := firstNonEmpty(candidates...); v != "" {
		return v
	}
	return epochRFC3339
}

func fallbackString(v, d string) string {
	if strings.TrimSpace(v) == "" {
		return d
	}
	return v
}

func fallbackMap(v map[string]any, d map[string]any) map[string]any {
	if len(v) == 0 {
		return d
	}
	return v
}

func normalizeRole(role string) string {
	switch r := strings.ToLower(strings.TrimSpace(role)); r {
	case "assistant", "user", "system":
		return r
	default:
		return "assistant"
	}
}

func toRel(root, p string) string {
	if p == "" {
		return ""
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

func anyString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%f", t)
	default:
		return ""
	}
}

// parseUnixMillis reads an RFC3339 or unix-millis timestamp string. Returns 0
// when the value cannot be interpreted.
func parseUnixMillis(v string) int64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UnixMilli()
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UnixMilli()
	}
	var millis int64
	if _, err := fmt.Sscanf(v, "%d", &millis); err == nil {
		return millis
	}
	return 0
}
