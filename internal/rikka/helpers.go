package rikka

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"rikkaport/internal/ir"
)

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

func asSlice(v any) []any {
	s, _ := v.([]any)
	if s == nil {
		return []any{}
	}
	return s
}

func has(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

func fallbackName(v, d string) string {
	if strings.TrimSpace(v) == "" {
		return d
	}
	return v
}

func fallbackString(v, d string) string {
	if strings.TrimSpace(v) == "" {
		return d
	}
	return v
}

func normalizeRole(role string) string {
	switch r := strings.ToLower(strings.TrimSpace(role)); r {
	case "user", "assistant", "system", "tool":
		return r
	default:
		return "assistant"
	}
}

// timeToMillis converts an RFC3339 string to unix millis, falling back to 0
// so that rebuilt databases stay identical across runs.
func timeToMillis(v string) int64 {
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
	return 0
}

func millisToRFC3339(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func inferLogicalTypeFromMime(mime, ext string) string {
	lowMime := strings.ToLower(strings.TrimSpace(mime))
	lowExt := strings.ToLower(strings.TrimSpace(ext))
	switch {
	case strings.HasPrefix(lowMime, "image/"):
		return "image"
	case strings.HasPrefix(lowMime, "video/"):
		return "video"
	case strings.HasPrefix(lowMime, "audio/"):
		return "audio"
	case strings.HasPrefix(lowMime, "text/"):
		return "text"
	}
	switch lowExt {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return "image"
	case ".mp4", ".mov", ".mkv", ".webm":
		return "video"
	case ".mp3", ".wav", ".m4a", ".aac", ".ogg":
		return "audio"
	default:
		return "document"
	}
}

func sortedFiles(m map[string]ir.IRFile) []ir.IRFile {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]ir.IRFile, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

// absUploadPath is the on-device path the app records for upload payloads.
func absUploadPath(fileName string) string {
	return filepath.ToSlash(filepath.Join("/data/user/0/me.rerere.rikkahub/files/upload", fileName))
}
