package mapping

import "strings"

// Provider type canonicalization. The canonical vocabulary is rikka-shaped
// ("openai"/"claude"/"google"); everything cherry-specific is folded into it
// through closed tables, and unknown types pass through untouched so they can
// round-trip via raw.* payloads.

var cherryProviderToCanonical = map[string]string{
	"openai":          "openai",
	"openai-response": "openai",
	"new-api":         "openai",
	"gateway":         "openai",
	"azure-openai":    "openai",
	"ollama":          "openai",
	"lmstudio":        "openai",
	"gpustack":        "openai",
	"aws-bedrock":     "openai",
	"anthropic":       "claude",
	"vertex-anthropic": "claude",
	"gemini":          "google",
	"vertexai":        "google",
}

var rikkaProviderToCanonical = map[string]string{
	"openai": "openai",
	"claude": "claude",
	"google": "google",
}

var canonicalProviderToRikka = map[string]string{
	"openai": "openai",
	"claude": "claude",
	"google": "google",
}

var canonicalProviderToCherry = map[string]string{
	"openai": "openai",
	"claude": "anthropic",
	"google": "gemini",
}

func canonicalProviderType(sourceFormat, rawType string) string {
	key := strings.ToLower(strings.TrimSpace(rawType))
	var table map[string]string
	switch sourceFormat {
	case "cherry":
		table = cherryProviderToCanonical
	case "rikka":
		table = rikkaProviderToCanonical
	}
	if mapped, ok := table[key]; ok {
		return mapped
	}
	return key
}

// rikkaProviderType maps a canonical provider type onto the target enum.
// Returns "" when no target type exists.
func rikkaProviderType(canonical string) string {
	return canonicalProviderToRikka[strings.ToLower(strings.TrimSpace(canonical))]
}

func cherryProviderType(canonical string) string {
	return canonicalProviderToCherry[strings.ToLower(strings.TrimSpace(canonical))]
}

// validRikkaModelTypes is the closed set the target schema accepts.
var validRikkaModelTypes = map[string]struct{}{
	"CHAT":      {},
	"EMBEDDING": {},
}

func normalizeRikkaModelType(raw string) (string, bool) {
	t := strings.ToUpper(strings.TrimSpace(raw))
	if t == "" {
		return "CHAT", true
	}
	if _, ok := validRikkaModelTypes[t]; ok {
		return t, true
	}
	return "CHAT", false
}
