package mapping

import "sort"

// Top-level source keys the normalizer consumes. Everything else is carried
// verbatim under raw.unsupported so no configuration silently disappears.

var consumedCherryKeys = map[string]struct{}{
	"llm":        {},
	"assistants": {},
	"settings":   {},
	"websearch":  {},
	"mcp":        {},
}

var consumedRikkaKeys = map[string]struct{}{
	"providers":            {},
	"assistants":           {},
	"assistantId":          {},
	"chatModelId":          {},
	"titleModelId":         {},
	"translateModeId":      {},
	"suggestionModelId":    {},
	"webDavConfig":         {},
	"s3Config":             {},
	"localBackup":          {},
	"displaySetting":       {},
	"searchServiceOptions": {},
	"mcpServers":           {},
	"ttsProviders":         {},
}

// ExtractCherryUnsupportedSettings collects cherry config sections the
// canonical form has no slot for, keyed for deterministic ordering.
func ExtractCherryUnsupportedSettings(config map[string]any) []any {
	return extractUnsupported("cherry", config, consumedCherryKeys)
}

// ExtractRikkaUnsupportedSettings is the rikka counterpart.
func ExtractRikkaUnsupportedSettings(config map[string]any) []any {
	return extractUnsupported("rikka", config, consumedRikkaKeys)
}

func extractUnsupported(source string, config map[string]any, consumed map[string]struct{}) []any {
	keys := make([]string, 0, len(config))
	for k := range config {
		if _, ok := consumed[k]; ok {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, map[string]any{
			"source": source,
			"key":    k,
			"value":  cloneAny(config[k]),
		})
	}
	return out
}
