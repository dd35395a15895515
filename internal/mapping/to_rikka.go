package mapping

import (
	"fmt"

	"rikkaport/internal/canon"
	"rikkaport/internal/ir"
)

// BuildRikkaSettingsFromIR produces the settings.json document for a rikka
// archive. The document starts from the preserved raw.rikka payload when the
// backup originated there, so unknown fields survive a round trip; the
// canonical sections are then written over it.
func BuildRikkaSettingsFromIR(in *ir.BackupIR) (map[string]any, []string) {
	var warnings []string
	warnings = append(warnings, EnsureNormalizedSettings(in)...)
	settings := in.Settings

	doc := map[string]any{}
	if base := asMap(settings["raw.rikka"]); len(base) > 0 {
		doc = cloneMap(base)
	}

	providers, aliases, providerWarnings := buildRikkaProviders(asSlice(settings["core.providers"]))
	warnings = append(warnings, providerWarnings...)
	doc["providers"] = providers

	assistants, assistantWarnings := buildRikkaAssistants(in, settings, aliases)
	warnings = append(warnings, assistantWarnings...)
	doc["assistants"] = assistants

	selection := asMap(settings["core.selection"])
	assistantID, selWarnings := resolveAssistantSelection(selection, assistants)
	warnings = append(warnings, selWarnings...)
	doc["assistantId"] = assistantID

	for canonicalKey, targetKey := range map[string]string{
		"chatModel":       "chatModelId",
		"titleModel":      "titleModelId",
		"translateModel":  "translateModeId",
		"suggestionModel": "suggestionModelId",
	} {
		id, modelWarnings := resolveModelSelection(selection, canonicalKey, aliases)
		warnings = append(warnings, modelWarnings...)
		if id != "" {
			doc[targetKey] = id
		}
	}

	setIfPresent(doc, "webDavConfig", cloneMap(asMap(settings["sync.webdav"])))
	setIfPresent(doc, "s3Config", cloneMap(asMap(settings["sync.s3"])))
	setIfPresent(doc, "localBackup", cloneMap(asMap(settings["sync.local"])))
	setIfPresent(doc, "displaySetting", cloneMap(asMap(settings["ui.profile"])))
	setIfPresent(doc, "searchServiceOptions", cloneMap(asMap(settings["search"])))
	setIfPresent(doc, "mcpServers", cloneMap(asMap(settings["mcp"])))
	setIfPresent(doc, "ttsProviders", cloneMap(asMap(settings["tts"])))

	restoreUnsupported(doc, asSlice(settings["raw.unsupported"]), "rikka")
	return doc, warnings
}

// buildRikkaProviders converts canonical providers into rikka provider
// entries, minting deterministic UUID model ids and filling the alias table
// used by every later selection lookup.
func buildRikkaProviders(canonical []any) ([]any, *modelAliases, []string) {
	aliases := newModelAliases()
	var warnings []string
	out := make([]any, 0, len(canonical))
	for _, raw := range canonical {
		src := asMap(raw)
		if len(src) == 0 {
			continue
		}
		mapped := rikkaProviderType(str(src["type"]))
		if mapped == "" {
			warnings = append(warnings, fmt.Sprintf("unmapped provider type kept disabled: %s", pickFirstString(src["sourceType"], src["type"])))
			mapped = "openai"
		}
		providerID := canon.NormalizeUUID(str(src["id"]), "provider", pickFirstString(src["id"], src["name"]))
		models, modelWarnings := buildRikkaModels(providerID, asSlice(src["models"]), aliases)
		warnings = append(warnings, modelWarnings...)

		enabled := providerEnabled(rikkaProviderType(str(src["type"])), models)
		if v, ok := src["enabled"].(bool); ok && !v {
			enabled = false
		}
		if enabled {
			for _, m := range models {
				aliases.markEnabled(str(asMap(m)["id"]))
			}
		}

		entry := map[string]any{
			"id":      providerID,
			"name":    pickFirstString(src["name"], src["id"]),
			"type":    mapped,
			"enabled": enabled,
			"apiKey":  str(src["apiKey"]),
			"baseUrl": str(src["baseUrl"]),
			"models":  models,
		}
		out = append(out, entry)
	}
	return out, aliases, warnings
}

func buildRikkaModels(providerID string, canonical []any, aliases *modelAliases) ([]any, []string) {
	var warnings []string
	out := make([]any, 0, len(canonical))
	for _, raw := range canonical {
		src := asMap(raw)
		if len(src) == 0 {
			continue
		}
		modelKey := pickFirstString(src["modelId"], src["id"], src["name"])
		if modelKey == "" {
			continue
		}
		id := str(src["id"])
		if !canon.IsUUID(id) {
			id = deterministicModelID(providerID, modelKey)
		}
		displayName := pickFirstString(src["displayName"], src["name"], modelKey)
		modelType, ok := normalizeRikkaModelType(pickFirstString(src["type"]))
		if !ok {
			warnings = append(warnings, fmt.Sprintf("normalized unsupported model type to CHAT: %s", str(src["type"])))
		}
		aliases.register(id, modelKey, displayName, str(src["id"]), str(src["name"]))
		out = append(out, map[string]any{
			"id":          id,
			"modelId":     modelKey,
			"displayName": displayName,
			"type":        modelType,
		})
	}
	return out, warnings
}

// resolveModelSelection turns a portable selection reference into an enabled
// model UUID, falling back to the first enabled model when the reference is
// stale.
func resolveModelSelection(selection map[string]any, key string, aliases *modelAliases) (string, []string) {
	ref := asMap(selection[key])
	if len(ref) == 0 {
		return "", nil
	}
	for _, alias := range []string{str(ref["modelId"]), str(ref["modelKey"]), str(ref["name"])} {
		if alias == "" {
			continue
		}
		if id, ok := aliases.resolve(alias); ok {
			return id, nil
		}
	}
	if aliases.firstEnabled != "" {
		return aliases.firstEnabled, []string{fmt.Sprintf("model selection %s not found; fallback to first enabled model", key)}
	}
	return "", []string{fmt.Sprintf("model selection %s not found and no enabled model available", key)}
}

func resolveAssistantSelection(selection map[string]any, assistants []any) (string, []string) {
	want := str(selection["assistantId"])
	for _, raw := range assistants {
		if str(asMap(raw)["id"]) == want && want != "" {
			return want, nil
		}
	}
	if len(assistants) == 0 {
		return DefaultAssistantID, nil
	}
	first := str(asMap(assistants[0])["id"])
	if want == "" {
		return first, nil
	}
	return first, []string{fmt.Sprintf("selected assistant %s not found; fallback to first assistant", want)}
}

// restoreUnsupported writes preserved source-native sections back to the top
// level of the target document when converting back to their home format.
func restoreUnsupported(doc map[string]any, unsupported []any, source string) {
	for _, raw := range unsupported {
		entry := asMap(raw)
		if str(entry["source"]) != source {
			continue
		}
		key := str(entry["key"])
		if key == "" {
			continue
		}
		if _, exists := doc[key]; exists {
			continue
		}
		doc[key] = cloneAny(entry["value"])
	}
}
