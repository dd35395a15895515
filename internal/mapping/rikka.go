package mapping

import (
	"fmt"
)

// NormalizeFromRikkaConfig lifts settings.json into the canonical vocabulary.
// Rikka is already close to the canonical shape, so most sections copy over
// with key renames; the full document is still kept under raw.rikka.
func NormalizeFromRikkaConfig(config map[string]any) (map[string]any, []string) {
	settings := defaultNormalizedSettings()
	settings["normalizer.source"] = "rikka"
	var warnings []string
	if len(config) == 0 {
		return settings, warnings
	}

	providers := []any{}
	for _, raw := range asSlice(config["providers"]) {
		src := asMap(raw)
		if len(src) == 0 {
			continue
		}
		sourceType := str(src["type"])
		mapped := canonicalProviderType("rikka", sourceType)
		if _, known := rikkaProviderToCanonical[mapped]; !known {
			warnings = append(warnings, fmt.Sprintf("unmapped provider type kept disabled: %s", sourceType))
		}
		models := cloneSlice(asSlice(src["models"]))
		enabled := providerEnabled(rikkaProviderType(mapped), models)
		if v, ok := src["enabled"].(bool); ok && !v {
			enabled = false
		}
		entry := map[string]any{
			"id":         pickFirstString(src["id"], src["name"]),
			"name":       pickFirstString(src["name"], src["id"]),
			"type":       mapped,
			"sourceType": sourceType,
			"apiKey":     str(src["apiKey"]),
			"baseUrl":    pickFirstString(src["baseUrl"], src["apiHost"]),
			"models":     models,
			"enabled":    enabled,
		}
		ensureEntryID(entry, "provider")
		providers = append(providers, entry)
	}
	settings["core.providers"] = providers

	assistants := []any{}
	for _, raw := range asSlice(config["assistants"]) {
		src := asMap(raw)
		if len(src) == 0 {
			continue
		}
		entry := cloneMap(src)
		ensureEntryID(entry, "assistant")
		assistants = append(assistants, entry)
	}
	settings["core.assistants"] = assistants

	selection := map[string]any{}
	setIfPresent(selection, "assistantId", str(config["assistantId"]))
	setIfPresent(selection, "chatModel", rikkaSelectionRef(config, providers, "chatModelId"))
	setIfPresent(selection, "titleModel", rikkaSelectionRef(config, providers, "titleModelId"))
	setIfPresent(selection, "translateModel", rikkaSelectionRef(config, providers, "translateModeId"))
	setIfPresent(selection, "suggestionModel", rikkaSelectionRef(config, providers, "suggestionModelId"))
	settings["core.selection"] = selection
	settings["core.models"] = map[string]any{}

	settings["sync.webdav"] = cloneMap(asMap(config["webDavConfig"]))
	settings["sync.s3"] = cloneMap(asMap(config["s3Config"]))
	settings["sync.local"] = cloneMap(asMap(config["localBackup"]))
	settings["ui.profile"] = cloneMap(asMap(config["displaySetting"]))
	settings["search"] = cloneMap(asMap(config["searchServiceOptions"]))
	settings["mcp"] = cloneMap(asMap(config["mcpServers"]))
	settings["tts"] = cloneMap(asMap(config["ttsProviders"]))

	settings["raw.rikka"] = cloneMap(config)
	settings["raw.unsupported"] = ExtractRikkaUnsupportedSettings(config)
	return settings, warnings
}

// rikkaSelectionRef resolves a top-level model UUID selection to a portable
// reference by locating the model inside its provider list.
func rikkaSelectionRef(config map[string]any, providers []any, key string) map[string]any {
	id := str(config[key])
	if id == "" {
		return nil
	}
	ref := map[string]any{"modelId": id}
	for _, rawProvider := range providers {
		provider := asMap(rawProvider)
		for _, rawModel := range asSlice(provider["models"]) {
			model := asMap(rawModel)
			if str(model["id"]) != id {
				continue
			}
			setIfPresent(ref, "providerId", str(provider["id"]))
			setIfPresent(ref, "name", pickFirstString(model["displayName"], model["modelId"]))
			setIfPresent(ref, "modelKey", str(model["modelId"]))
			return ref
		}
	}
	return ref
}
