package mapping

import (
	"fmt"

	"rikkaport/internal/canon"
)

// NormalizeFromCherryConfig lifts the redux persist slices of a cherry backup
// into the canonical settings vocabulary. The full source config is retained
// under raw.cherry so a later cherry build can restore fields the canonical
// form has no slot for.
func NormalizeFromCherryConfig(config map[string]any) (map[string]any, []string) {
	settings := defaultNormalizedSettings()
	settings["normalizer.source"] = "cherry"
	var warnings []string
	if len(config) == 0 {
		return settings, warnings
	}

	llm := asMap(config["llm"])
	providers := []any{}
	for _, raw := range asSlice(llm["providers"]) {
		src := asMap(raw)
		if len(src) == 0 {
			continue
		}
		sourceType := pickFirstString(src["type"], src["id"])
		mapped := canonicalProviderType("cherry", sourceType)
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
			"baseUrl":    pickFirstString(src["apiHost"], src["baseUrl"]),
			"models":     models,
			"enabled":    enabled,
		}
		ensureEntryID(entry, "provider")
		providers = append(providers, entry)
	}
	settings["core.providers"] = providers

	models := map[string]any{}
	setIfPresent(models, "defaultModel", cloneAny(llm["defaultModel"]))
	setIfPresent(models, "topicNamingModel", cloneAny(llm["topicNamingModel"]))
	setIfPresent(models, "translateModel", cloneAny(llm["translateModel"]))
	setIfPresent(models, "quickModel", cloneAny(llm["quickModel"]))
	settings["core.models"] = models

	assistantsSlice := asMap(config["assistants"])
	assistants := []any{}
	for _, raw := range asSlice(assistantsSlice["assistants"]) {
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
	if def := asMap(assistantsSlice["defaultAssistant"]); len(def) > 0 {
		setIfPresent(selection, "assistantId", pickFirstString(def["id"]))
	}
	setIfPresent(selection, "chatModel", selectionModelRef(asMap(llm["defaultModel"])))
	setIfPresent(selection, "titleModel", selectionModelRef(asMap(llm["topicNamingModel"])))
	setIfPresent(selection, "translateModel", selectionModelRef(asMap(llm["translateModel"])))
	settings["core.selection"] = selection

	app := asMap(config["settings"])
	webdav := map[string]any{}
	setIfPresent(webdav, "host", str(app["webdavHost"]))
	setIfPresent(webdav, "user", str(app["webdavUser"]))
	setIfPresent(webdav, "password", str(app["webdavPass"]))
	setIfPresent(webdav, "path", str(app["webdavPath"]))
	settings["sync.webdav"] = webdav
	settings["sync.s3"] = cloneMap(asMap(app["s3"]))
	settings["sync.local"] = cloneMap(asMap(app["localBackup"]))

	profile := map[string]any{}
	setIfPresent(profile, "name", str(app["userName"]))
	setIfPresent(profile, "avatar", str(app["userAvatar"]))
	settings["ui.profile"] = profile

	settings["search"] = cloneMap(asMap(config["websearch"]))
	settings["mcp"] = cloneMap(asMap(config["mcp"]))

	settings["raw.cherry"] = cloneMap(config)
	settings["raw.unsupported"] = ExtractCherryUnsupportedSettings(config)
	return settings, warnings
}

// selectionModelRef keys a model selection to values the alias registry can
// resolve later, regardless of the target schema.
func selectionModelRef(model map[string]any) map[string]any {
	if len(model) == 0 {
		return nil
	}
	ref := map[string]any{}
	setIfPresent(ref, "modelId", pickFirstString(model["id"], model["modelId"]))
	setIfPresent(ref, "providerId", pickFirstString(model["provider"], model["providerId"]))
	setIfPresent(ref, "name", pickFirstString(model["name"], model["displayName"]))
	if len(ref) == 0 {
		return nil
	}
	return ref
}

// deterministicModelID derives the UUID a model carries in rikka documents.
func deterministicModelID(providerID, modelKey string) string {
	return canon.DeriveUUID("model", providerID, modelKey)
}
