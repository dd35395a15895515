package mapping

import (
	"fmt"

	"rikkaport/internal/ir"
)

// BuildCherryConfigFromIR produces the redux persist slices for a cherry
// archive's data.json. Like the rikka builder it starts from the preserved
// raw.cherry payload on a round trip and writes the canonical sections over
// it.
func BuildCherryConfigFromIR(in *ir.BackupIR) (map[string]any, []string) {
	var warnings []string
	warnings = append(warnings, EnsureNormalizedSettings(in)...)
	settings := in.Settings

	doc := map[string]any{}
	if base := asMap(settings["raw.cherry"]); len(base) > 0 {
		doc = cloneMap(base)
	}

	llm := asMap(doc["llm"])
	providers, providerWarnings := buildCherryProviders(asSlice(settings["core.providers"]))
	warnings = append(warnings, providerWarnings...)
	llm["providers"] = providers

	models := asMap(settings["core.models"])
	setIfPresent(llm, "defaultModel", cherryModelRef(asMap(settings["core.selection"]), "chatModel", asMap(models["defaultModel"]), providers))
	setIfPresent(llm, "topicNamingModel", cherryModelRef(asMap(settings["core.selection"]), "titleModel", asMap(models["topicNamingModel"]), providers))
	setIfPresent(llm, "translateModel", cherryModelRef(asMap(settings["core.selection"]), "translateModel", asMap(models["translateModel"]), providers))
	doc["llm"] = llm

	assistantsSlice := asMap(doc["assistants"])
	assistants := buildCherryAssistants(in, settings)
	warnings = append(warnings, dedupeAssistantNames(assistants)...)
	assistantsSlice["assistants"] = assistants
	if def := selectCherryDefaultAssistant(asMap(settings["core.selection"]), assistants); def != nil {
		assistantsSlice["defaultAssistant"] = def
	}
	doc["assistants"] = assistantsSlice

	app := asMap(doc["settings"])
	webdav := asMap(settings["sync.webdav"])
	setIfPresent(app, "webdavHost", str(webdav["host"]))
	setIfPresent(app, "webdavUser", str(webdav["user"]))
	setIfPresent(app, "webdavPass", str(webdav["password"]))
	setIfPresent(app, "webdavPath", str(webdav["path"]))
	setIfPresent(app, "s3", cloneMap(asMap(settings["sync.s3"])))
	profile := asMap(settings["ui.profile"])
	setIfPresent(app, "userName", str(profile["name"]))
	setIfPresent(app, "userAvatar", str(profile["avatar"]))
	if len(app) > 0 {
		doc["settings"] = app
	}

	setIfPresent(doc, "websearch", cloneMap(asMap(settings["search"])))
	setIfPresent(doc, "mcp", cloneMap(asMap(settings["mcp"])))

	restoreUnsupported(doc, asSlice(settings["raw.unsupported"]), "cherry")
	return doc, warnings
}

// buildCherryProviders converts canonical providers into the cherry shape.
// Cherry model ids are plain provider-scoped keys, not UUIDs.
func buildCherryProviders(canonical []any) ([]any, []string) {
	var warnings []string
	out := make([]any, 0, len(canonical))
	for _, raw := range canonical {
		src := asMap(raw)
		if len(src) == 0 {
			continue
		}
		sourceType := str(src["sourceType"])
		targetType := cherryProviderType(str(src["type"]))
		unmapped := targetType == ""
		if unmapped {
			if _, cherryNative := cherryProviderToCanonical[sourceType]; cherryNative {
				targetType = sourceType
				unmapped = false
			} else {
				warnings = append(warnings, fmt.Sprintf("unmapped provider type kept disabled: %s", pickFirstString(src["sourceType"], src["type"])))
				targetType = "openai"
			}
		}
		providerID := pickFirstString(src["id"], src["name"])
		models := make([]any, 0)
		for _, rawModel := range asSlice(src["models"]) {
			model := asMap(rawModel)
			key := pickFirstString(model["modelId"], model["id"], model["name"])
			if key == "" {
				continue
			}
			entry := map[string]any{
				"id":       key,
				"provider": providerID,
				"name":     pickFirstString(model["displayName"], model["name"], key),
			}
			setIfPresent(entry, "group", str(model["group"]))
			models = append(models, entry)
		}
		enabled := !unmapped && len(models) > 0
		if v, ok := src["enabled"].(bool); ok && !v {
			enabled = false
		}
		entry := map[string]any{
			"id":      providerID,
			"name":    pickFirstString(src["name"], src["id"]),
			"type":    targetType,
			"apiKey":  str(src["apiKey"]),
			"apiHost": str(src["baseUrl"]),
			"models":  models,
			"enabled": enabled,
		}
		out = append(out, entry)
	}
	return out, warnings
}

// cherryModelRef restores a model selection. The preserved source object wins
// when present; otherwise the portable reference is relocated against the
// rebuilt provider list.
func cherryModelRef(selection map[string]any, key string, preserved map[string]any, providers []any) map[string]any {
	if len(preserved) > 0 {
		return cloneMap(preserved)
	}
	ref := asMap(selection[key])
	if len(ref) == 0 {
		return nil
	}
	want := pickFirstString(ref["modelKey"], ref["modelId"], ref["name"])
	for _, rawProvider := range providers {
		provider := asMap(rawProvider)
		for _, rawModel := range asSlice(provider["models"]) {
			model := asMap(rawModel)
			if str(model["id"]) != want && str(model["name"]) != want {
				continue
			}
			return map[string]any{
				"id":       str(model["id"]),
				"provider": str(provider["id"]),
				"name":     str(model["name"]),
			}
		}
	}
	return nil
}

func buildCherryAssistants(in *ir.BackupIR, settings map[string]any) []any {
	out := []any{}
	seen := map[string]struct{}{}
	for _, raw := range asSlice(settings["core.assistants"]) {
		src := asMap(raw)
		if len(src) == 0 {
			continue
		}
		entry := cloneMap(src)
		id := ensureEntryID(entry, "assistant")
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if str(entry["name"]) == "" {
			entry["name"] = "Assistant"
		}
		out = append(out, entry)
	}
	for _, assistant := range in.Assistants {
		id := assistant.ID
		if id == "" {
			id = "assistant-" + assistant.Name
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		entry := map[string]any{"id": id, "name": assistant.Name}
		if str(entry["name"]) == "" {
			entry["name"] = "Assistant"
		}
		setIfPresent(entry, "prompt", assistant.Prompt)
		setIfPresent(entry, "description", assistant.Description)
		mergeMissing(entry, assistant.Settings)
		out = append(out, entry)
	}
	return out
}

func selectCherryDefaultAssistant(selection map[string]any, assistants []any) map[string]any {
	want := str(selection["assistantId"])
	for _, raw := range assistants {
		entry := asMap(raw)
		if want != "" && str(entry["id"]) == want {
			return cloneMap(entry)
		}
	}
	if len(assistants) > 0 {
		return cloneMap(asMap(assistants[0]))
	}
	return nil
}
