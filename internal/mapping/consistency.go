package mapping

import (
	"fmt"

	"rikkaport/internal/canon"
	"rikkaport/internal/ir"
)

// uuidArrayAssistantFields hold cross-references that must point at UUID
// entities in the target schema. Entries that are not UUIDs are dropped, and
// a field left empty by filtering is removed entirely.
var uuidArrayAssistantFields = []string{"mcpServers", "modeInjectionIds", "lorebookIds", "tagIds"}

// buildRikkaAssistants merges configured assistants with the assistants that
// conversations reference, then enforces the target schema's invariants:
// UUID ids, pairwise distinct names, UUID-only reference arrays, typed
// scalars, and model bindings that point at an enabled model.
func buildRikkaAssistants(in *ir.BackupIR, settings map[string]any, aliases *modelAliases) ([]any, []string) {
	var warnings []string
	out := []any{}
	seenIDs := map[string]struct{}{}

	add := func(entry map[string]any) {
		id := str(entry["id"])
		if _, dup := seenIDs[id]; dup {
			return
		}
		seenIDs[id] = struct{}{}
		out = append(out, entry)
	}

	for _, raw := range asSlice(settings["core.assistants"]) {
		src := asMap(raw)
		if len(src) == 0 {
			continue
		}
		entry := cloneMap(src)
		entry["id"] = canon.NormalizeUUID(str(entry["id"]), "assistant", pickFirstString(entry["id"], entry["name"]))
		if str(entry["name"]) == "" {
			entry["name"] = "Assistant"
		}
		add(entry)
	}

	for _, assistant := range in.Assistants {
		id := canon.NormalizeUUID(assistant.ID, "assistant", pickFirstString(assistant.ID, assistant.Name))
		if _, dup := seenIDs[id]; dup {
			continue
		}
		entry := map[string]any{"id": id, "name": assistant.Name}
		if str(entry["name"]) == "" {
			entry["name"] = "Assistant"
		}
		setIfPresent(entry, "prompt", assistant.Prompt)
		setIfPresent(entry, "description", assistant.Description)
		mergeMissing(entry, assistant.Settings)
		if ref := pickFirstString(assistant.Model["id"], assistant.Model["modelId"], assistant.Model["name"]); ref != "" {
			entry["chatModelId"] = ref
		}
		add(entry)
	}

	warnings = append(warnings, dedupeAssistantNames(out)...)

	for _, raw := range out {
		entry := asMap(raw)
		warnings = append(warnings, filterUUIDArrays(entry)...)
		coerceAssistantScalars(entry)
		warnings = append(warnings, rebindAssistantModel(entry, aliases)...)
	}
	return out, warnings
}

// dedupeAssistantNames renames later duplicates with a numeric suffix so
// display names stay pairwise distinct in one output archive.
func dedupeAssistantNames(assistants []any) []string {
	var warnings []string
	taken := map[string]int{}
	for _, raw := range assistants {
		entry := asMap(raw)
		name := str(entry["name"])
		count := taken[name]
		taken[name] = count + 1
		if count == 0 {
			continue
		}
		n := count + 1
		renamed := fmt.Sprintf("%s (%d)", name, n)
		for taken[renamed] > 0 {
			n++
			renamed = fmt.Sprintf("%s (%d)", name, n)
		}
		taken[renamed] = 1
		entry["name"] = renamed
		warnings = append(warnings, fmt.Sprintf("assistant name conflict renamed: %s -> %s", name, renamed))
	}
	return warnings
}

func filterUUIDArrays(assistant map[string]any) []string {
	var warnings []string
	for _, key := range uuidArrayAssistantFields {
		raw, ok := assistant[key]
		if !ok {
			continue
		}
		items := asSlice(raw)
		kept := make([]any, 0, len(items))
		for _, item := range items {
			if id := str(item); canon.IsUUID(id) {
				kept = append(kept, id)
			}
		}
		if len(kept) == 0 {
			delete(assistant, key)
			if len(items) > 0 {
				warnings = append(warnings, fmt.Sprintf("dropped non-uuid assistant field: %s", key))
			}
			continue
		}
		if len(kept) < len(items) {
			warnings = append(warnings, fmt.Sprintf("dropped non-uuid entries in assistant field: %s", key))
		}
		assistant[key] = kept
	}
	return warnings
}

// rebindAssistantModel resolves the assistant's model binding through the
// alias table; a missing or stale binding falls back to the first enabled
// model, and is removed when no model is enabled at all.
func rebindAssistantModel(assistant map[string]any, aliases *modelAliases) []string {
	current := pickFirstString(assistant["chatModelId"], assistant["model"], assistant["defaultModel"])
	delete(assistant, "model")
	delete(assistant, "defaultModel")
	if current != "" {
		if id, ok := aliases.resolve(current); ok {
			assistant["chatModelId"] = id
			return nil
		}
	}
	if aliases.firstEnabled == "" {
		delete(assistant, "chatModelId")
		if current != "" {
			return []string{fmt.Sprintf("assistant model %s not found and no enabled model available", current)}
		}
		return nil
	}
	assistant["chatModelId"] = aliases.firstEnabled
	if current != "" {
		return []string{fmt.Sprintf("assistant model %s not found; fallback to first enabled model", current)}
	}
	return nil
}
