package mapping

import (
	"strings"
	"testing"

	"rikkaport/internal/canon"
	"rikkaport/internal/ir"
)

func cherryTestConfig() map[string]any {
	return map[string]any{
		"llm": map[string]any{
			"defaultModel": map[string]any{"id": "gpt-4o", "provider": "p1"},
			"providers": []any{
				map[string]any{
					"id": "p1", "name": "OpenAI", "type": "openai", "apiKey": "sk-test",
					"models": []any{map[string]any{"id": "gpt-4o", "name": "GPT-4o"}},
				},
				map[string]any{"id": "p2", "name": "Claude", "type": "anthropic"},
				map[string]any{"id": "p3", "name": "Custom", "type": "unknown-provider"},
			},
		},
		"assistants": map[string]any{
			"defaultAssistant": map[string]any{"id": "default"},
			"assistants": []any{
				map[string]any{
					"id": "a1", "name": "Writer", "prompt": "write well",
					"model":    map[string]any{"id": "gpt-4o", "provider": "p1"},
					"settings": map[string]any{"temperature": 0.8},
				},
			},
		},
		"settings": map[string]any{
			"webdavHost": "https://dav.example.com",
			"webdavUser": "u",
			"webdavPass": "p",
			"userName":   "tester",
			"theme":      "dark",
		},
	}
}

func TestNormalizeFromCherryConfig(t *testing.T) {
	norm, warnings := NormalizeFromCherryConfig(cherryTestConfig())

	if got := len(asSlice(norm["core.providers"])); got != 3 {
		t.Fatalf("expected 3 normalized providers, got=%d", got)
	}
	if got := len(asSlice(norm["core.assistants"])); got != 1 {
		t.Fatalf("expected 1 normalized assistant, got=%d", got)
	}
	webdav := asMap(norm["sync.webdav"])
	if webdav["host"] != "https://dav.example.com" {
		t.Fatalf("unexpected webdav host: %v", webdav["host"])
	}
	if len(asMap(norm["raw.cherry"])) == 0 {
		t.Fatalf("raw.cherry should retain the full source config")
	}
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "unmapped provider type kept disabled") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected unmapped-provider warning, got=%v", warnings)
	}
}

func TestNormalizeFromCherryConfig_AlwaysPopulatesCanonicalKeys(t *testing.T) {
	norm, _ := NormalizeFromCherryConfig(map[string]any{})
	for _, key := range []string{
		"core.providers", "core.models", "core.assistants", "core.selection",
		"sync.webdav", "sync.s3", "sync.local", "ui.profile",
		"search", "mcp", "tts",
		"raw.cherry", "raw.rikka", "raw.unsupported",
		"normalizer.ver", "normalizer.source",
	} {
		if _, ok := norm[key]; !ok {
			t.Fatalf("canonical key %s missing from normalized settings", key)
		}
	}
}

func TestBuildRikkaSettingsFromIR(t *testing.T) {
	norm, _ := NormalizeFromCherryConfig(cherryTestConfig())
	in := &ir.BackupIR{SourceFormat: "cherry", Settings: norm}

	doc, _ := BuildRikkaSettingsFromIR(in)

	providers := asSlice(doc["providers"])
	if len(providers) != 3 {
		t.Fatalf("expected 3 rikka providers, got=%d", len(providers))
	}
	first := asMap(providers[0])
	if !canon.IsUUID(str(first["id"])) {
		t.Fatalf("provider id should be a uuid, got=%v", first["id"])
	}
	if first["type"] != "openai" {
		t.Fatalf("expected provider type openai, got=%v", first["type"])
	}
	models := asSlice(first["models"])
	if len(models) != 1 {
		t.Fatalf("expected 1 model on first provider, got=%d", len(models))
	}
	model := asMap(models[0])
	if !canon.IsUUID(str(model["id"])) {
		t.Fatalf("model id should be a minted uuid, got=%v", model["id"])
	}
	if model["type"] != "CHAT" {
		t.Fatalf("expected model type CHAT, got=%v", model["type"])
	}

	if !canon.IsUUID(str(doc["chatModelId"])) {
		t.Fatalf("chatModelId should resolve through the alias table, got=%v", doc["chatModelId"])
	}
	if doc["assistantId"] == nil || str(doc["assistantId"]) == "" {
		t.Fatalf("assistantId should be set")
	}
	assistants := asSlice(doc["assistants"])
	if len(assistants) != 1 {
		t.Fatalf("expected 1 assistant, got=%d", len(assistants))
	}
	if !canon.IsUUID(str(asMap(assistants[0])["id"])) {
		t.Fatalf("assistant id should be normalized to a uuid")
	}
}

func TestBuildRikkaSettingsFromIR_Deterministic(t *testing.T) {
	norm1, _ := NormalizeFromCherryConfig(cherryTestConfig())
	norm2, _ := NormalizeFromCherryConfig(cherryTestConfig())
	doc1, _ := BuildRikkaSettingsFromIR(&ir.BackupIR{SourceFormat: "cherry", Settings: norm1})
	doc2, _ := BuildRikkaSettingsFromIR(&ir.BackupIR{SourceFormat: "cherry", Settings: norm2})
	if canon.MustJSON(doc1) != canon.MustJSON(doc2) {
		t.Fatalf("same input should build an identical settings document")
	}
}

func TestBuildRikkaSettingsFromIR_StaleSelectionFallsBack(t *testing.T) {
	cfg := cherryTestConfig()
	asMap(cfg["llm"])["defaultModel"] = map[string]any{"id": "gone-model", "provider": "p9"}
	norm, _ := NormalizeFromCherryConfig(cfg)
	in := &ir.BackupIR{SourceFormat: "cherry", Settings: norm}

	doc, warnings := BuildRikkaSettingsFromIR(in)
	if !canon.IsUUID(str(doc["chatModelId"])) {
		t.Fatalf("stale selection should fall back to an enabled model")
	}
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "fallback to first enabled model") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected fallback warning, got=%v", warnings)
	}
}

func TestBuildRikkaAssistants_DedupesNames(t *testing.T) {
	settings := defaultNormalizedSettings()
	settings["core.assistants"] = []any{
		map[string]any{"id": "a1", "name": "Default"},
		map[string]any{"id": "a2", "name": "Default"},
	}
	in := &ir.BackupIR{SourceFormat: "cherry", Settings: settings}

	assistants, warnings := buildRikkaAssistants(in, settings, newModelAliases())
	if len(assistants) != 2 {
		t.Fatalf("expected 2 assistants, got=%d", len(assistants))
	}
	second := asMap(assistants[1])
	if second["name"] != "Default (2)" {
		t.Fatalf("expected renamed duplicate, got=%v", second["name"])
	}
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "assistant name conflict renamed") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected rename warning, got=%v", warnings)
	}
}

func TestFilterUUIDArrays_DropsNonUUIDEntries(t *testing.T) {
	goodID := canon.DeriveUUID("test", "mcp-server")
	assistant := map[string]any{
		"name":       "A",
		"mcpServers": []any{goodID, "not-a-uuid"},
		"tagIds":     []any{"plain"},
	}
	warnings := filterUUIDArrays(assistant)

	kept := asSlice(assistant["mcpServers"])
	if len(kept) != 1 || kept[0] != goodID {
		t.Fatalf("expected only the uuid entry to survive, got=%v", kept)
	}
	if _, exists := assistant["tagIds"]; exists {
		t.Fatalf("field with no uuid entries should be removed")
	}
	if len(warnings) == 0 {
		t.Fatalf("expected drop warnings")
	}
}

func TestCoerceAssistantScalars(t *testing.T) {
	assistant := map[string]any{
		"temperature":        "0.7",
		"topP":               1,
		"contextMessageSize": "12",
		"maxTokens":          "not-a-number",
		"streamOutput":       "true",
	}
	coerceAssistantScalars(assistant)

	if assistant["temperature"] != 0.7 {
		t.Fatalf("temperature should coerce to float64, got=%v", assistant["temperature"])
	}
	if assistant["topP"] != float64(1) {
		t.Fatalf("topP should coerce to float64, got=%v", assistant["topP"])
	}
	if assistant["contextMessageSize"] != int64(12) {
		t.Fatalf("contextMessageSize should coerce to int64, got=%v", assistant["contextMessageSize"])
	}
	if _, exists := assistant["maxTokens"]; exists {
		t.Fatalf("uncoercible field should be deleted")
	}
	if assistant["streamOutput"] != true {
		t.Fatalf("streamOutput should coerce to bool, got=%v", assistant["streamOutput"])
	}
}

func TestNormalizeRikkaModelType(t *testing.T) {
	if got, ok := normalizeRikkaModelType("EMBEDDING"); !ok || got != "EMBEDDING" {
		t.Fatalf("EMBEDDING should pass through, got=%q ok=%v", got, ok)
	}
	if got, ok := normalizeRikkaModelType("rerank"); ok || got != "CHAT" {
		t.Fatalf("unsupported type should normalize to CHAT, got=%q ok=%v", got, ok)
	}
}

func TestBuildCherryConfigFromIR_RoundTripKeepsUnknownFields(t *testing.T) {
	norm, _ := NormalizeFromCherryConfig(cherryTestConfig())
	in := &ir.BackupIR{SourceFormat: "cherry", Settings: norm}

	doc, _ := BuildCherryConfigFromIR(in)
	app := asMap(doc["settings"])
	if app["theme"] != "dark" {
		t.Fatalf("unknown cherry field should survive via raw.cherry, got=%v", app["theme"])
	}
	if app["webdavHost"] != "https://dav.example.com" {
		t.Fatalf("webdav host should be rebuilt, got=%v", app["webdavHost"])
	}
}
