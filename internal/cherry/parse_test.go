package cherry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rikkaport/internal/ir"
)

func mustJSONString(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func writeCherryFixture(t *testing.T, dir string) {
	t.Helper()

	llmSlice := mustJSONString(t, map[string]any{
		"providers": []any{
			map[string]any{
				"id": "openai", "name": "OpenAI", "type": "openai",
				"models": []any{map[string]any{"id": "gpt-4o", "name": "GPT-4o"}},
			},
		},
		"defaultModel": map[string]any{"id": "gpt-4o", "provider": "openai"},
	})
	assistantsSlice := mustJSONString(t, map[string]any{
		"assistants": []any{
			map[string]any{
				"id": "a1", "name": "Writer", "prompt": "write",
				"topics": []any{map[string]any{"id": "t1", "name": "Persisted Title"}},
			},
		},
	})
	persist := mustJSONString(t, map[string]any{
		"llm":        llmSlice,
		"assistants": assistantsSlice,
		"broken":     "{not json",
	})

	data := map[string]any{
		"time":    1700000000000,
		"version": 5,
		"localStorage": map[string]any{
			"persist:cherry-studio": persist,
		},
		"indexedDB": map[string]any{
			"topics": []any{
				map[string]any{
					"id":        "t1",
					"createdAt": "2024-01-02T03:04:05Z",
					"updatedAt": "2024-01-02T03:04:06Z",
					"messages": []any{
						map[string]any{
							"id": "m1", "role": "user", "assistantId": "a1",
							"createdAt": "2024-01-02T03:04:05Z",
							"blocks":    []any{"b1", "b2"},
						},
					},
				},
			},
			"message_blocks": []any{
				map[string]any{"id": "b1", "type": "main_text", "content": "hello there"},
				map[string]any{"id": "b2", "type": "file", "file": map[string]any{"id": "f1", "origin_name": "notes.txt"}},
			},
			"files": []any{
				map[string]any{"id": "f1", "origin_name": "notes.txt", "ext": ".txt", "size": 5},
				map[string]any{"id": "f2", "origin_name": "gone.png", "ext": ".png"},
			},
			"settings": []any{map[string]any{"id": "theme", "value": "dark"}},
		},
	}

	if err := os.MkdirAll(filepath.Join(dir, "Data", "Files"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Data", "Files", "f1.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Data", "Files", "stray.bin"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "data.json"), b, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParseToIR_FullArchive(t *testing.T) {
	dir := t.TempDir()
	writeCherryFixture(t, dir)

	res, err := ParseToIR(dir)
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Conversations) != 1 {
		t.Fatalf("expected 1 conversation, got=%d", len(res.Conversations))
	}
	conv := res.Conversations[0]
	if conv.ID != "t1" {
		t.Fatalf("conversation id = %q", conv.ID)
	}
	if conv.Title != "Persisted Title" {
		t.Fatalf("title should fall back to the persist slice topic name, got=%q", conv.Title)
	}
	if conv.AssistantID != "a1" {
		t.Fatalf("assistant binding should come from persist topic ownership, got=%q", conv.AssistantID)
	}
	if len(conv.Messages) != 1 || len(conv.Messages[0].Parts) != 2 {
		t.Fatalf("expected 1 message with 2 parts, got=%+v", conv.Messages)
	}
	if conv.Messages[0].Parts[0].Type != "text" || conv.Messages[0].Parts[0].Content != "hello there" {
		t.Fatalf("first part should be the joined text block, got=%+v", conv.Messages[0].Parts[0])
	}
	doc := conv.Messages[0].Parts[1]
	if doc.Type != "document" || doc.FileID != "f1" || doc.Name != "notes.txt" {
		t.Fatalf("file block should become a document part, got=%+v", doc)
	}

	if len(res.Assistants) != 1 || res.Assistants[0].Name != "Writer" {
		t.Fatalf("persist assistants should be lifted, got=%+v", res.Assistants)
	}

	var indexed, missing, orphan bool
	for _, f := range res.Files {
		switch {
		case f.ID == "f1" && !f.Missing:
			indexed = true
			if f.HashSHA256 == "" {
				t.Fatalf("indexed payload should be hashed")
			}
		case f.ID == "f2" && f.Missing:
			missing = true
		case f.Orphan:
			orphan = true
		}
	}
	if !indexed || !missing || !orphan {
		t.Fatalf("file index incomplete: indexed=%v missing=%v orphan=%v", indexed, missing, orphan)
	}

	wantWarn := func(substr string) {
		for _, w := range res.Warnings {
			if strings.Contains(w, substr) {
				return
			}
		}
		t.Fatalf("expected warning containing %q, got=%v", substr, res.Warnings)
	}
	wantWarn("failed to decode persist slice broken")
	wantWarn("missing cherry file payload: f2")

	extra, _ := res.Opaque["cherry.indexedDB.extra"].(map[string]any)
	if _, ok := extra["settings"]; !ok {
		t.Fatalf("unknown indexeddb tables should be preserved, got=%v", res.Opaque)
	}
}

func TestMapBlockToPart_Dispatch(t *testing.T) {
	files := map[string]ir.IRFile{}

	thinking := mapBlockToPart(map[string]any{"type": "thinking", "content": "pondering"}, files)
	if thinking.Type != "reasoning" || thinking.Content != "pondering" {
		t.Fatalf("thinking block = %+v", thinking)
	}

	tool := mapBlockToPart(map[string]any{
		"type": "tool", "toolName": "search", "toolId": "call-1",
		"arguments": map[string]any{"q": "go"},
		"content":   "results",
	}, files)
	if tool.Type != "tool" || tool.Name != "search" || tool.ToolCallID != "call-1" {
		t.Fatalf("tool block = %+v", tool)
	}
	if !strings.Contains(tool.Input, `"q":"go"`) {
		t.Fatalf("tool arguments should serialize to input, got=%q", tool.Input)
	}
	if len(tool.Output) != 1 || tool.Output[0].Content != "results" {
		t.Fatalf("tool content should become output, got=%+v", tool.Output)
	}

	unknown := mapBlockToPart(map[string]any{"type": "citation"}, files)
	if unknown.Type != "text" || !strings.Contains(unknown.Content, "unsupported cherry block") {
		t.Fatalf("unknown block should degrade to text, got=%+v", unknown)
	}
	if unknown.Metadata["raw"] == nil {
		t.Fatalf("unknown block should keep the raw payload")
	}
}

func TestChooseDominantAssistantID(t *testing.T) {
	got := chooseDominantAssistantID([]any{
		map[string]any{"assistantId": "a"},
		map[string]any{"assistantId": "b"},
		map[string]any{"assistantId": "b"},
		map[string]any{},
	})
	if got != "b" {
		t.Fatalf("dominant assistant = %q, want b", got)
	}
	if got := chooseDominantAssistantID(nil); got != "" {
		t.Fatalf("empty message list should yield no assistant, got=%q", got)
	}
}

func TestParseToIR_MissingPersistIsTolerated(t *testing.T) {
	dir := t.TempDir()
	data := map[string]any{
		"localStorage": map[string]any{},
		"indexedDB": map[string]any{
			"topics": []any{
				map[string]any{
					"id": "t1", "name": "Stored",
					"messages": []any{map[string]any{"role": "user", "content": "hi"}},
				},
			},
		},
	}
	b, _ := json.Marshal(data)
	if err := os.MkdirAll(filepath.Join(dir, "Data", "Files"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "data.json"), b, 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := ParseToIR(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Conversations) != 1 || res.Conversations[0].Title != "Stored" {
		t.Fatalf("stored topic title should win, got=%+v", res.Conversations)
	}
	msg := res.Conversations[0].Messages[0]
	if msg.ID == "" {
		t.Fatalf("message without id should get a derived one")
	}
	if len(msg.Parts) != 1 || msg.Parts[0].Content != "hi" {
		t.Fatalf("inline content should become a text part, got=%+v", msg.Parts)
	}
}
