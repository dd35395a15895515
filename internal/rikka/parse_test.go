package rikka

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rikkaport/internal/canon"
	"rikkaport/internal/ir"
)

const testAssistantID = "11111111-2222-3333-4444-555555555555"

func createTestDB(t *testing.T, dir string, statements []string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(dir, "rikka_hub.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec schema: %v", err)
		}
	}
	return db
}

func writeTestSettings(t *testing.T, dir string) {
	t.Helper()
	settings := map[string]any{
		"assistantId": testAssistantID,
		"assistants": []any{
			map[string]any{"id": testAssistantID, "name": "Helper"},
		},
		"providers": []any{},
	}
	b, err := json.Marshal(settings)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "settings.json"), b, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParseToIR_ReadsConversationsAndBranches(t *testing.T) {
	dir := t.TempDir()
	writeTestSettings(t, dir)
	db := createTestDB(t, dir, schemaSQL)

	if _, err := db.Exec(
		`INSERT INTO ConversationEntity (id, assistant_id, title, nodes, create_at, update_at, truncate_index, suggestions, is_pinned) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		"c1", testAssistantID, "Chat One", "[]", int64(1700000000000), int64(1700000050000), -1, "[]", 0,
	); err != nil {
		t.Fatal(err)
	}
	branchMessages := `[
		{"id":"m1a","role":"ASSISTANT","parts":[{"text":"first try"}]},
		{"id":"m1b","role":"ASSISTANT","parts":[{"text":"second try"}]}
	]`
	if _, err := db.Exec(
		`INSERT INTO message_node (id, conversation_id, node_index, messages, select_index) VALUES (?, ?, ?, ?, ?)`,
		"n1", "c1", 0, `[{"id":"m0","role":"USER","parts":[{"text":"hi"}]}]`, 0,
	); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(
		`INSERT INTO message_node (id, conversation_id, node_index, messages, select_index) VALUES (?, ?, ?, ?, ?)`,
		"n2", "c1", 1, branchMessages, 1,
	); err != nil {
		t.Fatal(err)
	}

	res, err := ParseToIR(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Conversations) != 1 {
		t.Fatalf("expected 1 conversation, got=%d", len(res.Conversations))
	}
	conv := res.Conversations[0]
	if conv.Title != "Chat One" || conv.AssistantID != testAssistantID {
		t.Fatalf("conversation header mismatch: %+v", conv)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("expected 2 messages, got=%d", len(conv.Messages))
	}
	if conv.Messages[0].Role != "user" || conv.Messages[0].Parts[0].Content != "hi" {
		t.Fatalf("first message mismatch: %+v", conv.Messages[0])
	}
	if conv.Messages[1].ID != "m1b" || conv.Messages[1].Parts[0].Content != "second try" {
		t.Fatalf("select_index should pick the live branch, got=%+v", conv.Messages[1])
	}
	if _, ok := conv.Opaque["node:n2:branches"]; !ok {
		t.Fatalf("non-selected branches should be preserved in opaque, got keys=%v", conv.Opaque)
	}
	if _, ok := conv.Opaque["node:n1:branches"]; ok {
		t.Fatalf("single-variant nodes should not record branches")
	}
}

func TestParseToIR_ManagedFilesTableMissing(t *testing.T) {
	dir := t.TempDir()
	writeTestSettings(t, dir)

	partial := make([]string, 0, len(schemaSQL))
	for _, stmt := range schemaSQL {
		if strings.Contains(stmt, "managed_files") {
			continue
		}
		partial = append(partial, stmt)
	}
	createTestDB(t, dir, partial)

	if err := os.MkdirAll(filepath.Join(dir, "upload"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "upload", "loose.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := ParseToIR(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := "managed_files table missing; skipping managed file index"
	found := false
	for _, w := range res.Warnings {
		if w == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected warning %q, got=%v", want, res.Warnings)
	}
	if len(res.Files) != 1 || !res.Files[0].Orphan {
		t.Fatalf("upload payload should still be picked up as orphan, got=%+v", res.Files)
	}
}

func TestParseToIR_ManagedAndOrphanFiles(t *testing.T) {
	dir := t.TempDir()
	writeTestSettings(t, dir)
	db := createTestDB(t, dir, schemaSQL)

	if err := os.MkdirAll(filepath.Join(dir, "upload"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "upload", "doc.txt"), []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "upload", "stray.bin"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, rel := range []string{"upload/doc.txt", "upload/absent.pdf"} {
		if _, err := db.Exec(
			`INSERT INTO managed_files (folder, relative_path, display_name, mime_type, size_bytes, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			"upload", rel, filepath.Base(rel), "application/octet-stream", 7, int64(1700000000000), int64(1700000000000),
		); err != nil {
			t.Fatal(err)
		}
	}

	res, err := ParseToIR(dir)
	if err != nil {
		t.Fatal(err)
	}

	byRel := map[string]ir.IRFile{}
	for _, f := range res.Files {
		byRel[f.RelativeSrc] = f
	}
	if f := byRel["upload/doc.txt"]; f.Missing || f.HashSHA256 == "" {
		t.Fatalf("managed payload should be indexed with a hash, got=%+v", f)
	}
	if f := byRel["upload/absent.pdf"]; !f.Missing {
		t.Fatalf("absent payload should be flagged missing, got=%+v", f)
	}
	if f := byRel["upload/stray.bin"]; !f.Orphan {
		t.Fatalf("unindexed payload should be flagged orphan, got=%+v", f)
	}

	var missingWarn, orphanWarn bool
	for _, w := range res.Warnings {
		if strings.Contains(w, "missing managed file payload: upload/absent.pdf") {
			missingWarn = true
		}
		if strings.Contains(w, "orphan upload file discovered: upload/stray.bin") {
			orphanWarn = true
		}
	}
	if !missingWarn || !orphanWarn {
		t.Fatalf("expected missing and orphan warnings, got=%v", res.Warnings)
	}
}

func TestNewAssistantResolver_NormalizesNonUUIDIDs(t *testing.T) {
	defaultID := canon.NormalizeUUID("default", "assistant", "default")
	settings := map[string]any{
		"assistantId": defaultID,
		"assistants": []any{
			map[string]any{"id": defaultID, "name": "Default"},
			map[string]any{"id": testAssistantID, "name": "Other"},
		},
	}

	resolve := newAssistantResolver(settings)
	if got := resolve("default"); got != defaultID {
		t.Fatalf("non-uuid candidate should resolve via derivation, got=%s", got)
	}
	if got := resolve(testAssistantID); got != testAssistantID {
		t.Fatalf("uuid candidate should resolve to itself, got=%s", got)
	}
	if got := resolve("nobody"); got != defaultID {
		t.Fatalf("unknown candidate should fall back to the selected assistant, got=%s", got)
	}
}

func TestBuildAndParseRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	payload := filepath.Join(srcDir, "doc.txt")
	if err := os.WriteFile(payload, []byte("attachment body"), 0o644); err != nil {
		t.Fatal(err)
	}

	in := &ir.BackupIR{
		SourceApp:    "cherry-studio",
		SourceFormat: "cherry",
		Assistants:   []ir.IRAssistant{{ID: "a1", Name: "Writer"}},
		Conversations: []ir.IRConversation{
			{
				ID:          "t1",
				AssistantID: "a1",
				Title:       "Round Trip",
				CreatedAt:   "2024-01-02T03:04:05Z",
				UpdatedAt:   "2024-01-02T03:04:06Z",
				Messages: []ir.IRMessage{
					{ID: "m1", Role: "user", Parts: []ir.IRPart{{Type: "text", Content: "hello"}}},
					{ID: "m2", Role: "assistant", Parts: []ir.IRPart{
						{Type: "reasoning", Content: "thinking it over"},
						{Type: "text", Content: "answer"},
						{Type: "document", Name: "doc.txt", FileID: "f1", MimeType: "text/plain"},
					}},
				},
			},
		},
		Files: []ir.IRFile{
			{ID: "f1", Name: "doc.txt", Ext: ".txt", SourcePath: payload, MimeType: "text/plain"},
		},
		Config:   map[string]any{},
		Settings: map[string]any{},
		Opaque:   map[string]any{},
	}

	outDir := t.TempDir()
	if _, err := BuildFromIR(in, outDir, "", false, map[string]string{}); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"settings.json", "rikka_hub.db", "rikka_hub-wal", "rikka_hub-shm"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Fatalf("output should contain %s: %v", name, err)
		}
	}

	back, err := ParseToIR(outDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(back.Conversations) != 1 {
		t.Fatalf("expected 1 conversation back, got=%d", len(back.Conversations))
	}
	conv := back.Conversations[0]
	if conv.Title != "Round Trip" {
		t.Fatalf("title should survive, got=%q", conv.Title)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("expected 2 messages back, got=%d", len(conv.Messages))
	}
	reply := conv.Messages[1]
	var haveReasoning, haveText, haveDoc bool
	for _, p := range reply.Parts {
		switch p.Type {
		case "reasoning":
			haveReasoning = p.Content == "thinking it over"
		case "text":
			haveText = p.Content == "answer"
		case "document":
			haveDoc = p.FileID != ""
		}
	}
	if !haveReasoning || !haveText || !haveDoc {
		t.Fatalf("reply parts should survive the round trip: %+v", reply.Parts)
	}
}
