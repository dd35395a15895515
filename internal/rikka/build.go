package rikka

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"rikkaport/internal/canon"
	"rikkaport/internal/ir"
	"rikkaport/internal/mapping"
	"rikkaport/internal/util"
)

// BuildFromIR materializes a rikka archive layout under outputDir: the
// settings document, a fresh Room database, empty wal/shm placeholders, and
// the upload payloads.
func BuildFromIR(in *ir.BackupIR, outputDir, templateDir string, redactSecrets bool, idMap map[string]string) ([]string, error) {
	warnings := []string{}
	if err := util.EnsureDir(filepath.Join(outputDir, "upload")); err != nil {
		return nil, err
	}

	settings, mappingWarnings := mapping.BuildRikkaSettingsFromIR(in)
	warnings = append(warnings, mappingWarnings...)
	applyTemplateSettings(settings, templateDir)
	if redactSecrets {
		redacted, _ := util.RedactAny(settings).(map[string]any)
		settings = redacted
	}
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(outputDir, "settings.json"), settingsJSON, 0o644); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(outputDir, "rikka_hub.db")
	if err := createDB(dbPath, resolveIdentityHash(templateDir)); err != nil {
		return nil, err
	}
	// Empty placeholders so a restore overwrites stale WAL/SHM files on device.
	if err := os.WriteFile(filepath.Join(outputDir, "rikka_hub-wal"), nil, 0o644); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(outputDir, "rikka_hub-shm"), nil, 0o644); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	filePathByID := map[string]string{}
	fileWarnings, err := materializeFiles(db, outputDir, in.Files, filePathByID, idMap)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, fileWarnings...)

	resolveAssistantID := newAssistantResolver(settings)
	convWarnings, err := writeConversations(db, in.Conversations, filePathByID, idMap, resolveAssistantID)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, convWarnings...)
	return util.Dedupe(warnings), nil
}

// applyTemplateSettings fills document keys a template backup carries that
// the build left unset.
func applyTemplateSettings(settings map[string]any, templateDir string) {
	if templateDir == "" {
		return
	}
	b, ok, _ := util.ReadFileIfExists(filepath.Join(templateDir, "settings.json"))
	if !ok {
		return
	}
	base := map[string]any{}
	if err := json.Unmarshal(b, &base); err != nil {
		return
	}
	for k, v := range base {
		if _, exists := settings[k]; !exists {
			settings[k] = v
		}
	}
}

func resolveIdentityHash(templateDir string) string {
	if templateDir == "" {
		return defaultIdentityHash
	}
	dbPath := filepath.Join(templateDir, "rikka_hub.db")
	if _, err := os.Stat(dbPath); err != nil {
		return defaultIdentityHash
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return defaultIdentityHash
	}
	defer db.Close()
	var hash string
	if err := db.QueryRow(`SELECT identity_hash FROM room_master_table WHERE id = 42`).Scan(&hash); err != nil || hash == "" {
		return defaultIdentityHash
	}
	return hash
}

func createDB(dbPath, identityHash string) error {
	if err := os.RemoveAll(dbPath); err != nil {
		return err
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, stmt := range schemaSQL {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema exec failed: %w", err)
		}
	}
	_, err = db.Exec(`INSERT OR REPLACE INTO room_master_table (id, identity_hash) VALUES (42, ?)`, identityHash)
	return err
}

// materializeFiles copies payloads into upload/ and fills the managed_files
// index. Original relative paths are preferred; collisions and nameless files
// get a derived stem so reruns place every payload identically.
func materializeFiles(db *sql.DB, outputDir string, files []ir.IRFile, pathByID map[string]string, idMap map[string]string) ([]string, error) {
	warnings := []string{}
	usedRelPath := map[string]struct{}{}

	for _, f := range files {
		fileID := f.ID
		if fileID == "" {
			fileID = canon.DeriveUUID("file", f.Name, f.RelativeSrc, f.HashSHA256)
		}
		ext := f.Ext
		if ext == "" {
			ext = filepath.Ext(f.Name)
		}
		relPath := preferredRelPath(f, fileID, ext)
		if _, exists := usedRelPath[relPath]; exists {
			relPath = filepath.ToSlash(filepath.Join("upload", canon.DeriveUUID("file", relPath, "dup")+ext))
		}
		usedRelPath[relPath] = struct{}{}
		fileName := filepath.Base(relPath)
		fullPath := filepath.Join(outputDir, filepath.FromSlash(relPath))
		if f.SourcePath != "" {
			if err := util.CopyFile(f.SourcePath, fullPath); err != nil {
				return nil, err
			}
		} else {
			if err := os.WriteFile(fullPath, nil, 0o644); err != nil {
				return nil, err
			}
			warnings = append(warnings, fmt.Sprintf("file %s missing source payload; created empty placeholder", fileID))
		}
		size := int64(0)
		if st, err := os.Stat(fullPath); err == nil {
			size = st.Size()
		}
		if _, err := db.Exec(`INSERT INTO managed_files (folder, relative_path, display_name, mime_type, size_bytes, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			"upload", relPath, fallbackName(f.Name, fileName), fallbackString(f.MimeType, "application/octet-stream"), size, timeToMillis(f.CreatedAt), timeToMillis(f.UpdatedAt),
		); err != nil {
			return nil, err
		}
		pathByID[fileID] = absUploadPath(fileName)
		idMap["file:"+f.ID] = relPath
	}
	return util.Dedupe(warnings), nil
}

func preferredRelPath(f ir.IRFile, fileID, ext string) string {
	meta := asMap(f.Metadata)
	if rel := cleanRelPath(str(meta["rikka.relative_path"])); rel != "" {
		return rel
	}
	if rel := cleanRelPath(f.RelativeSrc); rel != "" {
		return rel
	}
	return filepath.ToSlash(filepath.Join("upload", canon.DeriveUUID("file", fileID, f.Name)+ext))
}

func cleanRelPath(s string) string {
	s = filepath.ToSlash(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "upload/") {
		return s
	}
	base := filepath.Base(s)
	if base == "." || base == "/" || base == "" {
		return ""
	}
	return filepath.ToSlash(filepath.Join("upload", base))
}

func writeConversations(
	db *sql.DB,
	convs []ir.IRConversation,
	filePathByID map[string]string,
	idMap map[string]string,
	resolveAssistantID func(string) string,
) ([]string, error) {
	warnings := []string{}
	for _, conv := range convs {
		convID := canon.NormalizeUUID(conv.ID, "conversation", conv.ID, conv.Title)
		idMap["topic:"+conv.ID] = convID
		created := timeToMillis(fallbackString(conv.CreatedAt, conv.UpdatedAt))
		updated := timeToMillis(fallbackString(conv.UpdatedAt, conv.CreatedAt))
		if _, err := db.Exec(`INSERT INTO ConversationEntity (id, assistant_id, title, nodes, create_at, update_at, truncate_index, suggestions, is_pinned) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			convID,
			resolveAssistantID(conv.AssistantID),
			DeriveConversationTitle(conv),
			"[]",
			created,
			updated,
			opaqueInt(conv.Opaque, "truncateIndex", -1),
			fallbackString(str(conv.Opaque["suggestions"]), "[]"),
			opaqueInt(conv.Opaque, "isPinned", 0),
		); err != nil {
			return nil, err
		}
		for idx, m := range conv.Messages {
			for _, p := range m.Parts {
				if p.FileID != "" {
					if _, ok := filePathByID[p.FileID]; !ok {
						warnings = append(warnings, fmt.Sprintf("conversation %s message %s references missing file %s", convID, m.ID, p.FileID))
					}
				}
			}
			nodeID := canon.DeriveUUID("node", convID, fmt.Sprint(idx))
			msg := messageFromIR(m, filePathByID)
			messagesJSON, selectIndex := restoreNodeBranches(conv, msg, filePathByID)
			if _, err := db.Exec(`INSERT INTO message_node (id, conversation_id, node_index, messages, select_index) VALUES (?, ?, ?, ?, ?)`,
				nodeID,
				convID,
				idx,
				messagesJSON,
				selectIndex,
			); err != nil {
				return nil, err
			}
			if sid, ok := msg["id"].(string); ok {
				idMap["message:"+m.ID] = sid
			}
		}
	}
	return util.Dedupe(warnings), nil
}

// restoreNodeBranches reassembles the full branch array for a node when the
// conversation still carries it in its opaque bag from a rikka parse. The
// selected message is matched by id inside the preserved array; otherwise the
// node holds the single rebuilt message.
func restoreNodeBranches(conv ir.IRConversation, msg map[string]any, filePathByID map[string]string) (string, int) {
	msgID, _ := msg["id"].(string)
	for key, raw := range conv.Opaque {
		if !strings.HasPrefix(key, "node:") || !strings.HasSuffix(key, ":branches") {
			continue
		}
		branches, ok := raw.([]map[string]any)
		if !ok {
			if anySlice, isSlice := raw.([]any); isSlice {
				branches = make([]map[string]any, 0, len(anySlice))
				for _, item := range anySlice {
					if m, isMap := item.(map[string]any); isMap {
						branches = append(branches, m)
					}
				}
			}
		}
		for i, branch := range branches {
			if str(branch["id"]) != msgID {
				continue
			}
			arr := make([]any, 0, len(branches))
			for _, b := range branches {
				arr = append(arr, b)
			}
			return canon.MustJSON(arr), i
		}
	}
	return canon.MustJSON([]any{msg}), 0
}

func opaqueInt(m map[string]any, key string, def int) int {
	switch t := m[key].(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return def
	}
}

func messageFromIR(m ir.IRMessage, filePathByID map[string]string) map[string]any {
	messageID := canon.NormalizeUUID(m.ID, "message", m.ID, m.Role)
	parts := make([]any, 0, len(m.Parts))
	for _, p := range m.Parts {
		parts = append(parts, partFromIR(p, filePathByID))
	}
	if len(parts) == 0 {
		parts = append(parts, map[string]any{
			"type": "me.rerere.ai.ui.UIMessagePart.Text",
			"text": "",
		})
	}
	return map[string]any{
		"id":          messageID,
		"role":        normalizeRole(m.Role),
		"parts":       parts,
		"annotations": []any{},
	}
}

func partFromIR(p ir.IRPart, filePathByID map[string]string) map[string]any {
	switch p.Type {
	case "reasoning":
		return map[string]any{
			"type":      "me.rerere.ai.ui.UIMessagePart.Reasoning",
			"reasoning": p.Content,
		}
	case "tool":
		out := make([]any, 0, len(p.Output))
		for _, o := range p.Output {
			out = append(out, map[string]any{
				"type": "me.rerere.ai.ui.UIMessagePart.Text",
				"text": o.Content,
			})
		}
		return map[string]any{
			"type":       "me.rerere.ai.ui.UIMessagePart.Tool",
			"toolCallId": canon.NormalizeUUID(p.ToolCallID, "tool-call", p.ToolCallID, p.Name),
			"toolName":   fallbackName(p.Name, "tool"),
			"input":      fallbackString(strings.TrimSpace(p.Input), "{}"),
			"output":     out,
		}
	case "image":
		return map[string]any{
			"type": "me.rerere.ai.ui.UIMessagePart.Image",
			"url":  chooseMediaURL(p, filePathByID),
		}
	case "video":
		return map[string]any{
			"type": "me.rerere.ai.ui.UIMessagePart.Video",
			"url":  chooseMediaURL(p, filePathByID),
		}
	case "audio":
		return map[string]any{
			"type": "me.rerere.ai.ui.UIMessagePart.Audio",
			"url":  chooseMediaURL(p, filePathByID),
		}
	case "document":
		return map[string]any{
			"type":     "me.rerere.ai.ui.UIMessagePart.Document",
			"url":      chooseMediaURL(p, filePathByID),
			"fileName": fallbackName(p.Name, "document"),
			"mime":     fallbackString(p.MimeType, "application/octet-stream"),
		}
	default:
		return map[string]any{
			"type": "me.rerere.ai.ui.UIMessagePart.Text",
			"text": p.Content,
		}
	}
}

func chooseMediaURL(p ir.IRPart, filePathByID map[string]string) string {
	if p.FileID != "" {
		if v, ok := filePathByID[p.FileID]; ok {
			return "file://" + v
		}
	}
	return p.MediaURL
}

// newAssistantResolver maps conversation assistant ids onto assistants that
// actually exist in the settings document, falling back to the selected
// assistant, then the first, then the app default.
func newAssistantResolver(settings map[string]any) func(string) string {
	assistantIDs := map[string]struct{}{}
	first := ""
	for _, item := range asSlice(settings["assistants"]) {
		id := strings.TrimSpace(str(asMap(item)["id"]))
		if !canon.IsUUID(id) {
			continue
		}
		if first == "" {
			first = id
		}
		assistantIDs[id] = struct{}{}
	}
	selected := strings.TrimSpace(str(settings["assistantId"]))
	if _, ok := assistantIDs[selected]; !ok {
		selected = ""
	}
	fallback := selected
	if fallback == "" {
		fallback = first
	}
	if fallback == "" {
		fallback = mapping.DefaultAssistantID
	}
	return func(candidate string) string {
		candidate = strings.TrimSpace(candidate)
		if candidate != "" {
			if _, ok := assistantIDs[candidate]; ok {
				return candidate
			}
			// Cherry assistant ids are often non-UUID (for example "default");
			// the settings mapping normalizes them with the same derived seed.
			normalized := canon.NormalizeUUID(candidate, "assistant", candidate)
			if _, ok := assistantIDs[normalized]; ok {
				return normalized
			}
		}
		return fallback
	}
}
