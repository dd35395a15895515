// Package rikka reads and writes the rikka backup layout: settings.json, a
// Room database (rikka_hub.db) holding conversations as JSON node snapshots,
// and an upload/ payload directory indexed by the managed_files table.
package rikka

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"rikkaport/internal/canon"
	"rikkaport/internal/ir"
	"rikkaport/internal/mapping"
	"rikkaport/internal/util"
)

// ParseToIR reads an extracted rikka archive into the canonical model.
func ParseToIR(extractedDir string) (*ir.BackupIR, error) {
	settingsBytes, err := os.ReadFile(filepath.Join(extractedDir, "settings.json"))
	if err != nil {
		return nil, err
	}
	var settings map[string]any
	if err := json.Unmarshal(settingsBytes, &settings); err != nil {
		return nil, fmt.Errorf("parse settings.json: %w", err)
	}

	res := &ir.BackupIR{
		SourceApp:    "rikkahub",
		SourceFormat: "rikka",
		CreatedAt:    time.Now().UTC(),
		Config:       settings,
		Settings:     map[string]any{},
		Opaque:       map[string]any{},
	}
	if _, err := os.Stat(filepath.Join(extractedDir, "rikkaport", "manifest.json")); err == nil {
		res.Opaque["interop.sidecar.available"] = true
	}

	db, err := sql.Open("sqlite", filepath.Join(extractedDir, "rikka_hub.db"))
	if err != nil {
		return nil, err
	}
	defer db.Close()

	fileByRelPath := map[string]ir.IRFile{}
	fileWarnings, err := parseManagedFiles(db, extractedDir, fileByRelPath)
	if err != nil {
		return nil, err
	}
	fileWarnings = append(fileWarnings, scanUploadOrphans(extractedDir, fileByRelPath)...)
	res.Files = sortedFiles(fileByRelPath)

	if err := parseConversations(db, res, fileByRelPath); err != nil {
		return nil, err
	}

	for i, raw := range asSlice(settings["assistants"]) {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		assistant := ir.IRAssistant{
			ID:       str(m["id"]),
			Name:     str(m["name"]),
			Prompt:   str(m["systemPrompt"]),
			Model:    map[string]any{"chatModelId": m["chatModelId"]},
			Settings: map[string]any{},
			Opaque:   m,
		}
		if assistant.ID == "" {
			assistant.ID = canon.DeriveUUID("assistant", assistant.Name, fmt.Sprint(i))
		}
		res.Assistants = append(res.Assistants, assistant)
	}

	settingsNorm, warnings := mapping.NormalizeFromRikkaConfig(settings)
	res.Settings = settingsNorm
	res.Warnings = append(res.Warnings, warnings...)
	res.Warnings = append(res.Warnings, fileWarnings...)
	res.Warnings = util.Dedupe(res.Warnings)
	return res, nil
}

// parseManagedFiles indexes the managed_files table. Backups taken before the
// table existed are tolerated: the index is skipped with a warning and the
// upload scan still picks the payloads up as orphans.
func parseManagedFiles(db *sql.DB, extractedDir string, out map[string]ir.IRFile) ([]string, error) {
	warnings := []string{}
	rows, err := db.Query(`SELECT id, folder, relative_path, display_name, mime_type, size_bytes, created_at, updated_at FROM managed_files`)
	if err != nil {
		return []string{"managed_files table missing; skipping managed file index"}, nil
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id          int64
			folder      string
			relPath     string
			displayName string
			mime        string
			size        int64
			createdAt   int64
			updatedAt   int64
		)
		if err := rows.Scan(&id, &folder, &relPath, &displayName, &mime, &size, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		sourcePath := filepath.Join(extractedDir, filepath.FromSlash(relPath))
		if _, err := os.Stat(sourcePath); err != nil {
			sourcePath = ""
		}
		hash := ""
		if sourcePath != "" {
			hash, _ = util.SHA256File(sourcePath)
		} else {
			warnings = append(warnings, fmt.Sprintf("missing managed file payload: %s", relPath))
		}
		out[relPath] = ir.IRFile{
			ID:          fmt.Sprintf("managed:%d", id),
			Name:        displayName,
			RelativeSrc: filepath.ToSlash(relPath),
			SourcePath:  sourcePath,
			Size:        size,
			MimeType:    mime,
			Ext:         filepath.Ext(displayName),
			CreatedAt:   millisToRFC3339(createdAt),
			UpdatedAt:   millisToRFC3339(updatedAt),
			HashSHA256:  hash,
			LogicalType: inferLogicalTypeFromMime(mime, filepath.Ext(displayName)),
			Missing:     sourcePath == "",
			Metadata: map[string]any{
				"managed_id":          id,
				"folder":              folder,
				"rikka.relative_path": filepath.ToSlash(relPath),
				"rikka.display_name":  displayName,
			},
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return util.Dedupe(warnings), nil
}

// scanUploadOrphans adds upload/ payloads no managed_files row points at.
func scanUploadOrphans(extractedDir string, out map[string]ir.IRFile) []string {
	warnings := []string{}
	uploadDir := filepath.Join(extractedDir, "upload")
	entries, err := os.ReadDir(uploadDir)
	if err != nil {
		return nil
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		rel := filepath.ToSlash(filepath.Join("upload", entry.Name()))
		if _, exists := out[rel]; exists {
			continue
		}
		full := filepath.Join(uploadDir, entry.Name())
		st, err := os.Stat(full)
		if err != nil {
			continue
		}
		hash, _ := util.SHA256File(full)
		ext := filepath.Ext(entry.Name())
		out[rel] = ir.IRFile{
			ID:          "upload:" + entry.Name(),
			Name:        entry.Name(),
			RelativeSrc: rel,
			SourcePath:  full,
			Size:        st.Size(),
			Ext:         ext,
			CreatedAt:   st.ModTime().UTC().Format(time.RFC3339),
			UpdatedAt:   st.ModTime().UTC().Format(time.RFC3339),
			HashSHA256:  hash,
			LogicalType: inferLogicalTypeFromMime("", ext),
			Orphan:      true,
			Metadata: map[string]any{
				"discovered":          true,
				"rikka.relative_path": rel,
			},
		}
		warnings = append(warnings, fmt.Sprintf("orphan upload file discovered: %s", rel))
	}
	return util.Dedupe(warnings)
}

// parseConversations reads ConversationEntity rows newest first, then joins
// the message_node snapshots. Each node stores a JSON array of message
// variants; the select_index picks the live branch and the others are kept
// in the conversation's opaque bag.
func parseConversations(db *sql.DB, out *ir.BackupIR, fileByRelPath map[string]ir.IRFile) error {
	rows, err := db.Query(`SELECT id, assistant_id, title, create_at, update_at, truncate_index, suggestions, is_pinned FROM ConversationEntity ORDER BY update_at DESC`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id          string
			assistantID string
			title       string
			createAtMS  int64
			updateAtMS  int64
			truncateIdx int
			suggestions string
			isPinned    int
		)
		if err := rows.Scan(&id, &assistantID, &title, &createAtMS, &updateAtMS, &truncateIdx, &suggestions, &isPinned); err != nil {
			return err
		}
		conv := ir.IRConversation{
			ID:          id,
			AssistantID: assistantID,
			Title:       title,
			CreatedAt:   millisToRFC3339(createAtMS),
			UpdatedAt:   millisToRFC3339(updateAtMS),
			Messages:    []ir.IRMessage{},
			Opaque: map[string]any{
				"truncateIndex": truncateIdx,
				"suggestions":   suggestions,
				"isPinned":      isPinned,
			},
		}

		nodes, err := db.Query(`SELECT id, node_index, messages, select_index FROM message_node WHERE conversation_id = ? ORDER BY node_index ASC`, id)
		if err != nil {
			return err
		}
		for nodes.Next() {
			var nodeID string
			var nodeIndex int
			var messagesJSON string
			var selectIndex int
			if err := nodes.Scan(&nodeID, &nodeIndex, &messagesJSON, &selectIndex); err != nil {
				nodes.Close()
				return err
			}
			var messages []map[string]any
			if err := json.Unmarshal([]byte(messagesJSON), &messages); err != nil {
				conv.Opaque["node_unparsed:"+nodeID] = messagesJSON
				continue
			}
			if len(messages) == 0 {
				continue
			}
			if selectIndex < 0 || selectIndex >= len(messages) {
				selectIndex = 0
			}
			msg := parseMessage(messages[selectIndex], fileByRelPath)
			if msg.ID == "" {
				msg.ID = canon.DeriveUUID("message", conv.ID, fmt.Sprint(nodeIndex))
			}
			conv.Messages = append(conv.Messages, msg)
			if len(messages) > 1 {
				conv.Opaque[fmt.Sprintf("node:%s:branches", nodeID)] = messages
			}
		}
		nodes.Close()
		out.Conversations = append(out.Conversations, conv)
	}
	return rows.Err()
}

func parseMessage(m map[string]any, filesByRel map[string]ir.IRFile) ir.IRMessage {
	msg := ir.IRMessage{
		ID:        str(m["id"]),
		Role:      strings.ToLower(str(m["role"])),
		CreatedAt: str(m["createdAt"]),
		ModelID:   str(m["modelId"]),
		Parts:     []ir.IRPart{},
		Opaque:    map[string]any{},
	}
	for _, item := range asSlice(m["parts"]) {
		pm, ok := item.(map[string]any)
		if !ok {
			continue
		}
		msg.Parts = append(msg.Parts, parsePart(pm, filesByRel))
	}
	if len(msg.Parts) == 0 {
		msg.Parts = []ir.IRPart{{Type: "text", Content: ""}}
	}
	if msg.Role == "" {
		msg.Role = "assistant"
	}
	return msg
}

// parsePart classifies a serialized UIMessagePart by its payload fields, with
// the type discriminator only consulted for media kind inference. Unknown
// shapes degrade to text and keep the raw part in metadata.
func parsePart(pm map[string]any, filesByRel map[string]ir.IRFile) ir.IRPart {
	typeStr := str(pm["type"])
	p := ir.IRPart{Type: "text", Metadata: map[string]any{"rikkaType": typeStr}}

	switch {
	case has(pm, "text"):
		p.Type = "text"
		p.Content = str(pm["text"])
	case has(pm, "reasoning"):
		p.Type = "reasoning"
		p.Content = str(pm["reasoning"])
	case has(pm, "toolCallId") && has(pm, "toolName") && has(pm, "input"):
		p.Type = "tool"
		p.ToolCallID = str(pm["toolCallId"])
		p.Name = str(pm["toolName"])
		p.Input = str(pm["input"])
		for _, o := range asSlice(pm["output"]) {
			om := asMap(o)
			if has(om, "text") {
				p.Output = append(p.Output, ir.IRPart{Type: "text", Content: str(om["text"])})
			}
		}
	case has(pm, "fileName") && has(pm, "url"):
		p.Type = "document"
		p.Name = str(pm["fileName"])
		p.MimeType = str(pm["mime"])
		bindPartFile(&p, str(pm["url"]), filesByRel)
	case has(pm, "url"):
		url := str(pm["url"])
		p.Type = inferMediaType(url, typeStr)
		bindPartFile(&p, url, filesByRel)
	default:
		p.Type = "text"
		p.Content = "[unsupported rikka part]"
		p.Metadata["raw"] = pm
	}
	if len(p.Metadata) == 0 {
		p.Metadata = nil
	}
	return p
}

// bindPartFile resolves a file:// URL to the file index by basename under
// upload/. Non-file URLs pass through as external media.
func bindPartFile(p *ir.IRPart, url string, filesByRel map[string]ir.IRFile) {
	if url == "" {
		return
	}
	p.MediaURL = url
	if !strings.HasPrefix(url, "file://") {
		return
	}
	fileName := filepath.Base(strings.TrimPrefix(url, "file://"))
	if fileName == "." || fileName == "/" || fileName == "" {
		return
	}
	if f, ok := filesByRel["upload/"+fileName]; ok {
		p.FileID = f.ID
		if p.Name == "" {
			p.Name = f.Name
		}
		if p.MimeType == "" {
			p.MimeType = f.MimeType
		}
	}
}

func inferMediaType(url, typeField string) string {
	lowType := strings.ToLower(typeField)
	switch {
	case strings.Contains(lowType, ".video"):
		return "video"
	case strings.Contains(lowType, ".audio"):
		return "audio"
	case strings.Contains(lowType, ".image"):
		return "image"
	}
	switch strings.ToLower(filepath.Ext(url)) {
	case ".png", ".jpg", ".jpeg", ".webp", ".gif":
		return "image"
	case ".mp4", ".mov", ".mkv", ".webm":
		return "video"
	case ".mp3", ".wav", ".m4a", ".aac", ".ogg":
		return "audio"
	default:
		return "document"
	}
}
