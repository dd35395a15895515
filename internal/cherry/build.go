package cherry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"rikkaport/internal/canon"
	"rikkaport/internal/ir"
	"rikkaport/internal/mapping"
	"rikkaport/internal/util"
)

// BuildFromIR materializes a cherry archive layout under outputDir. The
// output is a pure function of the input model: ids are derived, timestamps
// fall back through siblings to the epoch, and re-running the build yields
// identical bytes.
func BuildFromIR(in *ir.BackupIR, outputDir, templateDir string, redactSecrets bool, idMap map[string]string) ([]string, error) {
	warnings := []string{}
	var baseData map[string]any
	if templateDir != "" {
		b, ok, err := util.ReadFileIfExists(filepath.Join(templateDir, "data.json"))
		if err != nil {
			return nil, err
		}
		if ok {
			_ = json.Unmarshal(b, &baseData)
		}
	}
	if baseData == nil {
		baseData = map[string]any{}
	}

	if err := util.EnsureDir(filepath.Join(outputDir, "Data", "Files")); err != nil {
		return nil, err
	}
	warnings = append(warnings, mapping.EnsureNormalizedSettings(in)...)

	indexedDB := asMap(baseData["indexedDB"])
	localStorage := asMap(baseData["localStorage"])

	fileTable, fileWarnings, err := materializeFiles(outputDir, in.Files, idMap)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, fileWarnings...)
	indexedDB["files"] = fileTable

	messageBlocks := make([]map[string]any, 0, 1024)
	topics := make([]map[string]any, 0, len(in.Conversations))
	for i, conv := range in.Conversations {
		topicID := conv.ID
		if topicID == "" {
			topicID = canon.DeriveUUID("topic", fmt.Sprint(i))
		}
		if _, exists := idMap["topic:"+conv.ID]; !exists {
			idMap["topic:"+conv.ID] = topicID
		}
		convTime := fallbackTime(conv.UpdatedAt, conv.CreatedAt)
		messages := make([]map[string]any, 0, len(conv.Messages))
		for j, m := range conv.Messages {
			msgID := m.ID
			if msgID == "" {
				msgID = canon.DeriveUUID("message", topicID, fmt.Sprint(j))
			}
			idMap["message:"+m.ID] = msgID
			msgTime := fallbackTime(m.CreatedAt, convTime)
			blockIDs := make([]string, 0, len(m.Parts))
			for k, p := range m.Parts {
				blockID := canon.DeriveUUID("block", msgID, fmt.Sprint(k))
				blockIDs = append(blockIDs, blockID)
				messageBlocks = append(messageBlocks, partToCherryBlock(blockID, msgID, msgTime, p, in.Files, idMap))
			}
			messages = append(messages, map[string]any{
				"id":          msgID,
				"role":        normalizeRole(m.Role),
				"assistantId": conv.AssistantID,
				"topicId":     topicID,
				"createdAt":   msgTime,
				"status":      "success",
				"blocks":      blockIDs,
			})
		}
		topics = append(topics, map[string]any{
			"id":          topicID,
			"name":        fallbackString(conv.Title, "Imported Conversation"),
			"assistantId": conv.AssistantID,
			"createdAt":   fallbackTime(conv.CreatedAt, conv.UpdatedAt),
			"updatedAt":   convTime,
			"messages":    messages,
		})
	}
	indexedDB["topics"] = topics
	indexedDB["message_blocks"] = messageBlocks

	if extra := asMap(in.Opaque["cherry.indexedDB.extra"]); len(extra) > 0 {
		for k, v := range extra {
			if _, exists := indexedDB[k]; !exists {
				indexedDB[k] = v
			}
		}
	}

	persistSlices, mapWarnings := mapping.BuildCherryConfigFromIR(in)
	warnings = append(warnings, mapWarnings...)
	attachAssistantTopics(persistSlices, in)
	if _, ok := persistSlices["backup"]; !ok {
		persistSlices["backup"] = defaultBackupSlice()
	}

	if redactSecrets {
		persistSlices = util.RedactAny(persistSlices).(map[string]any)
	}

	persistRaw := map[string]any{}
	for k, v := range persistSlices {
		persistRaw[k] = canon.MustJSON(v)
	}
	localStorage["persist:cherry-studio"] = canon.MustJSON(persistRaw)

	baseData["time"] = latestArchiveMillis(in)
	baseData["version"] = 5
	baseData["localStorage"] = localStorage
	baseData["indexedDB"] = indexedDB

	dataJSON, err := json.Marshal(baseData)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(outputDir, "data.json"), dataJSON, 0o644); err != nil {
		return nil, err
	}
	return util.Dedupe(warnings), nil
}

// materializeFiles copies payloads under Data/Files as {stem}{ext}. A record
// whose payload never arrived gets an empty placeholder so the index stays
// consistent, and an empty table still produces a .keep entry because the
// cherry importer requires the directory.
func materializeFiles(outputDir string, files []ir.IRFile, idMap map[string]string) ([]map[string]any, []string, error) {
	table := make([]map[string]any, 0, len(files))
	warnings := []string{}
	usedIDs := map[string]struct{}{}
	destDir := filepath.Join(outputDir, "Data", "Files")
	if err := util.EnsureDir(destDir); err != nil {
		return nil, nil, err
	}
	for _, f := range files {
		fid := chooseFileStem(f)
		if _, exists := usedIDs[fid]; exists {
			fid = canon.DeriveUUID("file", fid, "dup")
		}
		usedIDs[fid] = struct{}{}
		idMap["file:"+f.ID] = fid
		ext := f.Ext
		if ext == "" {
			ext = filepath.Ext(f.Name)
		}
		name := fid + ext
		if f.SourcePath != "" {
			if err := util.CopyFile(f.SourcePath, filepath.Join(destDir, name)); err != nil {
				return nil, nil, err
			}
		} else {
			if err := os.WriteFile(filepath.Join(destDir, name), nil, 0o644); err != nil {
				return nil, nil, err
			}
			warnings = append(warnings, fmt.Sprintf("file %s missing source payload; created empty placeholder", f.ID))
		}
		table = append(table, map[string]any{
			"id":          fid,
			"name":        name,
			"origin_name": fallbackString(f.Name, name),
			"path":        filepath.ToSlash(filepath.Join("Data", "Files", name)),
			"size":        f.Size,
			"ext":         ext,
			"type":        fallbackString(f.LogicalType, fallbackString(f.MimeType, "other")),
			"created_at":  fallbackTime(f.CreatedAt, f.UpdatedAt),
			"count":       1,
		})
	}
	if len(table) == 0 {
		if err := os.WriteFile(filepath.Join(destDir, ".keep"), nil, 0o644); err != nil {
			return nil, nil, err
		}
	}
	return table, util.Dedupe(warnings), nil
}

func partToCherryBlock(blockID, messageID, msgTime string, p ir.IRPart, files []ir.IRFile, idMap map[string]string) map[string]any {
	block := map[string]any{
		"id":        blockID,
		"messageId": messageID,
		"createdAt": msgTime,
		"status":    "success",
	}
	if p.Metadata != nil {
		block["metadata"] = p.Metadata
	}
	findFile := func(fileID string) map[string]any {
		mapped := idMap["file:"+fileID]
		for _, f := range files {
			if f.ID == fileID || idMap["file:"+f.ID] == mapped {
				id := mapped
				if id == "" {
					id = f.ID
				}
				ext := f.Ext
				if ext == "" {
					ext = filepath.Ext(f.Name)
				}
				return map[string]any{
					"id":          id,
					"name":        id + ext,
					"origin_name": f.Name,
					"ext":         ext,
					"size":        f.Size,
					"type":        fallbackString(f.MimeType, "other"),
				}
			}
		}
		return nil
	}

	switch p.Type {
	case "reasoning":
		block["type"] = "thinking"
		block["content"] = p.Content
	case "tool":
		block["type"] = "tool"
		block["toolId"] = fallbackString(p.ToolCallID, canon.DeriveUUID("tool", blockID))
		block["toolName"] = p.Name
		if p.Input != "" {
			var in any
			if json.Unmarshal([]byte(p.Input), &in) == nil {
				block["arguments"] = in
			} else {
				block["arguments"] = map[string]any{"raw": p.Input}
			}
		}
		if len(p.Output) > 0 {
			block["content"] = p.Output[0].Content
		}
	case "image":
		block["type"] = "image"
		block["url"] = p.MediaURL
		if p.FileID != "" {
			if f := findFile(p.FileID); f != nil {
				block["file"] = f
			}
		}
	case "video":
		block["type"] = "video"
		block["url"] = p.MediaURL
		if p.FileID != "" {
			if f := findFile(p.FileID); f != nil {
				block["file"] = f
			}
		}
	case "audio", "document":
		block["type"] = "file"
		if p.FileID != "" {
			if f := findFile(p.FileID); f != nil {
				block["file"] = f
			}
		}
		if p.Content != "" {
			block["content"] = p.Content
		}
	default:
		block["type"] = "main_text"
		block["content"] = p.Content
	}
	return block
}

// attachAssistantTopics rebuilds each assistant's topics list from the
// conversations that reference it. Conversations bound to an unknown
// assistant attach to the first assistant so the persist join stays
// consistent with indexedDB.
func attachAssistantTopics(persistSlices map[string]any, in *ir.BackupIR) {
	assistantsSlice := asMap(persistSlices["assistants"])
	arr := toSlice(assistantsSlice["assistants"])
	if len(arr) == 0 {
		arr = []any{map[string]any{"id": "default", "name": "Default"}}
	}

	known := map[string]int{}
	for i, item := range arr {
		known[str(asMap(item)["id"])] = i
	}
	topicsByIndex := map[int][]any{}
	for _, conv := range in.Conversations {
		idx, ok := known[conv.AssistantID]
		if !ok {
			idx = 0
		}
		owner := str(asMap(arr[idx])["id"])
		topicsByIndex[idx] = append(topicsByIndex[idx], map[string]any{
			"id":                   conv.ID,
			"assistantId":          owner,
			"name":                 fallbackString(conv.Title, "Imported Conversation"),
			"createdAt":            fallbackTime(conv.CreatedAt, conv.UpdatedAt),
			"updatedAt":            fallbackTime(conv.UpdatedAt, conv.CreatedAt),
			"messages":             []any{},
			"isNameManuallyEdited": true,
		})
	}

	for i, item := range arr {
		assistant := asMap(item)
		assistant["topics"] = topicsByIndex[i]
		if assistant["topics"] == nil {
			assistant["topics"] = []any{}
		}
		if str(assistant["type"]) == "" {
			assistant["type"] = "assistant"
		}
		if _, ok := assistant["settings"]; !ok {
			assistant["settings"] = map[string]any{"contextCount": 32, "temperature": 0.7, "streamOutput": true}
		}
		if _, ok := assistant["regularPhrases"]; !ok {
			assistant["regularPhrases"] = []any{}
		}
		arr[i] = assistant
	}
	assistantsSlice["assistants"] = arr
	if _, ok := assistantsSlice["defaultAssistant"]; !ok {
		def := map[string]any{}
		for k, v := range asMap(arr[0]) {
			def[k] = v
		}
		assistantsSlice["defaultAssistant"] = def
	}
	if _, ok := assistantsSlice["tagsOrder"]; !ok {
		assistantsSlice["tagsOrder"] = []any{}
	}
	if _, ok := assistantsSlice["presets"]; !ok {
		assistantsSlice["presets"] = []any{}
	}
	persistSlices["assistants"] = assistantsSlice
}

func defaultBackupSlice() map[string]any {
	idle := map[string]any{"lastSyncTime": nil, "syncing": false, "lastSyncError": nil}
	return map[string]any{
		"webdavSync":      idle,
		"localBackupSync": cloneIdle(idle),
		"s3Sync":          cloneIdle(idle),
	}
}

func cloneIdle(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// latestArchiveMillis derives the data.json time field from the newest
// timestamp anywhere in the model, keeping the output stable across runs.
func latestArchiveMillis(in *ir.BackupIR) int64 {
	var latest int64
	consider := func(v string) {
		if ms := parseUnixMillis(v); ms > latest {
			latest = ms
		}
	}
	for _, conv := range in.Conversations {
		consider(conv.CreatedAt)
		consider(conv.UpdatedAt)
		for _, m := range conv.Messages {
			consider(m.CreatedAt)
		}
	}
	for _, f := range in.Files {
		consider(f.CreatedAt)
		consider(f.UpdatedAt)
	}
	return latest
}
