// Package cherry reads and writes the cherry backup layout: a data.json
// carrying localStorage plus dumped indexedDB tables, and a Data/Files
// payload directory. Conversations live in indexedDB topics joined against
// the message_blocks table by block id lists.
package cherry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"rikkaport/internal/canon"
	"rikkaport/internal/ir"
	"rikkaport/internal/mapping"
	"rikkaport/internal/util"
)

// ParseToIR reads an extracted cherry archive into the canonical model.
func ParseToIR(extractedDir string) (*ir.BackupIR, error) {
	b, err := os.ReadFile(filepath.Join(extractedDir, "data.json"))
	if err != nil {
		return nil, err
	}
	var root map[string]json.RawMessage
	if err := json.Unmarshal(b, &root); err != nil {
		return nil, fmt.Errorf("parse data.json: %w", err)
	}

	res := &ir.BackupIR{
		SourceApp:    "cherry-studio",
		SourceFormat: "cherry",
		CreatedAt:    time.Now().UTC(),
		Config:       map[string]any{},
		Settings:     map[string]any{},
		Opaque:       map[string]any{},
	}
	if sidecarExists(extractedDir) {
		res.Opaque["interop.sidecar.available"] = true
	}

	var localStorage map[string]any
	if raw, ok := root["localStorage"]; ok {
		_ = json.Unmarshal(raw, &localStorage)
	} else {
		localStorage = map[string]any{}
	}

	indexed := map[string]json.RawMessage{}
	if raw, ok := root["indexedDB"]; ok {
		if err := json.Unmarshal(raw, &indexed); err != nil {
			return nil, fmt.Errorf("parse indexedDB: %w", err)
		}
	}

	blocksByID := map[string]map[string]any{}
	if raw, ok := indexed["message_blocks"]; ok {
		var blocks []map[string]any
		if err := json.Unmarshal(raw, &blocks); err == nil {
			for _, block := range blocks {
				if id := str(block["id"]); id != "" {
					blocksByID[id] = block
				}
			}
		}
	}

	var fileRecords []map[string]any
	if raw, ok := indexed["files"]; ok {
		_ = json.Unmarshal(raw, &fileRecords)
	}
	filesByID := indexDataFiles(extractedDir, fileRecords)
	scanOrphanFiles(extractedDir, filesByID)
	res.Files = sortedFiles(filesByID)

	explicitTopicAssistant := map[string]bool{}
	dominantAssistantByTopic := map[string]string{}
	if raw, ok := indexed["topics"]; ok {
		var topics []map[string]any
		if err := json.Unmarshal(raw, &topics); err != nil {
			return nil, fmt.Errorf("parse indexedDB.topics: %w", err)
		}
		for i, topic := range topics {
			conv := ir.IRConversation{
				ID:        str(topic["id"]),
				Title:     str(topic["name"]),
				CreatedAt: str(topic["createdAt"]),
				UpdatedAt: str(topic["updatedAt"]),
				Opaque:    map[string]any{},
				Messages:  []ir.IRMessage{},
			}
			if conv.ID == "" {
				conv.ID = canon.DeriveUUID("topic", fmt.Sprint(i))
			}
			msgItems := toSlice(topic["messages"])
			for j, item := range msgItems {
				msgMap, ok := item.(map[string]any)
				if !ok {
					continue
				}
				m := toIRMessage(msgMap, blocksByID, filesByID)
				if m.ID == "" {
					m.ID = canon.DeriveUUID("message", conv.ID, fmt.Sprint(j))
				}
				conv.Messages = append(conv.Messages, m)
			}
			if aid := str(topic["assistantId"]); aid != "" {
				conv.AssistantID = aid
				explicitTopicAssistant[conv.ID] = true
			} else {
				dominantAssistantByTopic[conv.ID] = chooseDominantAssistantID(msgItems)
			}
			res.Conversations = append(res.Conversations, conv)
		}
	}

	if err := parsePersistSlices(res, localStorage); err != nil {
		return nil, err
	}
	applyConversationAssistantFallbacks(res, explicitTopicAssistant, dominantAssistantByTopic)
	applyConversationTitleFallbacks(res)

	slices := asMap(res.Config["cherry.persistSlices"])
	if isolated := mapping.ExtractCherryUnsupportedSettings(slices); len(isolated) > 0 {
		res.Opaque["interop.cherry.unsupported"] = isolated
	}
	settings, warnings := mapping.NormalizeFromCherryConfig(slices)
	res.Settings = settings
	res.Warnings = append(res.Warnings, warnings...)

	// unknown indexeddb tables ride along for round-trip preservation
	unknownTables := map[string]any{}
	for k, v := range indexed {
		if k == "topics" || k == "message_blocks" || k == "files" {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err == nil {
			unknownTables[k] = val
		}
	}
	if len(unknownTables) > 0 {
		res.Opaque["cherry.indexedDB.extra"] = unknownTables
	}

	for _, f := range res.Files {
		if f.Missing {
			res.Warnings = append(res.Warnings, fmt.Sprintf("missing cherry file payload: %s", f.ID))
		}
	}
	res.Warnings = util.Dedupe(res.Warnings)
	return res, nil
}

// parsePersistSlices decodes the doubly encoded persist:cherry-studio value:
// the localStorage entry is a JSON string whose values are themselves JSON
// strings, one per redux slice. A slice that fails the inner decode is kept
// as its raw string so nothing is lost.
func parsePersistSlices(res *ir.BackupIR, localStorage map[string]any) error {
	persistStr, _ := localStorage["persist:cherry-studio"].(string)
	if persistStr == "" {
		res.Config["cherry.persistSlices"] = map[string]any{}
		return nil
	}

	var persist map[string]any
	if err := json.Unmarshal([]byte(persistStr), &persist); err != nil {
		return fmt.Errorf("parse persist:cherry-studio: %w", err)
	}

	decoded := map[string]any{}
	for k, v := range persist {
		s, ok := v.(string)
		if !ok {
			decoded[k] = v
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			decoded[k] = s
			res.Warnings = append(res.Warnings, fmt.Sprintf("failed to decode persist slice %s; kept raw string", k))
			continue
		}
		decoded[k] = parsed
	}
	res.Config["cherry.persistSlices"] = decoded

	assistantsSlice := asMap(decoded["assistants"])
	for i, a := range toSlice(assistantsSlice["assistants"]) {
		m, ok := a.(map[string]any)
		if !ok {
			continue
		}
		assistant := ir.IRAssistant{
			ID:          str(m["id"]),
			Name:        str(m["name"]),
			Prompt:      str(m["prompt"]),
			Description: str(m["description"]),
			Model:       asMap(m["model"]),
			Settings:    asMap(m["settings"]),
			Opaque:      map[string]any{},
		}
		if assistant.ID == "" {
			assistant.ID = canon.DeriveUUID("assistant", assistant.Name, fmt.Sprint(i))
		}
		res.Assistants = append(res.Assistants, assistant)
	}
	return nil
}

// applyConversationAssistantFallbacks binds each conversation missing an
// explicit assistant, first through the persist slice topic ownership and
// then through the dominant assistant among its messages.
func applyConversationAssistantFallbacks(res *ir.BackupIR, explicit map[string]bool, dominant map[string]string) {
	assistantByTopic := assistantTopicsFromPersist(res)
	for i := range res.Conversations {
		conv := &res.Conversations[i]
		if explicit[conv.ID] {
			continue
		}
		if aid := assistantByTopic[conv.ID]; aid != "" {
			conv.AssistantID = aid
			continue
		}
		if aid := dominant[conv.ID]; aid != "" {
			conv.AssistantID = aid
		}
	}
}

func applyConversationTitleFallbacks(res *ir.BackupIR) {
	names := topicNamesFromPersist(res)
	for i := range res.Conversations {
		conv := &res.Conversations[i]
		if firstNonEmpty(conv.Title) != "" {
			continue
		}
		if title := names[conv.ID]; title != "" {
			conv.Title = title
		}
	}
}

func assistantTopicsFromPersist(res *ir.BackupIR) map[string]string {
	out := map[string]string{}
	persist := asMap(res.Config["cherry.persistSlices"])
	assistantsSlice := asMap(persist["assistants"])
	for _, item := range toSlice(assistantsSlice["assistants"]) {
		assistant := asMap(item)
		ownerID := firstNonEmpty(str(assistant["id"]))
		for _, topicItem := range toSlice(assistant["topics"]) {
			topic := asMap(topicItem)
			topicID := firstNonEmpty(str(topic["id"]))
			if topicID == "" {
				continue
			}
			mapped := ownerID
			topicAssistantID := firstNonEmpty(str(topic["assistantId"]))
			if mapped == "" {
				mapped = topicAssistantID
			} else if topicAssistantID != "" && topicAssistantID != mapped {
				res.Warnings = append(res.Warnings, fmt.Sprintf("topic %s assistantId (%s) mismatches owner assistant (%s), using owner", topicID, topicAssistantID, mapped))
			}
			if mapped == "" {
				continue
			}
			if existing := out[topicID]; existing != "" && existing != mapped {
				res.Warnings = append(res.Warnings, fmt.Sprintf("topic %s mapped to multiple assistants in persist slices: %s vs %s", topicID, existing, mapped))
				continue
			}
			out[topicID] = mapped
		}
	}
	return out
}

func topicNamesFromPersist(res *ir.BackupIR) map[string]string {
	out := map[string]string{}
	persist := asMap(res.Config["cherry.persistSlices"])
	assistantsSlice := asMap(persist["assistants"])
	for _, item := range toSlice(assistantsSlice["assistants"]) {
		for _, topicItem := range toSlice(asMap(item)["topics"]) {
			topic := asMap(topicItem)
			topicID := firstNonEmpty(str(topic["id"]))
			name := firstNonEmpty(str(topic["name"]))
			if topicID == "" || name == "" {
				continue
			}
			if _, exists := out[topicID]; !exists {
				out[topicID] = name
			}
		}
	}
	return out
}

// chooseDominantAssistantID picks the assistant referenced by the most
// messages, first-seen order breaking ties.
func chooseDominantAssistantID(messages []any) string {
	counts := map[string]int{}
	order := []string{}
	for _, item := range messages {
		msgMap, ok := item.(map[string]any)
		if !ok {
			continue
		}
		aid := firstNonEmpty(str(msgMap["assistantId"]))
		if aid == "" {
			continue
		}
		if _, seen := counts[aid]; !seen {
			order = append(order, aid)
		}
		counts[aid]++
	}
	best, bestCount := "", 0
	for _, aid := range order {
		if counts[aid] > bestCount {
			best, bestCount = aid, counts[aid]
		}
	}
	return best
}

func toIRMessage(msg map[string]any, blocksByID map[string]map[string]any, filesByID map[string]ir.IRFile) ir.IRMessage {
	m := ir.IRMessage{
		ID:        str(msg["id"]),
		Role:      str(msg["role"]),
		CreatedAt: str(msg["createdAt"]),
		ModelID:   str(msg["modelId"]),
		Parts:     []ir.IRPart{},
		Opaque:    map[string]any{},
	}
	if m.Role == "" {
		m.Role = "user"
	}

	for _, blockID := range toStringSlice(msg["blocks"]) {
		block := blocksByID[blockID]
		if len(block) == 0 {
			continue
		}
		m.Parts = append(m.Parts, mapBlockToPart(block, filesByID))
	}
	if len(m.Parts) == 0 {
		if c := str(msg["content"]); c != "" {
			m.Parts = append(m.Parts, ir.IRPart{Type: "text", Content: c})
		}
	}
	if len(m.Parts) == 0 {
		m.Parts = append(m.Parts, ir.IRPart{Type: "text", Content: ""})
	}
	return m
}

// mapBlockToPart dispatches on the block sub-type. Unknown types degrade to
// text with the raw block preserved in metadata.
func mapBlockToPart(block map[string]any, filesByID map[string]ir.IRFile) ir.IRPart {
	t := str(block["type"])
	p := ir.IRPart{Type: "text", Metadata: map[string]any{"cherryBlockType": t}}

	switch t {
	case "main_text", "code", "translation", "compact":
		p.Type = "text"
		p.Content = str(block["content"])
	case "thinking":
		p.Type = "reasoning"
		p.Content = str(block["content"])
	case "tool":
		p.Type = "tool"
		p.Name = str(block["toolName"])
		p.ToolCallID = str(block["toolId"])
		if args, ok := block["arguments"]; ok {
			p.Input = canon.MustJSON(args)
		}
		if c := str(block["content"]); c != "" {
			p.Output = []ir.IRPart{{Type: "text", Content: c}}
		}
	case "image":
		p.Type = "image"
		p.MediaURL = str(block["url"])
		fillPartFileInfo(&p, block, filesByID)
	case "video":
		p.Type = "video"
		p.MediaURL = str(block["url"])
		fillPartFileInfo(&p, block, filesByID)
	case "file":
		p.Type = "document"
		fillPartFileInfo(&p, block, filesByID)
		if p.Name == "" {
			p.Name = str(block["name"])
		}
	default:
		p.Type = "text"
		if c := str(block["content"]); c != "" {
			p.Content = c
		} else {
			p.Content = "[unsupported cherry block: " + t + "]"
		}
		p.Metadata["raw"] = block
	}
	if len(p.Metadata) == 0 {
		p.Metadata = nil
	}
	return p
}

func fillPartFileInfo(p *ir.IRPart, block map[string]any, filesByID map[string]ir.IRFile) {
	fm := asMap(block["file"])
	if len(fm) == 0 {
		return
	}
	if fid := str(fm["id"]); fid != "" {
		p.FileID = fid
	}
	if p.Name == "" {
		p.Name = firstNonEmpty(str(fm["origin_name"]), str(fm["name"]))
	}
	if p.MimeType == "" {
		if f, ok := filesByID[p.FileID]; ok {
			p.MimeType = f.MimeType
		}
	}
}

func sortedFiles(m map[string]ir.IRFile) []ir.IRFile {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	res := make([]ir.IRFile, 0, len(keys))
	for _, k := range keys {
		res = append(res, m[k])
	}
	return res
}

func sidecarExists(root string) bool {
	if _, err := os.Stat(filepath.Join(root, "rikkaport", "manifest.json")); err != nil {
		return false
	}
	if _, err := os.Stat(filepath.Join(root, "rikkaport", "raw", "source.zip")); err != nil {
		return false
	}
	return true
}
