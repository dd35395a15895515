package cherry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rikkaport/internal/util"
)

// ValidateExtracted checks the structural integrity of an extracted cherry
// archive: required entries, file payload presence, block to file joins, and
// referential consistency inside the persist llm slice.
func ValidateExtracted(dir string) error {
	issues := []string{}
	if _, err := os.Stat(filepath.Join(dir, "data.json")); err != nil {
		issues = append(issues, "missing data.json")
	}
	if st, err := os.Stat(filepath.Join(dir, "Data")); err != nil || !st.IsDir() {
		issues = append(issues, "missing Data directory")
	}
	if len(issues) > 0 {
		return errors.New(strings.Join(issues, "; "))
	}

	dataBytes, err := os.ReadFile(filepath.Join(dir, "data.json"))
	if err != nil {
		return err
	}
	var root map[string]json.RawMessage
	if err := json.Unmarshal(dataBytes, &root); err != nil {
		return fmt.Errorf("parse data.json: %w", err)
	}
	indexed := map[string]json.RawMessage{}
	if raw, ok := root["indexedDB"]; ok {
		if err := json.Unmarshal(raw, &indexed); err != nil {
			return fmt.Errorf("parse indexedDB: %w", err)
		}
	}

	fileIDs := map[string]struct{}{}
	if raw, ok := indexed["files"]; ok {
		var files []map[string]any
		if err := json.Unmarshal(raw, &files); err == nil {
			for _, rec := range files {
				id := str(rec["id"])
				if id == "" {
					continue
				}
				fileIDs[id] = struct{}{}
				path := resolvePayloadPath(dir, id, str(rec["ext"]))
				if _, err := os.Stat(path); err != nil {
					issues = append(issues, "indexedDB.files entry missing payload: "+id)
				}
			}
		}
	}

	if raw, ok := indexed["message_blocks"]; ok {
		var blocks []map[string]any
		if err := json.Unmarshal(raw, &blocks); err == nil {
			for _, block := range blocks {
				fileID := str(asMap(block["file"])["id"])
				if fileID == "" {
					continue
				}
				if _, ok := fileIDs[fileID]; !ok {
					issues = append(issues, "message_blocks.file.id not found in indexedDB.files: "+fileID)
				}
			}
		}
	}

	localStorage := map[string]any{}
	if raw, ok := root["localStorage"]; ok {
		_ = json.Unmarshal(raw, &localStorage)
	}
	issues = append(issues, validatePersistSlices(str(localStorage["persist:cherry-studio"]))...)

	if len(issues) > 0 {
		return errors.New(strings.Join(util.Dedupe(issues), "; "))
	}
	return nil
}

func validatePersistSlices(persistStr string) []string {
	if strings.TrimSpace(persistStr) == "" {
		return nil
	}
	issues := []string{}
	persist := map[string]any{}
	if err := json.Unmarshal([]byte(persistStr), &persist); err != nil {
		return []string{"parse persist:cherry-studio failed: " + err.Error()}
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
			continue
		}
		decoded[k] = parsed
	}

	llm := asMap(decoded["llm"])
	modelIDs := map[string]struct{}{}
	providerIDs := map[string]struct{}{}
	for _, pItem := range toSlice(llm["providers"]) {
		pm := asMap(pItem)
		providerID := firstNonEmpty(str(pm["id"]))
		if providerID == "" {
			issues = append(issues, "llm.providers has provider with empty id")
			continue
		}
		providerIDs[providerID] = struct{}{}
		models := toSlice(pm["models"])
		if len(models) == 0 {
			issues = append(issues, "llm.providers has provider without models: "+providerID)
		}
		for _, mItem := range models {
			mm := asMap(mItem)
			modelID := firstNonEmpty(str(mm["id"]), str(mm["modelId"]))
			if modelID == "" {
				issues = append(issues, "llm.providers model missing id: "+providerID)
				continue
			}
			modelIDs[modelID] = struct{}{}
			if alt := firstNonEmpty(str(mm["modelId"])); alt != "" {
				modelIDs[alt] = struct{}{}
			}
			modelProvider := firstNonEmpty(str(mm["provider"]))
			if modelProvider == "" {
				issues = append(issues, "llm.providers model missing provider: "+modelID)
				continue
			}
			if _, ok := providerIDs[modelProvider]; !ok {
				issues = append(issues, "llm.providers model provider not found: "+modelProvider)
			}
		}
	}

	if len(modelIDs) > 0 {
		for _, key := range []string{"defaultModel", "quickModel", "translateModel", "topicNamingModel"} {
			m := asMap(llm[key])
			if len(m) == 0 {
				continue
			}
			modelID := firstNonEmpty(str(m["id"]), str(m["modelId"]))
			if modelID == "" {
				issues = append(issues, "llm."+key+" missing model id")
				continue
			}
			if _, ok := modelIDs[modelID]; !ok {
				issues = append(issues, "llm."+key+" not found in llm.providers: "+modelID)
			}
		}

		assistantsSlice := asMap(decoded["assistants"])
		for _, aItem := range toSlice(assistantsSlice["assistants"]) {
			model := asMap(asMap(aItem)["model"])
			modelID := firstNonEmpty(str(model["id"]), str(model["modelId"]))
			if modelID == "" {
				continue
			}
			if _, ok := modelIDs[modelID]; !ok {
				issues = append(issues, "assistant model not found in llm.providers: "+modelID)
			}
		}
	}
	return issues
}
