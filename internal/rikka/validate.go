package rikka

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"rikkaport/internal/util"
)

// ValidateExtracted checks an extracted rikka archive: required entries, the
// managed file index against payloads on disk, message file URLs against the
// index, and conversation assistant ids against settings.
func ValidateExtracted(dir string) error {
	issues := []string{}
	if _, err := os.Stat(filepath.Join(dir, "settings.json")); err != nil {
		issues = append(issues, "missing settings.json")
	}
	if _, err := os.Stat(filepath.Join(dir, "rikka_hub.db")); err != nil {
		issues = append(issues, "missing rikka_hub.db")
	}
	if len(issues) > 0 {
		return errors.New(strings.Join(issues, "; "))
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "rikka_hub.db"))
	if err != nil {
		return err
	}
	defer db.Close()

	validAssistantIDs := map[string]struct{}{}
	if b, err := os.ReadFile(filepath.Join(dir, "settings.json")); err == nil {
		settings := map[string]any{}
		if err := json.Unmarshal(b, &settings); err != nil {
			issues = append(issues, "parse settings.json failed: "+err.Error())
		} else {
			for _, item := range asSlice(settings["assistants"]) {
				if id := str(asMap(item)["id"]); id != "" {
					validAssistantIDs[id] = struct{}{}
				}
			}
		}
	}

	managed := map[string]struct{}{}
	rows, err := db.Query(`SELECT relative_path FROM managed_files`)
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var rel string
			if err := rows.Scan(&rel); err != nil {
				issues = append(issues, "scan managed_files failed: "+err.Error())
				continue
			}
			rel = filepath.ToSlash(rel)
			managed[rel] = struct{}{}
			if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
				issues = append(issues, "managed_files payload missing: "+rel)
			}
		}
	}

	msgRows, err := db.Query(`SELECT messages FROM message_node`)
	if err == nil {
		defer msgRows.Close()
		for msgRows.Next() {
			var messagesJSON string
			if err := msgRows.Scan(&messagesJSON); err != nil {
				issues = append(issues, "scan message_node failed: "+err.Error())
				continue
			}
			var messages []map[string]any
			if err := json.Unmarshal([]byte(messagesJSON), &messages); err != nil {
				continue
			}
			for _, m := range messages {
				for _, partItem := range asSlice(m["parts"]) {
					url := str(asMap(partItem)["url"])
					if !strings.HasPrefix(url, "file://") {
						continue
					}
					fileName := filepath.Base(strings.TrimPrefix(url, "file://"))
					if fileName == "" || fileName == "." || fileName == "/" {
						continue
					}
					rel := filepath.ToSlash(filepath.Join("upload", fileName))
					if _, ok := managed[rel]; !ok {
						issues = append(issues, "message_node file url has no managed_files entry: "+rel)
					}
				}
			}
		}
	}

	if len(validAssistantIDs) > 0 {
		convRows, err := db.Query(`SELECT DISTINCT assistant_id FROM ConversationEntity`)
		if err == nil {
			defer convRows.Close()
			for convRows.Next() {
				var assistantID string
				if err := convRows.Scan(&assistantID); err != nil {
					issues = append(issues, "scan ConversationEntity assistant_id failed: "+err.Error())
					continue
				}
				assistantID = strings.TrimSpace(assistantID)
				if assistantID == "" {
					continue
				}
				if _, ok := validAssistantIDs[assistantID]; !ok {
					issues = append(issues, "conversation assistant_id missing in settings.assistants: "+assistantID)
				}
			}
		}
	}

	if len(issues) > 0 {
		return errors.New(strings.Join(util.Dedupe(issues), "; "))
	}
	return nil
}
