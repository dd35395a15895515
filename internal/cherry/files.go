package cherry

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"rikkaport/internal/canon"
	"rikkaport/internal/ir"
	"rikkaport/internal/util"
)

// indexDataFiles builds the file table from the indexedDB files records,
// resolving each payload under Data/Files by {id}{ext} first and any {id}.*
// sibling second. Records whose payload is gone are kept with Missing set.
func indexDataFiles(extractedDir string, records []map[string]any) map[string]ir.IRFile {
	filesByID := map[string]ir.IRFile{}
	for _, rec := range records {
		id := str(rec["id"])
		if id == "" {
			continue
		}
		name := firstNonEmpty(str(rec["origin_name"]), str(rec["name"]))
		ext := str(rec["ext"])
		if ext == "" && strings.Contains(name, ".") {
			ext = filepath.Ext(name)
		}
		sourcePath := resolvePayloadPath(extractedDir, id, ext)
		st, statErr := os.Stat(sourcePath)
		if statErr != nil {
			sourcePath = ""
		}
		file := ir.IRFile{
			ID:          id,
			Name:        name,
			Ext:         ext,
			MimeType:    str(rec["type"]),
			SourcePath:  sourcePath,
			RelativeSrc: toRel(extractedDir, sourcePath),
			CreatedAt:   firstNonEmpty(anyString(rec["created_at"]), anyString(rec["createdAt"])),
			LogicalType: logicalFileType(str(rec["type"]), ext),
			Missing:     sourcePath == "",
			Metadata:    rec,
		}
		if statErr == nil {
			file.Size = st.Size()
			if hash, err := util.SHA256File(sourcePath); err == nil {
				file.HashSHA256 = hash
			}
		}
		file.Metadata["cherry_id"] = id
		file.Metadata["cherry_ext"] = ext
		filesByID[id] = file
	}
	return filesByID
}

// scanOrphanFiles adds Data/Files payloads the index never mentioned. Orphans
// ride along so a conversion drops nothing the user stored.
func scanOrphanFiles(extractedDir string, filesByID map[string]ir.IRFile) {
	filesDir := filepath.Join(extractedDir, "Data", "Files")
	entries, err := os.ReadDir(filesDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		id := strings.TrimSuffix(name, ext)
		if id == "" {
			continue
		}
		if _, exists := filesByID[id]; exists {
			continue
		}
		fullPath := filepath.Join(filesDir, name)
		st, err := os.Stat(fullPath)
		if err != nil {
			continue
		}
		hash, _ := util.SHA256File(fullPath)
		filesByID[id] = ir.IRFile{
			ID:          id,
			Name:        name,
			Ext:         ext,
			SourcePath:  fullPath,
			RelativeSrc: toRel(extractedDir, fullPath),
			Size:        st.Size(),
			CreatedAt:   st.ModTime().UTC().Format(time.RFC3339),
			UpdatedAt:   st.ModTime().UTC().Format(time.RFC3339),
			HashSHA256:  hash,
			LogicalType: logicalFileType("", ext),
			Orphan:      true,
			Metadata: map[string]any{
				"discovered": true,
				"cherry_id":  id,
				"cherry_ext": ext,
			},
		}
	}
}

func resolvePayloadPath(extractedDir, id, ext string) string {
	basePath := filepath.Join(extractedDir, "Data", "Files", id+ext)
	if _, err := os.Stat(basePath); err == nil {
		return basePath
	}
	filesDir := filepath.Join(extractedDir, "Data", "Files")
	entries, err := os.ReadDir(filesDir)
	if err != nil {
		return basePath
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, id+".") || name == id {
			return filepath.Join(filesDir, name)
		}
	}
	return basePath
}

func logicalFileType(fileType, ext string) string {
	ft := strings.ToLower(strings.TrimSpace(fileType))
	if ft == "" {
		ft = strings.ToLower(strings.TrimSpace(ext))
	}
	switch ft {
	case "image", ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return "image"
	case "video", ".mp4", ".mov", ".mkv", ".webm":
		return "video"
	case "audio", ".mp3", ".wav", ".m4a", ".aac", ".ogg":
		return "audio"
	case "text", ".txt", ".md", ".csv":
		return "text"
	default:
		return "document"
	}
}

// chooseFileStem picks the on-disk stem for a materialized file. The original
// cherry id wins when it is filesystem-safe; otherwise a stable UUID derived
// from the file's identity replaces it.
func chooseFileStem(f ir.IRFile) string {
	meta := asMap(f.Metadata)
	if id := str(meta["cherry_id"]); isSafeFileStem(id) {
		return id
	}
	if isSafeFileStem(f.ID) {
		return f.ID
	}
	return canon.DeriveUUID("file", f.ID, f.Name, f.Ext, f.RelativeSrc, f.HashSHA256)
}

func isSafeFileStem(v string) bool {
	if strings.TrimSpace(v) == "" {
		return false
	}
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}
