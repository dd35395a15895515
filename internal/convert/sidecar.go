package convert

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"rikkaport/internal/archive"
	"rikkaport/internal/ir"
	"rikkaport/internal/mapping"
	"rikkaport/internal/util"
)

// sidecarDirName is the folder inside every output archive holding the
// manifest and the untouched source zips.
const sidecarDirName = "rikkaport"

func writeSidecar(buildDir string, sources []parsedSource, primaryIdx int, manifest *ir.Manifest) error {
	if len(sources) == 0 {
		return fmt.Errorf("write sidecar: empty source list")
	}
	if primaryIdx < 0 || primaryIdx >= len(sources) {
		primaryIdx = 0
	}
	sidecarDir := filepath.Join(buildDir, sidecarDirName)
	if err := util.EnsureDir(filepath.Join(sidecarDir, "raw")); err != nil {
		return err
	}
	mb, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(sidecarDir, "manifest.json"), mb, 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(sidecarDir, "raw", "source.zip"), sources[primaryIdx].SourceBytes, 0o644); err != nil {
		return err
	}
	for _, src := range sources {
		path := filepath.Join(sidecarDir, "raw", fmt.Sprintf("source-%d.zip", src.Index))
		if err := os.WriteFile(path, src.SourceBytes, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// tryRehydrateFromSidecar restores source-native configuration when the
// current target format matches a sidecar source: converting A to B and back
// to A then recovers fields the canonical form cannot carry. Best effort;
// every failure degrades to a warning.
func tryRehydrateFromSidecar(inputDir, targetFormat string, sourceIR *ir.BackupIR) ([]string, error) {
	manifestPath := filepath.Join(inputDir, sidecarDirName, "manifest.json")
	if _, err := os.Stat(manifestPath); err != nil {
		return nil, nil
	}

	manifestBytes, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, err
	}
	var manifest ir.Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return []string{"sidecar-rehydrate:invalid-manifest"}, nil
	}
	targetFormat = strings.ToLower(strings.TrimSpace(targetFormat))

	type candidate struct {
		path  string
		index int
	}
	candidates := []candidate{}
	if strings.EqualFold(strings.TrimSpace(manifest.SourceFormat), targetFormat) {
		sourceZipPath := filepath.Join(inputDir, sidecarDirName, "raw", "source.zip")
		if _, err := os.Stat(sourceZipPath); err == nil {
			candidates = append(candidates, candidate{path: sourceZipPath, index: 0})
		}
	}
	for _, src := range manifest.Sources {
		if !strings.EqualFold(strings.TrimSpace(src.SourceFormat), targetFormat) {
			continue
		}
		p := filepath.Join(inputDir, sidecarDirName, "raw", fmt.Sprintf("source-%d.zip", src.Index))
		if _, err := os.Stat(p); err != nil {
			continue
		}
		candidates = append(candidates, candidate{path: p, index: src.Index})
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].index < candidates[j].index })
	outWarnings := []string{}
	if len(candidates) > 1 {
		outWarnings = append(outWarnings, "sidecar-rehydrate:multiple-source-candidates")
	}

	sidecarDir, cleanup, err := extractToTemp(candidates[0].path)
	if err != nil {
		return append(outWarnings, "sidecar-rehydrate:extract-source-failed"), nil
	}
	defer cleanup()

	d := archive.Detect(sidecarDir)
	if d.Format == archive.FormatUnknown {
		return append(outWarnings, "sidecar-rehydrate:source-format-unknown"), nil
	}
	if !strings.EqualFold(string(d.Format), targetFormat) {
		return append(outWarnings, "sidecar-rehydrate:source-format-mismatch"), nil
	}

	rawIR, err := parseByFormat(d.Format, sidecarDir)
	if err != nil {
		return append(outWarnings, "sidecar-rehydrate:parse-source-failed"), nil
	}
	_ = mapping.EnsureNormalizedSettings(rawIR)

	// The raw.* payload from the original archive becomes the base document
	// the target builder writes over, reviving fields the canonical settings
	// have no slot for.
	switch targetFormat {
	case "cherry":
		if base := asMap(rawIR.Settings["raw.cherry"]); len(base) > 0 {
			sourceIR.Settings["raw.cherry"] = base
		}
		if extra := asMap(rawIR.Opaque["cherry.indexedDB.extra"]); len(extra) > 0 {
			if _, exists := sourceIR.Opaque["cherry.indexedDB.extra"]; !exists {
				sourceIR.Opaque["cherry.indexedDB.extra"] = extra
			}
		}
	case "rikka":
		if base := asMap(rawIR.Settings["raw.rikka"]); len(base) > 0 {
			sourceIR.Settings["raw.rikka"] = base
		}
	}
	if unsupported := asSlice(rawIR.Settings["raw.unsupported"]); len(unsupported) > 0 {
		merged := asSlice(sourceIR.Settings["raw.unsupported"])
		merged = append(merged, unsupported...)
		sourceIR.Settings["raw.unsupported"] = merged
	}

	if sourceIR.Opaque == nil {
		sourceIR.Opaque = map[string]any{}
	}
	sourceIR.Opaque["interop.sidecar"] = map[string]any{
		"rehydrated":   true,
		"sourceFormat": string(d.Format),
		"targetFormat": targetFormat,
		"depth":        1,
	}
	return append(outWarnings, "sidecar-rehydrate:applied"), nil
}
