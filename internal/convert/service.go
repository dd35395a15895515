// Package convert drives the conversion pipeline: extract, detect, parse,
// merge, build, and package, with the manifest and raw-source sidecar written
// into every output archive.
package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"rikkaport/internal/archive"
	"rikkaport/internal/cherry"
	"rikkaport/internal/ir"
	"rikkaport/internal/mapping"
	"rikkaport/internal/rikka"
	"rikkaport/internal/util"
)

type ConfigSummary struct {
	Providers           int  `json:"providers"`
	Assistants          int  `json:"assistants"`
	HasWebDAV           bool `json:"hasWebdav"`
	HasS3               bool `json:"hasS3"`
	IsolatedConfigItems int  `json:"isolatedConfigItems,omitempty"`
	RehydrationAvail    bool `json:"rehydrationAvailable,omitempty"`
}

type FileSummary struct {
	Total      int `json:"total"`
	Referenced int `json:"referenced"`
	Orphan     int `json:"orphan"`
	Missing    int `json:"missing"`
}

type InspectResult struct {
	Format        string         `json:"format"`
	Hints         []string       `json:"hints"`
	Conversations int            `json:"conversations"`
	Assistants    int            `json:"assistants"`
	Files         int            `json:"files"`
	SourceApp     string         `json:"sourceApp"`
	ConfigSummary *ConfigSummary `json:"configSummary,omitempty"`
	FileSummary   *FileSummary   `json:"fileSummary,omitempty"`
}

type ValidateResult struct {
	Valid         bool           `json:"valid"`
	Format        string         `json:"format"`
	Issues        []string       `json:"issues"`
	Errors        []string       `json:"errors,omitempty"`
	Warnings      []string       `json:"warnings,omitempty"`
	ConfigSummary *ConfigSummary `json:"configSummary,omitempty"`
	FileSummary   *FileSummary   `json:"fileSummary,omitempty"`
}

type ConvertOptions struct {
	InputPath         string
	InputPaths        []string
	OutputPath        string
	From              string // auto|cherry|rikka
	To                string // cherry|rikka
	TemplatePath      string
	RedactSecrets     bool
	ConfigPrecedence  string // latest|first|target|source
	ConfigSourceIndex int    // 1-based, used when ConfigPrecedence=source
	Progress          ProgressFunc
}

// Inspect extracts an archive, detects its format, and summarizes contents
// without writing anything.
func Inspect(path string) (*InspectResult, error) {
	workDir, cleanup, err := extractToTemp(path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	d := archive.Detect(workDir)
	if d.Format == archive.FormatUnknown {
		return &InspectResult{Format: "unknown", Hints: d.Hints}, nil
	}

	parsed, err := parseByFormat(d.Format, workDir)
	if err != nil {
		return nil, err
	}
	return &InspectResult{
		Format:        string(d.Format),
		Hints:         d.Hints,
		Conversations: len(parsed.Conversations),
		Assistants:    len(parsed.Assistants),
		Files:         len(parsed.Files),
		SourceApp:     parsed.SourceApp,
		ConfigSummary: summarizeConfig(parsed),
		FileSummary:   summarizeFiles(parsed),
	}, nil
}

// Validate runs the format-specific structural checks plus cross-checks on
// the parsed model. Errors make the archive invalid; warnings do not.
func Validate(path string) (*ValidateResult, error) {
	workDir, cleanup, err := extractToTemp(path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	d := archive.Detect(workDir)
	if d.Format == archive.FormatUnknown {
		return &ValidateResult{Valid: false, Format: "unknown", Issues: []string{"unknown backup format"}}, nil
	}

	errorsList := []string{}
	warnings := []string{}
	switch d.Format {
	case archive.FormatCherry:
		if err := cherry.ValidateExtracted(workDir); err != nil {
			errorsList = append(errorsList, err.Error())
		}
	case archive.FormatRikka:
		if err := rikka.ValidateExtracted(workDir); err != nil {
			errorsList = append(errorsList, err.Error())
		}
	}

	parsed, err := parseByFormat(d.Format, workDir)
	if err != nil {
		errorsList = append(errorsList, err.Error())
	}
	var cfgSummary *ConfigSummary
	var fileSummary *FileSummary
	if parsed != nil {
		warnings = append(warnings, parsed.Warnings...)
		if len(parsed.Conversations) == 0 {
			errorsList = append(errorsList, "no conversations found")
		}
		cfgSummary = summarizeConfig(parsed)
		fileSummary = summarizeFiles(parsed)
		if fileSummary != nil && fileSummary.Missing > 0 {
			warnings = append(warnings, fmt.Sprintf("found %d missing file payload(s)", fileSummary.Missing))
		}
	}
	errorsList = util.Dedupe(errorsList)
	warnings = util.Dedupe(warnings)
	issues := append([]string{}, errorsList...)
	issues = append(issues, warnings...)

	return &ValidateResult{
		Valid:         len(errorsList) == 0,
		Format:        string(d.Format),
		Issues:        issues,
		Errors:        errorsList,
		Warnings:      warnings,
		ConfigSummary: cfgSummary,
		FileSummary:   fileSummary,
	}, nil
}

// Convert runs the full pipeline for one or more input archives and writes
// the target archive plus sidecar to opts.OutputPath.
func Convert(opts ConvertOptions) (*ir.Manifest, error) {
	progress := newProgressReporter(opts.Progress)
	inputPaths := normalizeInputPaths(opts.InputPath, opts.InputPaths)
	if len(inputPaths) == 0 || strings.TrimSpace(opts.OutputPath) == "" {
		return nil, fmt.Errorf("input and output are required")
	}
	to := strings.ToLower(strings.TrimSpace(opts.To))
	if to != "cherry" && to != "rikka" {
		return nil, fmt.Errorf("--to must be cherry or rikka")
	}
	from := strings.ToLower(strings.TrimSpace(opts.From))
	if from == "" {
		from = "auto"
	}
	if len(inputPaths) > 1 && from != "auto" {
		return nil, fmt.Errorf("multi-input convert only supports --from auto")
	}

	parsedSources := make([]parsedSource, 0, len(inputPaths))
	cleanupInputs := make([]func(), 0, len(inputPaths))
	defer func() {
		for _, cleanup := range cleanupInputs {
			cleanup()
		}
	}()
	for i, inputPath := range inputPaths {
		progress.emit("parse", 5+30*i/len(inputPaths), "reading "+filepath.Base(inputPath))
		inDir, cleanupIn, err := extractToTemp(inputPath)
		if err != nil {
			return nil, err
		}
		cleanupInputs = append(cleanupInputs, cleanupIn)

		d := archive.Detect(inDir)
		if d.Format == archive.FormatUnknown {
			return nil, fmt.Errorf("cannot detect backup format: %s", filepath.Base(inputPath))
		}
		if from != "auto" && from != string(d.Format) {
			return nil, fmt.Errorf("source format mismatch: detected=%s flag=%s (%s)", d.Format, from, filepath.Base(inputPath))
		}

		sourceIR, parseErr := parseByFormat(d.Format, inDir)
		if parseErr != nil {
			return nil, parseErr
		}
		sourceIR.Warnings = append(sourceIR.Warnings, mapping.EnsureNormalizedSettings(sourceIR)...)
		rehydrateWarnings, rehydrateErr := tryRehydrateFromSidecar(inDir, to, sourceIR)
		if rehydrateErr != nil {
			return nil, rehydrateErr
		}
		sourceIR.Warnings = append(sourceIR.Warnings, rehydrateWarnings...)
		sourceIR.TargetFormat = to
		sourceIR.DetectedHints = d.Hints

		sourceBytes, readErr := os.ReadFile(inputPath)
		if readErr != nil {
			return nil, readErr
		}
		parsedSources = append(parsedSources, parsedSource{
			Index:       i + 1,
			Tag:         fmt.Sprintf("S%d", i+1),
			Path:        inputPath,
			Name:        filepath.Base(inputPath),
			Format:      string(d.Format),
			Hints:       d.Hints,
			SHA256:      util.SHA256Hex(sourceBytes),
			LatestUnix:  inferLatestUnixMillis(inputPath, sourceIR),
			SourceBytes: sourceBytes,
			IR:          sourceIR,
		})
	}

	progress.emit("merge", 40, "merging sources")
	mergedIR, mergeReport, err := mergeSources(parsedSources, MergeOptions{
		TargetFormat:      to,
		ConfigPrecedence:  opts.ConfigPrecedence,
		ConfigSourceIndex: opts.ConfigSourceIndex,
	})
	if err != nil {
		return nil, err
	}

	if opts.RedactSecrets {
		mergedIR.Config = util.RedactAny(mergedIR.Config).(map[string]any)
		if len(mergedIR.Settings) > 0 {
			if redacted, ok := util.RedactAny(mergedIR.Settings).(map[string]any); ok {
				mergedIR.Settings = redacted
			}
		}
	}

	templateDir := ""
	if opts.TemplatePath != "" {
		var cleanupTemplate func()
		templateDir, cleanupTemplate, err = extractToTemp(opts.TemplatePath)
		if err != nil {
			return nil, err
		}
		defer cleanupTemplate()
	}

	buildDir, err := os.MkdirTemp("", "rikkaport-build-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(buildDir)

	progress.emit("build", 55, "building "+to+" archive")
	idMap := map[string]string{}
	var buildWarnings []string
	if to == "cherry" {
		buildWarnings, err = cherry.BuildFromIR(mergedIR, buildDir, templateDir, opts.RedactSecrets, idMap)
	} else {
		buildWarnings, err = rikka.BuildFromIR(mergedIR, buildDir, templateDir, opts.RedactSecrets, idMap)
	}
	if err != nil {
		return nil, err
	}

	primaryIdx := 0
	if mergeReport != nil && mergeReport.PrimarySourceIndex > 0 {
		primaryIdx = mergeReport.PrimarySourceIndex - 1
	}
	if primaryIdx < 0 || primaryIdx >= len(parsedSources) {
		primaryIdx = 0
	}
	primarySource := parsedSources[primaryIdx]

	manifestSources := make([]ir.ManifestSource, 0, len(parsedSources))
	for _, src := range parsedSources {
		manifestSources = append(manifestSources, ir.ManifestSource{
			Index:        src.Index,
			Name:         src.Name,
			SourceApp:    src.IR.SourceApp,
			SourceFormat: src.Format,
			SourceSHA256: src.SHA256,
			Hints:        cloneStringSlice(src.Hints),
		})
	}
	allWarnings := append([]string{}, mergedIR.Warnings...)
	if mergeReport != nil {
		allWarnings = append(allWarnings, mergeReport.Warnings...)
	}
	allWarnings = append(allWarnings, buildWarnings...)
	for _, w := range buildWarnings {
		progress.warn("build", 75, w)
	}
	manifest := &ir.Manifest{
		SchemaVersion: 1,
		SourceApp:     primarySource.IR.SourceApp,
		SourceFormat:  primarySource.Format,
		SourceSHA256:  primarySource.SHA256,
		TargetApp:     targetAppName(to),
		TargetFormat:  to,
		IDMap:         idMap,
		Redaction:     opts.RedactSecrets,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		Sources:       manifestSources,
		Warnings:      util.Dedupe(allWarnings),
	}

	progress.emit("package", 85, "writing sidecar and archive")
	if err := writeSidecar(buildDir, parsedSources, primaryIdx, manifest); err != nil {
		return nil, err
	}
	entries, err := archive.CollectDir(buildDir)
	if err != nil {
		return nil, err
	}
	if err := archive.Write(opts.OutputPath, entries); err != nil {
		return nil, err
	}
	progress.emit("done", 100, "wrote "+filepath.Base(opts.OutputPath))
	return manifest, nil
}

func normalizeInputPaths(single string, multi []string) []string {
	out := []string{}
	push := func(v string) {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	for _, item := range multi {
		push(item)
	}
	if len(out) == 0 {
		push(single)
	}
	return out
}

func parseByFormat(format archive.Format, dir string) (*ir.BackupIR, error) {
	switch format {
	case archive.FormatCherry:
		return cherry.ParseToIR(dir)
	case archive.FormatRikka:
		return rikka.ParseToIR(dir)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func extractToTemp(zipPath string) (string, func(), error) {
	tmp, err := os.MkdirTemp("", "rikkaport-zip-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.RemoveAll(tmp) }
	if err := archive.Extract(zipPath, tmp); err != nil {
		cleanup()
		return "", nil, err
	}
	return tmp, cleanup, nil
}

// inferLatestUnixMillis finds the newest conversation or message timestamp,
// falling back to the archive's mtime. Used for latest precedence ordering.
func inferLatestUnixMillis(sourcePath string, data *ir.BackupIR) int64 {
	best := int64(0)
	parse := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return
		}
		if t, err := time.Parse(time.RFC3339, raw); err == nil && t.UnixMilli() > best {
			best = t.UnixMilli()
		}
	}
	for _, conv := range data.Conversations {
		parse(conv.UpdatedAt)
		parse(conv.CreatedAt)
		for _, msg := range conv.Messages {
			parse(msg.CreatedAt)
		}
	}
	if best > 0 {
		return best
	}
	if st, err := os.Stat(sourcePath); err == nil {
		return st.ModTime().UTC().UnixMilli()
	}
	return 0
}

func targetAppName(to string) string {
	if to == "cherry" {
		return "cherry-studio"
	}
	return "rikkahub"
}

func summarizeConfig(parsed *ir.BackupIR) *ConfigSummary {
	if parsed == nil {
		return nil
	}
	if len(parsed.Settings) == 0 {
		_ = mapping.EnsureNormalizedSettings(parsed)
	}
	return &ConfigSummary{
		Providers:           len(asSlice(parsed.Settings["core.providers"])),
		Assistants:          len(asSlice(parsed.Settings["core.assistants"])),
		HasWebDAV:           len(asMap(parsed.Settings["sync.webdav"])) > 0,
		HasS3:               len(asMap(parsed.Settings["sync.s3"])) > 0,
		IsolatedConfigItems: len(asSlice(parsed.Settings["raw.unsupported"])),
		RehydrationAvail:    asBool(parsed.Opaque["interop.sidecar.available"]),
	}
}

func summarizeFiles(parsed *ir.BackupIR) *FileSummary {
	if parsed == nil {
		return nil
	}
	ref := referencedFileIDs(parsed)
	out := &FileSummary{
		Total:      len(parsed.Files),
		Referenced: len(ref),
	}
	for _, f := range parsed.Files {
		if f.Orphan {
			out.Orphan++
		}
		if f.Missing || strings.TrimSpace(f.SourcePath) == "" {
			out.Missing++
		}
	}
	return out
}

func referencedFileIDs(parsed *ir.BackupIR) map[string]struct{} {
	out := map[string]struct{}{}
	for _, conv := range parsed.Conversations {
		for _, msg := range conv.Messages {
			for _, p := range msg.Parts {
				if id := strings.TrimSpace(p.FileID); id != "" {
					out[id] = struct{}{}
				}
			}
		}
	}
	return out
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	if m == nil {
		return map[string]any{}
	}
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	if s == nil {
		return []any{}
	}
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func cloneStringSlice(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, item := range in {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	sort.Strings(out)
	return out
}
