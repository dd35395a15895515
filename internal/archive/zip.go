package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"rikkaport/internal/util"
)

// Entry is one named blob destined for an output container. Either Data or
// SourcePath is set; SourcePath wins so large payloads stream from disk.
type Entry struct {
	Path       string
	Data       []byte
	SourcePath string
}

// Extract unpacks srcZip under dstDir, rejecting entries that would escape it.
func Extract(srcZip, dstDir string) error {
	r, err := zip.OpenReader(srcZip)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", filepath.Base(srcZip), err)
	}
	defer r.Close()

	cleanRoot := filepath.Clean(dstDir)
	for _, f := range r.File {
		target := filepath.Clean(filepath.Join(dstDir, filepath.FromSlash(f.Name)))
		if target != cleanRoot && !strings.HasPrefix(target, cleanRoot+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes extraction root: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Write creates a zip at output from the given entries, sorted by path so the
// central directory is stable across runs.
func Write(output string, entries []Entry) error {
	if err := util.EnsureDir(filepath.Dir(output)); err != nil {
		return err
	}
	f, err := os.Create(output)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	for _, e := range entries {
		name := strings.TrimPrefix(filepath.ToSlash(e.Path), "/")
		if name == "" {
			continue
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: time.Now(),
		})
		if err != nil {
			return err
		}
		if e.SourcePath != "" {
			if err := copyFromDisk(w, e.SourcePath); err != nil {
				return err
			}
			continue
		}
		if _, err := io.Copy(w, bytes.NewReader(e.Data)); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func copyFromDisk(w io.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(w, src)
	return err
}

// CollectDir turns every file under root into a streaming Entry.
func CollectDir(root string) ([]Entry, error) {
	paths, err := util.ListFiles(root)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(paths))
	for _, rel := range paths {
		entries = append(entries, Entry{Path: rel, SourcePath: filepath.Join(root, filepath.FromSlash(rel))})
	}
	return entries, nil
}
