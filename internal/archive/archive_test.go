package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

func TestDetect(t *testing.T) {
	t.Run("cherry", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "data.json"), []byte(`{}`), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.MkdirAll(filepath.Join(dir, "Data"), 0o755); err != nil {
			t.Fatal(err)
		}
		res := Detect(dir)
		if res.Format != FormatCherry {
			t.Fatalf("want cherry, got %s", res.Format)
		}
	})

	t.Run("rikka", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{}`), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "rikka_hub.db"), []byte("db"), 0o644); err != nil {
			t.Fatal(err)
		}
		res := Detect(dir)
		if res.Format != FormatRikka {
			t.Fatalf("want rikka, got %s", res.Format)
		}
	})

	t.Run("rikka without db", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{}`), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.MkdirAll(filepath.Join(dir, "upload"), 0o755); err != nil {
			t.Fatal(err)
		}
		if res := Detect(dir); res.Format != FormatRikka {
			t.Fatalf("want rikka, got %s", res.Format)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		dir := t.TempDir()
		if res := Detect(dir); res.Format != FormatUnknown {
			t.Fatalf("want unknown, got %s", res.Format)
		}
	})
}

func TestWriteAndExtractRoundTrip(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("alpha"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "nested", "b.txt"), []byte("beta"), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := CollectDir(src)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got=%d", len(entries))
	}

	zipPath := filepath.Join(t.TempDir(), "out.zip")
	if err := Write(zipPath, entries); err != nil {
		t.Fatal(err)
	}

	dst := t.TempDir()
	if err := Extract(zipPath, dst); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(dst, "nested", "b.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "beta" {
		t.Fatalf("payload mismatch: %q", b)
	}
}

func TestExtract_RejectsEscapingEntry(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "evil.zip")
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("../escape.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("nope")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	dst := t.TempDir()
	if err := Extract(zipPath, dst); err == nil {
		t.Fatal("expected traversal entry to be rejected")
	}
}
