// Package archive handles the backup containers themselves: zip in, zip out,
// and marker-path format detection on an extracted tree.
package archive

import (
	"os"
	"path/filepath"
)

type Format string

const (
	FormatUnknown Format = "unknown"
	FormatCherry  Format = "cherry"
	FormatRikka   Format = "rikka"
)

type Detection struct {
	Format Format
	Hints  []string
}

// Detect classifies an extracted backup directory by its marker paths.
// Cherry needs data.json plus the Data/ files tree; Rikka needs settings.json
// plus either the database or an upload directory.
func Detect(dir string) Detection {
	type marker struct {
		hint  string
		found bool
	}
	markers := []marker{
		{"data.json", fileExists(filepath.Join(dir, "data.json"))},
		{"Data/", dirExists(filepath.Join(dir, "Data"))},
		{"settings.json", fileExists(filepath.Join(dir, "settings.json"))},
		{"rikka_hub.db", fileExists(filepath.Join(dir, "rikka_hub.db"))},
		{"upload/", dirExists(filepath.Join(dir, "upload"))},
	}

	var hints []string
	present := map[string]bool{}
	for _, m := range markers {
		present[m.hint] = m.found
		if m.found {
			hints = append(hints, m.hint)
		}
	}

	switch {
	case present["data.json"] && present["Data/"]:
		return Detection{Format: FormatCherry, Hints: hints}
	case present["settings.json"] && (present["rikka_hub.db"] || present["upload/"]):
		return Detection{Format: FormatRikka, Hints: hints}
	default:
		return Detection{Format: FormatUnknown, Hints: hints}
	}
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

func dirExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}
