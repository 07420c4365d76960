package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Persist writes <docID>.md with the structured text and, when report is
// non-nil, <docID>.json next to it. Callers log the error and carry on; the
// rendered result does not depend on it.
func Persist(dir, docID, text string, report any) error {
	if dir == "" {
		return fmt.Errorf("persist: no directory configured")
	}
	if docID == "" || strings.ContainsAny(docID, `/\`) || docID == "." || docID == ".." {
		return fmt.Errorf("persist: invalid document id %q", docID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	if err := writeFile(filepath.Join(dir, docID+".md"), []byte(text)); err != nil {
		return err
	}
	if report == nil {
		return nil
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("persist: encode report: %w", err)
	}
	return writeFile(filepath.Join(dir, docID+".json"), data)
}

// writeFile writes through a temp file so readers never see a partial file.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".persist-*")
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("persist %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("persist %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("persist %s: %w", filepath.Base(path), err)
	}
	return nil
}
