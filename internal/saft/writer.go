package saft

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Write serializes doc to w with an XML declaration and two-space
// indentation.
func Write(w io.Writer, doc *AuditFile) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("saft: write declaration: %w", err)
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("saft: encode audit file: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("saft: flush audit file: %w", err)
	}

	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf("saft: write trailing newline: %w", err)
	}
	return nil
}

// WriteFile writes doc to path, creating parent directories as
// needed.
func WriteFile(path string, doc *AuditFile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("saft: create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("saft: create %s: %w", path, err)
	}
	if err := Write(f, doc); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("saft: close %s: %w", path, err)
	}
	return nil
}
