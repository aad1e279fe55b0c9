// Package document is the filesystem collaborator of the assistant catalog:
// it reads one fixed document into plain text and writes one fixed report.
package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SavedMessage is returned to the model after a report was written.
const SavedMessage = "I've saved the report"

// Files reads DocumentPath and writes ReportPath. Both paths are fixed by
// configuration; the model can never choose a path.
type Files struct {
	DocumentPath string
	ReportPath   string
}

// Read returns the document text with runs of whitespace collapsed to single
// spaces.
func (f Files) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.DocumentPath == "" {
		return "", fmt.Errorf("document: no document configured")
	}
	data, err := os.ReadFile(f.DocumentPath)
	if err != nil {
		return "", fmt.Errorf("document: read: %w", err)
	}
	return strings.Join(strings.Fields(string(data)), " "), nil
}

// WriteReport stores text at ReportPath, creating parent directories.
func (f Files) WriteReport(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.ReportPath == "" {
		return "", fmt.Errorf("document: no report path configured")
	}
	if err := os.MkdirAll(filepath.Dir(f.ReportPath), 0o755); err != nil {
		return "", fmt.Errorf("document: create report dir: %w", err)
	}
	if err := os.WriteFile(f.ReportPath, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("document: write report: %w", err)
	}
	return SavedMessage, nil
}
