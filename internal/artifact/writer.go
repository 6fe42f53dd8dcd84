// Package artifact writes incident evidence bundles to disk and ships them to
// object storage.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moolen/tripwire/internal/evidence"
	"gopkg.in/yaml.v3"
)

// Format selects the artifact encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// DefaultDir is where artifacts go when no directory is configured.
const DefaultDir = "rca_reports"

// ParseFormat validates a format name. Empty selects JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown artifact format %q (must be json or yaml)", s)
}

// Extension returns the file extension of f without a dot.
func (f Format) Extension() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "json"
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatYAML {
		return "application/yaml"
	}
	return "application/json"
}

// Encode serializes bundle in format f.
func (f Format) Encode(bundle *evidence.Bundle) ([]byte, error) {
	if f == FormatYAML {
		return yaml.Marshal(bundle)
	}
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Writer stores bundles as incident_<id>.<ext> files under Dir.
type Writer struct {
	Dir    string
	Format Format
}

// FileName returns the artifact file name of an incident.
func (w *Writer) FileName(incidentID string) string {
	return fmt.Sprintf("incident_%s.%s", incidentID, w.Format.Extension())
}

// Write encodes bundle and writes it, creating Dir if needed. It returns the
// path of the written file.
func (w *Writer) Write(bundle *evidence.Bundle) (string, error) {
	if bundle == nil || bundle.Incident == nil {
		return "", fmt.Errorf("bundle has no incident")
	}
	dir := w.Dir
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	data, err := w.Format.Encode(bundle)
	if err != nil {
		return "", fmt.Errorf("failed to encode bundle: %w", err)
	}

	path := filepath.Join(dir, w.FileName(bundle.Incident.ID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return path, nil
}
