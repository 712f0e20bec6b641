// Package output persists completed profile results as JSON files.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/citemetric/scholarcrawl/internal/scholar"
)

// Writer implements scholar.ResultSink by writing one pretty-printed JSON
// file per profile under Dir. Files are named {user_id}_scholar_data.json,
// or {user_id}_{label}_scholar_data.json when the author has a name.
type Writer struct {
	dir string
}

// NewWriter creates the output directory if needed.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		dir = "output"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	return &Writer{dir: dir}, nil
}

// Dir returns the directory results are written to.
func (w *Writer) Dir() string {
	return w.dir
}

// Write persists the result and returns the file path.
func (w *Writer) Write(result scholar.ProfileResult) (string, error) {
	path := filepath.Join(w.dir, FileName(result.UserID, result.Name))
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal result for %s: %w", result.UserID, err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// FileName builds the output file name for a profile.
func FileName(userID, label string) string {
	name := userID
	if label = SanitizeLabel(label); label != "" {
		name += "_" + label
	}
	return name + "_scholar_data.json"
}

// SanitizeLabel maps a display name onto a filesystem-safe token: runs of
// non-alphanumeric characters collapse into single underscores.
func SanitizeLabel(label string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.TrimSpace(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimRight(b.String(), "_")
}
