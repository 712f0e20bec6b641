// Package input reads the author roster CSV that drives a batch run.
package input

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/citemetric/scholarcrawl/internal/scholar"
)

// Column header aliases accepted in the roster file. Matching is
// case-insensitive after trimming.
var (
	nameHeaders = []string{"name", "nama", "author", "author_name"}
	idHeaders   = []string{"user_id", "userid", "googlescholarid", "google_scholar_id", "scholar_id", "id"}
)

// ReadAuthors loads a roster CSV from disk.
func ReadAuthors(path string) ([]scholar.Author, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster %s: %w", path, err)
	}
	defer f.Close()
	authors, err := ParseAuthors(f)
	if err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	return authors, nil
}

// ParseAuthors reads author rows from CSV data. The first row must be a
// header containing a user-ID column; a name column is optional. Rows with
// an empty user ID are skipped.
func ParseAuthors(r io.Reader) ([]scholar.Author, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty roster")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	nameIdx := columnIndex(header, nameHeaders)
	idIdx := columnIndex(header, idHeaders)
	if idIdx < 0 {
		return nil, fmt.Errorf("no user-ID column in header %v", header)
	}

	var authors []scholar.Author
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if idIdx >= len(row) {
			continue
		}
		id := strings.TrimSpace(row[idIdx])
		if id == "" {
			continue
		}
		author := scholar.Author{UserID: id}
		if nameIdx >= 0 && nameIdx < len(row) {
			author.Name = strings.TrimSpace(row[nameIdx])
		}
		authors = append(authors, author)
	}
	return authors, nil
}

func columnIndex(header []string, aliases []string) int {
	for i, col := range header {
		col = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
		for _, alias := range aliases {
			if col == alias {
				return i
			}
		}
	}
	return -1
}
