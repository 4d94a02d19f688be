// Package dataset reads and writes the JSON files that hold harvested
// records.
package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"catalog-harvester/lib/osutil"
)

const indent = "    "

// Write stores records as an indented JSON array. The file is replaced
// atomically so a reader never sees a partially written dataset.
func Write[T any](path string, records []T) error {
	if records == nil {
		records = []T{}
	}
	return osutil.WriteFileAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", indent)
		return enc.Encode(records)
	})
}

func Read[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []T
	if err := json.NewDecoder(f).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode dataset %s: %w", path, err)
	}
	return records, nil
}
