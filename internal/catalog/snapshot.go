package catalog

import (
	"encoding/csv"
	"fmt"
	"os"
)

// WriteFullSnapshot writes the catalog's header line to path as
// tab-separated text. Only the header is written; the unfiltered row
// dump is deliberately omitted, matching the tool's long-standing
// output contract (the file records the column order of the run).
func WriteFullSnapshot(path string, header []string) error {
	return writeSnapshot(path, header, nil)
}

// WriteFilteredSnapshot writes the header plus every filtered record to
// path as tab-separated text, columns in header order.
func WriteFilteredSnapshot(path string, header []string, records []Record) error {
	return writeSnapshot(path, header, records)
}

func writeSnapshot(path string, header []string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}

	w := csv.NewWriter(f)
	w.Comma = '\t'

	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write snapshot header: %w", err)
	}
	row := make([]string, len(header))
	for _, record := range records {
		for i, name := range header {
			row[i] = record[name]
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return fmt.Errorf("write snapshot row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush snapshot: %w", err)
	}
	return f.Close()
}
