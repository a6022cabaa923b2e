// Package catalog parses the NCBI assembly summary catalog into records
// and filters them by field-level predicates.
//
// The catalog is tab-separated text. The first line is a comment banner,
// the second line is the real header (its first column name carries a
// leading '#'), and every following line is one assembly record. Rows
// whose column count does not match the header are expected in practice
// and are skipped rather than treated as errors.
package catalog

import (
	"fmt"
	"strings"
)

// AccessionField is the column holding an assembly's unique accession.
// The accession doubles as the on-disk directory name for the record.
const AccessionField = "assembly_accession"

// NameField is the column holding the assembly's display name, used for
// asset filename derivation.
const NameField = "asm_name"

// FTPPathField is the column holding the record's remote base path.
const FTPPathField = "ftp_path"

// Record is one catalog row, mapping column name to raw string value.
type Record map[string]string

// Accession returns the record's unique accession identifier.
func (r Record) Accession() string {
	return r[AccessionField]
}

// Summary is a parsed catalog: the ordered header and the records that
// survived lenient row parsing, in catalog order.
type Summary struct {
	Header  []string
	Records []Record
}

// Parse parses raw catalog text. The first line is discarded as a
// comment banner; the second line is the header, with the leading '#'
// and surrounding whitespace stripped from its first column name. Data
// rows are split on tabs, and any row whose token count differs from
// the header's column count is dropped silently.
func Parse(text string) (*Summary, error) {
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return nil, fmt.Errorf("catalog too short: %d lines", len(lines))
	}

	// lines[0] is the comment banner, lines[1] the header.
	header := strings.Split(strings.TrimSpace(lines[1]), "\t")
	header[0] = strings.TrimSpace(strings.ReplaceAll(header[0], "#", ""))
	if len(header) == 1 && header[0] == "" {
		return nil, fmt.Errorf("catalog header is empty")
	}

	summary := &Summary{Header: header}
	for _, line := range lines[2:] {
		fields := strings.Split(strings.TrimSpace(line), "\t")
		if len(fields) != len(header) {
			continue
		}
		record := make(Record, len(header))
		for i, name := range header {
			record[name] = fields[i]
		}
		summary.Records = append(summary.Records, record)
	}

	return summary, nil
}
