package catalog

import "fmt"

// Predicate evaluates a single field value.
type Predicate func(value string) bool

// FilterSpec maps field names to predicates. A record matches the spec
// when every predicate evaluates true for the corresponding field.
type FilterSpec map[string]Predicate

// Equals returns a predicate matching exactly the given value.
func Equals(want string) Predicate {
	return func(value string) bool {
		return value == want
	}
}

// AnyOf returns a predicate matching any one of the given values.
func AnyOf(want ...string) Predicate {
	return func(value string) bool {
		for _, w := range want {
			if value == w {
				return true
			}
		}
		return false
	}
}

// DefaultFilter selects latest, complete, representative or reference
// genomes. This is the curation rule applied to the RefSeq bacterial
// catalog in production runs.
func DefaultFilter() FilterSpec {
	return FilterSpec{
		"assembly_level":  Equals("Complete Genome"),
		"version_status":  Equals("latest"),
		"refseq_category": AnyOf("representative genome", "reference genome"),
	}
}

// FieldMissingError reports a record that lacks a field the filter spec
// requires. This indicates a catalog schema change and aborts the run.
type FieldMissingError struct {
	Field     string
	Accession string
}

func (e *FieldMissingError) Error() string {
	return fmt.Sprintf("record %q is missing filter field %q", e.Accession, e.Field)
}

// Apply returns the subsequence of records matching every predicate in
// the spec, preserving input order. A record missing any configured
// field is a hard error.
func (s FilterSpec) Apply(records []Record) ([]Record, error) {
	var matched []Record
	for _, record := range records {
		ok := true
		for field, predicate := range s {
			value, present := record[field]
			if !present {
				return nil, &FieldMissingError{Field: field, Accession: record.Accession()}
			}
			if !predicate(value) {
				ok = false
			}
		}
		if ok {
			matched = append(matched, record)
		}
	}
	return matched, nil
}
