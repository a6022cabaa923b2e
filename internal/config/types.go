// Package config parses refseqdl run configuration written in Lua.
//
// Configs are declarative: a sandboxed VM evaluates the file and the
// parser extracts a global "refseqdl" table. The sandbox removes all
// system access so a config cannot touch the filesystem, spawn
// processes, or load external code.
package config

import (
	"sort"

	"github.com/genomekit/refseqdl/internal/catalog"
)

// DefaultCatalogURL is the RefSeq bacterial assembly catalog.
const DefaultCatalogURL = "https://ftp.ncbi.nlm.nih.gov/genomes/refseq/bacteria/assembly_summary.txt"

// Config is a complete run configuration.
type Config struct {
	// CatalogURL is the assembly catalog to fetch.
	CatalogURL string

	// Outdir is the output root for snapshots and record directories.
	Outdir string

	// Filters are the record selection rules. Empty means the default
	// curation rules apply.
	Filters []FilterRule
}

// FilterRule selects records by one catalog field. A single value is
// an exact match; multiple values match any one of them.
type FilterRule struct {
	Field  string
	Values []string
}

// Default returns the production configuration: the RefSeq bacterial
// catalog filtered to latest, complete, representative or reference
// genomes.
func Default() *Config {
	return &Config{
		CatalogURL: DefaultCatalogURL,
		Filters: []FilterRule{
			{Field: "assembly_level", Values: []string{"Complete Genome"}},
			{Field: "version_status", Values: []string{"latest"}},
			{Field: "refseq_category", Values: []string{"representative genome", "reference genome"}},
		},
	}
}

// FilterSpec builds the predicate set for the configured rules, falling
// back to the default curation rules when none are configured.
func (c *Config) FilterSpec() catalog.FilterSpec {
	rules := c.Filters
	if len(rules) == 0 {
		rules = Default().Filters
	}
	spec := make(catalog.FilterSpec, len(rules))
	for _, rule := range rules {
		if len(rule.Values) == 1 {
			spec[rule.Field] = catalog.Equals(rule.Values[0])
		} else {
			spec[rule.Field] = catalog.AnyOf(rule.Values...)
		}
	}
	return spec
}

// sortRules orders rules by field name so parsed configs are
// deterministic regardless of Lua table iteration order.
func sortRules(rules []FilterRule) {
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].Field < rules[j].Field
	})
}
