package config

import (
	"fmt"
	"os"

	lua "github.com/yuin/gopher-lua"
)

// ParseError represents a config parsing error with a friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// ParseFile parses a Lua config file from disk. Values not set in the
// file keep their defaults.
func ParseFile(path string) (*Config, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseString(string(code))
}

// ParseString parses a Lua config from a string. This is also the
// entry point used by tests and in-memory config generation.
func ParseString(luaCode string) (*Config, error) {
	L := newSandboxedVM()
	defer L.Close()

	if err := L.DoString(luaCode); err != nil {
		return nil, &ParseError{
			Message: "Lua syntax error",
			Detail:  err.Error(),
		}
	}

	return extractConfig(L)
}

// extractConfig extracts the config from a Lua state. It expects a
// global "refseqdl" table.
func extractConfig(L *lua.LState) (*Config, error) {
	root := L.GetGlobal("refseqdl")
	if root.Type() != lua.LTTable {
		return nil, &ParseError{
			Message: "missing or invalid 'refseqdl' table",
			Detail:  fmt.Sprintf("expected table, got %s", root.Type()),
		}
	}

	config := Default()
	table := root.(*lua.LTable)

	if v := table.RawGetString("catalog_url"); v != lua.LNil {
		s, ok := v.(lua.LString)
		if !ok {
			return nil, &ParseError{
				Message: "invalid 'catalog_url'",
				Detail:  fmt.Sprintf("expected string, got %s", v.Type()),
			}
		}
		config.CatalogURL = string(s)
	}

	if v := table.RawGetString("outdir"); v != lua.LNil {
		s, ok := v.(lua.LString)
		if !ok {
			return nil, &ParseError{
				Message: "invalid 'outdir'",
				Detail:  fmt.Sprintf("expected string, got %s", v.Type()),
			}
		}
		config.Outdir = string(s)
	}

	if v := table.RawGetString("filters"); v != lua.LNil {
		filtersTable, ok := v.(*lua.LTable)
		if !ok {
			return nil, &ParseError{
				Message: "invalid 'filters' table",
				Detail:  fmt.Sprintf("expected table, got %s", v.Type()),
			}
		}
		filters, err := extractFilters(filtersTable)
		if err != nil {
			return nil, err
		}
		config.Filters = filters
	}

	return config, nil
}

// extractFilters reads the filters table: each key is a catalog field,
// each value either a string (exact match) or an array of strings
// (match any).
func extractFilters(table *lua.LTable) ([]FilterRule, error) {
	var rules []FilterRule
	var extractErr error

	table.ForEach(func(key, value lua.LValue) {
		if extractErr != nil {
			return
		}
		field, ok := key.(lua.LString)
		if !ok {
			extractErr = &ParseError{
				Message: "invalid filter field name",
				Detail:  fmt.Sprintf("expected string key, got %s", key.Type()),
			}
			return
		}

		switch v := value.(type) {
		case lua.LString:
			rules = append(rules, FilterRule{Field: string(field), Values: []string{string(v)}})
		case *lua.LTable:
			var values []string
			v.ForEach(func(_, item lua.LValue) {
				if s, ok := item.(lua.LString); ok {
					values = append(values, string(s))
				} else if extractErr == nil {
					extractErr = &ParseError{
						Message: fmt.Sprintf("invalid filter value for %q", string(field)),
						Detail:  fmt.Sprintf("expected string, got %s", item.Type()),
					}
				}
			})
			if extractErr != nil {
				return
			}
			if len(values) == 0 {
				extractErr = &ParseError{
					Message: fmt.Sprintf("empty filter value list for %q", string(field)),
					Detail:  "a filter needs at least one value",
				}
				return
			}
			rules = append(rules, FilterRule{Field: string(field), Values: values})
		default:
			extractErr = &ParseError{
				Message: fmt.Sprintf("invalid filter value for %q", string(field)),
				Detail:  fmt.Sprintf("expected string or table, got %s", value.Type()),
			}
		}
	})

	if extractErr != nil {
		return nil, extractErr
	}
	sortRules(rules)
	return rules, nil
}
