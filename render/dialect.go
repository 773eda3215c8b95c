// Package render compiles finalized expression trees into single SQL
// SELECT statements: text plus an ordered parameter list. Rendering is
// dialect-aware but purely mechanical; every domain error has already
// been raised at tree construction, so failures here are engine bugs.
package render

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Dialect selects identifier quoting and clause-evaluation order for the
// target SQL engine.
//
// The distinguishing property is SelectBeforeGroupBy: dialects that
// evaluate the SELECT list before GROUP BY and HAVING (SQLite, MySQL)
// permit computed aliases to be reused in those clauses, so a
// restriction over an aggregation renders as a plain HAVING. With the
// standard evaluation order the renderer must wrap the aggregation in a
// subquery instead.
type Dialect struct {
	Name string `yaml:"name"`

	// QuoteChar delimits identifiers; embedded occurrences are doubled.
	QuoteChar string `yaml:"quote"`

	// Placeholder is the bound-parameter marker.
	Placeholder string `yaml:"placeholder"`

	// SelectBeforeGroupBy permits alias reuse in GROUP BY and HAVING.
	SelectBeforeGroupBy bool `yaml:"select_before_group_by"`
}

// Default returns the default profile: backquoted identifiers, `?`
// placeholders, SELECT evaluated before GROUP BY.
func Default() Dialect {
	return Dialect{
		Name:                "sqlite",
		QuoteChar:           "`",
		Placeholder:         "?",
		SelectBeforeGroupBy: true,
	}
}

// LoadProfile reads a dialect profile from a YAML file. Unset fields
// keep their default values.
func LoadProfile(path string) (Dialect, error) {
	d := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return d, fmt.Errorf("failed to read dialect profile: %w", err)
	}
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("failed to parse dialect profile: %w", err)
	}
	if d.QuoteChar == "" {
		d.QuoteChar = "`"
	}
	if d.Placeholder == "" {
		d.Placeholder = "?"
	}
	return d, nil
}

// Quote delimits an identifier, doubling embedded quote characters.
func (d Dialect) Quote(ident string) string {
	return d.QuoteChar + strings.ReplaceAll(ident, d.QuoteChar, d.QuoteChar+d.QuoteChar) + d.QuoteChar
}
