package schema

import (
	"fmt"
	"strings"
)

// Field captures the minimal behavior-relevant schema fields.
type Field struct {
	Name string
	Type string
}

// TableContract is the logical schema of one stored table. It is captured
// once per query so the translator prompt and the guard validate against
// the same snapshot even if the table changes between calls.
type TableContract struct {
	Table  string
	Fields []Field
}

// HasColumn reports whether the contract contains the named column,
// matched case-insensitively.
func (c TableContract) HasColumn(name string) bool {
	name = strings.TrimSpace(name)
	for _, f := range c.Fields {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}

// Describe renders the contract as "name (type), ..." for prompt embedding.
func (c TableContract) Describe() string {
	parts := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		typ := strings.TrimSpace(f.Type)
		if typ == "" {
			typ = "TEXT"
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", f.Name, typ))
	}
	return strings.Join(parts, ", ")
}

// NormalizeType maps storage-reported column types onto the small set the
// translator prompt uses.
func NormalizeType(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case s == "":
		return "TEXT"
	case strings.Contains(s, "INT"):
		return "INTEGER"
	case strings.Contains(s, "REAL"), strings.Contains(s, "FLOA"), strings.Contains(s, "DOUB"), strings.Contains(s, "NUM"):
		return "REAL"
	default:
		return "TEXT"
	}
}
