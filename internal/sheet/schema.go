// Package sheet decodes uploaded spreadsheets into rows keyed by canonical
// column names with typed values.
package sheet

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// ColumnType controls how a cell is coerced.
type ColumnType int

const (
	TypeString ColumnType = iota
	TypeDate
	TypeInteger
	TypeDecimal
)

// Column declares a canonical key, its type and the header spellings that
// map onto it.
type Column struct {
	Key     string
	Type    ColumnType
	Aliases []string
}

// Schema resolves normalized headers to columns.
type Schema struct {
	columns []Column
	byAlias map[string]int
}

// NewSchema indexes the columns by key and by every alias.
func NewSchema(columns ...Column) Schema {
	s := Schema{columns: columns, byAlias: make(map[string]int, len(columns)*3)}
	for i, c := range columns {
		s.byAlias[NormalizeHeader(c.Key)] = i
		for _, alias := range c.Aliases {
			s.byAlias[NormalizeHeader(alias)] = i
		}
	}
	return s
}

// Columns returns the declared columns in declaration order.
func (s Schema) Columns() []Column {
	return s.columns
}

// Resolve maps a raw header to its column. Unknown headers come back as a
// string column keyed by their normalized form.
func (s Schema) Resolve(header string) (Column, bool) {
	key := NormalizeHeader(header)
	if i, ok := s.byAlias[key]; ok {
		return s.columns[i], true
	}
	return Column{Key: key, Type: TypeString}, false
}

// NormalizeHeader trims, case folds and joins inner words with underscores.
func NormalizeHeader(header string) string {
	folded := cases.Fold().String(strings.TrimSpace(header))
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return unicode.IsSpace(r) || r == '.' || r == '-' || r == '_'
	})
	return strings.Join(fields, "_")
}
