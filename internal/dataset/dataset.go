// Package dataset holds the typed in-memory table every engine consumes,
// the CSV loader that builds it, and the error taxonomy shared by the
// engines.
package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// ColumnType is the semantic type inferred for a column.
type ColumnType string

const (
	Numeric     ColumnType = "numeric"
	Categorical ColumnType = "categorical"
)

// Column describes one table column.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Dataset is an immutable typed table. Every row has exactly one value per
// column; numeric columns hold only numbers or missing values, categorical
// columns only strings or missing values.
type Dataset struct {
	columns []Column
	index   map[string]int
	rows    [][]Value
}

// New builds a Dataset after checking the column and row invariants.
func New(columns []Column, rows [][]Value) (*Dataset, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if c.Name == "" {
			return nil, Malformedf("column %d has an empty name", i+1)
		}
		if _, dup := index[c.Name]; dup {
			return nil, Malformedf("duplicate column name %q", c.Name)
		}
		if c.Type != Numeric && c.Type != Categorical {
			return nil, Malformedf("column %q has unknown type %q", c.Name, c.Type)
		}
		index[c.Name] = i
	}

	for r, row := range rows {
		if len(row) != len(columns) {
			return nil, Malformedf("row %d has %d values, expected %d", r, len(row), len(columns))
		}
		for c, v := range row {
			switch {
			case v.IsMissing():
			case columns[c].Type == Numeric && v.Kind() != KindNumber:
				return nil, Malformedf("row %d column %q: %q is not numeric", r, columns[c].Name, v.Text())
			case columns[c].Type == Categorical && v.Kind() != KindString:
				return nil, Malformedf("row %d column %q: expected a categorical value", r, columns[c].Name)
			}
		}
	}

	return &Dataset{
		columns: append([]Column(nil), columns...),
		index:   index,
		rows:    rows,
	}, nil
}

// FromRecords infers column types from raw string cells and builds a Dataset.
// Short records are padded with missing values; longer ones are rejected.
func FromRecords(header []string, records [][]string) (*Dataset, error) {
	width := len(header)
	if width == 0 {
		return nil, Malformedf("table has no header")
	}
	names := lo.Map(header, func(h string, _ int) string { return CleanCell(h) })

	cells := make([][]string, len(records))
	for i, rec := range records {
		if len(rec) > width {
			extra := rec[width:]
			if !isEmptyRow(extra) {
				return nil, Malformedf("row %d has %d fields, header has %d", i+1, len(rec), width)
			}
			rec = rec[:width]
		}
		row := make([]string, width)
		for j := range rec {
			row[j] = CleanCell(rec[j])
		}
		cells[i] = row
	}

	columns := make([]Column, width)
	for j, name := range names {
		columns[j] = Column{Name: name, Type: inferType(cells, j)}
	}

	rows := make([][]Value, len(cells))
	for i, rec := range cells {
		row := make([]Value, width)
		for j, cell := range rec {
			row[j] = parseCell(cell, columns[j].Type)
		}
		rows[i] = row
	}

	return New(columns, rows)
}

// inferType reports numeric when at least one cell is present and every
// present cell parses as a finite float.
func inferType(cells [][]string, col int) ColumnType {
	seen := false
	for _, row := range cells {
		cell := row[col]
		if cell == "" {
			continue
		}
		f, err := strconv.ParseFloat(cell, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return Categorical
		}
		seen = true
	}
	if !seen {
		return Categorical
	}
	return Numeric
}

func parseCell(cell string, t ColumnType) Value {
	if cell == "" {
		return Missing()
	}
	if t == Numeric {
		f, _ := strconv.ParseFloat(cell, 64)
		return Number(f)
	}
	return String(cell)
}

// CleanCell trims whitespace and strips spreadsheet artifacts such as the
// ="..." text-forcing wrapper.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}
	return strings.TrimSpace(s)
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Columns returns a copy of the column descriptors in table order.
func (d *Dataset) Columns() []Column {
	return append([]Column(nil), d.columns...)
}

// Names returns the column names in table order.
func (d *Dataset) Names() []string {
	return lo.Map(d.columns, func(c Column, _ int) string { return c.Name })
}

func (d *Dataset) NumRows() int    { return len(d.rows) }
func (d *Dataset) NumColumns() int { return len(d.columns) }

// Index returns the position of the named column.
func (d *Dataset) Index(name string) (int, bool) {
	i, ok := d.index[name]
	return i, ok
}

// Column returns the descriptor at position i.
func (d *Dataset) Column(i int) Column {
	return d.columns[i]
}

// At returns the value at row r, column c.
func (d *Dataset) At(r, c int) Value {
	return d.rows[r][c]
}

// Row returns a copy of row r.
func (d *Dataset) Row(r int) []Value {
	return append([]Value(nil), d.rows[r]...)
}

// Resolve maps column names to indices, failing with ErrInvalidParameter on
// the first unknown or repeated name.
func (d *Dataset) Resolve(names []string) ([]int, error) {
	out := make([]int, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		i, ok := d.index[n]
		if !ok {
			return nil, Invalidf("column %q not found", n)
		}
		if seen[n] {
			return nil, Invalidf("column %q listed more than once", n)
		}
		seen[n] = true
		out = append(out, i)
	}
	return out, nil
}

// ColumnsOfType returns the names of all columns with type t in table order.
func (d *Dataset) ColumnsOfType(t ColumnType) []string {
	return lo.FilterMap(d.columns, func(c Column, _ int) (string, bool) {
		return c.Name, c.Type == t
	})
}

// Others returns every column name except the excluded ones, in table order.
func (d *Dataset) Others(exclude ...string) []string {
	return lo.Without(d.Names(), exclude...)
}

func (d *Dataset) String() string {
	return fmt.Sprintf("Dataset{columns: %d, rows: %d}", len(d.columns), len(d.rows))
}
