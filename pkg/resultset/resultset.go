// Package resultset holds the rows a table lookup produced, decoded into
// typed values and kept in key order.
package resultset

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"go-bstardb/pkg/column"
	"go-bstardb/pkg/customerrors"
	"go-bstardb/pkg/engine"
	"go-bstardb/pkg/types"

	"github.com/pkg/errors"
)

type ResultSet struct {
	columns []*column.Column
	rows    [][]types.DataType
}

func New(columns []*column.Column) *ResultSet {
	return &ResultSet{columns: columns, rows: [][]types.DataType{}}
}

// FromCursor decodes every record c yields. Rows for which keep returns
// false are skipped; a nil keep keeps all. The cursor is closed.
func FromCursor(columns []*column.Column, c engine.Cursor, keep func(key types.DataType) bool) (*ResultSet, error) {
	defer c.Close()

	rs := New(columns)
	for c.Next() {
		if keep != nil && !keep(c.Key()) {
			continue
		}

		row, err := column.DecodeRow(columns, c.Record())
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode row of key %s", c.Key())
		}
		rs.rows = append(rs.rows, row)
	}

	if err := c.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}

// Append adds a row given in column order.
func (rs *ResultSet) Append(row []types.DataType) error {
	if len(row) != len(rs.columns) {
		return errors.Errorf("row has %d values, result set has %d columns", len(row), len(rs.columns))
	}
	rs.rows = append(rs.rows, row)
	return nil
}

func (rs *ResultSet) Columns() []*column.Column { return rs.columns }
func (rs *ResultSet) Len() int                  { return len(rs.rows) }

// Row returns the values of row i in column order.
func (rs *ResultSet) Row(i int) []types.DataType {
	return rs.rows[i]
}

// Map returns row i keyed by column name.
func (rs *ResultSet) Map(i int) types.DataRow {
	row := make(types.DataRow, len(rs.columns))
	for j, col := range rs.columns {
		row[col.Name] = rs.rows[i][j]
	}
	return row
}

// Value returns the value of the named column in row i.
func (rs *ResultSet) Value(i int, name string) (types.DataType, error) {
	j := column.Index(rs.columns, name)
	if j < 0 {
		return nil, errors.Wrapf(customerrors.ErrUnknownColumn, "'%s'", name)
	}
	return rs.rows[i][j], nil
}

// Each calls fn for every row until it returns false.
func (rs *ResultSet) Each(fn func(i int, row []types.DataType) bool) {
	for i, row := range rs.rows {
		if !fn(i, row) {
			return
		}
	}
}

// Project returns a result set with only the named columns, in the given
// order. Rows share values with rs.
func (rs *ResultSet) Project(names ...string) (*ResultSet, error) {
	idx := make([]int, len(names))
	cols := make([]*column.Column, len(names))
	for i, name := range names {
		j := column.Index(rs.columns, name)
		if j < 0 {
			return nil, errors.Wrapf(customerrors.ErrUnknownColumn, "'%s'", name)
		}
		idx[i], cols[i] = j, rs.columns[j]
	}

	out := &ResultSet{columns: cols, rows: make([][]types.DataType, len(rs.rows))}
	for r, row := range rs.rows {
		projected := make([]types.DataType, len(idx))
		for i, j := range idx {
			projected[i] = row[j]
		}
		out.rows[r] = projected
	}
	return out, nil
}

// String renders the rows as an aligned table with a header line.
func (rs *ResultSet) String() string {
	sb := &strings.Builder{}
	w := tabwriter.NewWriter(sb, 0, 4, 2, ' ', 0)

	names := make([]string, len(rs.columns))
	for i, col := range rs.columns {
		names[i] = col.Name
	}
	fmt.Fprintln(w, strings.Join(names, "\t"))

	for _, row := range rs.rows {
		values := make([]string, len(row))
		for i, v := range row {
			values[i] = v.String()
		}
		fmt.Fprintln(w, strings.Join(values, "\t"))
	}

	_ = w.Flush()
	fmt.Fprintf(sb, "(%d rows)\n", len(rs.rows))
	return sb.String()
}
