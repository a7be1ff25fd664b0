package table

import (
	"go-bstardb/pkg/column"
	"go-bstardb/pkg/customerrors"
	"go-bstardb/pkg/types"

	"github.com/pkg/errors"
)

// Delete removes the rows whose primary key compares to value with op and
// returns how many were removed.
func (t *Table) Delete(op types.Operator, value types.DataType) (int, error) {
	s, err := t.scanFor(op, value)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	keys, err := t.keys(s)
	if err != nil {
		return 0, err
	}

	for i, key := range keys {
		if err := t.eng.Delete(key); err != nil {
			return i, errors.Wrapf(err, "failed to delete key %s", key)
		}
	}
	return len(keys), nil
}

// Modify applies updates to the rows whose primary key compares to value
// with op and returns how many were changed. The primary key itself can
// not be modified.
func (t *Table) Modify(op types.Operator, value types.DataType, updates types.DataRow) (int, error) {
	for name, v := range updates {
		col := column.Find(t.meta.Columns, name)
		if col == nil {
			return 0, errors.Wrapf(customerrors.ErrUnknownColumn, "'%s'", name)
		}
		if col == t.pk {
			return 0, errors.Wrapf(customerrors.ErrNotPrimaryKey, "'%s'", name)
		}
		if v == nil || v.GetCode() != col.Typ {
			return 0, errors.Wrapf(types.ErrInvalidType, "column '%s' expects %v", name, col.Typ)
		}
		if err := col.Meta.Check(v.Value()); err != nil {
			return 0, errors.Wrapf(err, "column '%s'", name)
		}
	}

	s, err := t.scanFor(op, value)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rs, err := t.resultSet(s)
	if err != nil {
		return 0, err
	}

	for i := 0; i < rs.Len(); i++ {
		row := rs.Map(i)
		for name, v := range updates {
			row[name] = v
		}

		rec, err := column.EncodeRow(t.meta.Columns, row)
		if err != nil {
			return i, err
		}
		if err := t.eng.Update(row[t.pk.Name], rec); err != nil {
			return i, errors.Wrapf(err, "failed to update key %s", row[t.pk.Name])
		}
	}
	return rs.Len(), nil
}

// keys collects the keys of s before anything is changed.
func (t *Table) keys(s scan) ([]types.DataType, error) {
	c, err := t.eng.RangeScan(s.lo, s.hi)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	keys := []types.DataType{}
	for c.Next() {
		if s.keep == nil || s.keep(c.Key()) {
			keys = append(keys, c.Key())
		}
	}
	return keys, c.Err()
}
