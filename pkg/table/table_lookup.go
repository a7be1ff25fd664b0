package table

import (
	"context"

	"go-bstardb/pkg/column"
	"go-bstardb/pkg/engine"
	"go-bstardb/pkg/resultset"
	"go-bstardb/pkg/types"
	"go-bstardb/util/stream"

	"github.com/pkg/errors"
)

// scan is a primary key range with an optional key filter.
type scan struct {
	lo, hi engine.Bound
	keep   func(key types.DataType) bool
}

// scanFor maps a comparison against the primary key onto a range scan.
func (t *Table) scanFor(op types.Operator, value types.DataType) (scan, error) {
	if !op.IsValid() {
		return scan{}, errors.Errorf("invalid operator '%s'", op)
	}

	key, err := t.key(value)
	if err != nil {
		return scan{}, err
	}

	switch op {
	case types.Equal:
		return scan{lo: engine.Bound{Key: key, Inclusive: true}, hi: engine.Bound{Key: key, Inclusive: true}}, nil
	case types.Less:
		return scan{hi: engine.Bound{Key: key}}, nil
	case types.LessOrEqual:
		return scan{hi: engine.Bound{Key: key, Inclusive: true}}, nil
	case types.Greater:
		return scan{lo: engine.Bound{Key: key}}, nil
	case types.GreaterOrEqual:
		return scan{lo: engine.Bound{Key: key, Inclusive: true}}, nil
	}

	return scan{keep: func(k types.DataType) bool {
		return k.CompareOp(op, key)
	}}, nil
}

func (t *Table) resultSet(s scan) (*resultset.ResultSet, error) {
	c, err := t.eng.RangeScan(s.lo, s.hi)
	if err != nil {
		return nil, err
	}
	return resultset.FromCursor(t.meta.Columns, c, s.keep)
}

// Lookup returns the rows whose primary key compares to value with op, in
// primary key order.
func (t *Table) Lookup(op types.Operator, value types.DataType) (*resultset.ResultSet, error) {
	s, err := t.scanFor(op, value)
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.resultSet(s)
}

// FullScan returns every row in primary key order.
func (t *Table) FullScan() (*resultset.ResultSet, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.resultSet(scan{})
}

// Stream yields every row in primary key order from a background
// goroutine. Rows written concurrently may or may not be seen.
func (t *Table) Stream(ctx context.Context) stream.Reader[types.DataRow] {
	s := stream.New[types.DataRow](ctx, 64)

	go func() {
		c, err := t.eng.RangeScan(engine.Unbounded, engine.Unbounded)
		if err != nil {
			s.CloseWithError(err)
			return
		}
		defer c.Close()

		for c.Next() {
			row, err := column.DecodeMap(t.meta.Columns, c.Record())
			if err != nil {
				s.CloseWithError(errors.Wrapf(err, "failed to decode row of key %s", c.Key()))
				return
			}
			if !s.Push(row) {
				s.Close()
				return
			}
		}
		s.CloseWithError(c.Err())
	}()

	return s
}
