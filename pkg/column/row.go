package column

import (
	"go-bstardb/pkg/customerrors"
	"go-bstardb/pkg/types"

	"github.com/pkg/errors"
)

// EncodeRow concatenates the binary form of every column value in column
// order. Missing values are replaced by the column default and the others
// are converted to the column meta, so DecodeRow reads them back at the
// same width.
func EncodeRow(columns []*Column, row types.DataRow) ([]byte, error) {
	for name := range row {
		if Find(columns, name) == nil {
			return nil, errors.Wrapf(customerrors.ErrUnknownColumn, "'%s'", name)
		}
	}

	buf := make([]byte, 0, rowSize(columns, row))
	for _, col := range columns {
		val, ok := row[col.Name]
		if !ok {
			val = col.Meta.Default()
		} else if val.GetCode() != col.Typ {
			return nil, errors.Wrapf(types.ErrInvalidType, "column '%s' expects %v, got %v", col.Name, col.Typ, val.GetCode())
		} else if conv, err := types.Convert(col.Meta, val.Value()); err != nil {
			return nil, errors.Wrapf(err, "column '%s'", col.Name)
		} else {
			val = conv
		}

		b, err := val.MarshalBinary()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode column '%s'", col.Name)
		}
		buf = append(buf, b...)
	}

	return buf, nil
}

// DecodeRow interprets record bytes as typed column values, in column order.
func DecodeRow(columns []*Column, data []byte) ([]types.DataType, error) {
	values := make([]types.DataType, len(columns))
	offset := 0
	for i, col := range columns {
		val := col.Value()
		if err := val.UnmarshalBinary(data[offset:]); err != nil {
			return nil, errors.Wrapf(err, "failed to decode column '%s'", col.Name)
		}

		values[i] = val
		offset += val.Size()
	}

	if offset != len(data) {
		return nil, errors.Errorf("record size mismatch, decoded %d of %d bytes", offset, len(data))
	}
	return values, nil
}

// DecodeMap is DecodeRow keyed by column name.
func DecodeMap(columns []*Column, data []byte) (types.DataRow, error) {
	values, err := DecodeRow(columns, data)
	if err != nil {
		return nil, err
	}

	row := make(types.DataRow, len(columns))
	for i, col := range columns {
		row[col.Name] = values[i]
	}
	return row, nil
}

func Find(columns []*Column, name string) *Column {
	for _, col := range columns {
		if col.Name == name {
			return col
		}
	}
	return nil
}

func Index(columns []*Column, name string) int {
	for i, col := range columns {
		if col.Name == name {
			return i
		}
	}
	return -1
}

func rowSize(columns []*Column, row types.DataRow) int {
	sz := 0
	for _, col := range columns {
		if val, ok := row[col.Name]; ok {
			sz += val.Size()
		} else if col.IsFixedSize() {
			sz += col.Meta.Size()
		}
	}
	return sz
}
