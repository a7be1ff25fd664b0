package types

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pkg/errors"
)

func init() {
	numericTypes[TYPE_INTEGER] = struct{}{}

	typesMap[TYPE_INTEGER] = newable{
		newInstance: func(meta DataTypeMeta) DataType {
			m := meta.(*DataTypeINTEGERMeta)
			return &DataTypeINTEGER{
				Code: m.GetCode(),
				Meta: m,
			}
		},
		newMeta: func(args ...interface{}) (DataTypeMeta, error) {
			if len(args) == 0 {
				return &DataTypeINTEGERMeta{}, nil
			}
			if len(args) != 2 {
				return nil, errors.Wrap(ErrInvalidType, "INTEGER meta expects (signed, byteSize)")
			}

			signed, ok := args[0].(bool)
			if !ok {
				return nil, errors.Wrapf(ErrInvalidType, "invalid signed flag => %v", args[0])
			}
			size, err := toInt64(args[1])
			if err != nil {
				return nil, err
			}

			switch size {
			case 1, 2, 4, 8:
			default:
				return nil, errors.Wrapf(ErrInvalidType, "invalid INTEGER byte size => %v", size)
			}

			return &DataTypeINTEGERMeta{
				Signed:   signed,
				ByteSize: uint8(size),
			}, nil
		},
	}
}

type DataTypeINTEGERMeta struct {
	Signed   bool  `json:"signed"`
	ByteSize uint8 `json:"byte_size"`
}

func (m *DataTypeINTEGERMeta) GetCode() TypeCode {
	return TYPE_INTEGER
}

func (m *DataTypeINTEGERMeta) Size() int {
	return int(m.ByteSize)
}

func (m *DataTypeINTEGERMeta) Default() DataType {
	cp := *m
	return Type(&cp).Set(0)
}

func (m *DataTypeINTEGERMeta) IsFixedSize() bool {
	return true
}

func (m *DataTypeINTEGERMeta) IsNumeric() bool {
	return true
}

func (m *DataTypeINTEGERMeta) Check(value interface{}) error {
	_, _, err := m.convert(value)
	return err
}

// convert range checks value against ByteSize, so that the encoding never
// drops high order bytes.
func (m *DataTypeINTEGERMeta) convert(value interface{}) (int64, uint64, error) {
	bits := 8 * uint(m.ByteSize)

	if u, ok := value.(uint64); ok && !m.Signed {
		if bits < 64 && u >= 1<<bits {
			return 0, 0, errors.Wrapf(ErrInvalidType, "%v out of range for unsigned INTEGER(%d)", u, m.ByteSize)
		}
		return int64(u), u, nil
	}

	v, err := toInt64(value)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "invalid set data type => %v", value)
	}

	if m.Signed {
		if bits < 64 {
			lo, hi := -(int64(1) << (bits - 1)), int64(1)<<(bits-1)-1
			if v < lo || v > hi {
				return 0, 0, errors.Wrapf(ErrInvalidType, "%v out of range for INTEGER(%d)", v, m.ByteSize)
			}
		}
	} else if v < 0 || (bits < 64 && uint64(v) >= 1<<bits) {
		return 0, 0, errors.Wrapf(ErrInvalidType, "%v out of range for unsigned INTEGER(%d)", v, m.ByteSize)
	}
	return v, uint64(v), nil
}

// DataTypeINTEGER keeps signed values in i and unsigned values in u. The
// binary form is big endian with the sign bit flipped for signed values, so
// byte order equals numeric order.
type DataTypeINTEGER struct {
	i    int64
	u    uint64
	Code TypeCode             `json:"code"`
	Meta *DataTypeINTEGERMeta `json:"meta"`
}

func (t *DataTypeINTEGER) MarshalBinary() (data []byte, err error) {
	buf := make([]byte, 8)
	if t.Meta.Signed {
		binary.BigEndian.PutUint64(buf, uint64(t.i)^(1<<63))
	} else {
		binary.BigEndian.PutUint64(buf, t.u)
	}

	// keep the low order bytes, flipping the sign bit of the narrowed value
	out := buf[8-t.Meta.ByteSize:]
	if t.Meta.Signed && t.Meta.ByteSize < 8 {
		out[0] ^= 0x80
	}
	return append([]byte(nil), out...), nil
}

func (t *DataTypeINTEGER) UnmarshalBinary(data []byte) error {
	sz := int(t.Meta.ByteSize)
	if len(data) < sz {
		return errors.Errorf("not enough data for INTEGER(%d) => %d bytes", sz, len(data))
	}

	buf := make([]byte, 8)
	copy(buf[8-sz:], data[:sz])
	if t.Meta.Signed {
		buf[8-sz] ^= 0x80
		v := binary.BigEndian.Uint64(buf)
		// sign extend narrowed values
		shift := uint(64 - 8*sz)
		t.i = int64(v<<shift) >> shift
	} else {
		t.u = binary.BigEndian.Uint64(buf)
	}
	return nil
}

func (t *DataTypeINTEGER) Copy() DataType {
	cp := *t
	cp.Meta = t.MetaCopy().(*DataTypeINTEGERMeta)
	return &cp
}

func (t *DataTypeINTEGER) MetaCopy() DataTypeMeta {
	cp := *t.Meta
	return &cp
}

func (t *DataTypeINTEGER) Value() interface{} {
	if t.Meta.Signed {
		return t.i
	}
	return t.u
}

// Set panics on values the meta can not hold; use Convert to get an error.
func (t *DataTypeINTEGER) Set(value interface{}) DataType {
	i, u, err := t.Meta.convert(value)
	if err != nil {
		panic(err)
	}
	t.i, t.u = i, u
	return t
}

func (t *DataTypeINTEGER) GetCode() TypeCode {
	return t.Code
}

func (t *DataTypeINTEGER) Size() int {
	return int(t.Meta.ByteSize)
}

func (t *DataTypeINTEGER) Compare(val DataType) int {
	mustSameCode(t, val)
	v := val.(*DataTypeINTEGER)
	if t.Meta.Signed {
		switch {
		case t.i < v.i:
			return -1
		case t.i > v.i:
			return 1
		}
		return 0
	}

	switch {
	case t.u < v.u:
		return -1
	case t.u > v.u:
		return 1
	}
	return 0
}

func (t *DataTypeINTEGER) CompareOp(operator Operator, val DataType) bool {
	return compareOp(t, operator, val)
}

func (t *DataTypeINTEGER) String() string {
	return fmt.Sprint(t.Value())
}

func toInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, errors.Wrapf(ErrInvalidType, "value out of range => %v", v)
		}
		return int64(v), nil
	case float64:
		if float64(int64(v)) == v {
			return int64(v), nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidType, "not an integer => %v", value)
}
