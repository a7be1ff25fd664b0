package types

import (
	"cmp"
	"encoding/binary"
	"math"
	"strconv"

	"github.com/pkg/errors"
)

func init() {
	numericTypes[TYPE_FLOAT] = struct{}{}

	typesMap[TYPE_FLOAT] = newable{
		newInstance: func(meta DataTypeMeta) DataType {
			m := meta.(*DataTypeFLOATMeta)
			return &DataTypeFLOAT{
				Code: m.GetCode(),
				Meta: m,
			}
		},
		newMeta: func(args ...interface{}) (DataTypeMeta, error) {
			if len(args) == 0 {
				return &DataTypeFLOATMeta{}, nil
			}

			size, err := toInt64(args[0])
			if err != nil {
				return nil, err
			}
			if size != 4 && size != 8 {
				return nil, errors.Wrapf(ErrInvalidType, "invalid FLOAT byte size => %v", size)
			}

			return &DataTypeFLOATMeta{
				ByteSize: uint8(size),
			}, nil
		},
	}
}

type DataTypeFLOATMeta struct {
	ByteSize uint8 `json:"byte_size"`
}

func (m *DataTypeFLOATMeta) GetCode() TypeCode {
	return TYPE_FLOAT
}

func (m *DataTypeFLOATMeta) Size() int {
	return int(m.ByteSize)
}

func (m *DataTypeFLOATMeta) Default() DataType {
	return Type(&DataTypeFLOATMeta{
		ByteSize: m.ByteSize,
	}).Set(0.0)
}

func (m *DataTypeFLOATMeta) IsFixedSize() bool {
	return true
}

func (m *DataTypeFLOATMeta) IsNumeric() bool {
	return true
}

func (m *DataTypeFLOATMeta) Check(value interface{}) error {
	_, err := m.convert(value)
	return err
}

func (m *DataTypeFLOATMeta) convert(value interface{}) (float64, error) {
	var v float64
	switch val := value.(type) {
	case float64:
		v = val
	case float32:
		v = float64(val)
	default:
		i, err := toInt64(value)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid set data type => %v", value)
		}
		v = float64(i)
	}

	if m.ByteSize == 4 {
		if !math.IsInf(v, 0) && math.Abs(v) > math.MaxFloat32 {
			return 0, errors.Wrapf(ErrInvalidType, "%v out of range for FLOAT(4)", v)
		}
		v = float64(float32(v))
	}
	return v, nil
}

type DataTypeFLOAT struct {
	value float64
	Code  TypeCode           `json:"code"`
	Meta  *DataTypeFLOATMeta `json:"meta"`
}

// MarshalBinary flips the sign bit of positive values and all bits of
// negative ones so that the big endian bytes sort like the numbers.
func (t *DataTypeFLOAT) MarshalBinary() (data []byte, err error) {
	buf := make([]byte, t.Meta.ByteSize)
	if t.Meta.ByteSize == 4 {
		bits := math.Float32bits(float32(t.value))
		if bits&(1<<31) != 0 {
			bits = ^bits
		} else {
			bits ^= 1 << 31
		}
		binary.BigEndian.PutUint32(buf, bits)
		return buf, nil
	}

	bits := math.Float64bits(t.value)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits ^= 1 << 63
	}
	binary.BigEndian.PutUint64(buf, bits)
	return buf, nil
}

func (t *DataTypeFLOAT) UnmarshalBinary(data []byte) error {
	if len(data) < t.Size() {
		return errors.Errorf("not enough data for FLOAT(%d) => %d bytes", t.Meta.ByteSize, len(data))
	}

	if t.Meta.ByteSize == 4 {
		bits := binary.BigEndian.Uint32(data)
		if bits&(1<<31) != 0 {
			bits ^= 1 << 31
		} else {
			bits = ^bits
		}
		t.value = float64(math.Float32frombits(bits))
		return nil
	}

	bits := binary.BigEndian.Uint64(data)
	if bits&(1<<63) != 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	t.value = math.Float64frombits(bits)
	return nil
}

func (t *DataTypeFLOAT) Copy() DataType {
	return &DataTypeFLOAT{
		value: t.value,
		Code:  t.Code,
		Meta:  t.MetaCopy().(*DataTypeFLOATMeta),
	}
}

func (t *DataTypeFLOAT) MetaCopy() DataTypeMeta {
	return &DataTypeFLOATMeta{
		ByteSize: t.Meta.ByteSize,
	}
}

func (t *DataTypeFLOAT) Value() interface{} {
	return t.value
}

func (t *DataTypeFLOAT) Set(value interface{}) DataType {
	v, err := t.Meta.convert(value)
	if err != nil {
		panic(err)
	}
	t.value = v
	return t
}

func (t *DataTypeFLOAT) GetCode() TypeCode {
	return t.Code
}

func (t *DataTypeFLOAT) Size() int {
	return int(t.Meta.ByteSize)
}

func (t *DataTypeFLOAT) Compare(val DataType) int {
	mustSameCode(t, val)
	return cmp.Compare(t.value, val.(*DataTypeFLOAT).value)
}

func (t *DataTypeFLOAT) CompareOp(operator Operator, val DataType) bool {
	return compareOp(t, operator, val)
}

func (t *DataTypeFLOAT) String() string {
	return strconv.FormatFloat(t.value, 'g', -1, 64)
}
