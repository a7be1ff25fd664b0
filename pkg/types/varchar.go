package types

import (
	"bytes"
	"encoding/binary"
	"slices"

	"github.com/pkg/errors"
)

func init() {
	typesMap[TYPE_VARCHAR] = newable{
		newInstance: func(meta DataTypeMeta) DataType {
			m := meta.(*DataTypeVARCHARMeta)
			return &DataTypeVARCHAR{
				value: make([]byte, m.Cap),
				Code:  m.GetCode(),
				Meta:  m,
			}
		},
		newMeta: func(args ...interface{}) (DataTypeMeta, error) {
			if len(args) == 0 {
				return &DataTypeVARCHARMeta{}, nil
			}

			cap, err := toInt64(args[0])
			if err != nil {
				return nil, err
			}
			if cap <= 0 || cap > 0xffff {
				return nil, errors.Wrapf(ErrInvalidType, "invalid VARCHAR capacity => %v", cap)
			}

			return &DataTypeVARCHARMeta{
				Cap: uint16(cap),
			}, nil
		},
	}
}

type DataTypeVARCHARMeta struct {
	Cap uint16 `json:"cap"`
}

func (m *DataTypeVARCHARMeta) GetCode() TypeCode {
	return TYPE_VARCHAR
}

func (m *DataTypeVARCHARMeta) Size() int {
	return 2 + int(m.Cap) // 2 for length size
}

func (m *DataTypeVARCHARMeta) Default() DataType {
	cp := *m
	return Type(&cp).Set("")
}

func (m *DataTypeVARCHARMeta) IsFixedSize() bool {
	return true
}

func (m *DataTypeVARCHARMeta) IsNumeric() bool {
	return false
}

func (m *DataTypeVARCHARMeta) Check(value interface{}) error {
	_, err := m.convert(value)
	return err
}

func (m *DataTypeVARCHARMeta) convert(value interface{}) ([]byte, error) {
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return nil, errors.Wrapf(ErrInvalidType, "invalid set data type => %v", value)
	}

	if len(b) > int(m.Cap) {
		return nil, errors.Wrapf(ErrInvalidType, "%d bytes do not fit VARCHAR(%d)", len(b), m.Cap)
	}
	return b, nil
}

// DataTypeVARCHAR always occupies 2 + Cap bytes; values longer than Cap are
// refused on Set.
type DataTypeVARCHAR struct {
	value []byte
	Code  TypeCode             `json:"code"`
	Len   uint16               `json:"len"`
	Meta  *DataTypeVARCHARMeta `json:"meta"`
}

func (t *DataTypeVARCHAR) MarshalBinary() (data []byte, err error) {
	buf := make([]byte, t.Size())
	binary.BigEndian.PutUint16(buf[:2], t.Len)
	copy(buf[2:], t.value[:t.Len])
	return buf, nil
}

func (t *DataTypeVARCHAR) UnmarshalBinary(data []byte) error {
	if len(data) < t.Size() {
		return errors.Errorf("not enough data for VARCHAR(%d) => %d bytes", t.Meta.Cap, len(data))
	}

	t.Len = binary.BigEndian.Uint16(data[:2])
	if t.Len > t.Meta.Cap {
		return errors.Errorf("VARCHAR length %d exceeds capacity %d", t.Len, t.Meta.Cap)
	}

	t.value = make([]byte, t.Meta.Cap)
	copy(t.value, data[2:2+int(t.Len)])
	return nil
}

func (t *DataTypeVARCHAR) Copy() DataType {
	return &DataTypeVARCHAR{
		value: slices.Clone(t.value),
		Code:  t.Code,
		Len:   t.Len,
		Meta:  t.MetaCopy().(*DataTypeVARCHARMeta),
	}
}

func (t *DataTypeVARCHAR) MetaCopy() DataTypeMeta {
	return &DataTypeVARCHARMeta{
		Cap: t.Meta.Cap,
	}
}

func (t *DataTypeVARCHAR) Bytes() []byte {
	return t.value[:t.Len]
}

func (t *DataTypeVARCHAR) Value() interface{} {
	return string(t.value[:t.Len])
}

func (t *DataTypeVARCHAR) Set(value interface{}) DataType {
	b, err := t.Meta.convert(value)
	if err != nil {
		panic(err)
	}

	for i := range t.value {
		t.value[i] = 0
	}
	t.Len = uint16(copy(t.value, b))
	return t
}

func (t *DataTypeVARCHAR) GetCode() TypeCode {
	return t.Code
}

func (t *DataTypeVARCHAR) Size() int {
	return t.Meta.Size()
}

func (t *DataTypeVARCHAR) Compare(val DataType) int {
	mustSameCode(t, val)
	return bytes.Compare(t.Bytes(), val.(*DataTypeVARCHAR).Bytes())
}

func (t *DataTypeVARCHAR) CompareOp(operator Operator, val DataType) bool {
	return compareOp(t, operator, val)
}

func (t *DataTypeVARCHAR) String() string {
	return string(t.Bytes())
}
