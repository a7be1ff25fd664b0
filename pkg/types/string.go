package types

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/pkg/errors"
)

func init() {
	typesMap[TYPE_STRING] = newable{
		newInstance: func(meta DataTypeMeta) DataType {
			return &DataTypeSTRING{
				Code: meta.GetCode(),
				Meta: meta.(*DataTypeSTRINGMeta),
			}
		},
		newMeta: func(args ...interface{}) (DataTypeMeta, error) {
			return &DataTypeSTRINGMeta{}, nil
		},
	}
}

type DataTypeSTRINGMeta struct{}

func (m *DataTypeSTRINGMeta) GetCode() TypeCode {
	return TYPE_STRING
}

func (m *DataTypeSTRINGMeta) Size() int {
	return -1
}

func (m *DataTypeSTRINGMeta) Default() DataType {
	return Type(&DataTypeSTRINGMeta{})
}

func (m *DataTypeSTRINGMeta) IsFixedSize() bool {
	return false
}

func (m *DataTypeSTRINGMeta) IsNumeric() bool {
	return false
}

func (m *DataTypeSTRINGMeta) Check(value interface{}) error {
	_, err := m.convert(value)
	return err
}

func (m *DataTypeSTRINGMeta) convert(value interface{}) (string, error) {
	var v string
	switch val := value.(type) {
	case string:
		v = val
	case []byte:
		v = string(val)
	default:
		return "", errors.Wrapf(ErrInvalidType, "invalid set data type => %v", value)
	}

	if len(v) > math.MaxUint16 {
		return "", errors.Wrapf(ErrInvalidType, "string too long => %d bytes", len(v))
	}
	return v, nil
}

// DataTypeSTRING is encoded as a 2 byte length followed by the bytes, so its
// size varies per value.
type DataTypeSTRING struct {
	value string
	Code  TypeCode            `json:"code"`
	Meta  *DataTypeSTRINGMeta `json:"meta"`
}

func (t *DataTypeSTRING) MarshalBinary() (data []byte, err error) {
	if len(t.value) > math.MaxUint16 {
		return nil, errors.Errorf("string too long => %d bytes", len(t.value))
	}

	buf := make([]byte, t.Size())
	binary.BigEndian.PutUint16(buf[:2], uint16(len(t.value)))
	copy(buf[2:], t.value)
	return buf, nil
}

func (t *DataTypeSTRING) UnmarshalBinary(data []byte) error {
	if len(data) < 2 {
		return errors.New("not enough data for STRING length")
	}

	sz := int(binary.BigEndian.Uint16(data[:2]))
	if len(data) < 2+sz {
		return errors.Errorf("not enough data for STRING => want %d, have %d", sz, len(data)-2)
	}

	t.value = string(data[2 : 2+sz])
	return nil
}

func (t *DataTypeSTRING) Copy() DataType {
	return &DataTypeSTRING{
		value: t.value,
		Code:  t.Code,
		Meta:  &DataTypeSTRINGMeta{},
	}
}

func (t *DataTypeSTRING) MetaCopy() DataTypeMeta {
	return &DataTypeSTRINGMeta{}
}

func (t *DataTypeSTRING) Value() interface{} {
	return t.value
}

func (t *DataTypeSTRING) Set(value interface{}) DataType {
	v, err := t.Meta.convert(value)
	if err != nil {
		panic(err)
	}
	t.value = v
	return t
}

func (t *DataTypeSTRING) GetCode() TypeCode {
	return t.Code
}

func (t *DataTypeSTRING) Size() int {
	return 2 + len(t.value)
}

func (t *DataTypeSTRING) Compare(val DataType) int {
	mustSameCode(t, val)
	return strings.Compare(t.value, val.(*DataTypeSTRING).value)
}

func (t *DataTypeSTRING) CompareOp(operator Operator, val DataType) bool {
	return compareOp(t, operator, val)
}

func (t *DataTypeSTRING) String() string {
	return t.value
}
