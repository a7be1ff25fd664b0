// Package types implements the SQL column types. Every value reports its own
// serialized size, orders itself against values of the same type and
// encodes deterministically, which makes any of them usable as an index key.
package types

import (
	"encoding"
	"fmt"

	"github.com/pkg/errors"
)

type TypeCode uint8

const (
	TYPE_INTEGER TypeCode = iota // 8/16/32/64 bit [un]signed integer
	TYPE_STRING                  // variable length string
	TYPE_VARCHAR                 // fixed length string
	TYPE_FLOAT                   // 32/64 bit floating point number
)

func (c TypeCode) String() string {
	switch c {
	case TYPE_INTEGER:
		return "INTEGER"
	case TYPE_STRING:
		return "STRING"
	case TYPE_VARCHAR:
		return "VARCHAR"
	case TYPE_FLOAT:
		return "FLOAT"
	}
	return fmt.Sprintf("TypeCode(%d)", uint8(c))
}

type Operator string

const (
	Equal          Operator = "="
	GreaterOrEqual Operator = ">="
	LessOrEqual    Operator = "<="
	Greater        Operator = ">"
	Less           Operator = "<"
	NotEqual       Operator = "!="
)

// Match reports whether cmp, the result of comparing a value against the
// operand, satisfies the operator.
func (op Operator) Match(cmp int) bool {
	switch op {
	case Equal:
		return cmp == 0
	case GreaterOrEqual:
		return cmp >= 0
	case LessOrEqual:
		return cmp <= 0
	case Greater:
		return cmp > 0
	case Less:
		return cmp < 0
	case NotEqual:
		return cmp != 0
	}
	panic(fmt.Errorf("invalid operator:'%s'", op))
}

func (op Operator) IsValid() bool {
	switch op {
	case Equal, GreaterOrEqual, LessOrEqual, Greater, Less, NotEqual:
		return true
	}
	return false
}

var ErrInvalidType = errors.New("invalid type")

type newable struct {
	newInstance func(meta DataTypeMeta) DataType
	newMeta     func(args ...interface{}) (DataTypeMeta, error)
}

var typesMap = map[TypeCode]newable{}
var numericTypes = map[TypeCode]struct{}{}

type DataTypeMeta interface {
	GetCode() TypeCode

	// Size is the serialized size of every value of a fixed size type and
	// -1 for variable size types.
	Size() int
	IsFixedSize() bool
	IsNumeric() bool
	Default() DataType

	// Check reports whether value can be stored without loss. Set panics
	// on exactly the values Check refuses.
	Check(value interface{}) error
}

type DataType interface {
	encoding.BinaryMarshaler

	// UnmarshalBinary decodes a value from the beginning of data. Trailing
	// bytes are ignored; Size reports how many were consumed.
	encoding.BinaryUnmarshaler
	fmt.Stringer

	GetCode() TypeCode

	// Size is the exact length of the MarshalBinary output.
	Size() int
	MetaCopy() DataTypeMeta
	Copy() DataType
	Value() interface{}
	Set(value interface{}) DataType
	Compare(val DataType) int
	CompareOp(operator Operator, val DataType) bool
}

type DataRow map[string]DataType

func Type(meta DataTypeMeta) DataType {
	return typesMap[meta.GetCode()].newInstance(meta)
}

// Convert builds a value of meta from value, refusing out of range integers
// and strings longer than the column holds.
func Convert(meta DataTypeMeta, value interface{}) (DataType, error) {
	if err := meta.Check(value); err != nil {
		return nil, err
	}
	return Type(meta).Set(value), nil
}

// Meta builds the meta of the given type. Without args an empty meta is
// returned, ready to be filled by json.Unmarshal.
func Meta(typeCode TypeCode, args ...interface{}) (DataTypeMeta, error) {
	n, ok := typesMap[typeCode]
	if !ok {
		return nil, errors.Wrapf(ErrInvalidType, "type code %v", typeCode)
	}
	return n.newMeta(args...)
}

// MustMeta is like Meta but panics on error.
func MustMeta(typeCode TypeCode, args ...interface{}) DataTypeMeta {
	m, err := Meta(typeCode, args...)
	if err != nil {
		panic(err)
	}
	return m
}

func IsNumeric(code TypeCode) bool {
	_, ok := numericTypes[code]
	return ok
}

func compareOp(t DataType, operator Operator, val DataType) bool {
	return operator.Match(t.Compare(val))
}

func mustSameCode(t, val DataType) {
	if t.GetCode() != val.GetCode() {
		panic(errors.Wrapf(ErrInvalidType, "can not compare %v with %v", t.GetCode(), val.GetCode()))
	}
}
