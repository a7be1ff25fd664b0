package bstar

import (
	"encoding"
	"fmt"
)

// SizeDescriptor reports the exact number of bytes a value occupies once
// encoded.
type SizeDescriptor interface {
	Size() int
}

// Key is anything the tree can order and store. MarshalBinary must return
// exactly Size() bytes. UnmarshalBinary decodes from the beginning of its
// argument, after which Size() reports how many bytes were consumed.
//
// types.DataType satisfies Key[types.DataType].
type Key[K any] interface {
	SizeDescriptor
	fmt.Stringer
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler

	Compare(other K) int
}
