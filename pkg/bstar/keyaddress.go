package bstar

import (
	"encoding"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// bin is the byte order used for all marshals/unmarshals.
var bin = binary.LittleEndian

const (
	ChildPageSize     = 8
	RecordPointerSize = 10
)

// Address is where a key leads: a child page in interior nodes or a record
// in leaves.
type Address interface {
	SizeDescriptor
	fmt.Stringer
	encoding.BinaryMarshaler

	// Page is the page id the address points into.
	Page() uint64
}

// ChildPage points at a child node.
type ChildPage uint64

func (c ChildPage) Size() int    { return ChildPageSize }
func (c ChildPage) Page() uint64 { return uint64(c) }

func (c ChildPage) String() string {
	return fmt.Sprintf("page(%d)", uint64(c))
}

func (c ChildPage) MarshalBinary() ([]byte, error) {
	buf := make([]byte, ChildPageSize)
	bin.PutUint64(buf, uint64(c))
	return buf, nil
}

func decodeChildPage(d []byte) (ChildPage, error) {
	if len(d) < ChildPageSize {
		return 0, errors.Errorf("child page needs %d bytes, have %d", ChildPageSize, len(d))
	}
	return ChildPage(bin.Uint64(d)), nil
}

// RecordPointer locates a record: the data page and the slot inside it.
type RecordPointer struct {
	PageID uint64
	Slot   uint16
}

func (p RecordPointer) Size() int    { return RecordPointerSize }
func (p RecordPointer) Page() uint64 { return p.PageID }

func (p RecordPointer) String() string {
	return fmt.Sprintf("record(%d:%d)", p.PageID, p.Slot)
}

func (p RecordPointer) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RecordPointerSize)
	bin.PutUint64(buf[0:8], p.PageID)
	bin.PutUint16(buf[8:10], p.Slot)
	return buf, nil
}

func decodeRecordPointer(d []byte) (RecordPointer, error) {
	if len(d) < RecordPointerSize {
		return RecordPointer{}, errors.Errorf("record pointer needs %d bytes, have %d", RecordPointerSize, len(d))
	}
	return RecordPointer{
		PageID: bin.Uint64(d[0:8]),
		Slot:   bin.Uint16(d[8:10]),
	}, nil
}

// KeyAddress is a single node entry.
type KeyAddress[K Key[K]] struct {
	Key     K
	Address Address
}

func (e KeyAddress[K]) Size() int {
	return e.Key.Size() + e.Address.Size()
}

func (e KeyAddress[K]) Compare(other KeyAddress[K]) int {
	return e.Key.Compare(other.Key)
}

func (e KeyAddress[K]) MarshalBinary() ([]byte, error) {
	k, err := e.Key.MarshalBinary()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal key %s", e.Key)
	}
	if len(k) != e.Key.Size() {
		return nil, errors.Errorf("key %s marshaled to %d bytes, reports %d", e.Key, len(k), e.Key.Size())
	}

	a, err := e.Address.MarshalBinary()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal address %s", e.Address)
	}
	return append(k, a...), nil
}

func (e KeyAddress[K]) String() string {
	return fmt.Sprintf("%s -> %s", e.Key, e.Address)
}
