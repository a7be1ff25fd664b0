package data

import (
	"fmt"

	"github.com/pkg/errors"
)

const RecordPointerSize = 10

// RecordPointer locates a record by data page and slot.
type RecordPointer struct {
	PageID uint64
	Slot   uint16
}

func (ptr RecordPointer) String() string {
	return fmt.Sprintf("ptr{page: %v, slot: %v}", ptr.PageID, ptr.Slot)
}

func (ptr RecordPointer) Size() int {
	return RecordPointerSize // (8 + 2) data page id + slot index
}

// cacheKey packs the pointer into one integer for the record cache.
func (ptr RecordPointer) cacheKey() uint64 {
	return ptr.PageID<<16 | uint64(ptr.Slot)
}

func (ptr RecordPointer) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RecordPointerSize)
	bin.PutUint64(buf[0:8], ptr.PageID)
	bin.PutUint16(buf[8:10], ptr.Slot)
	return buf, nil
}

func (ptr *RecordPointer) UnmarshalBinary(d []byte) error {
	if len(d) < RecordPointerSize {
		return errors.Errorf("record pointer needs %d bytes, have %d", RecordPointerSize, len(d))
	}
	ptr.PageID = bin.Uint64(d[0:8])
	ptr.Slot = bin.Uint16(d[8:10])
	return nil
}
