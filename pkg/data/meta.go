package data

import (
	"go-bstardb/pkg/customerrors"

	"github.com/cespare/xxhash/v2"
)

const (
	magic   = uint32(0x41544144) // "DATA"
	version = uint8(0x1)

	metaPageID   = uint64(0)
	metadataSize = 33
)

// metadata represents the metadata for the data file, stored in page 0.
type metadata struct {
	pageSize  uint32
	pageCount uint64 // pages in use including the meta page
	records   uint64
}

func (m metadata) MarshalBinary() ([]byte, error) {
	buf := make([]byte, m.pageSize)

	bin.PutUint32(buf[0:4], magic)
	buf[4] = version
	bin.PutUint32(buf[5:9], m.pageSize)
	bin.PutUint64(buf[9:17], m.pageCount)
	bin.PutUint64(buf[17:25], m.records)
	bin.PutUint64(buf[25:33], xxhash.Sum64(buf[:25]))

	return buf, nil
}

func (m *metadata) UnmarshalBinary(d []byte) error {
	if len(d) < metadataSize {
		return customerrors.Corrupted(metaPageID, "in-sufficient data for unmarshal")
	}
	if bin.Uint32(d[0:4]) != magic {
		return customerrors.Corrupted(metaPageID, "not a data file")
	}
	if d[4] != version {
		return customerrors.Corrupted(metaPageID, "incompatible version %#x (expected: %#x)", d[4], version)
	}
	if bin.Uint64(d[25:33]) != xxhash.Sum64(d[:25]) {
		return customerrors.Corrupted(metaPageID, "checksum mismatch")
	}

	m.pageSize = bin.Uint32(d[5:9])
	m.pageCount = bin.Uint64(d[9:17])
	m.records = bin.Uint64(d[17:25])
	return nil
}
