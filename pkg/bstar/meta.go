package bstar

import (
	"go-bstardb/pkg/customerrors"

	"github.com/cespare/xxhash/v2"
)

const (
	magic   = uint32(0x52545342) // "BSTR"
	version = uint8(0x1)

	metaPageID = uint64(0)
	metaSize   = 65
)

// metadata lives in page 0.
type metadata struct {
	pageSize   uint32
	maxKeySize uint32
	root       uint64
	height     uint32
	size       uint64 // number of keys
	pageCount  uint64 // next never used page id
	freeHead   uint64 // first page of the free list, 0 if empty
	freeCount  uint64
}

func (m metadata) marshal(pageSize int) []byte {
	buf := make([]byte, pageSize)
	bin.PutUint32(buf[0:4], magic)
	buf[4] = version
	bin.PutUint32(buf[5:9], m.pageSize)
	bin.PutUint32(buf[9:13], m.maxKeySize)
	bin.PutUint64(buf[13:21], m.root)
	bin.PutUint32(buf[21:25], m.height)
	bin.PutUint64(buf[25:33], m.size)
	bin.PutUint64(buf[33:41], m.pageCount)
	bin.PutUint64(buf[41:49], m.freeHead)
	bin.PutUint64(buf[49:57], m.freeCount)
	bin.PutUint64(buf[57:65], xxhash.Sum64(buf[:57]))
	return buf
}

func (m *metadata) unmarshal(d []byte) error {
	if len(d) < metaSize {
		return customerrors.Corrupted(metaPageID, "meta page is %d bytes", len(d))
	}
	if bin.Uint32(d[0:4]) != magic {
		return customerrors.Corrupted(metaPageID, "bad magic %#x", bin.Uint32(d[0:4]))
	}
	if d[4] != version {
		return customerrors.Corrupted(metaPageID, "unsupported version %d", d[4])
	}
	if bin.Uint64(d[57:65]) != xxhash.Sum64(d[:57]) {
		return customerrors.Corrupted(metaPageID, "checksum mismatch")
	}

	m.pageSize = bin.Uint32(d[5:9])
	m.maxKeySize = bin.Uint32(d[9:13])
	m.root = bin.Uint64(d[13:21])
	m.height = bin.Uint32(d[21:25])
	m.size = bin.Uint64(d[25:33])
	m.pageCount = bin.Uint64(d[33:41])
	m.freeHead = bin.Uint64(d[41:49])
	m.freeCount = bin.Uint64(d[49:57])

	if m.root == metaPageID || m.root >= m.pageCount || m.height == 0 {
		return customerrors.Corrupted(metaPageID, "invalid root %d (height %d, %d pages)", m.root, m.height, m.pageCount)
	}
	return nil
}
