package bstar

import (
	"fmt"
	"strings"

	"go-bstardb/pkg/customerrors"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

type nodeKind uint8

const (
	kindLeaf nodeKind = iota + 1
	kindInterior
	kindFree
)

func (k nodeKind) String() string {
	switch k {
	case kindLeaf:
		return "leaf"
	case kindInterior:
		return "interior"
	case kindFree:
		return "free"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// page header layout
const (
	offKind     = 0
	offCount    = 1
	offPageID   = 3
	offParent   = 11
	offLeft     = 19
	offRight    = 27
	offLeftmost = 35
	offChecksum = 43

	nodeHeaderSize = 51
)

// node is the in-memory form of one tree page. Parent and sibling fields
// hold page ids, 0 meaning none. Interior nodes route keys smaller than
// every separator to leftmost; entry i routes keys in [key_i, key_i+1).
// A free page reuses leftmost as the next free page id.
type node[K Key[K]] struct {
	layout *layout[K]

	id       uint64
	kind     nodeKind
	level    int // 1 for leaves, not persisted
	parent   uint64
	left     uint64
	right    uint64
	leftmost uint64
	entries  SortedEntryList[K]
}

func newNode[K Key[K]](l *layout[K], id uint64, kind nodeKind, level int) *node[K] {
	return &node[K]{
		layout: l,
		id:     id,
		kind:   kind,
		level:  level,
	}
}

func (n *node[K]) isLeaf() bool { return n.kind == kindLeaf }
func (n *node[K]) isRoot() bool { return n.parent == 0 }

func (n *node[K]) minFill() int {
	if n.isLeaf() {
		return n.layout.leafMinFill
	}
	return n.layout.interiorMinFill
}

// IsOverflowing reports whether the entries no longer fit in a page.
func (n *node[K]) IsOverflowing() bool {
	return n.entries.Size() > n.layout.capacity
}

// IsUnderflowing reports whether a non-root node fell below the minimum
// fill.
func (n *node[K]) IsUnderflowing() bool {
	return !n.isRoot() && n.entries.Size() < n.minFill()
}

// child returns the child page of entry i, leftmost for i == -1.
func (n *node[K]) child(i int) uint64 {
	if i < 0 {
		return n.leftmost
	}
	return n.entries.At(i).Address.Page()
}

func (n *node[K]) childFor(key K) uint64 {
	return n.child(n.entries.Floor(key))
}

// childIndex is the reverse of child.
func (n *node[K]) childIndex(id uint64) (int, bool) {
	if n.leftmost == id {
		return -1, true
	}
	for i := 0; i < n.entries.Len(); i++ {
		if n.entries.At(i).Address.Page() == id {
			return i, true
		}
	}
	return 0, false
}

// children returns every child page id in key order.
func (n *node[K]) children() []uint64 {
	if n.isLeaf() {
		return nil
	}
	ids := make([]uint64, 0, n.entries.Len()+1)
	for i := -1; i < n.entries.Len(); i++ {
		ids = append(ids, n.child(i))
	}
	return ids
}

func (n *node[K]) MarshalBinary() ([]byte, error) {
	if n.entries.Size() > n.layout.capacity {
		return nil, errors.Wrapf(
			customerrors.ErrCapacityExceeded,
			"page %d holds %d bytes, capacity is %d", n.id, n.entries.Size(), n.layout.capacity,
		)
	}

	buf := make([]byte, n.layout.pageSize)
	buf[offKind] = uint8(n.kind)
	bin.PutUint16(buf[offCount:], uint16(n.entries.Len()))
	bin.PutUint64(buf[offPageID:], n.id)
	bin.PutUint64(buf[offParent:], n.parent)
	bin.PutUint64(buf[offLeft:], n.left)
	bin.PutUint64(buf[offRight:], n.right)
	bin.PutUint64(buf[offLeftmost:], n.leftmost)

	offset := nodeHeaderSize
	for _, e := range n.entries.entries {
		d, err := e.MarshalBinary()
		if err != nil {
			return nil, errors.Wrapf(err, "page %d", n.id)
		}
		offset += copy(buf[offset:], d)
	}

	bin.PutUint64(buf[offChecksum:], pageChecksum(buf))
	return buf, nil
}

// pageChecksum hashes the page as if its checksum field were zero.
func pageChecksum(buf []byte) uint64 {
	d := xxhash.New()
	_, _ = d.Write(buf[:offChecksum])
	_, _ = d.Write(make([]byte, 8))
	_, _ = d.Write(buf[offChecksum+8:])
	return d.Sum64()
}

// decodeNode parses page id. Any inconsistency is reported as storage
// corruption.
func decodeNode[K Key[K]](l *layout[K], id uint64, buf []byte) (*node[K], error) {
	if len(buf) != l.pageSize {
		return nil, customerrors.Corrupted(id, "page is %d bytes, want %d", len(buf), l.pageSize)
	}
	if sum := bin.Uint64(buf[offChecksum:]); sum != pageChecksum(buf) {
		return nil, customerrors.Corrupted(id, "checksum mismatch")
	}
	if got := bin.Uint64(buf[offPageID:]); got != id {
		return nil, customerrors.Corrupted(id, "page claims to be %d", got)
	}

	n := &node[K]{
		layout:   l,
		id:       id,
		kind:     nodeKind(buf[offKind]),
		parent:   bin.Uint64(buf[offParent:]),
		left:     bin.Uint64(buf[offLeft:]),
		right:    bin.Uint64(buf[offRight:]),
		leftmost: bin.Uint64(buf[offLeftmost:]),
	}

	switch n.kind {
	case kindLeaf, kindInterior:
	case kindFree:
		return nil, customerrors.Corrupted(id, "page is on the free list")
	default:
		return nil, customerrors.Corrupted(id, "unknown node kind %d", uint8(n.kind))
	}

	count := int(bin.Uint16(buf[offCount:]))
	n.entries.entries = make([]KeyAddress[K], 0, count)

	offset := nodeHeaderSize
	for i := 0; i < count; i++ {
		key := l.newKey()
		if err := key.UnmarshalBinary(buf[offset:]); err != nil {
			return nil, customerrors.Corrupted(id, "entry %d: %v", i, err)
		}
		offset += key.Size()

		var addr Address
		var err error
		if n.isLeaf() {
			addr, err = decodeRecordPointer(buf[offset:])
		} else {
			addr, err = decodeChildPage(buf[offset:])
		}
		if err != nil {
			return nil, customerrors.Corrupted(id, "entry %d: %v", i, err)
		}
		offset += addr.Size()

		e := KeyAddress[K]{Key: key, Address: addr}
		if n.entries.Len() > 0 && n.entries.Last().Compare(e) >= 0 {
			return nil, customerrors.Corrupted(id, "entry %d (%s) is out of order", i, key)
		}
		n.entries.append(e)
	}

	if n.entries.Size() > l.capacity {
		return nil, customerrors.Corrupted(id, "entries take %d bytes, capacity is %d", n.entries.Size(), l.capacity)
	}
	return n, nil
}

// freePage encodes a page that is on the free list and points at next.
func freePage(pageSize int, id, next uint64) []byte {
	buf := make([]byte, pageSize)
	buf[offKind] = uint8(kindFree)
	bin.PutUint64(buf[offPageID:], id)
	bin.PutUint64(buf[offLeftmost:], next)
	bin.PutUint64(buf[offChecksum:], pageChecksum(buf))
	return buf
}

func decodeFreePage(id uint64, buf []byte) (next uint64, err error) {
	if len(buf) < nodeHeaderSize {
		return 0, customerrors.Corrupted(id, "short free page")
	}
	if bin.Uint64(buf[offChecksum:]) != pageChecksum(buf) {
		return 0, customerrors.Corrupted(id, "checksum mismatch")
	}
	if nodeKind(buf[offKind]) != kindFree || bin.Uint64(buf[offPageID:]) != id {
		return 0, customerrors.Corrupted(id, "page is not free")
	}
	return bin.Uint64(buf[offLeftmost:]), nil
}

func (n *node[K]) String() string {
	keys := make([]string, 0, n.entries.Len())
	for _, e := range n.entries.entries {
		keys = append(keys, e.Key.String())
	}
	return fmt.Sprintf(
		"%s#%d{%s} [size=%d, parent=%d, %d<-n->%d]",
		n.kind, n.id, strings.Join(keys, " "), n.entries.Size(), n.parent, n.left, n.right,
	)
}
