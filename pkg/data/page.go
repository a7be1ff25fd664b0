package data

import (
	"go-bstardb/pkg/customerrors"

	"github.com/cespare/xxhash/v2"
)

// page header: flags u8 | slot count u16 | page id u64 | checksum u64,
// followed by the slot directory (offset u16, size u16 per slot). Records
// are packed from the end of the page towards the directory. A slot with
// offset 0 is free.
const (
	pageHeaderSz = 19
	slotEntrySz  = 4
)

// page represents a fixed size block of records in the file.
type page struct {
	id       uint64
	flags    uint8
	pageSize int
	slots    [][]byte // nil for free slots
	used     int      // directory plus record bytes
}

func newPage(id uint64, pageSize int) *page {
	return &page{id: id, pageSize: pageSize}
}

// freeSpace is the room left for one more record in a new slot.
func (p *page) freeSpace() int {
	return p.pageSize - pageHeaderSz - p.used - slotEntrySz
}

func (p *page) fits(size int) bool {
	if p.freeSlot() >= 0 {
		return p.pageSize-pageHeaderSz-p.used >= size
	}
	return p.freeSpace() >= size
}

func (p *page) freeSlot() int {
	for i, s := range p.slots {
		if s == nil {
			return i
		}
	}
	return -1
}

// add stores rec in a free slot or a new one and returns the slot index.
func (p *page) add(rec []byte) uint16 {
	rec = append(make([]byte, 0, len(rec)), rec...)

	if i := p.freeSlot(); i >= 0 {
		p.slots[i] = rec
		p.used += len(rec)
		return uint16(i)
	}

	p.slots = append(p.slots, rec)
	p.used += slotEntrySz + len(rec)
	return uint16(len(p.slots) - 1)
}

func (p *page) get(slot uint16) ([]byte, bool) {
	if int(slot) >= len(p.slots) || p.slots[slot] == nil {
		return nil, false
	}
	return p.slots[slot], true
}

// set replaces the record in slot, reporting false when it does not fit.
func (p *page) set(slot uint16, rec []byte) bool {
	old := p.slots[slot]
	if p.pageSize-pageHeaderSz-p.used+len(old) < len(rec) {
		return false
	}
	p.slots[slot] = append(make([]byte, 0, len(rec)), rec...)
	p.used += len(rec) - len(old)
	return true
}

func (p *page) remove(slot uint16) {
	p.used -= len(p.slots[slot])
	p.slots[slot] = nil

	// trailing free slots give their directory entries back
	for len(p.slots) > 0 && p.slots[len(p.slots)-1] == nil {
		p.slots = p.slots[:len(p.slots)-1]
		p.used -= slotEntrySz
	}
}

func (p *page) MarshalBinary() ([]byte, error) {
	buf := make([]byte, p.pageSize)
	buf[0] = p.flags
	bin.PutUint16(buf[1:3], uint16(len(p.slots)))
	bin.PutUint64(buf[3:11], p.id)

	leftOffset := pageHeaderSz
	rightOffset := p.pageSize
	for _, rec := range p.slots {
		if rec == nil {
			leftOffset += slotEntrySz
			continue
		}

		rightOffset -= len(rec)
		bin.PutUint16(buf[leftOffset:leftOffset+2], uint16(rightOffset))
		bin.PutUint16(buf[leftOffset+2:leftOffset+4], uint16(len(rec)))
		copy(buf[rightOffset:], rec)
		leftOffset += slotEntrySz
	}

	bin.PutUint64(buf[11:19], xxhash.Sum64(checksummed(buf)))
	return buf, nil
}

func (p *page) UnmarshalBinary(d []byte) error {
	if len(d) != p.pageSize {
		return customerrors.Corrupted(p.id, "invalid binary size %d", len(d))
	}
	if bin.Uint64(d[11:19]) != xxhash.Sum64(checksummed(d)) {
		return customerrors.Corrupted(p.id, "checksum mismatch")
	}
	if id := bin.Uint64(d[3:11]); id != p.id {
		return customerrors.Corrupted(p.id, "page claims to be %d", id)
	}

	p.flags = d[0]
	p.slots = make([][]byte, bin.Uint16(d[1:3]))
	p.used = 0

	dirEnd := pageHeaderSz + len(p.slots)*slotEntrySz
	if dirEnd > len(d) {
		return customerrors.Corrupted(p.id, "slot directory overruns the page")
	}

	offset := pageHeaderSz
	for i := range p.slots {
		slotOffset := int(bin.Uint16(d[offset : offset+2]))
		slotSize := int(bin.Uint16(d[offset+2 : offset+4]))
		offset += slotEntrySz
		p.used += slotEntrySz

		if slotOffset == 0 {
			continue
		}
		if slotOffset < dirEnd || slotOffset+slotSize > len(d) {
			return customerrors.Corrupted(p.id, "slot %d points outside the page", i)
		}
		p.slots[i] = append(make([]byte, 0, slotSize), d[slotOffset:slotOffset+slotSize]...)
		p.used += slotSize
	}

	return nil
}

// checksummed returns a copy of the page with the checksum field zeroed.
func checksummed(d []byte) []byte {
	cp := append([]byte(nil), d...)
	copy(cp[11:19], make([]byte, 8))
	return cp
}
