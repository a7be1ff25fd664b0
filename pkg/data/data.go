// Package data implements an on-disk record file. Records are opaque byte
// strings packed into slotted pages and addressed by (page, slot).
package data

import (
	"encoding/binary"
	"sync"

	"go-bstardb/pkg/customerrors"
	"go-bstardb/pkg/pager"
	"go-bstardb/util/helpers"
	"go-bstardb/util/logger"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/pkg/errors"
)

// bin is the byte order used for all marshals/unmarshals.
var bin = binary.BigEndian

// Open opens the named file as a data file and returns an instance
// DataFile for use. Use ":memory:" for an in-memory DataFile instance for quick
// testing setup. If nil options are provided, DefaultOptions will be used.
func Open(fileName string, opts *Options) (*DataFile, error) {
	if opts == nil {
		opts = &DefaultOptions
	}
	if opts.PageSize <= pageHeaderSz+slotEntrySz || opts.PageSize > 1<<16-1 {
		return nil, errors.Wrapf(customerrors.ErrInvalidOptions, "data page size %d", opts.PageSize)
	}

	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}

	p, err := pager.Open(fileName, opts.PageSize, opts.ReadOnly, opts.FileMode)
	if err != nil {
		return nil, err
	}

	df := &DataFile{
		file:      fileName,
		mu:        &sync.RWMutex{},
		pager:     p,
		pageSize:  opts.PageSize,
		freeSpace: map[uint64]int{},
		log:       log,
		readOnly:  opts.ReadOnly,
	}

	if opts.CacheSize > 0 {
		df.cache, err = ristretto.NewCache(&ristretto.Config[uint64, []byte]{
			NumCounters:        helpers.Max(opts.CacheSize/64, 1000),
			MaxCost:            opts.CacheSize,
			BufferItems:        64,
			IgnoreInternalCost: true,
		})
		if err != nil {
			_ = p.Close()
			return nil, errors.Wrap(err, "failed to create record cache")
		}
	}

	if err := df.open(); err != nil {
		_ = df.Close()
		return nil, err
	}

	return df, nil
}

// DataFile represents an on-disk record file. Several records are mapped
// to a single page in the file.
type DataFile struct {
	file string

	// df state
	mu        *sync.RWMutex
	pager     pager.Pager
	pageSize  int
	cache     *ristretto.Cache[uint64, []byte] // records cache to avoid IO
	meta      metadata
	freeSpace map[uint64]int // data page id -> bytes a new record may take
	lastPage  uint64
	log       logger.Logger
	readOnly  bool
	closed    bool
}

// MaxRecordSize is the largest record a page can hold.
func (df *DataFile) MaxRecordSize() int {
	return df.pageSize - pageHeaderSz - slotEntrySz
}

// Get fetches the record from the given pointer.
func (df *DataFile) Get(ptr RecordPointer) ([]byte, error) {
	df.mu.RLock()
	defer df.mu.RUnlock()

	if df.closed {
		return nil, customerrors.ErrClosed
	}

	if df.cache != nil {
		if rec, ok := df.cache.Get(ptr.cacheKey()); ok {
			return append([]byte(nil), rec...), nil
		}
	}

	p, err := df.fetch(ptr.PageID)
	if err != nil {
		return nil, err
	}

	rec, ok := p.get(ptr.Slot)
	if !ok {
		return nil, customerrors.Corrupted(ptr.PageID, "record %s does not exist", ptr)
	}

	if df.cache != nil {
		df.cache.Set(ptr.cacheKey(), rec, int64(len(rec)))
	}
	return append([]byte(nil), rec...), nil
}

// Insert stores rec and returns where it went.
func (df *DataFile) Insert(rec []byte) (RecordPointer, error) {
	df.mu.Lock()
	defer df.mu.Unlock()

	if err := df.writable(); err != nil {
		return RecordPointer{}, err
	}
	if len(rec) > df.MaxRecordSize() {
		return RecordPointer{}, errors.Wrapf(customerrors.ErrRecordTooLarge, "%d bytes, max is %d", len(rec), df.MaxRecordSize())
	}

	ptr, err := df.insert(rec)
	if err != nil {
		return RecordPointer{}, errors.Wrap(err, "failed to insert new record")
	}
	return ptr, nil
}

// Update replaces the record. If the new value can't fit in its current
// page, it moves and the new pointer is returned.
func (df *DataFile) Update(ptr RecordPointer, rec []byte) (RecordPointer, error) {
	df.mu.Lock()
	defer df.mu.Unlock()

	if err := df.writable(); err != nil {
		return RecordPointer{}, err
	}
	if len(rec) > df.MaxRecordSize() {
		return RecordPointer{}, errors.Wrapf(customerrors.ErrRecordTooLarge, "%d bytes, max is %d", len(rec), df.MaxRecordSize())
	}

	p, err := df.fetch(ptr.PageID)
	if err != nil {
		return RecordPointer{}, err
	}
	if _, ok := p.get(ptr.Slot); !ok {
		return RecordPointer{}, customerrors.Corrupted(ptr.PageID, "record %s does not exist", ptr)
	}

	df.evict(ptr)
	if p.set(ptr.Slot, rec) {
		return ptr, df.writePage(p)
	}

	p.remove(ptr.Slot)
	if err := df.writePage(p); err != nil {
		return RecordPointer{}, err
	}
	df.meta.records--
	return df.insert(rec)
}

// Delete frees the slot of ptr for future reuse.
func (df *DataFile) Delete(ptr RecordPointer) error {
	df.mu.Lock()
	defer df.mu.Unlock()

	if err := df.writable(); err != nil {
		return err
	}

	p, err := df.fetch(ptr.PageID)
	if err != nil {
		return err
	}
	if _, ok := p.get(ptr.Slot); !ok {
		return customerrors.Corrupted(ptr.PageID, "record %s does not exist", ptr)
	}

	df.evict(ptr)
	p.remove(ptr.Slot)
	if err := df.writePage(p); err != nil {
		return err
	}

	df.meta.records--
	return df.writeMeta()
}

// Scan calls scanFn for every record in file order until it returns true
// or an error.
func (df *DataFile) Scan(scanFn func(ptr RecordPointer, rec []byte) (bool, error)) error {
	df.mu.RLock()
	defer df.mu.RUnlock()

	if df.closed {
		return customerrors.ErrClosed
	}

	for id := uint64(1); id < df.meta.pageCount; id++ {
		p, err := df.fetch(id)
		if err != nil {
			return err
		}

		for slot, rec := range p.slots {
			if rec == nil {
				continue
			}
			ptr := RecordPointer{PageID: id, Slot: uint16(slot)}
			if stop, err := scanFn(ptr, append([]byte(nil), rec...)); err != nil {
				return err
			} else if stop {
				return nil
			}
		}
	}
	return nil
}

// Count returns the number of records.
func (df *DataFile) Count() int64 {
	df.mu.RLock()
	defer df.mu.RUnlock()
	return int64(df.meta.records)
}

// Pages returns the number of data pages in use, not counting the meta page.
func (df *DataFile) Pages() uint64 {
	df.mu.RLock()
	defer df.mu.RUnlock()
	return df.meta.pageCount - 1
}

// Reset drops every record. Pages past the meta page are reused by later
// inserts.
func (df *DataFile) Reset() error {
	df.mu.Lock()
	defer df.mu.Unlock()

	if err := df.writable(); err != nil {
		return err
	}

	df.meta.pageCount = 1
	df.meta.records = 0
	df.freeSpace = map[uint64]int{}
	df.lastPage = 0
	if df.cache != nil {
		df.cache.Clear()
	}
	return df.writeMeta()
}

func (df *DataFile) Sync() error {
	df.mu.RLock()
	defer df.mu.RUnlock()

	if df.closed {
		return customerrors.ErrClosed
	}
	return df.pager.Sync()
}

// Close flushes any writes and closes the underlying pager.
func (df *DataFile) Close() error {
	df.mu.Lock()
	defer df.mu.Unlock()

	if df.closed {
		return nil
	}

	df.closed = true
	if df.cache != nil {
		df.cache.Close()
	}
	return df.pager.Close()
}

// open opens the file stored on disk using the pager. If the pager
// has no pages, a new file will be initialized.
func (df *DataFile) open() error {
	if df.pager.Count() == 0 {
		return df.init()
	}

	d, err := df.pager.ReadPage(metaPageID)
	if err != nil {
		return errors.Wrap(err, "failed to read meta while opening datafile")
	}
	if err := df.meta.UnmarshalBinary(d); err != nil {
		df.log.Error("corrupted data file meta", "file", df.file, "err", err)
		return err
	}
	if int(df.meta.pageSize) != df.pageSize {
		return errors.Wrapf(customerrors.ErrInvalidOptions, "file uses page size %d, options ask for %d", df.meta.pageSize, df.pageSize)
	}

	// rebuild the free space map
	for id := uint64(1); id < df.meta.pageCount; id++ {
		p, err := df.fetch(id)
		if err != nil {
			return err
		}
		df.track(p)
	}
	return nil
}

// init initializes a new file: only the meta page exists.
func (df *DataFile) init() error {
	if df.readOnly {
		return errors.Wrapf(pager.ErrReadOnly, "can not initialize '%s'", df.file)
	}

	df.meta = metadata{
		pageSize:  uint32(df.pageSize),
		pageCount: 1,
	}
	return df.writeMeta()
}

func (df *DataFile) writable() error {
	if df.closed {
		return customerrors.ErrClosed
	}
	if df.readOnly {
		return pager.ErrReadOnly
	}
	return nil
}

func (df *DataFile) insert(rec []byte) (RecordPointer, error) {
	p, err := df.pageFor(len(rec))
	if err != nil {
		return RecordPointer{}, err
	}

	slot := p.add(rec)
	if err := df.writePage(p); err != nil {
		return RecordPointer{}, err
	}

	df.meta.records++
	return RecordPointer{PageID: p.id, Slot: slot}, df.writeMeta()
}

// pageFor picks a page with room for size bytes: the most recent page,
// else the lowest page id with room, else a new page.
func (df *DataFile) pageFor(size int) (*page, error) {
	if free, ok := df.freeSpace[df.lastPage]; ok && free >= size {
		return df.fetch(df.lastPage)
	}

	found := uint64(0)
	for id, free := range df.freeSpace {
		if free >= size && (found == 0 || id < found) {
			found = id
		}
	}
	if found != 0 {
		return df.fetch(found)
	}

	id := df.meta.pageCount
	df.meta.pageCount++
	df.lastPage = id
	return newPage(id, df.pageSize), nil
}

// fetch reads a data page.
func (df *DataFile) fetch(id uint64) (*page, error) {
	if id == metaPageID || id >= df.meta.pageCount {
		return nil, customerrors.Corrupted(id, "data page out of range (%d pages)", df.meta.pageCount)
	}

	d, err := df.pager.ReadPage(id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read data page %d", id)
	}

	p := newPage(id, df.pageSize)
	if err := p.UnmarshalBinary(d); err != nil {
		df.log.Error("corrupted data page", "file", df.file, "page", id, "err", err)
		return nil, err
	}
	return p, nil
}

func (df *DataFile) writePage(p *page) error {
	d, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	if err := df.pager.WritePage(p.id, d); err != nil {
		return err
	}
	df.track(p)
	return nil
}

// track records how much a new record may take in p.
func (df *DataFile) track(p *page) {
	free := p.freeSpace()
	if p.freeSlot() >= 0 {
		free = df.pageSize - pageHeaderSz - p.used
	}

	if free > 0 {
		df.freeSpace[p.id] = free
	} else {
		delete(df.freeSpace, p.id)
	}
}

func (df *DataFile) writeMeta() error {
	d, err := df.meta.MarshalBinary()
	if err != nil {
		return err
	}
	return df.pager.WritePage(metaPageID, d)
}

func (df *DataFile) evict(ptr RecordPointer) {
	if df.cache != nil {
		df.cache.Del(ptr.cacheKey())
	}
}
