// Package flatfile implements an append-only engine: every insert, update
// and delete appends a frame to one log file and an in-memory ordered index
// maps keys to the latest record. The index is rebuilt by replaying the log
// on open. Importing the package registers engine.FlatFile.
package flatfile

import (
	"os"
	"sync"

	"go-bstardb/pkg/customerrors"
	"go-bstardb/pkg/engine"
	"go-bstardb/pkg/pager"
	"go-bstardb/pkg/types"

	"github.com/google/btree"
	"github.com/pkg/errors"
)

func init() {
	engine.Register(engine.FlatFile, Open)
}

const (
	fileSuffix    = ".log"
	compactSuffix = ".compact"
	btreeDegree   = 32
)

// item locates the latest record of a key in the log.
type item struct {
	key    types.DataType
	offset int64  // of the record bytes
	size   uint32 // of the record
	frame  int64  // size of the frame holding it
}

func lessItem(a, b item) bool {
	return a.key.Compare(b.key) < 0
}

type Engine struct {
	mu   *sync.RWMutex
	path string
	opts *engine.Options

	store store
	index *btree.BTreeG[item]

	garbage int64
	closed  bool
}

// Open replays the log at path with the ".log" suffix. ":memory:" keeps the
// log in memory.
func Open(path string, opts *engine.Options) (engine.Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	file := path + fileSuffix
	if path == pager.InMemoryFileName {
		file = path
	}

	s, err := openStore(file, opts.ReadOnly)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		mu:    &sync.RWMutex{},
		path:  file,
		opts:  opts,
		store: s,
		index: btree.NewG(btreeDegree, lessItem),
	}
	if err := e.replay(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return e, nil
}

// replay rebuilds the index. A frame cut short by a crash at the end of the
// log is dropped, a bad frame anywhere else is corruption.
func (e *Engine) replay() error {
	size := e.store.Size()
	header := make([]byte, frameHeaderSize)

	var off int64
	for off < size {
		if n, _ := e.store.ReadAt(header, off); n < frameHeaderSize {
			return e.dropTail(off, "short header")
		}

		length, err := frameLength(header)
		if err != nil {
			return errors.Wrapf(customerrors.ErrStorageCorruption, "'%s' offset %d: %v", e.path, off, err)
		}
		if off+int64(length) > size {
			return e.dropTail(off, "short frame")
		}

		buf := make([]byte, length)
		if _, err := e.store.ReadAt(buf, off); err != nil {
			return errors.Wrapf(err, "failed to read frame at %d", off)
		}

		var f frame
		if err := f.UnmarshalBinary(buf); err != nil {
			if off+int64(length) == size {
				return e.dropTail(off, err.Error())
			}
			return errors.Wrapf(customerrors.ErrStorageCorruption, "'%s' offset %d: %v", e.path, off, err)
		}

		key := types.Type(e.opts.KeyMeta)
		if err := key.UnmarshalBinary(f.key); err != nil || key.Size() != len(f.key) {
			return errors.Wrapf(customerrors.ErrStorageCorruption, "'%s' offset %d: undecodable key", e.path, off)
		}

		e.apply(f, key, off)
		off += int64(length)
	}
	return nil
}

func (e *Engine) dropTail(off int64, reason string) error {
	e.opts.Logger.Warn("dropping torn log tail", "file", e.path, "offset", off, "bytes", e.store.Size()-off, "reason", reason)
	if e.opts.ReadOnly {
		return nil
	}
	return e.store.Truncate(off)
}

// apply updates the index with a frame written at off.
func (e *Engine) apply(f frame, key types.DataType, off int64) {
	switch f.op {
	case opPut:
		it := item{
			key:    key,
			offset: off + int64(f.recordOffset()),
			size:   uint32(len(f.record)),
			frame:  int64(f.size()),
		}
		if old, ok := e.index.ReplaceOrInsert(it); ok {
			e.garbage += old.frame
		}
	case opDelete:
		if old, ok := e.index.Delete(item{key: key}); ok {
			e.garbage += old.frame
		}
		e.garbage += int64(f.size())
	}
}

func (e *Engine) Search(key types.DataType) ([]byte, error) {
	key, err := e.opts.NormalizeKey(key)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, customerrors.ErrClosed
	}

	it, ok := e.index.Get(item{key: key})
	if !ok {
		return nil, errors.Wrapf(customerrors.ErrKeyNotFound, "key %s", key)
	}
	return e.read(it)
}

func (e *Engine) Insert(key types.DataType, record []byte) error {
	return e.put(key, record, false)
}

func (e *Engine) Update(key types.DataType, record []byte) error {
	return e.put(key, record, true)
}

func (e *Engine) put(key types.DataType, record []byte, exists bool) error {
	key, err := e.opts.NormalizeKey(key)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.writable(); err != nil {
		return err
	}

	if e.index.Has(item{key: key}) != exists {
		if exists {
			return errors.Wrapf(customerrors.ErrKeyNotFound, "key %s", key)
		}
		return errors.Wrapf(customerrors.ErrDuplicateKey, "key %s", key)
	}

	return e.append(opPut, key, record)
}

func (e *Engine) Delete(key types.DataType) error {
	key, err := e.opts.NormalizeKey(key)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.writable(); err != nil {
		return err
	}
	if !e.index.Has(item{key: key}) {
		return errors.Wrapf(customerrors.ErrKeyNotFound, "key %s", key)
	}

	return e.append(opDelete, key, nil)
}

func (e *Engine) append(op byte, key types.DataType, record []byte) error {
	kb, err := key.MarshalBinary()
	if err != nil {
		return err
	}

	f := frame{op: op, key: kb, record: record}
	d, err := f.MarshalBinary()
	if err != nil {
		return errors.Wrapf(customerrors.ErrKeyTooLarge, "%v", err)
	}

	off, err := e.store.Append(d)
	if err != nil {
		return errors.Wrap(err, "failed to append frame")
	}
	if e.opts.SyncWrites {
		if err := e.store.Sync(); err != nil {
			return err
		}
	}

	e.apply(f, key, off)
	return nil
}

func (e *Engine) RangeScan(lo, hi engine.Bound) (engine.Cursor, error) {
	var err error
	if lo.Key != nil {
		if lo.Key, err = e.opts.NormalizeKey(lo.Key); err != nil {
			return nil, err
		}
	}
	if hi.Key != nil {
		if hi.Key, err = e.opts.NormalizeKey(hi.Key); err != nil {
			return nil, err
		}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, customerrors.ErrClosed
	}

	items := []item{}
	iter := func(it item) bool {
		if hi.Key != nil {
			if c := it.key.Compare(hi.Key); c > 0 || (c == 0 && !hi.Inclusive) {
				return false
			}
		}
		if lo.Key != nil && !lo.Inclusive && it.key.Compare(lo.Key) == 0 {
			return true
		}
		items = append(items, it)
		return true
	}

	if lo.Key == nil {
		e.index.Ascend(iter)
	} else {
		e.index.AscendGreaterOrEqual(item{key: lo.Key}, iter)
	}

	return &cursor{e: e, items: items, pos: -1}, nil
}

func (e *Engine) Count() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return int64(e.index.Len())
}

// Garbage is the number of log bytes held by overwritten records and
// tombstones. Reorganize reclaims them.
func (e *Engine) Garbage() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.garbage
}

func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.writable(); err != nil {
		return err
	}
	if err := e.store.Truncate(0); err != nil {
		return err
	}

	e.index.Clear(false)
	e.garbage = 0
	return nil
}

// Reorganize writes the live records into a new log in key order and
// swaps it in place of the old one.
func (e *Engine) Reorganize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.writable(); err != nil {
		return err
	}

	var next store = &memoryStore{}
	tmp := e.path + compactSuffix
	if e.path != pager.InMemoryFileName {
		fs, err := openFileStore(tmp, false)
		if err != nil {
			return err
		}
		if err := fs.Truncate(0); err != nil {
			_ = fs.Close()
			return err
		}
		next = fs
	}

	index := btree.NewG(btreeDegree, lessItem)
	var err error
	e.index.Ascend(func(it item) bool {
		var rec, kb, d []byte
		if rec, err = e.read(it); err != nil {
			return false
		}
		if kb, err = it.key.MarshalBinary(); err != nil {
			return false
		}

		f := frame{op: opPut, key: kb, record: rec}
		if d, err = f.MarshalBinary(); err != nil {
			return false
		}

		var off int64
		if off, err = next.Append(d); err != nil {
			return false
		}
		index.ReplaceOrInsert(item{key: it.key, offset: off + int64(f.recordOffset()), size: it.size, frame: int64(f.size())})
		return true
	})
	if err == nil {
		err = next.Sync()
	}
	if err == nil && e.path != pager.InMemoryFileName {
		err = os.Rename(tmp, e.path)
	}
	if err != nil {
		_ = next.Close()
		if e.path != pager.InMemoryFileName {
			_ = os.Remove(tmp)
		}
		return errors.Wrap(err, "failed to compact log")
	}

	_ = e.store.Close()
	reclaimed := e.garbage
	e.store, e.index = next, index
	e.garbage = 0

	e.opts.Logger.Info("reorganized", "file", e.path, "keys", index.Len(), "reclaimed", reclaimed)
	return nil
}

// CheckConsistency rereads the frame of every live key and verifies its
// checksum and key.
func (e *Engine) CheckConsistency() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return customerrors.ErrClosed
	}

	var err error
	e.index.Ascend(func(it item) bool {
		start := it.offset + int64(it.size) + checksumSize - it.frame
		buf := make([]byte, it.frame)
		if _, err = e.store.ReadAt(buf, start); err != nil {
			return false
		}

		var f frame
		if err = f.UnmarshalBinary(buf); err != nil {
			err = errors.Wrapf(customerrors.ErrStorageCorruption, "key %s at %d: %v", it.key, start, err)
			return false
		}

		key := types.Type(e.opts.KeyMeta)
		if kerr := key.UnmarshalBinary(f.key); kerr != nil || f.op != opPut || key.Compare(it.key) != 0 {
			err = errors.Wrapf(customerrors.ErrStorageCorruption, "frame at %d does not hold key %s", start, it.key)
			return false
		}
		return true
	})
	return err
}

func (e *Engine) Sync() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return customerrors.ErrClosed
	}
	return e.store.Sync()
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if !e.opts.ReadOnly {
		if err := e.store.Sync(); err != nil {
			_ = e.store.Close()
			return err
		}
	}
	return e.store.Close()
}

func (e *Engine) writable() error {
	if e.closed {
		return customerrors.ErrClosed
	}
	if e.opts.ReadOnly {
		return pager.ErrReadOnly
	}
	return nil
}

// read loads the record of it. Callers hold the lock.
func (e *Engine) read(it item) ([]byte, error) {
	rec := make([]byte, it.size)
	if _, err := e.store.ReadAt(rec, it.offset); err != nil {
		return nil, errors.Wrapf(err, "failed to read record of key %s", it.key)
	}
	return rec, nil
}
