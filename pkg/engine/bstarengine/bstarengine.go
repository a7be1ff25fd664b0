// Package bstarengine stores records in a data file and indexes them by key
// with a B*-tree. Importing it registers engine.BStar.
package bstarengine

import (
	"os"
	"sync"

	"go-bstardb/pkg/bstar"
	"go-bstardb/pkg/customerrors"
	"go-bstardb/pkg/data"
	"go-bstardb/pkg/engine"
	"go-bstardb/pkg/pager"
	"go-bstardb/pkg/types"
	"go-bstardb/util/helpers"

	"github.com/pkg/errors"
)

func init() {
	engine.Register(engine.BStar, Open)
}

const (
	indexSuffix = ".idx"
	dataSuffix  = ".dat"
	reorgSuffix = ".reorg"

	maxDataPageSize = 1<<16 - 1
)

// Engine keeps the key -> record pointer mapping in a bstar.Tree and the
// record bytes in a data.DataFile.
type Engine struct {
	// writers span both files; readers hold it while they resolve a
	// pointer, so a slot is never reused under them
	mu   *sync.RWMutex
	path string

	opts *engine.Options
	tree *bstar.Tree[types.DataType]
	data *data.DataFile
}

// Open opens the index and data files at path with the ".idx" and ".dat"
// suffixes. A ":memory:" path keeps both in memory.
func Open(path string, opts *engine.Options) (engine.Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if path != pager.InMemoryFileName && !opts.ReadOnly {
		if err := recoverReorganize(path, opts); err != nil {
			return nil, err
		}
	}

	tree, df, err := openFiles(path, opts)
	if err != nil {
		return nil, err
	}

	return &Engine{
		mu:   &sync.RWMutex{},
		path: path,
		opts: opts,
		tree: tree,
		data: df,
	}, nil
}

func openFiles(path string, opts *engine.Options) (*bstar.Tree[types.DataType], *data.DataFile, error) {
	indexFile, dataFile := path+indexSuffix, path+dataSuffix
	if path == pager.InMemoryFileName {
		indexFile, dataFile = path, path
	}

	maxKeySize := opts.MaxKeySize
	if opts.KeyMeta.IsFixedSize() {
		maxKeySize = opts.KeyMeta.Size()
	}

	keyMeta := opts.KeyMeta
	tree, err := bstar.Open(indexFile, &bstar.Options[types.DataType]{
		PageSize:   opts.PageSize,
		MaxKeySize: maxKeySize,
		NewKey:     func() types.DataType { return types.Type(keyMeta) },
		CacheSize:  opts.NodeCacheSize,
		SyncWrites: opts.SyncWrites,
		ReadOnly:   opts.ReadOnly,
		Logger:     opts.Logger,
	})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open index '%s'", indexFile)
	}

	pageSize := opts.PageSize
	if pageSize == 0 {
		pageSize = data.DefaultOptions.PageSize
	}
	df, err := data.Open(dataFile, &data.Options{
		PageSize:  helpers.Min(pageSize, maxDataPageSize),
		CacheSize: opts.RecordCacheSize,
		ReadOnly:  opts.ReadOnly,
		FileMode:  data.DefaultOptions.FileMode,
		Logger:    opts.Logger,
	})
	if err != nil {
		_ = tree.Close()
		return nil, nil, errors.Wrapf(err, "failed to open data file '%s'", dataFile)
	}
	return tree, df, nil
}

func (e *Engine) Search(key types.DataType) ([]byte, error) {
	key, err := e.opts.NormalizeKey(key)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	ptr, err := e.tree.Search(key)
	if err != nil {
		return nil, err
	}
	return e.data.Get(toData(ptr))
}

func (e *Engine) Insert(key types.DataType, record []byte) error {
	key, err := e.opts.NormalizeKey(key)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.tree.Search(key); err == nil {
		return errors.Wrapf(customerrors.ErrDuplicateKey, "key %s", key)
	} else if !errors.Is(err, customerrors.ErrKeyNotFound) {
		return err
	}

	ptr, err := e.data.Insert(record)
	if err != nil {
		return err
	}

	if err := e.tree.Insert(key, toIndex(ptr)); err != nil {
		if derr := e.data.Delete(ptr); derr != nil {
			e.opts.Logger.Error("orphaned record", "ptr", ptr, "err", derr)
		}
		return err
	}
	return nil
}

func (e *Engine) Update(key types.DataType, record []byte) error {
	key, err := e.opts.NormalizeKey(key)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	old, err := e.tree.Search(key)
	if err != nil {
		return err
	}

	ptr, err := e.data.Update(toData(old), record)
	if err != nil {
		return err
	}
	if ptr == toData(old) {
		return nil
	}

	// the record moved to another page
	if err := e.tree.Update(key, toIndex(ptr)); err != nil {
		e.opts.Logger.Error("index update failed, record moved", "key", key, "from", old, "to", ptr, "err", err)
		return err
	}
	return nil
}

func (e *Engine) Delete(key types.DataType) error {
	key, err := e.opts.NormalizeKey(key)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ptr, err := e.tree.Search(key)
	if err != nil {
		return err
	}
	if err := e.tree.Delete(key); err != nil {
		return err
	}
	return e.data.Delete(toData(ptr))
}

func (e *Engine) RangeScan(lo, hi engine.Bound) (engine.Cursor, error) {
	from, err := e.bound(lo)
	if err != nil {
		return nil, err
	}
	to, err := e.bound(hi)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return &cursor{
		mu:   e.mu,
		data: e.data,
		c:    e.tree.RangeScan(from, to),
	}, nil
}

func (e *Engine) Count() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tree.Count()
}

func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reset()
}

func (e *Engine) reset() error {
	if err := e.tree.Truncate(); err != nil {
		return err
	}
	return e.data.Reset()
}

// Reorganize rewrites both files in key order, which packs records of
// neighbouring keys into the same data pages. The copy is built next to the
// live files and renamed over them once complete, so a failure leaves the
// engine as it was. Open cursors end with ErrClosed.
func (e *Engine) Reorganize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.opts.ReadOnly {
		return pager.ErrReadOnly
	}

	target := e.path
	if e.path != pager.InMemoryFileName {
		target = e.path + reorgSuffix
		removeFiles(target)
	}

	tree, df, err := openFiles(target, e.opts)
	if err != nil {
		return err
	}
	discard := func() {
		_ = tree.Close()
		_ = df.Close()
		if e.path != pager.InMemoryFileName {
			removeFiles(target)
		}
	}

	keys := 0
	err = e.tree.Scan(bstar.Unbounded[types.DataType](), bstar.Unbounded[types.DataType](),
		func(key types.DataType, ptr bstar.RecordPointer) (bool, error) {
			rec, err := e.data.Get(toData(ptr))
			if err != nil {
				return true, err
			}
			nptr, err := df.Insert(rec)
			if err != nil {
				return true, err
			}
			keys++
			return false, tree.Insert(key, toIndex(nptr))
		})
	if err == nil {
		err = tree.Sync()
	}
	if err == nil {
		err = df.Sync()
	}
	if err != nil {
		discard()
		return errors.Wrap(err, "failed to reorganize")
	}

	if e.path == pager.InMemoryFileName {
		_ = e.tree.Close()
		_ = e.data.Close()
		e.tree, e.data = tree, df
	} else if err := e.swap(tree, df); err != nil {
		return err
	}

	e.opts.Logger.Info("reorganized", "file", e.path, "keys", keys, "data_pages", e.data.Pages())
	return nil
}

// swap closes the live files and moves the reorganized ones in their place.
// The data file is renamed first; recoverReorganize settles whatever a
// failed rename left behind before the files are opened again.
func (e *Engine) swap(tree *bstar.Tree[types.DataType], df *data.DataFile) error {
	target := e.path + reorgSuffix
	_ = tree.Close()
	_ = df.Close()
	_ = e.tree.Close()
	_ = e.data.Close()

	rerr := os.Rename(target+dataSuffix, e.path+dataSuffix)
	if rerr == nil {
		rerr = os.Rename(target+indexSuffix, e.path+indexSuffix)
	}
	if err := recoverReorganize(e.path, e.opts); err != nil {
		return err
	}

	tree, df, err := openFiles(e.path, e.opts)
	if err != nil {
		return err
	}
	e.tree, e.data = tree, df
	if rerr != nil {
		return errors.Wrap(rerr, "failed to replace reorganized files")
	}
	return nil
}

// recoverReorganize cleans up after a Reorganize that did not finish. A
// lone reorganized index means its data file already replaced the live one,
// so the index follows it; anything else is an unfinished copy.
func recoverReorganize(path string, opts *engine.Options) error {
	target := path + reorgSuffix
	_, ierr := os.Stat(target + indexSuffix)
	_, derr := os.Stat(target + dataSuffix)

	switch {
	case ierr == nil && os.IsNotExist(derr):
		opts.Logger.Warn("finishing interrupted reorganize", "file", path)
		if err := os.Rename(target+indexSuffix, path+indexSuffix); err != nil {
			return errors.Wrap(err, "failed to replace index file")
		}
	case ierr == nil || derr == nil:
		opts.Logger.Warn("dropping unfinished reorganize", "file", path)
		removeFiles(target)
	}
	return nil
}

// removeFiles drops the index before the data file, so a lone index is
// only ever left behind by swap.
func removeFiles(path string) {
	_ = os.Remove(path + indexSuffix)
	_ = os.Remove(path + dataSuffix)
}

// Stats of the underlying tree.
func (e *Engine) Stats() bstar.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tree.Stats()
}

// CheckConsistency verifies the index structure and that every key points
// at a live record.
func (e *Engine) CheckConsistency() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.tree.CheckConsistency(); err != nil {
		return err
	}
	if e.tree.Count() != e.data.Count() {
		return errors.Wrapf(customerrors.ErrStorageCorruption, "index holds %d keys, data file %d records", e.tree.Count(), e.data.Count())
	}

	return e.tree.Scan(bstar.Unbounded[types.DataType](), bstar.Unbounded[types.DataType](),
		func(key types.DataType, ptr bstar.RecordPointer) (bool, error) {
			if _, err := e.data.Get(toData(ptr)); err != nil {
				return true, errors.Wrapf(err, "key %s", key)
			}
			return false, nil
		})
}

func (e *Engine) Sync() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.tree.Sync(); err != nil {
		return err
	}
	return e.data.Sync()
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	terr := e.tree.Close()
	derr := e.data.Close()
	if terr != nil {
		return terr
	}
	return derr
}

func (e *Engine) bound(b engine.Bound) (bstar.Bound[types.DataType], error) {
	if b.Key == nil {
		return bstar.Unbounded[types.DataType](), nil
	}

	key, err := e.opts.NormalizeKey(b.Key)
	if err != nil {
		return bstar.Bound[types.DataType]{}, err
	}
	if b.Inclusive {
		return bstar.Inclusive(key), nil
	}
	return bstar.Exclusive(key), nil
}

func toData(ptr bstar.RecordPointer) data.RecordPointer {
	return data.RecordPointer{PageID: ptr.PageID, Slot: ptr.Slot}
}

func toIndex(ptr data.RecordPointer) bstar.RecordPointer {
	return bstar.RecordPointer{PageID: ptr.PageID, Slot: ptr.Slot}
}
