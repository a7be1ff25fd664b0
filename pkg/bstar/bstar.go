// Package bstar implements an on-disk B*-tree that maps ordered keys to
// record pointers. Every node is one fixed size page. Nodes split and merge
// by encoded byte size rather than entry count, so keys of varying length
// never overflow a page.
package bstar

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go-bstardb/pkg/cache"
	"go-bstardb/pkg/customerrors"
	"go-bstardb/pkg/pager"
	"go-bstardb/util/logger"

	"github.com/pkg/errors"
)

// Tree represents an on-disk B*-tree. Page 0 holds the metadata, every
// other page is a node or sits on the free list.
//
// A single writer mutates the tree at a time while readers share it.
type Tree[K Key[K]] struct {
	file string

	// tree state
	mu     *sync.RWMutex
	pager  pager.Pager
	cache  *cache.Cache[*node[K]]
	meta   metadata
	layout *layout[K]
	log    logger.Logger

	syncWrites bool
	readOnly   bool
	closed     bool

	// bumped after every committed mutation, cursors re-seek when it moves
	version atomic.Uint64
}

// Open opens the named file as a tree, creating it when empty. Use
// ":memory:" for an in-memory tree.
func Open[K Key[K]](fileName string, options *Options[K]) (*Tree[K], error) {
	if options == nil {
		options = &Options[K]{}
	}
	opts := options.withDefaults()

	l, err := newLayout(opts)
	if err != nil {
		return nil, err
	}

	c, err := cache.New[*node[K]](opts.CacheSize)
	if err != nil {
		return nil, err
	}

	p, err := pager.Open(fileName, opts.PageSize, opts.ReadOnly, opts.FileMode)
	if err != nil {
		return nil, err
	}

	tree := &Tree[K]{
		file:       fileName,
		mu:         &sync.RWMutex{},
		pager:      p,
		cache:      c,
		layout:     l,
		log:        opts.Logger,
		syncWrites: opts.SyncWrites,
		readOnly:   opts.ReadOnly,
	}

	if err := tree.open(); err != nil {
		_ = p.Close()
		return nil, err
	}
	return tree, nil
}

func (tree *Tree[K]) open() error {
	if tree.pager.Count() == 0 {
		return tree.init()
	}

	d, err := tree.pager.ReadPage(metaPageID)
	if err != nil {
		return errors.Wrap(err, "failed to read meta page")
	}
	if err := tree.meta.unmarshal(d); err != nil {
		tree.log.Error("corrupted meta page", "file", tree.file, "err", err)
		return err
	}

	if int(tree.meta.pageSize) != tree.layout.pageSize || int(tree.meta.maxKeySize) != tree.layout.maxKeySize {
		return errors.Wrapf(
			customerrors.ErrInvalidOptions,
			"file uses page size %d and max key size %d, options ask for %d and %d",
			tree.meta.pageSize, tree.meta.maxKeySize, tree.layout.pageSize, tree.layout.maxKeySize,
		)
	}
	return nil
}

// init writes an empty leaf root and fresh metadata.
func (tree *Tree[K]) init() error {
	if tree.readOnly {
		return errors.Wrapf(pager.ErrReadOnly, "can not initialize '%s'", tree.file)
	}
	return tree.writeEmpty()
}

func (tree *Tree[K]) writeEmpty() error {
	tree.meta = metadata{
		pageSize:   uint32(tree.layout.pageSize),
		maxKeySize: uint32(tree.layout.maxKeySize),
		root:       1,
		height:     1,
		pageCount:  2,
	}

	root := newNode(tree.layout, 1, kindLeaf, 1)
	d, err := root.MarshalBinary()
	if err != nil {
		return err
	}
	if err := tree.pager.WritePage(root.id, d); err != nil {
		return err
	}
	if err := tree.pager.WritePage(metaPageID, tree.meta.marshal(tree.layout.pageSize)); err != nil {
		return err
	}
	return tree.pager.Sync()
}

// Truncate drops every key. Pages past the new root are reused by later
// allocations rather than returned to the file system.
func (tree *Tree[K]) Truncate() error {
	tree.mu.Lock()
	defer tree.mu.Unlock()

	if tree.closed {
		return customerrors.ErrClosed
	}
	if tree.readOnly {
		return pager.ErrReadOnly
	}

	tree.cache.Clear()
	if err := tree.writeEmpty(); err != nil {
		return err
	}
	tree.version.Add(1)
	tree.log.Debug("tree truncated", "file", tree.file)
	return nil
}

// Search returns the record pointer stored under key.
func (tree *Tree[K]) Search(key K) (RecordPointer, error) {
	if err := tree.checkKey(key); err != nil {
		return RecordPointer{}, err
	}

	tree.mu.RLock()
	defer tree.mu.RUnlock()

	if tree.closed {
		return RecordPointer{}, customerrors.ErrClosed
	}

	leaf, err := tree.descend(key, tree.load)
	if err != nil {
		return RecordPointer{}, err
	}

	e, ok := leaf.entries.Find(key)
	if !ok {
		return RecordPointer{}, errors.Wrapf(customerrors.ErrKeyNotFound, "key %s", key)
	}
	return e.Address.(RecordPointer), nil
}

// Insert adds key pointing at ptr. An existing key is reported as
// ErrDuplicateKey and leaves the tree untouched.
func (tree *Tree[K]) Insert(key K, ptr RecordPointer) error {
	if err := tree.checkKey(key); err != nil {
		return err
	}

	return tree.update(func(o *op[K]) error {
		leaf, err := tree.descend(key, o.fetch)
		if err != nil {
			return err
		}

		if err := leaf.entries.Insert(KeyAddress[K]{Key: key, Address: ptr}); err != nil {
			return err
		}
		o.touch(leaf)
		o.meta.size++

		return o.rebalance(leaf)
	})
}

// Delete removes key. A missing key is reported as ErrKeyNotFound and leaves
// the tree untouched.
func (tree *Tree[K]) Delete(key K) error {
	if err := tree.checkKey(key); err != nil {
		return err
	}

	return tree.update(func(o *op[K]) error {
		leaf, err := tree.descend(key, o.fetch)
		if err != nil {
			return err
		}

		if _, err := leaf.entries.Remove(key); err != nil {
			return err
		}
		o.touch(leaf)
		o.meta.size--

		return o.rebalance(leaf)
	})
}

// Update points an existing key at ptr. The entry keeps its size, so only
// the leaf is rewritten and nothing is rebalanced.
func (tree *Tree[K]) Update(key K, ptr RecordPointer) error {
	if err := tree.checkKey(key); err != nil {
		return err
	}

	return tree.update(func(o *op[K]) error {
		leaf, err := tree.descend(key, o.fetch)
		if err != nil {
			return err
		}

		idx, ok := leaf.entries.search(key)
		if !ok {
			return errors.Wrapf(customerrors.ErrKeyNotFound, "key %s", key)
		}
		leaf.entries.entries[idx].Address = ptr
		o.touch(leaf)
		return nil
	})
}

// Count returns the number of keys in the tree.
func (tree *Tree[K]) Count() int64 {
	tree.mu.RLock()
	defer tree.mu.RUnlock()
	return int64(tree.meta.size)
}

// Height is 1 while the root is a leaf.
func (tree *Tree[K]) Height() int {
	tree.mu.RLock()
	defer tree.mu.RUnlock()
	return int(tree.meta.height)
}

type Stats struct {
	Height      int
	Keys        int64
	Pages       uint64
	FreePages   uint64
	CachedNodes int
	PageReads   uint64
	PageWrites  uint64
}

func (tree *Tree[K]) Stats() Stats {
	tree.mu.RLock()
	defer tree.mu.RUnlock()

	ps := tree.pager.Stats()
	return Stats{
		Height:      int(tree.meta.height),
		Keys:        int64(tree.meta.size),
		Pages:       tree.meta.pageCount,
		FreePages:   tree.meta.freeCount,
		CachedNodes: tree.cache.Len(),
		PageReads:   ps.Reads,
		PageWrites:  ps.Writes,
	}
}

// Sync flushes the file to stable storage.
func (tree *Tree[K]) Sync() error {
	tree.mu.RLock()
	defer tree.mu.RUnlock()

	if tree.closed {
		return customerrors.ErrClosed
	}
	return tree.pager.Sync()
}

// Close syncs and closes the underlying pager.
func (tree *Tree[K]) Close() error {
	tree.mu.Lock()
	defer tree.mu.Unlock()

	if tree.closed {
		return nil
	}

	tree.closed = true
	tree.version.Add(1)
	tree.cache.Clear()
	return tree.pager.Close()
}

func (tree *Tree[K]) String() string {
	return fmt.Sprintf(
		"Tree{file='%s', size=%d, height=%d}",
		tree.file, tree.meta.size, tree.meta.height,
	)
}

func (tree *Tree[K]) checkKey(key K) error {
	if any(key) == nil || key.Size() == 0 {
		return customerrors.ErrEmptyKey
	}
	if key.Size() > tree.layout.maxKeySize {
		return errors.Wrapf(
			customerrors.ErrKeyTooLarge,
			"key %s is %d bytes, max is %d", key, key.Size(), tree.layout.maxKeySize,
		)
	}
	return nil
}

type fetchFn[K Key[K]] func(id uint64, level int) (*node[K], error)

// descend walks from the root to the leaf that holds or would hold key.
func (tree *Tree[K]) descend(key K, fetch fetchFn[K]) (*node[K], error) {
	n, err := fetch(tree.meta.root, int(tree.meta.height))
	if err != nil {
		return nil, err
	}

	for !n.isLeaf() {
		child, err := fetch(n.childFor(key), n.level-1)
		if err != nil {
			return nil, err
		}
		if child.parent != n.id {
			return nil, customerrors.Corrupted(child.id, "parent is %d, reached from %d", child.parent, n.id)
		}
		n = child
	}
	return n, nil
}

// leftmostLeaf follows leftmost children down from the root.
func (tree *Tree[K]) leftmostLeaf(fetch fetchFn[K]) (*node[K], error) {
	n, err := fetch(tree.meta.root, int(tree.meta.height))
	if err != nil {
		return nil, err
	}

	for !n.isLeaf() {
		if n, err = fetch(n.leftmost, n.level-1); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// load returns the node stored in page id, from the cache when possible.
func (tree *Tree[K]) load(id uint64, level int) (*node[K], error) {
	if id == metaPageID {
		return nil, customerrors.Corrupted(id, "node reference points at the meta page")
	}

	if n, ok := tree.cache.Get(id); ok {
		if n.level != level {
			return nil, customerrors.Corrupted(id, "node is at level %d, expected %d", n.level, level)
		}
		return n, nil
	}

	d, err := tree.pager.ReadPage(id)
	if errors.Is(err, pager.ErrPageNotFound) {
		return nil, customerrors.Corrupted(id, "dangling page reference")
	} else if err != nil {
		return nil, err
	}

	n, err := decodeNode(tree.layout, id, d)
	if err != nil {
		tree.log.Error("corrupted page", "file", tree.file, "page", id, "err", err)
		return nil, err
	}
	if n.isLeaf() != (level == 1) {
		return nil, customerrors.Corrupted(id, "%s node found at level %d", n.kind, level)
	}

	n.level = level
	tree.cache.Add(id, n)
	return n, nil
}
