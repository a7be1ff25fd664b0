package bstar

import (
	"sort"

	"go-bstardb/pkg/customerrors"
	"go-bstardb/pkg/pager"
)

// op collects the pages one insert or delete touches. Nothing reaches the
// pager until the whole mutation succeeded.
type op[K Key[K]] struct {
	tree *Tree[K]
	meta metadata

	// every node fetched during the op, so a page maps to one object even
	// if the cache evicts it meanwhile
	seen    map[uint64]*node[K]
	touched map[uint64]*node[K]
	freed   []uint64
}

// update runs fn under the write lock and commits what it touched. On error
// the cached copies of touched pages are dropped and the metadata is left
// as it was.
func (tree *Tree[K]) update(fn func(o *op[K]) error) error {
	tree.mu.Lock()
	defer tree.mu.Unlock()

	if tree.closed {
		return customerrors.ErrClosed
	}
	if tree.readOnly {
		return pager.ErrReadOnly
	}

	o := &op[K]{
		tree:    tree,
		meta:    tree.meta,
		seen:    map[uint64]*node[K]{},
		touched: map[uint64]*node[K]{},
	}

	if err := fn(o); err != nil {
		o.rollback()
		return err
	}
	if err := o.commit(); err != nil {
		o.rollback()
		// pages written before the failure may be visible
		tree.version.Add(1)
		return err
	}

	tree.meta = o.meta
	tree.version.Add(1)
	return nil
}

func (o *op[K]) fetch(id uint64, level int) (*node[K], error) {
	if n, ok := o.seen[id]; ok {
		if n.level != level {
			return nil, customerrors.Corrupted(id, "node is at level %d, expected %d", n.level, level)
		}
		return n, nil
	}

	n, err := o.tree.load(id, level)
	if err != nil {
		return nil, err
	}
	o.seen[id] = n
	return n, nil
}

func (o *op[K]) touch(nodes ...*node[K]) {
	for _, n := range nodes {
		o.touched[n.id] = n
	}
}

// alloc takes a page from the free list, or a new one past the end of the
// file.
func (o *op[K]) alloc(kind nodeKind, level int) (*node[K], error) {
	var id uint64
	if o.meta.freeHead != 0 {
		id = o.meta.freeHead
		d, err := o.tree.pager.ReadPage(id)
		if err != nil {
			return nil, customerrors.Corrupted(id, "free page unreadable: %v", err)
		}
		next, err := decodeFreePage(id, d)
		if err != nil {
			return nil, err
		}
		o.meta.freeHead = next
		o.meta.freeCount--
	} else {
		id = o.meta.pageCount
		o.meta.pageCount++
	}

	n := newNode(o.tree.layout, id, kind, level)
	o.seen[id] = n
	o.touch(n)
	return n, nil
}

// free releases the page of n once the op commits.
func (o *op[K]) free(n *node[K]) {
	delete(o.touched, n.id)
	o.freed = append(o.freed, n.id)
}

// commit writes touched nodes leaves first and parents after their
// children, then the metadata, then the freed pages.
//
// Pages are rewritten in place. A write error part way through leaves the
// pages written so far on disk under the previous metadata, and rollback
// only drops them from the cache, so such a tree may fail CheckConsistency.
// There are no shadow pages.
func (o *op[K]) commit() error {
	nodes := make([]*node[K], 0, len(o.touched))
	for _, n := range o.touched {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].level != nodes[j].level {
			return nodes[i].level < nodes[j].level
		}
		return nodes[i].id < nodes[j].id
	})

	pages := make([][]byte, len(nodes))
	for i, n := range nodes {
		d, err := n.MarshalBinary()
		if err != nil {
			return err
		}
		pages[i] = d
	}

	p := o.tree.pager
	for i, n := range nodes {
		if err := p.WritePage(n.id, pages[i]); err != nil {
			return err
		}
	}

	freePages := make([][]byte, len(o.freed))
	for i, id := range o.freed {
		freePages[i] = freePage(o.tree.layout.pageSize, id, o.meta.freeHead)
		o.meta.freeHead = id
		o.meta.freeCount++
	}

	if err := p.WritePage(metaPageID, o.meta.marshal(o.tree.layout.pageSize)); err != nil {
		return err
	}
	for i, id := range o.freed {
		if err := p.WritePage(id, freePages[i]); err != nil {
			return err
		}
	}

	if o.tree.syncWrites {
		if err := p.Sync(); err != nil {
			return err
		}
	}

	for _, n := range nodes {
		o.tree.cache.Add(n.id, n)
	}
	o.tree.cache.Remove(o.freed...)
	return nil
}

func (o *op[K]) rollback() {
	ids := append([]uint64(nil), o.freed...)
	for id := range o.touched {
		ids = append(ids, id)
	}
	o.tree.cache.Remove(ids...)
}

// rebalance restores the fill bounds from n up to the root: overflowing
// nodes split, underflowing nodes borrow or merge, and an interior root
// without separators gives way to its only child.
func (o *op[K]) rebalance(n *node[K]) error {
	for n != nil {
		var err error
		switch {
		case n.IsOverflowing():
			n, err = o.split(n)
		case n.isRoot():
			return o.collapseRoot(n)
		case n.IsUnderflowing():
			n, err = o.repair(n)
		default:
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}
