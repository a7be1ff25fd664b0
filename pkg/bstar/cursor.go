package bstar

import (
	"go-bstardb/pkg/customerrors"
)

// Bound limits one side of a range scan. The zero value is unbounded.
type Bound[K Key[K]] struct {
	Key       K
	Inclusive bool
	set       bool
}

func Inclusive[K Key[K]](key K) Bound[K] {
	return Bound[K]{Key: key, Inclusive: true, set: true}
}

func Exclusive[K Key[K]](key K) Bound[K] {
	return Bound[K]{Key: key, set: true}
}

func Unbounded[K Key[K]]() Bound[K] {
	return Bound[K]{}
}

func (b Bound[K]) IsSet() bool { return b.set }

// admitsFrom reports whether key satisfies b used as a lower bound.
func (b Bound[K]) admitsFrom(key K) bool {
	if !b.set {
		return true
	}
	cmp := key.Compare(b.Key)
	return cmp > 0 || (cmp == 0 && b.Inclusive)
}

// admitsTo reports whether key satisfies b used as an upper bound.
func (b Bound[K]) admitsTo(key K) bool {
	if !b.set {
		return true
	}
	cmp := key.Compare(b.Key)
	return cmp < 0 || (cmp == 0 && b.Inclusive)
}

// Cursor walks leaf entries in ascending key order. It copies one leaf at a
// time under the read lock and holds no lock between calls. When the tree
// changes between two calls the copied entries are dropped and the cursor
// seeks again right after the last key it returned, so it never yields a
// key twice nor an entry that was already removed or repointed.
type Cursor[K Key[K]] struct {
	tree   *Tree[K]
	lo, hi Bound[K]

	buf     []KeyAddress[K]
	pos     int
	next    uint64
	version uint64
	started bool

	last    K
	hasLast bool
	cur     KeyAddress[K]
	done    bool
	err     error
}

// RangeScan returns a lazy cursor over the keys between lo and hi.
func (tree *Tree[K]) RangeScan(lo, hi Bound[K]) *Cursor[K] {
	return &Cursor[K]{tree: tree, lo: lo, hi: hi}
}

// Scan calls scanFn for every entry between lo and hi until it returns
// true or an error.
func (tree *Tree[K]) Scan(lo, hi Bound[K], scanFn func(key K, ptr RecordPointer) (bool, error)) error {
	c := tree.RangeScan(lo, hi)
	defer c.Close()

	for c.Next() {
		if stop, err := scanFn(c.Key(), c.Pointer()); err != nil {
			return err
		} else if stop {
			return nil
		}
	}
	return c.Err()
}

func (c *Cursor[K]) Next() bool {
	if c.done || c.err != nil {
		return false
	}
	if c.pos < len(c.buf) && c.tree.version.Load() != c.version {
		c.buf, c.pos = c.buf[:0], 0
	}

	for {
		if c.pos < len(c.buf) {
			e := c.buf[c.pos]
			c.pos++

			if !c.hi.admitsTo(e.Key) {
				c.done = true
				return false
			}

			c.cur = e
			c.last, c.hasLast = e.Key, true
			return true
		}

		if !c.fill() {
			return false
		}
	}
}

func (c *Cursor[K]) Key() K                 { return c.cur.Key }
func (c *Cursor[K]) Pointer() RecordPointer { return c.cur.Address.(RecordPointer) }
func (c *Cursor[K]) Entry() KeyAddress[K]   { return c.cur }
func (c *Cursor[K]) Err() error             { return c.err }

func (c *Cursor[K]) Close() error {
	c.done = true
	c.buf = nil
	return nil
}

// fill loads the next leaf into buf. Returns false when the scan is over.
func (c *Cursor[K]) fill() bool {
	tree := c.tree
	tree.mu.RLock()
	defer tree.mu.RUnlock()

	if tree.closed {
		c.err = customerrors.ErrClosed
		return false
	}

	var leaf *node[K]
	var err error
	seek := !c.started || tree.version.Load() != c.version

	switch {
	case seek && c.hasLast:
		leaf, err = tree.descend(c.last, tree.load)
	case seek && c.lo.set:
		leaf, err = tree.descend(c.lo.Key, tree.load)
	case seek:
		leaf, err = tree.leftmostLeaf(tree.load)
	case c.next == 0:
		c.done = true
		return false
	default:
		leaf, err = tree.load(c.next, 1)
	}
	if err != nil {
		c.err = err
		return false
	}

	c.started = true
	c.version = tree.version.Load()
	c.next = leaf.right
	c.pos = 0
	c.buf = c.buf[:0]
	for _, e := range leaf.entries.entries {
		if c.hasLast {
			if e.Key.Compare(c.last) > 0 {
				c.buf = append(c.buf, e)
			}
		} else if c.lo.admitsFrom(e.Key) {
			c.buf = append(c.buf, e)
		}
	}

	if len(c.buf) == 0 && c.next == 0 {
		c.done = true
		return false
	}
	return true
}
