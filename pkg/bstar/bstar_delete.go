package bstar

import (
	"go-bstardb/pkg/customerrors"
)

// repair fixes an underflowing non-root node by borrowing from a sibling
// under the same parent for as long as one can lend, and merging otherwise.
// Returns the parent, whose size changed.
func (o *op[K]) repair(n *node[K]) (*node[K], error) {
	parent, err := o.fetch(n.parent, n.level+1)
	if err != nil {
		return nil, err
	}

	idx, ok := parent.childIndex(n.id)
	if !ok {
		return nil, customerrors.Corrupted(parent.id, "child %d is not referenced by its parent", n.id)
	}

	for n.IsUnderflowing() {
		borrowed, err := o.borrow(parent, n, idx)
		if err != nil {
			return nil, err
		}
		if !borrowed {
			return parent, o.merge(parent, n, idx)
		}
	}
	return parent, nil
}

// canLend reports whether s stays at or above the minimum fill without e.
func canLend[K Key[K]](s *node[K], e KeyAddress[K]) bool {
	return s.entries.Size()-e.Size() >= s.minFill()
}

// borrow moves one entry from the right sibling, or failing that from the
// left one, rotating the boundary key through the parent. idx is the
// position of n among the parent's children.
func (o *op[K]) borrow(parent, n *node[K], idx int) (bool, error) {
	if idx+1 < parent.entries.Len() {
		right, err := o.fetch(parent.child(idx+1), n.level)
		if err != nil {
			return false, err
		}
		if right.entries.Len() > 0 && canLend(right, right.entries.At(0)) {
			o.touch(parent, n, right)
			return true, o.borrowRight(parent, n, right, idx+1)
		}
	}

	if idx >= 0 {
		left, err := o.fetch(parent.child(idx-1), n.level)
		if err != nil {
			return false, err
		}
		if left.entries.Len() > 0 && canLend(left, left.entries.Last()) {
			o.touch(parent, n, left)
			return true, o.borrowLeft(parent, n, left, idx)
		}
	}

	return false, nil
}

// borrowRight moves the first entry of right to the end of n. sep is the
// index of right's separator in parent.
func (o *op[K]) borrowRight(parent, n, right *node[K], sep int) error {
	first := right.entries.removeAt(0)

	if n.isLeaf() {
		n.entries.append(first)
		parent.entries.setKey(sep, right.entries.At(0).Key)
	} else {
		moved := right.leftmost
		n.entries.append(KeyAddress[K]{Key: parent.entries.At(sep).Key, Address: ChildPage(moved)})
		right.leftmost = first.Address.Page()
		parent.entries.setKey(sep, first.Key)

		if err := o.adopt(n, moved); err != nil {
			return err
		}
	}

	o.tree.log.Debug("borrowed from right sibling", "kind", n.kind, "page", n.id, "sibling", right.id)
	return nil
}

// borrowLeft moves the last entry of left to the front of n. sep is the
// index of n's separator in parent.
func (o *op[K]) borrowLeft(parent, n, left *node[K], sep int) error {
	last := left.entries.removeAt(left.entries.Len() - 1)

	if n.isLeaf() {
		n.entries.insertAt(0, last)
		parent.entries.setKey(sep, last.Key)
	} else {
		n.entries.insertAt(0, KeyAddress[K]{Key: parent.entries.At(sep).Key, Address: ChildPage(n.leftmost)})
		n.leftmost = last.Address.Page()
		parent.entries.setKey(sep, last.Key)

		if err := o.adopt(n, n.leftmost); err != nil {
			return err
		}
	}

	o.tree.log.Debug("borrowed from left sibling", "kind", n.kind, "page", n.id, "sibling", left.id)
	return nil
}

// merge folds n and an adjacent sibling into the left one of the pair,
// drops the separator between them from parent and frees the right one.
func (o *op[K]) merge(parent, n *node[K], idx int) error {
	var left, right *node[K]
	var sep int

	switch {
	case idx+1 < parent.entries.Len():
		r, err := o.fetch(parent.child(idx+1), n.level)
		if err != nil {
			return err
		}
		left, right, sep = n, r, idx+1
	case idx >= 0:
		l, err := o.fetch(parent.child(idx-1), n.level)
		if err != nil {
			return err
		}
		left, right, sep = l, n, idx
	default:
		return customerrors.Corrupted(parent.id, "node %d has no sibling to merge with", n.id)
	}
	o.touch(parent, left, right)

	separator := parent.entries.At(sep)
	if left.isLeaf() {
		if err := left.entries.Merge(&right.entries, o.tree.layout.capacity); err != nil {
			return err
		}

		left.right = right.right
		if right.right != 0 {
			next, err := o.fetch(right.right, right.level)
			if err != nil {
				return err
			}
			o.touch(next)
			next.left = left.id
		}
	} else {
		moved := SortedEntryList[K]{}
		moved.append(KeyAddress[K]{Key: separator.Key, Address: ChildPage(right.leftmost)})
		for _, e := range right.entries.entries {
			moved.append(e)
		}
		if err := left.entries.Merge(&moved, o.tree.layout.capacity); err != nil {
			return err
		}

		for _, id := range right.children() {
			if err := o.adopt(left, id); err != nil {
				return err
			}
		}
	}

	parent.entries.removeAt(sep)
	o.free(right)

	o.tree.log.Debug("merged nodes", "kind", left.kind, "page", left.id, "freed", right.id, "parent", parent.id)
	return nil
}

// adopt makes n the parent of child page id.
func (o *op[K]) adopt(n *node[K], id uint64) error {
	c, err := o.fetch(id, n.level-1)
	if err != nil {
		return err
	}
	o.touch(c)
	c.parent = n.id
	return nil
}

// collapseRoot replaces an interior root without separators by its only
// child. A leaf root stays even when empty.
func (o *op[K]) collapseRoot(root *node[K]) error {
	for !root.isLeaf() && root.entries.Len() == 0 {
		child, err := o.fetch(root.leftmost, root.level-1)
		if err != nil {
			return err
		}
		o.touch(child)
		child.parent = 0

		o.free(root)
		o.meta.root = child.id
		o.meta.height--
		o.tree.log.Debug("tree height decreased", "root", child.id, "height", o.meta.height)
		root = child
	}
	return nil
}
