package bstar

import (
	"go-bstardb/pkg/customerrors"
)

// split moves the upper half of n (by bytes) into a new sibling and inserts
// the separator into the parent, growing a new root when n was the root.
// Returns the parent, which may overflow in turn.
func (o *op[K]) split(n *node[K]) (*node[K], error) {
	sibling, err := o.alloc(n.kind, n.level)
	if err != nil {
		return nil, err
	}
	o.touch(n)

	right := n.entries.SplitAt(o.tree.layout.half)
	var sep KeyAddress[K]

	if n.isLeaf() {
		sibling.entries = *right
		sep = KeyAddress[K]{Key: right.At(0).Key, Address: ChildPage(sibling.id)}

		sibling.left = n.id
		sibling.right = n.right
		if n.right != 0 {
			next, err := o.fetch(n.right, n.level)
			if err != nil {
				return nil, err
			}
			o.touch(next)
			next.left = sibling.id
		}
		n.right = sibling.id
	} else {
		// the first entry of the right half moves up, its child becomes
		// the sibling's leftmost
		mid := right.removeAt(0)
		sibling.leftmost = mid.Address.Page()
		sibling.entries = *right
		sep = KeyAddress[K]{Key: mid.Key, Address: ChildPage(sibling.id)}

		for _, id := range sibling.children() {
			c, err := o.fetch(id, n.level-1)
			if err != nil {
				return nil, err
			}
			o.touch(c)
			c.parent = sibling.id
		}
	}

	o.tree.log.Debug("split node",
		"kind", n.kind, "page", n.id, "sibling", sibling.id,
		"left_bytes", n.entries.Size(), "right_bytes", sibling.entries.Size(),
	)

	if n.isRoot() {
		root, err := o.alloc(kindInterior, n.level+1)
		if err != nil {
			return nil, err
		}

		root.leftmost = n.id
		root.entries.append(sep)
		n.parent = root.id
		sibling.parent = root.id

		o.meta.root = root.id
		o.meta.height++
		o.tree.log.Debug("tree height increased", "root", root.id, "height", o.meta.height)
		return root, nil
	}

	parent, err := o.fetch(n.parent, n.level+1)
	if err != nil {
		return nil, err
	}
	o.touch(parent)

	sibling.parent = parent.id
	if err := parent.entries.Insert(sep); err != nil {
		return nil, customerrors.Corrupted(parent.id, "separator %s: %v", sep.Key, err)
	}
	return parent, nil
}
