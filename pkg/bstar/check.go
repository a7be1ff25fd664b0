package bstar

import (
	"fmt"
	"io"
	"strings"

	"go-bstardb/pkg/customerrors"
)

// CheckConsistency walks the whole tree and verifies key order, separator
// bounds, fill bounds, parent links, the leaf sibling chain and the key
// count. The first violation is returned as a corruption error.
func (tree *Tree[K]) CheckConsistency() error {
	tree.mu.RLock()
	defer tree.mu.RUnlock()

	if tree.closed {
		return customerrors.ErrClosed
	}

	c := &checker[K]{tree: tree}
	if err := c.walk(tree.meta.root, int(tree.meta.height), 0, Unbounded[K](), Unbounded[K]()); err != nil {
		return err
	}

	if c.keys != tree.meta.size {
		return customerrors.Corrupted(metaPageID, "metadata counts %d keys, leaves hold %d", tree.meta.size, c.keys)
	}

	for i, leaf := range c.leaves {
		var left, right uint64
		if i > 0 {
			left = c.leaves[i-1].id
		}
		if i+1 < len(c.leaves) {
			right = c.leaves[i+1].id
		}
		if leaf.left != left || leaf.right != right {
			return customerrors.Corrupted(leaf.id, "sibling links %d<->%d, want %d<->%d", leaf.left, leaf.right, left, right)
		}
	}
	return nil
}

type checker[K Key[K]] struct {
	tree   *Tree[K]
	leaves []*node[K]
	keys   uint64
	last   *K
}

// walk checks the subtree at id. Every key must satisfy lo <= key < hi.
func (c *checker[K]) walk(id uint64, level int, parent uint64, lo, hi Bound[K]) error {
	n, err := c.tree.load(id, level)
	if err != nil {
		return err
	}

	if n.parent != parent {
		return customerrors.Corrupted(id, "parent is %d, want %d", n.parent, parent)
	}
	if n.IsOverflowing() || n.IsUnderflowing() {
		return customerrors.Corrupted(id, "%s holds %d bytes, allowed %d..%d", n.kind, n.entries.Size(), n.minFill(), c.tree.layout.capacity)
	}

	for i := 0; i < n.entries.Len(); i++ {
		k := n.entries.At(i).Key
		if !lo.admitsFrom(k) || !hi.admitsTo(k) {
			return customerrors.Corrupted(id, "key %s is outside of the range its parent routes here", k)
		}
		if i > 0 && n.entries.At(i-1).Key.Compare(k) >= 0 {
			return customerrors.Corrupted(id, "key %s is out of order", k)
		}
	}

	if n.isLeaf() {
		if n.entries.Len() > 0 {
			if c.last != nil && (*c.last).Compare(n.entries.At(0).Key) >= 0 {
				return customerrors.Corrupted(id, "leaf starts at %s, previous leaf ended at %s", n.entries.At(0).Key, *c.last)
			}
			last := n.entries.Last().Key
			c.last = &last
		}
		c.leaves = append(c.leaves, n)
		c.keys += uint64(n.entries.Len())
		return nil
	}

	if !n.isRoot() && n.entries.Len() == 0 {
		return customerrors.Corrupted(id, "interior node without separators")
	}

	childLo := lo
	for i := -1; i < n.entries.Len(); i++ {
		childHi := hi
		if i+1 < n.entries.Len() {
			childHi = Exclusive(n.entries.At(i + 1).Key)
		}
		if i >= 0 {
			childLo = Inclusive(n.entries.At(i).Key)
		}
		if err := c.walk(n.child(i), level-1, n.id, childLo, childHi); err != nil {
			return err
		}
	}
	return nil
}

// Print writes the tree, one node per line, children indented under their
// parent.
func (tree *Tree[K]) Print(w io.Writer) error {
	tree.mu.RLock()
	defer tree.mu.RUnlock()

	if tree.closed {
		return customerrors.ErrClosed
	}
	return tree.print(w, tree.meta.root, int(tree.meta.height), 0)
}

func (tree *Tree[K]) print(w io.Writer, id uint64, level, indent int) error {
	n, err := tree.load(id, level)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "%s%s\n", strings.Repeat(" ", indent), n); err != nil {
		return err
	}
	for _, child := range n.children() {
		if err := tree.print(w, child, level-1, indent+4); err != nil {
			return err
		}
	}
	return nil
}
