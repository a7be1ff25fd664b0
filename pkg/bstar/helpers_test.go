package bstar

import (
	"testing"

	"go-bstardb/pkg/types"
	"go-bstardb/util/logger"

	"github.com/stretchr/testify/require"
)

// a page that fits exactly four leaf entries with 8 byte integer keys
const smallPageSize = nodeHeaderSize + 4*(8+RecordPointerSize)

var intMeta = types.MustMeta(types.TYPE_INTEGER, true, 8)

func newIntKey() types.DataType { return types.Type(intMeta) }

func intKey(v int) types.DataType { return newIntKey().Set(v) }

func newStringKey() types.DataType { return types.Type(types.MustMeta(types.TYPE_STRING)) }

func stringKey(v string) types.DataType { return newStringKey().Set(v) }

func ptrFor(v int) RecordPointer {
	return RecordPointer{PageID: uint64(v) + 1, Slot: uint16(v % 512)}
}

func intOptions(pageSize int) *Options[types.DataType] {
	return &Options[types.DataType]{
		PageSize:   pageSize,
		MaxKeySize: 8,
		NewKey:     newIntKey,
		CacheSize:  64,
		Logger:     logger.Discard{},
	}
}

func openIntTree(t *testing.T, pageSize int) *Tree[types.DataType] {
	t.Helper()
	tree, err := Open(":memory:", intOptions(pageSize))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tree.Close() })
	return tree
}

func insertInts(t *testing.T, tree *Tree[types.DataType], values ...int) {
	t.Helper()
	for _, v := range values {
		require.NoError(t, tree.Insert(intKey(v), ptrFor(v)), "insert %d", v)
	}
}

// scanInts returns every key in scan order.
func scanInts(t *testing.T, tree *Tree[types.DataType], lo, hi Bound[types.DataType]) []int64 {
	t.Helper()
	out := []int64{}
	require.NoError(t, tree.Scan(lo, hi, func(k types.DataType, _ RecordPointer) (bool, error) {
		out = append(out, k.Value().(int64))
		return false, nil
	}))
	return out
}

// leafKeys returns the keys of every leaf following the sibling chain.
func leafKeys(t *testing.T, tree *Tree[types.DataType]) [][]int64 {
	t.Helper()
	leaf, err := tree.leftmostLeaf(tree.load)
	require.NoError(t, err)

	out := [][]int64{}
	for {
		keys := []int64{}
		for _, e := range leaf.entries.entries {
			keys = append(keys, e.Key.Value().(int64))
		}
		out = append(out, keys)

		if leaf.right == 0 {
			return out
		}
		leaf, err = tree.load(leaf.right, 1)
		require.NoError(t, err)
	}
}

func rangeInts(from, to int) []int64 {
	out := []int64{}
	for i := from; i <= to; i++ {
		out = append(out, int64(i))
	}
	return out
}
