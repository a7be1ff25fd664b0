package bstar

import (
	"testing"

	"go-bstardb/pkg/customerrors"
	"go-bstardb/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLayout(t *testing.T) *layout[types.DataType] {
	l, err := newLayout(*intOptions(256))
	require.NoError(t, err)
	return l
}

func assertSameNode(t *testing.T, want, got *node[types.DataType]) {
	t.Helper()
	assert.Equal(t, want.id, got.id)
	assert.Equal(t, want.kind, got.kind)
	assert.Equal(t, want.parent, got.parent)
	assert.Equal(t, want.left, got.left)
	assert.Equal(t, want.right, got.right)
	assert.Equal(t, want.leftmost, got.leftmost)
	assert.Equal(t, want.entries.Size(), got.entries.Size())
	require.Equal(t, want.entries.Len(), got.entries.Len())
	for i := 0; i < want.entries.Len(); i++ {
		assert.Equal(t, 0, want.entries.At(i).Compare(got.entries.At(i)))
		assert.Equal(t, want.entries.At(i).Address, got.entries.At(i).Address)
	}
}

func Test_node_Leaf_Binary(t *testing.T) {
	l := testLayout(t)
	original := newNode(l, 10, kindLeaf, 1)
	original.parent = 4
	original.left = 9
	original.right = 13
	for _, v := range []int{-5, 0, 17} {
		require.NoError(t, original.entries.Insert(entry(v)))
	}

	d, err := original.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, d, 256)

	got, err := decodeNode(l, 10, d)
	require.NoError(t, err)
	assertSameNode(t, original, got)

	// unused bytes stay zero
	for _, b := range d[nodeHeaderSize+3*18:] {
		require.Zero(t, b)
	}
}

func Test_node_Internal_Binary(t *testing.T) {
	l := testLayout(t)
	original := newNode(l, 3, kindInterior, 2)
	original.leftmost = 18
	require.NoError(t, original.entries.Insert(KeyAddress[types.DataType]{Key: intKey(100), Address: ChildPage(4)}))
	require.NoError(t, original.entries.Insert(KeyAddress[types.DataType]{Key: intKey(200), Address: ChildPage(5)}))

	d, err := original.MarshalBinary()
	require.NoError(t, err)

	got, err := decodeNode(l, 3, d)
	require.NoError(t, err)
	assertSameNode(t, original, got)
	assert.Equal(t, []uint64{18, 4, 5}, got.children())
	assert.Equal(t, uint64(18), got.childFor(intKey(99)))
	assert.Equal(t, uint64(4), got.childFor(intKey(100)))
	assert.Equal(t, uint64(5), got.childFor(intKey(1000)))
}

func Test_node_Corruption(t *testing.T) {
	l := testLayout(t)
	n := newNode(l, 7, kindLeaf, 1)
	require.NoError(t, n.entries.Insert(entry(1)))

	d, err := n.MarshalBinary()
	require.NoError(t, err)

	_, err = decodeNode(l, 8, d)
	require.ErrorIs(t, err, customerrors.ErrStorageCorruption)

	_, err = decodeNode(l, 7, d[:100])
	require.ErrorIs(t, err, customerrors.ErrStorageCorruption)

	flipped := append([]byte(nil), d...)
	flipped[nodeHeaderSize+3] ^= 0xFF
	_, err = decodeNode(l, 7, flipped)
	require.ErrorIs(t, err, customerrors.ErrStorageCorruption)

	var ce *customerrors.CorruptionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, uint64(7), ce.PageID)

	_, err = decodeNode(l, 7, freePage(256, 7, 0))
	require.ErrorIs(t, err, customerrors.ErrStorageCorruption)
}

func Test_node_FreePage(t *testing.T) {
	next, err := decodeFreePage(5, freePage(256, 5, 9))
	require.NoError(t, err)
	assert.Equal(t, uint64(9), next)

	_, err = decodeFreePage(6, freePage(256, 5, 9))
	require.ErrorIs(t, err, customerrors.ErrStorageCorruption)
}

func Test_node_Fill(t *testing.T) {
	l, err := newLayout(*intOptions(smallPageSize))
	require.NoError(t, err)
	assert.Equal(t, 72, l.capacity)
	assert.Equal(t, 36, l.half)
	assert.Equal(t, 19, l.leafMinFill)
	assert.Equal(t, 5, l.interiorMinFill)

	n := newNode(l, 2, kindLeaf, 1)
	n.parent = 1
	require.NoError(t, n.entries.Insert(entry(1)))
	assert.True(t, n.IsUnderflowing())
	require.NoError(t, n.entries.Insert(entry(2)))
	assert.False(t, n.IsUnderflowing())

	for v := 3; v <= 5; v++ {
		require.NoError(t, n.entries.Insert(entry(v)))
	}
	assert.True(t, n.IsOverflowing())

	_, err = n.MarshalBinary()
	require.ErrorIs(t, err, customerrors.ErrCapacityExceeded)

	// roots never underflow
	n = newNode(l, 1, kindLeaf, 1)
	assert.False(t, n.IsUnderflowing())
}
