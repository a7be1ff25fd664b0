package bstar

import (
	"testing"

	"go-bstardb/pkg/customerrors"
	"go-bstardb/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(v int) KeyAddress[types.DataType] {
	return KeyAddress[types.DataType]{Key: intKey(v), Address: ptrFor(v)}
}

func listOf(t *testing.T, values ...int) *SortedEntryList[types.DataType] {
	l := &SortedEntryList[types.DataType]{}
	for _, v := range values {
		require.NoError(t, l.Insert(entry(v)))
	}
	return l
}

func listValues(l *SortedEntryList[types.DataType]) []int64 {
	out := []int64{}
	for _, e := range l.entries {
		out = append(out, e.Key.Value().(int64))
	}
	return out
}

func TestSortedEntryList_Insert(t *testing.T) {
	l := listOf(t, 5, 1, 9, 3, 7)
	assert.Equal(t, []int64{1, 3, 5, 7, 9}, listValues(l))
	assert.Equal(t, 5*18, l.Size())

	err := l.Insert(entry(3))
	require.ErrorIs(t, err, customerrors.ErrDuplicateKey)
	assert.Equal(t, []int64{1, 3, 5, 7, 9}, listValues(l))
	assert.Equal(t, 5*18, l.Size())
}

func TestSortedEntryList_Remove(t *testing.T) {
	l := listOf(t, 1, 2, 3)

	e, err := l.Remove(intKey(2))
	require.NoError(t, err)
	assert.Equal(t, ptrFor(2), e.Address)
	assert.Equal(t, []int64{1, 3}, listValues(l))
	assert.Equal(t, 2*18, l.Size())

	_, err = l.Remove(intKey(2))
	require.ErrorIs(t, err, customerrors.ErrKeyNotFound)
	assert.True(t, customerrors.IsLogical(err))
}

func TestSortedEntryList_Find(t *testing.T) {
	l := listOf(t, 10, 20, 30)

	e, ok := l.Find(intKey(20))
	require.True(t, ok)
	assert.Equal(t, ptrFor(20), e.Address)

	_, ok = l.Find(intKey(25))
	assert.False(t, ok)

	assert.Equal(t, -1, l.Floor(intKey(5)))
	assert.Equal(t, 0, l.Floor(intKey(10)))
	assert.Equal(t, 0, l.Floor(intKey(15)))
	assert.Equal(t, 1, l.Floor(intKey(20)))
	assert.Equal(t, 2, l.Floor(intKey(99)))
}

func TestSortedEntryList_SplitAt(t *testing.T) {
	l := listOf(t, 1, 2, 3, 4, 5)

	// 36 bytes fit exactly two 18 byte entries
	right := l.SplitAt(36)
	assert.Equal(t, []int64{1, 2}, listValues(l))
	assert.Equal(t, []int64{3, 4, 5}, listValues(right))
	assert.Equal(t, 36, l.Size())
	assert.Equal(t, 54, right.Size())

	// the left half never ends up empty
	l = listOf(t, 1, 2)
	right = l.SplitAt(10)
	assert.Equal(t, []int64{1}, listValues(l))
	assert.Equal(t, []int64{2}, listValues(right))

	// nor does the right one
	l = listOf(t, 1, 2)
	right = l.SplitAt(1000)
	assert.Equal(t, []int64{1}, listValues(l))
	assert.Equal(t, []int64{2}, listValues(right))
}

func TestSortedEntryList_SplitAtVariableSize(t *testing.T) {
	l := &SortedEntryList[types.DataType]{}
	for _, s := range []string{"a", "bbbbbbbbbbbbbbbbbbbb", "c", "d", "e"} {
		require.NoError(t, l.Insert(KeyAddress[types.DataType]{Key: stringKey(s), Address: ptrFor(1)}))
	}

	// sizes: 13, 32, 13, 13, 13
	right := l.SplitAt(45)
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 45, l.Size())
	assert.Equal(t, 3, right.Len())
	assert.Equal(t, 39, right.Size())
}

func TestSortedEntryList_Merge(t *testing.T) {
	l := listOf(t, 1, 2)

	err := l.Merge(listOf(t, 3, 4), 3*18)
	require.ErrorIs(t, err, customerrors.ErrCapacityExceeded)
	assert.True(t, customerrors.IsCapacity(err))
	assert.Equal(t, []int64{1, 2}, listValues(l))

	require.NoError(t, l.Merge(listOf(t, 3, 4), 4*18))
	assert.Equal(t, []int64{1, 2, 3, 4}, listValues(l))
	assert.Equal(t, 4*18, l.Size())

	require.Error(t, l.Merge(listOf(t, 0), 100*18))
}

func TestKeyAddress(t *testing.T) {
	e := entry(42)
	assert.Equal(t, 18, e.Size())
	assert.Equal(t, -1, e.Compare(entry(43)))

	d, err := e.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, d, e.Size())

	c := KeyAddress[types.DataType]{Key: intKey(1), Address: ChildPage(7)}
	assert.Equal(t, 16, c.Size())
	assert.Equal(t, "1 -> page(7)", c.String())
}
