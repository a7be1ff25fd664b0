package bstar

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"go-bstardb/pkg/customerrors"
	"go-bstardb/pkg/pager"
	"go-bstardb/pkg/types"
	"go-bstardb/util/logger"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestOpenOptions(t *testing.T) {
	_, err := Open(":memory:", &Options[types.DataType]{})
	require.ErrorIs(t, err, customerrors.ErrInvalidOptions)

	opts := intOptions(smallPageSize - 1)
	_, err = Open(":memory:", opts)
	require.ErrorIs(t, err, customerrors.ErrInvalidOptions)

	tree := openIntTree(t, 0)
	assert.Equal(t, 1, tree.Height())
	assert.Equal(t, int64(0), tree.Count())
}

func TestInsertSearch(t *testing.T) {
	tree := openIntTree(t, smallPageSize)

	_, err := tree.Search(intKey(1))
	require.ErrorIs(t, err, customerrors.ErrKeyNotFound)

	insertInts(t, tree, 3, 1, 2)
	for _, v := range []int{1, 2, 3} {
		ptr, err := tree.Search(intKey(v))
		require.NoError(t, err)
		assert.Equal(t, ptrFor(v), ptr)
	}

	err = tree.Insert(intKey(2), RecordPointer{PageID: 99})
	require.ErrorIs(t, err, customerrors.ErrDuplicateKey)

	ptr, err := tree.Search(intKey(2))
	require.NoError(t, err)
	assert.Equal(t, ptrFor(2), ptr)
	assert.Equal(t, int64(3), tree.Count())
}

func TestKeyChecks(t *testing.T) {
	tree, err := Open(":memory:", &Options[types.DataType]{
		PageSize:   512,
		MaxKeySize: 16,
		NewKey:     newStringKey,
		Logger:     logger.Discard{},
	})
	require.NoError(t, err)
	defer tree.Close()

	err = tree.Insert(stringKey(strings.Repeat("x", 20)), ptrFor(1))
	require.ErrorIs(t, err, customerrors.ErrKeyTooLarge)

	err = tree.Insert(nil, ptrFor(1))
	require.ErrorIs(t, err, customerrors.ErrEmptyKey)

	require.NoError(t, tree.Insert(stringKey(""), ptrFor(1)))
	_, err = tree.Search(stringKey(""))
	require.NoError(t, err)
}

func TestSplitScenario(t *testing.T) {
	tree := openIntTree(t, smallPageSize)

	insertInts(t, tree, 1, 2, 3, 4)
	assert.Equal(t, 1, tree.Height())
	assert.Equal(t, [][]int64{{1, 2, 3, 4}}, leafKeys(t, tree))

	insertInts(t, tree, 5)
	assert.Equal(t, 2, tree.Height())
	assert.Equal(t, [][]int64{{1, 2}, {3, 4, 5}}, leafKeys(t, tree))

	root, err := tree.load(tree.meta.root, 2)
	require.NoError(t, err)
	require.Equal(t, 1, root.entries.Len())
	assert.Equal(t, int64(3), root.entries.At(0).Key.Value())
	require.NoError(t, tree.CheckConsistency())
}

func TestBorrowMergeCollapseScenario(t *testing.T) {
	tree := openIntTree(t, smallPageSize)
	insertInts(t, tree, 1, 2, 3, 4, 5)

	// {2} underflows, the right leaf can spare one entry
	require.NoError(t, tree.Delete(intKey(1)))
	assert.Equal(t, 2, tree.Height())
	assert.Equal(t, [][]int64{{2, 3}, {4, 5}}, leafKeys(t, tree))
	root, err := tree.load(tree.meta.root, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(4), root.entries.At(0).Key.Value())
	require.NoError(t, tree.CheckConsistency())

	// {3} underflows and {4, 5} can not lend: merge, then the root is left
	// without separators and collapses
	require.NoError(t, tree.Delete(intKey(2)))
	assert.Equal(t, 1, tree.Height())
	assert.Equal(t, [][]int64{{3, 4, 5}}, leafKeys(t, tree))
	require.NoError(t, tree.CheckConsistency())

	stats := tree.Stats()
	assert.Equal(t, uint64(4), stats.Pages)
	assert.Equal(t, uint64(2), stats.FreePages)

	// the freed pages are reused by the next split
	insertInts(t, tree, 1, 2)
	assert.Equal(t, 2, tree.Height())
	stats = tree.Stats()
	assert.Equal(t, uint64(4), stats.Pages)
	assert.Equal(t, uint64(0), stats.FreePages)
	require.NoError(t, tree.CheckConsistency())
}

func TestDeleteMissingLeavesTreeUnchanged(t *testing.T) {
	tree := openIntTree(t, smallPageSize)
	insertInts(t, tree, 10, 20, 30, 40, 50, 60)
	before := leafKeys(t, tree)

	err := tree.Delete(intKey(35))
	require.ErrorIs(t, err, customerrors.ErrKeyNotFound)
	assert.Equal(t, before, leafKeys(t, tree))
	assert.Equal(t, int64(6), tree.Count())

	require.NoError(t, tree.Delete(intKey(30)))
	_, err = tree.Search(intKey(30))
	require.ErrorIs(t, err, customerrors.ErrKeyNotFound)
	require.NoError(t, tree.CheckConsistency())
}

func TestRandomInsertDelete(t *testing.T) {
	tree := openIntTree(t, smallPageSize)
	rnd := rand.New(rand.NewSource(42))

	values := rnd.Perm(2000)
	for i, v := range values {
		require.NoError(t, tree.Insert(intKey(v), ptrFor(v)))
		if i%250 == 0 {
			require.NoError(t, tree.CheckConsistency())
		}
	}
	require.NoError(t, tree.CheckConsistency())
	assert.Equal(t, rangeInts(0, 1999), scanInts(t, tree, Unbounded[types.DataType](), Unbounded[types.DataType]()))
	assert.Greater(t, tree.Height(), 3)

	for _, v := range values {
		ptr, err := tree.Search(intKey(v))
		require.NoError(t, err)
		require.Equal(t, ptrFor(v), ptr)
	}

	removed := map[int]bool{}
	for i, v := range rnd.Perm(2000)[:1500] {
		require.NoError(t, tree.Delete(intKey(v)), "delete %d", v)
		removed[v] = true
		if i%250 == 0 {
			require.NoError(t, tree.CheckConsistency())
		}
	}
	require.NoError(t, tree.CheckConsistency())

	want := []int64{}
	for v := 0; v < 2000; v++ {
		if !removed[v] {
			want = append(want, int64(v))
		}
	}
	assert.Equal(t, want, scanInts(t, tree, Unbounded[types.DataType](), Unbounded[types.DataType]()))
	assert.Equal(t, int64(len(want)), tree.Count())

	for _, v := range want {
		require.NoError(t, tree.Delete(intKey(int(v))))
	}
	require.NoError(t, tree.CheckConsistency())
	assert.Equal(t, 1, tree.Height())
	assert.Equal(t, int64(0), tree.Count())
	assert.Empty(t, scanInts(t, tree, Unbounded[types.DataType](), Unbounded[types.DataType]()))
}

func TestVariableSizeKeys(t *testing.T) {
	tree, err := Open(":memory:", &Options[types.DataType]{
		PageSize:   512,
		MaxKeySize: 64,
		NewKey:     newStringKey,
		CacheSize:  16,
		Logger:     logger.Discard{},
	})
	require.NoError(t, err)
	defer tree.Close()

	rnd := rand.New(rand.NewSource(7))
	set := map[string]bool{}
	for len(set) < 1500 {
		s := fmt.Sprintf("%04d%s", rnd.Intn(10000), strings.Repeat("k", rnd.Intn(58)))
		if set[s] {
			continue
		}
		set[s] = true
		require.NoError(t, tree.Insert(stringKey(s), ptrFor(len(set))))
	}
	require.NoError(t, tree.CheckConsistency())

	want := make([]string, 0, len(set))
	for s := range set {
		want = append(want, s)
	}
	sort.Strings(want)

	got := []string{}
	c := tree.RangeScan(Unbounded[types.DataType](), Unbounded[types.DataType]())
	for c.Next() {
		got = append(got, c.Key().Value().(string))
	}
	require.NoError(t, c.Err())
	assert.Equal(t, want, got)

	for i, s := range want {
		if i%3 != 0 {
			require.NoError(t, tree.Delete(stringKey(s)))
		}
	}
	require.NoError(t, tree.CheckConsistency())
	assert.Equal(t, int64((len(want)+2)/3), tree.Count())
}

func TestRangeScanBounds(t *testing.T) {
	tree := openIntTree(t, smallPageSize)
	for v := 0; v < 100; v += 2 {
		insertInts(t, tree, v)
	}

	all := Unbounded[types.DataType]()
	assert.Equal(t, []int64{10, 12, 14}, scanInts(t, tree, Inclusive(intKey(10)), Inclusive(intKey(14))))
	assert.Equal(t, []int64{12}, scanInts(t, tree, Exclusive(intKey(10)), Exclusive(intKey(14))))
	assert.Equal(t, []int64{12, 14}, scanInts(t, tree, Inclusive(intKey(11)), Inclusive(intKey(15))))
	assert.Equal(t, []int64{0, 2, 4}, scanInts(t, tree, all, Exclusive(intKey(6))))
	assert.Equal(t, []int64{94, 96, 98}, scanInts(t, tree, Exclusive(intKey(92)), all))
	assert.Empty(t, scanInts(t, tree, Inclusive(intKey(200)), all))
	assert.Empty(t, scanInts(t, tree, Inclusive(intKey(50)), Inclusive(intKey(40))))

	// early stop
	seen := 0
	require.NoError(t, tree.Scan(all, all, func(types.DataType, RecordPointer) (bool, error) {
		seen++
		return seen == 5, nil
	}))
	assert.Equal(t, 5, seen)
}

func TestCursorSurvivesMutation(t *testing.T) {
	tree := openIntTree(t, smallPageSize)
	for v := 0; v < 1000; v += 2 {
		insertInts(t, tree, v)
	}

	c := tree.RangeScan(Unbounded[types.DataType](), Unbounded[types.DataType]())
	defer c.Close()

	got := []int64{}
	for i := 0; i < 10 && c.Next(); i++ {
		got = append(got, c.Key().Value().(int64))
	}

	// odd keys split almost every leaf
	for v := 1; v < 1000; v += 2 {
		insertInts(t, tree, v)
	}
	for c.Next() {
		got = append(got, c.Key().Value().(int64))
	}
	require.NoError(t, c.Err())

	for i := 1; i < len(got); i++ {
		require.Less(t, got[i-1], got[i])
	}
	evens := map[int64]bool{}
	for _, v := range got {
		if v%2 == 0 {
			evens[v] = true
		}
	}
	assert.Len(t, evens, 500)
}

func TestConcurrentReaders(t *testing.T) {
	tree := openIntTree(t, smallPageSize)
	insertInts(t, tree, rangeIntsInt(0, 499)...)

	g := errgroup.Group{}
	g.Go(func() error {
		for v := 500; v < 1500; v++ {
			if err := tree.Insert(intKey(v), ptrFor(v)); err != nil {
				return err
			}
		}
		return nil
	})
	for r := 0; r < 4; r++ {
		g.Go(func() error {
			for i := 0; i < 20; i++ {
				var prev int64 = -1
				err := tree.Scan(Unbounded[types.DataType](), Unbounded[types.DataType](), func(k types.DataType, _ RecordPointer) (bool, error) {
					v := k.Value().(int64)
					if v <= prev {
						return true, fmt.Errorf("scan went from %d to %d", prev, v)
					}
					prev = v
					return false, nil
				})
				if err != nil {
					return err
				}
				if _, err := tree.Search(intKey(i * 7)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.NoError(t, tree.CheckConsistency())
	assert.Equal(t, int64(1500), tree.Count())
}

func rangeIntsInt(from, to int) []int {
	out := []int{}
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestReopen(t *testing.T) {
	file := filepath.Join(t.TempDir(), "index.bst")

	tree, err := Open(file, intOptions(smallPageSize))
	require.NoError(t, err)
	for _, v := range rand.New(rand.NewSource(3)).Perm(300) {
		require.NoError(t, tree.Insert(intKey(v), ptrFor(v)))
	}
	for v := 0; v < 300; v += 3 {
		require.NoError(t, tree.Delete(intKey(v)))
	}
	height := tree.Height()
	require.NoError(t, tree.Close())

	_, err = tree.Search(intKey(1))
	require.ErrorIs(t, err, customerrors.ErrClosed)

	tree, err = Open(file, intOptions(smallPageSize))
	require.NoError(t, err)
	defer tree.Close()

	assert.Equal(t, height, tree.Height())
	assert.Equal(t, int64(200), tree.Count())
	require.NoError(t, tree.CheckConsistency())

	ptr, err := tree.Search(intKey(299))
	require.NoError(t, err)
	assert.Equal(t, ptrFor(299), ptr)

	_, err = Open(file, intOptions(256))
	require.Error(t, err)
}

func TestCorruptedPage(t *testing.T) {
	file := filepath.Join(t.TempDir(), "index.bst")

	tree, err := Open(file, intOptions(smallPageSize))
	require.NoError(t, err)
	insertInts(t, tree, 1, 2, 3)
	require.NoError(t, tree.Close())

	f, err := os.OpenFile(file, os.O_RDWR, 0644)
	require.NoError(t, err)
	// first key of the root leaf in page 1
	_, err = f.WriteAt([]byte{0xFF}, smallPageSize+nodeHeaderSize+2)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	tree, err = Open(file, intOptions(smallPageSize))
	require.NoError(t, err)
	defer tree.Close()

	_, err = tree.Search(intKey(2))
	require.ErrorIs(t, err, customerrors.ErrStorageCorruption)
	assert.True(t, customerrors.IsCorruption(err))

	err = tree.Insert(intKey(9), ptrFor(9))
	require.ErrorIs(t, err, customerrors.ErrStorageCorruption)
	require.Error(t, tree.CheckConsistency())
}

func TestCorruptedMeta(t *testing.T) {
	file := filepath.Join(t.TempDir(), "index.bst")

	tree, err := Open(file, intOptions(smallPageSize))
	require.NoError(t, err)
	require.NoError(t, tree.Close())

	f, err := os.OpenFile(file, os.O_RDWR, 0644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xFF}, 14)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(file, intOptions(smallPageSize))
	require.ErrorIs(t, err, customerrors.ErrStorageCorruption)
}

func TestPrint(t *testing.T) {
	tree := openIntTree(t, smallPageSize)
	insertInts(t, tree, 1, 2, 3, 4, 5)

	buf := &bytes.Buffer{}
	require.NoError(t, tree.Print(buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "interior#"))
	assert.True(t, strings.HasPrefix(lines[1], "    leaf#"))
	assert.Contains(t, lines[2], "{3 4 5}")
}

func TestTruncate(t *testing.T) {
	tree := openIntTree(t, smallPageSize)
	insertInts(t, tree, rangeIntsInt(1, 50)...)
	require.Greater(t, tree.Height(), 1)

	require.NoError(t, tree.Truncate())
	require.Equal(t, int64(0), tree.Count())
	require.Equal(t, 1, tree.Height())
	require.Empty(t, scanInts(t, tree, Unbounded[types.DataType](), Unbounded[types.DataType]()))

	_, err := tree.Search(intKey(7))
	require.ErrorIs(t, err, customerrors.ErrKeyNotFound)

	insertInts(t, tree, 3, 1, 2)
	require.Equal(t, []int64{1, 2, 3}, scanInts(t, tree, Unbounded[types.DataType](), Unbounded[types.DataType]()))
	require.NoError(t, tree.CheckConsistency())
}

func TestNarrowKeysReopen(t *testing.T) {
	file := filepath.Join(t.TempDir(), "index.bst")
	tinyMeta := types.MustMeta(types.TYPE_INTEGER, true, 1)
	opts := &Options[types.DataType]{
		PageSize:   nodeHeaderSize + 4*(1+RecordPointerSize),
		MaxKeySize: 1,
		NewKey:     func() types.DataType { return types.Type(tinyMeta) },
		Logger:     logger.Discard{},
	}

	tree, err := Open(file, opts)
	require.NoError(t, err)
	for _, v := range rand.New(rand.NewSource(5)).Perm(256) {
		k, err := types.Convert(tinyMeta, v-128)
		require.NoError(t, err)
		require.NoError(t, tree.Insert(k, ptrFor(v)))
	}

	// 300 would encode as 44 and land out of order on disk
	_, err = types.Convert(tinyMeta, 300)
	require.ErrorIs(t, err, types.ErrInvalidType)
	require.Panics(t, func() { types.Type(tinyMeta).Set(300) })
	require.NoError(t, tree.Close())

	tree, err = Open(file, opts)
	require.NoError(t, err)
	defer tree.Close()
	require.NoError(t, tree.CheckConsistency())
	require.Equal(t, int64(256), tree.Count())

	k, err := types.Convert(tinyMeta, 100)
	require.NoError(t, err)
	ptr, err := tree.Search(k)
	require.NoError(t, err)
	require.Equal(t, ptrFor(228), ptr)
	require.Equal(t, rangeInts(-128, 127), scanInts(t, tree, Unbounded[types.DataType](), Unbounded[types.DataType]()))
}

// failingPager fails every page write while armed.
type failingPager struct {
	pager.Pager
	armed bool
}

var errWriteFailed = errors.New("write failed")

func (p *failingPager) WritePage(id uint64, data []byte) error {
	if p.armed {
		return errWriteFailed
	}
	return p.Pager.WritePage(id, data)
}

func TestUpdate(t *testing.T) {
	tree := openIntTree(t, smallPageSize)
	insertInts(t, tree, rangeIntsInt(1, 20)...)
	height := tree.Height()

	require.NoError(t, tree.Update(intKey(7), ptrFor(700)))
	ptr, err := tree.Search(intKey(7))
	require.NoError(t, err)
	assert.Equal(t, ptrFor(700), ptr)
	assert.Equal(t, int64(20), tree.Count())
	assert.Equal(t, height, tree.Height())
	require.NoError(t, tree.CheckConsistency())

	require.ErrorIs(t, tree.Update(intKey(99), ptrFor(1)), customerrors.ErrKeyNotFound)

	fp := &failingPager{Pager: tree.pager, armed: true}
	tree.pager = fp
	require.ErrorIs(t, tree.Update(intKey(8), ptrFor(800)), errWriteFailed)
	fp.armed = false

	// the key keeps its old address, nothing was lost
	ptr, err = tree.Search(intKey(8))
	require.NoError(t, err)
	assert.Equal(t, ptrFor(8), ptr)
	assert.Equal(t, int64(20), tree.Count())
	require.NoError(t, tree.CheckConsistency())
}

func TestCursorDropsStaleEntries(t *testing.T) {
	tree := openIntTree(t, smallPageSize)
	insertInts(t, tree, 1, 2, 3)

	c := tree.RangeScan(Unbounded[types.DataType](), Unbounded[types.DataType]())
	defer c.Close()
	require.True(t, c.Next())
	require.Equal(t, int64(1), c.Key().Value())

	// entries 2 and 3 were copied by the first Next
	require.NoError(t, tree.Update(intKey(2), ptrFor(200)))
	require.NoError(t, tree.Delete(intKey(3)))

	require.True(t, c.Next())
	require.Equal(t, int64(2), c.Key().Value())
	require.Equal(t, ptrFor(200), c.Pointer())
	require.False(t, c.Next())
	require.NoError(t, c.Err())

	c2 := tree.RangeScan(Unbounded[types.DataType](), Unbounded[types.DataType]())
	require.True(t, c2.Next())
	require.NoError(t, tree.Close())
	require.False(t, c2.Next())
	require.ErrorIs(t, c2.Err(), customerrors.ErrClosed)
}
