package flatfile

import (
	"os"
	"path/filepath"
	"testing"

	"go-bstardb/pkg/customerrors"
	"go-bstardb/pkg/engine"
	"go-bstardb/pkg/types"
	"go-bstardb/util/logger"

	"github.com/stretchr/testify/require"
)

var strMeta = types.MustMeta(types.TYPE_STRING)

func key(v string) types.DataType { return types.Type(strMeta).Set(v) }

func options() *engine.Options {
	return &engine.Options{KeyMeta: strMeta, Logger: logger.Discard{}}
}

func openFlat(t *testing.T, path string) *Engine {
	t.Helper()
	e, err := Open(path, options())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e.(*Engine)
}

func TestFrame(t *testing.T) {
	f := frame{op: opPut, key: []byte("k"), record: []byte("value")}
	d, err := f.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, d, f.size())

	var got frame
	require.NoError(t, got.UnmarshalBinary(d))
	require.Equal(t, f, got)

	d[frameHeaderSize] ^= 0xFF
	require.Error(t, got.UnmarshalBinary(d))

	d[0] = 9
	_, err = frameLength(d)
	require.Error(t, err)
}

func TestGarbage(t *testing.T) {
	e := openFlat(t, filepath.Join(t.TempDir(), "t"))

	require.NoError(t, e.Insert(key("a"), []byte("1")))
	require.NoError(t, e.Insert(key("b"), []byte("2")))
	require.Zero(t, e.Garbage())

	require.NoError(t, e.Update(key("a"), []byte("11")))
	require.NoError(t, e.Delete(key("b")))
	require.Positive(t, e.Garbage())

	before := e.store.Size()
	require.NoError(t, e.Reorganize())
	require.Zero(t, e.Garbage())
	require.Less(t, e.store.Size(), before)

	rec, err := e.Search(key("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("11"), rec)

	_, err = os.Stat(e.path + compactSuffix)
	require.True(t, os.IsNotExist(err))
}

func TestTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t")
	e, err := Open(path, options())
	require.NoError(t, err)
	require.NoError(t, e.Insert(key("a"), []byte("1")))
	require.NoError(t, e.Insert(key("b"), []byte("2")))
	size := e.(*Engine).store.Size()
	require.NoError(t, e.Close())

	// half of the last frame made it to disk
	require.NoError(t, os.Truncate(path+fileSuffix, size-5))

	ff := openFlat(t, path)
	require.Equal(t, int64(1), ff.Count())
	_, err = ff.Search(key("b"))
	require.ErrorIs(t, err, customerrors.ErrKeyNotFound)

	require.NoError(t, ff.Insert(key("c"), []byte("3")))
	require.NoError(t, ff.Close())

	ff = openFlat(t, path)
	require.Equal(t, int64(2), ff.Count())
}

func TestCorruptedFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t")
	e, err := Open(path, options())
	require.NoError(t, err)
	require.NoError(t, e.Insert(key("a"), []byte("1")))
	require.NoError(t, e.Insert(key("b"), []byte("2")))
	require.NoError(t, e.Close())

	f, err := os.OpenFile(path+fileSuffix, os.O_RDWR, 0644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xFF}, frameHeaderSize+1)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(path, options())
	require.ErrorIs(t, err, customerrors.ErrStorageCorruption)
}

func TestCursorSkipsDeleted(t *testing.T) {
	e := openFlat(t, ":memory:")
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, e.Insert(key(k), []byte(k)))
	}

	c, err := e.RangeScan(engine.Unbounded, engine.Unbounded)
	require.NoError(t, err)
	defer c.Close()

	require.True(t, c.Next())
	require.Equal(t, "a", c.Key().Value())

	require.NoError(t, e.Delete(key("b")))
	require.NoError(t, e.Update(key("c"), []byte("C")))

	require.True(t, c.Next())
	require.Equal(t, "c", c.Key().Value())
	require.Equal(t, []byte("C"), c.Record())
	require.True(t, c.Next())
	require.False(t, c.Next())
	require.NoError(t, c.Err())
}

func TestCheckConsistency(t *testing.T) {
	e := openFlat(t, ":memory:")
	require.NoError(t, e.Insert(key("a"), []byte("1")))
	require.NoError(t, e.Insert(key("b"), []byte("22")))
	require.NoError(t, e.Update(key("a"), []byte("333")))
	require.NoError(t, e.CheckConsistency())

	ms := e.store.(*memoryStore)
	ms.buf[len(ms.buf)-checksumSize-1] ^= 0xFF
	require.ErrorIs(t, e.CheckConsistency(), customerrors.ErrStorageCorruption)
}
