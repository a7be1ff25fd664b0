package customerrors

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestTaxonomy(t *testing.T) {
	require.True(t, IsLogical(errors.Wrap(ErrKeyNotFound, "search")))
	require.True(t, IsLogical(errors.Wrapf(ErrDuplicateKey, "insert %d", 1)))
	require.False(t, IsLogical(ErrCapacityExceeded))

	require.True(t, IsCapacity(errors.Wrap(ErrCapacityExceeded, "merge")))

	err := errors.Wrap(Corrupted(7, "checksum mismatch %x != %x", 1, 2), "fetch")
	require.True(t, IsCorruption(err))
	require.False(t, IsLogical(err))

	var ce *CorruptionError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, uint64(7), ce.PageID)
	require.Contains(t, err.Error(), "page 7")
}
