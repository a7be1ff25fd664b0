package helpers

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMinMax(t *testing.T) {
	require.Equal(t, 1, Min(3, 1, 2))
	require.Equal(t, 3, Max(3, 1, 2))
	require.Equal(t, -7, Min(-7))
	require.Equal(t, "b", Max("a", "b"))
}

func TestCreateDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, CreateDir(dir))
	require.NoError(t, CreateDir(dir))
	require.DirExists(t, dir)
}
