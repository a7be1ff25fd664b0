package config

import (
	"os"
	"path/filepath"
	"testing"

	"go-bstardb/pkg/customerrors"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"storage": {"page_size": 8192, "data_dir": "/tmp/db"},
		"log": {"level": "debug"}
	}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8192, cfg.Storage.PageSize)
	require.Equal(t, "/tmp/db", cfg.Storage.DataDir)
	require.Equal(t, 256, cfg.Storage.MaxKeySize)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"storage": {"page_size": -1}}`), 0644))

	_, err := Load(path)
	require.ErrorIs(t, err, customerrors.ErrInvalidOptions)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
