package config

import (
	"go-bstardb/pkg/customerrors"

	"github.com/pkg/errors"
)

type StorageConfig struct {
	// DataDir is the root directory, one subdirectory per database.
	DataDir string `json:"data_dir"`

	// PageSize is used by every node page of every tree. It is fixed for the
	// lifetime of a tree file.
	PageSize int `json:"page_size"`

	MaxKeySize int `json:"max_key_size"`

	// NodeCacheSize is the number of decoded tree nodes kept in memory per
	// tree.
	NodeCacheSize int `json:"node_cache_size"`

	// RecordCacheSize is the cost budget (bytes) of the record cache per
	// data file.
	RecordCacheSize int64 `json:"record_cache_size"`

	// SyncWrites flushes every mutation to stable storage before it returns.
	SyncWrites bool `json:"sync_writes"`

	// ReadOnly opens every file without write access.
	ReadOnly bool `json:"read_only"`

	// SyncIntervalSeconds flushes all open tables periodically, 0 disables.
	SyncIntervalSeconds int `json:"sync_interval_seconds"`
}

func NewStorageConfig() *StorageConfig {
	return &StorageConfig{
		DataDir:         "./data",
		PageSize:        4096,
		MaxKeySize:      256,
		NodeCacheSize:   1024,
		RecordCacheSize: 16 << 20,
	}
}

func (c *StorageConfig) Validate() error {
	if c.PageSize <= 0 || c.MaxKeySize <= 0 {
		return errors.Wrap(customerrors.ErrInvalidOptions, "page size and max key size must be positive")
	}
	if c.NodeCacheSize < 0 || c.RecordCacheSize < 0 || c.SyncIntervalSeconds < 0 {
		return errors.Wrap(customerrors.ErrInvalidOptions, "cache sizes and sync interval can not be negative")
	}
	return nil
}

type LogConfig struct {
	Level string `json:"level"`
}

func NewLogConfig() *LogConfig {
	return &LogConfig{
		Level: "info",
	}
}
