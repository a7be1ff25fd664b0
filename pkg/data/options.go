package data

import (
	"go-bstardb/util/logger"
)

// DefaultOptions to be used by Open when nil options are given.
var DefaultOptions = Options{
	PageSize:  4096,
	CacheSize: 16 << 20,
	FileMode:  0644,
}

// Options represents the configuration options for the data file.
type Options struct {
	// PageSize to be for file I/O. All reads and writes will always
	// be done with pages of this size. At most 65535.
	PageSize int

	// CacheSize is the number of record bytes kept in memory, 0 disables
	// the cache.
	CacheSize int64

	ReadOnly bool
	FileMode uint32
	Logger   logger.Logger
}
