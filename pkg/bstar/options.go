package bstar

import (
	"go-bstardb/pkg/customerrors"
	"go-bstardb/util/helpers"
	"go-bstardb/util/logger"

	"github.com/pkg/errors"
)

const (
	DefaultPageSize   = 4096
	DefaultMaxKeySize = 256
	DefaultCacheSize  = 1024
)

// Options represents the configuration options for the tree.
type Options[K Key[K]] struct {
	// PageSize to be for file I/O. All reads and writes will always
	// be done with pages of this size.
	PageSize int

	// MaxKeySize represents the maximum encoded size allowed for a key.
	// Four of the largest leaf entries must fit in one page.
	MaxKeySize int

	// NewKey returns an empty key to decode into. Required.
	NewKey func() K

	// number of decoded nodes kept in memory
	CacheSize int

	// SyncWrites syncs the file after every insert or delete.
	SyncWrites bool

	ReadOnly bool
	FileMode uint32

	Logger logger.Logger
}

func (o *Options[K]) withDefaults() Options[K] {
	opts := *o
	if opts.PageSize == 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxKeySize == 0 {
		opts.MaxKeySize = DefaultMaxKeySize
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.FileMode == 0 {
		opts.FileMode = 0644
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	return opts
}

// layout holds the byte budgets every node of a tree shares.
type layout[K Key[K]] struct {
	pageSize   int
	maxKeySize int
	newKey     func() K

	// bytes available to entries
	capacity int
	half     int

	leafMinFill     int
	interiorMinFill int
}

// newLayout derives the fill thresholds. half is capacity/2 rounded down; a
// split leaves at most half on the left, so the left side holds more than
// half minus one entry. The minimums are chosen so that split halves never
// underflow and a merge after a failed borrow always fits.
func newLayout[K Key[K]](opts Options[K]) (*layout[K], error) {
	if opts.NewKey == nil {
		return nil, errors.Wrap(customerrors.ErrInvalidOptions, "NewKey is required")
	}
	if opts.MaxKeySize <= 0 {
		return nil, errors.Wrapf(customerrors.ErrInvalidOptions, "max key size %d", opts.MaxKeySize)
	}
	if opts.PageSize < metaSize {
		return nil, errors.Wrapf(customerrors.ErrInvalidOptions, "page size %d is smaller than %d", opts.PageSize, metaSize)
	}

	capacity := opts.PageSize - nodeHeaderSize
	maxLeaf := opts.MaxKeySize + RecordPointerSize
	maxInterior := opts.MaxKeySize + ChildPageSize
	if 4*maxLeaf > capacity {
		return nil, errors.Wrapf(
			customerrors.ErrInvalidOptions,
			"page size %d fits less than 4 entries with max key size %d", opts.PageSize, opts.MaxKeySize,
		)
	}

	half := capacity / 2
	return &layout[K]{
		pageSize:        opts.PageSize,
		maxKeySize:      opts.MaxKeySize,
		newKey:          opts.NewKey,
		capacity:        capacity,
		half:            half,
		leafMinFill:     half - maxLeaf + 1,
		interiorMinFill: helpers.Max(0, half-2*maxInterior+1),
	}, nil
}
