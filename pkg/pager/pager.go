// Package pager provides fixed size page I/O over a file or memory. A page
// write replaces the whole page buffer at once, so a reader never sees a
// partially written page.
package pager

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// InMemoryFileName opens a pager backed by memory instead of a file.
const InMemoryFileName = ":memory:"

var (
	ErrPageNotFound = errors.New("page not found")
	ErrPageSize     = errors.New("invalid page size")
	ErrReadOnly     = errors.New("pager is read-only")
	ErrClosed       = errors.New("pager is closed")
	ErrLocked       = errors.New("file is locked by another process")
)

type Pager interface {
	PageSize() int

	// Count returns the number of pages ever written (the file length in
	// pages).
	Count() uint64
	ReadPage(id uint64) ([]byte, error)
	WritePage(id uint64, data []byte) error
	Sync() error
	Close() error
	Stats() Stats
}

type Stats struct {
	Reads  uint64
	Writes uint64
}

// Open opens the named file as pages of pageSize bytes. Use ":memory:" for
// an in-memory pager.
func Open(fileName string, pageSize int, readOnly bool, mode uint32) (Pager, error) {
	if pageSize <= 0 {
		return nil, errors.Wrapf(ErrPageSize, "%d", pageSize)
	}

	if fileName == InMemoryFileName {
		return NewInMemory(pageSize), nil
	}
	return openFile(fileName, pageSize, readOnly, mode)
}

type counters struct {
	reads  atomic.Uint64
	writes atomic.Uint64
}

func (c *counters) Stats() Stats {
	return Stats{
		Reads:  c.reads.Load(),
		Writes: c.writes.Load(),
	}
}
