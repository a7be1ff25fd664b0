package pager

import (
	"sync"

	"github.com/pkg/errors"
)

// InMemory keeps every page in a map. Useful for tests and temporary
// tables.
type InMemory struct {
	counters

	mu       sync.RWMutex
	pageSize int
	pages    map[uint64][]byte
	count    uint64
	closed   bool
}

func NewInMemory(pageSize int) *InMemory {
	return &InMemory{
		pageSize: pageSize,
		pages:    map[uint64][]byte{},
	}
}

func (p *InMemory) PageSize() int {
	return p.pageSize
}

func (p *InMemory) Count() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.count
}

func (p *InMemory) ReadPage(id uint64) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrClosed
	}

	data, ok := p.pages[id]
	if !ok {
		return nil, errors.Wrapf(ErrPageNotFound, "page %d", id)
	}

	p.reads.Add(1)
	return append([]byte(nil), data...), nil
}

func (p *InMemory) WritePage(id uint64, data []byte) error {
	if len(data) != p.pageSize {
		return errors.Wrapf(ErrPageSize, "page %d: got %d bytes, want %d", id, len(data), p.pageSize)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	p.pages[id] = append([]byte(nil), data...)
	if id >= p.count {
		p.count = id + 1
	}
	p.writes.Add(1)
	return nil
}

func (p *InMemory) Sync() error {
	return nil
}

func (p *InMemory) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
