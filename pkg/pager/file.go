package pager

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// File stores page i at offset i*pageSize of a single file.
type File struct {
	counters

	mu       sync.RWMutex
	file     *os.File
	pageSize int
	count    uint64
	readOnly bool
}

func openFile(fileName string, pageSize int, readOnly bool, mode uint32) (*File, error) {
	flag := os.O_CREATE | os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}

	f, err := os.OpenFile(fileName, flag, os.FileMode(mode))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open '%s'", fileName)
	}

	if err := lockFile(f, readOnly); err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "'%s'", fileName)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "failed to stat '%s'", fileName)
	}

	if info.Size()%int64(pageSize) != 0 {
		_ = f.Close()
		return nil, errors.Wrapf(ErrPageSize, "file size %d is not a multiple of page size %d", info.Size(), pageSize)
	}

	return &File{
		file:     f,
		pageSize: pageSize,
		count:    uint64(info.Size() / int64(pageSize)),
		readOnly: readOnly,
	}, nil
}

func (p *File) PageSize() int {
	return p.pageSize
}

func (p *File) Count() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.count
}

func (p *File) ReadPage(id uint64) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.file == nil {
		return nil, ErrClosed
	}
	if id >= p.count {
		return nil, errors.Wrapf(ErrPageNotFound, "page %d (file has %d pages)", id, p.count)
	}

	buf := make([]byte, p.pageSize)
	n, err := p.file.ReadAt(buf, int64(id)*int64(p.pageSize))
	if err != nil && !(err == io.EOF && n == p.pageSize) {
		return nil, errors.Wrapf(err, "failed to read page %d", id)
	}

	p.reads.Add(1)
	return buf, nil
}

func (p *File) WritePage(id uint64, data []byte) error {
	if p.readOnly {
		return ErrReadOnly
	}
	if len(data) != p.pageSize {
		return errors.Wrapf(ErrPageSize, "page %d: got %d bytes, want %d", id, len(data), p.pageSize)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return ErrClosed
	}

	if _, err := p.file.WriteAt(data, int64(id)*int64(p.pageSize)); err != nil {
		return errors.Wrapf(err, "failed to write page %d", id)
	}

	if id >= p.count {
		p.count = id + 1
	}
	p.writes.Add(1)
	return nil
}

func (p *File) Sync() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.file == nil {
		return ErrClosed
	}
	if p.readOnly {
		return nil
	}
	return errors.Wrap(syncFile(p.file), "failed to sync pager")
}

func (p *File) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return nil
	}

	var err error
	if !p.readOnly {
		err = syncFile(p.file)
	}
	_ = unlockFile(p.file)
	if cerr := p.file.Close(); err == nil {
		err = cerr
	}
	p.file = nil
	return err
}
