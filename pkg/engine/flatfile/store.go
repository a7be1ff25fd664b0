package flatfile

import (
	"io"
	"os"
	"sync"

	"go-bstardb/pkg/pager"

	"github.com/pkg/errors"
)

// store is the byte log a flat file engine appends to.
type store interface {
	io.ReaderAt
	Append(p []byte) (int64, error)
	Size() int64
	Truncate(size int64) error
	Sync() error
	Close() error
}

type fileStore struct {
	f    *os.File
	size int64
}

func openFileStore(path string, readOnly bool) (*fileStore, error) {
	flag := os.O_CREATE | os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}

	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open '%s'", path)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fileStore{f: f, size: info.Size()}, nil
}

func (s *fileStore) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off)
}

func (s *fileStore) Append(p []byte) (int64, error) {
	off := s.size
	if _, err := s.f.WriteAt(p, off); err != nil {
		return 0, err
	}
	s.size += int64(len(p))
	return off, nil
}

func (s *fileStore) Size() int64 { return s.size }

func (s *fileStore) Truncate(size int64) error {
	if err := s.f.Truncate(size); err != nil {
		return err
	}
	s.size = size
	return nil
}

func (s *fileStore) Sync() error  { return s.f.Sync() }
func (s *fileStore) Close() error { return s.f.Close() }

// memoryStore is a store kept in a byte slice.
type memoryStore struct {
	mu  sync.RWMutex
	buf []byte
}

func (s *memoryStore) ReadAt(p []byte, off int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if off >= int64(len(s.buf)) {
		return 0, io.EOF
	}
	n := copy(p, s.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *memoryStore) Append(p []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	off := int64(len(s.buf))
	s.buf = append(s.buf, p...)
	return off, nil
}

func (s *memoryStore) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.buf))
}

func (s *memoryStore) Truncate(size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = s.buf[:size]
	return nil
}

func (s *memoryStore) Sync() error  { return nil }
func (s *memoryStore) Close() error { return nil }

func openStore(path string, readOnly bool) (store, error) {
	if path == pager.InMemoryFileName {
		return &memoryStore{}, nil
	}
	return openFileStore(path, readOnly)
}
