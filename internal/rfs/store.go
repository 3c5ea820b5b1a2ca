package rfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// DefaultNVSize is the size of a freshly created NV data image.
const DefaultNVSize = 2 << 20

// ErrOutOfRange is returned for accesses past the end of the NV image.
var ErrOutOfRange = errors.New("nv access out of range")

// Store is random access storage for NV data.
type Store interface {
	io.ReaderAt
	io.WriterAt
	Size() int64
}

// FileStore keeps NV data in a fixed-size file. Missing files are created
// zero filled.
type FileStore struct {
	mu   sync.Mutex
	file *os.File
	size int64
}

func OpenFileStore(path string, size int64) (*FileStore, error) {
	if size <= 0 {
		size = DefaultNVSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create nv data dir: %w", err)
	}

	// #nosec G304 -- path comes from the daemon configuration.
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open nv data: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("stat nv data: %w", err)
	}
	if info.Size() < size {
		if err := f.Truncate(size); err != nil {
			_ = f.Close()

			return nil, fmt.Errorf("grow nv data: %w", err)
		}
	} else {
		size = info.Size()
	}

	return &FileStore{file: f, size: size}, nil
}

func (s *FileStore) Size() int64 {
	return s.size
}

func (s *FileStore) ReadAt(p []byte, off int64) (int, error) {
	if err := s.check(off, len(p)); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.file.ReadAt(p, off)
}

func (s *FileStore) WriteAt(p []byte, off int64) (int, error) {
	if err := s.check(off, len(p)); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.file.WriteAt(p, off)
	if err != nil {
		return n, err
	}
	if err := s.file.Sync(); err != nil {
		return n, fmt.Errorf("sync nv data: %w", err)
	}

	return n, nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.file.Close()
}

func (s *FileStore) check(off int64, n int) error {
	if off < 0 || off+int64(n) > s.size {
		return fmt.Errorf("%w: offset %d length %d size %d", ErrOutOfRange, off, n, s.size)
	}

	return nil
}
