package source

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// Mapped is a read-only memory mapping of a file, exposing the section that
// begins at a given offset.
type Mapped struct {
	f    *os.File
	m    mmap.MMap
	data []byte
}

// OpenMapped maps path read-only and exposes length bytes starting at start.
// The file must contain the whole section.
func OpenMapped(path string, start int64, length uint64) (*Mapped, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	end := uint64(start) + length
	if start < 0 || end < length || end > uint64(len(m)) {
		_ = m.Unmap()
		_ = f.Close()
		return nil, fmt.Errorf("source: section [%d,+%d) exceeds mapping of %d bytes", start, length, len(m))
	}

	return &Mapped{f: f, m: m, data: m[start:end:end]}, nil
}

// Kind reports KindMapped.
func (s *Mapped) Kind() Kind { return KindMapped }

// Len returns the section length.
func (s *Mapped) Len() uint64 { return uint64(len(s.data)) }

// Bytes returns the mapped section. It is invalid after Close.
func (s *Mapped) Bytes() []byte { return s.data }

// ReadAt implements io.ReaderAt.
func (s *Mapped) ReadAt(p []byte, off int64) (int, error) {
	if s.m == nil {
		return 0, ErrClosed
	}
	return readAt(s.data, p, off)
}

// Close unmaps the region and closes the file.
func (s *Mapped) Close() error {
	if s.m == nil {
		return nil
	}
	err := s.m.Unmap()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	s.m, s.data = nil, nil
	return err
}
