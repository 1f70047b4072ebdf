package source

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

// File reads a data section from a region of a file on demand. Each read
// opens the file independently, so no handle is held between reads.
type File struct {
	path   string
	start  int64
	length uint64
	closed atomic.Bool
}

// NewFile returns a source for the length bytes of path that begin at start.
func NewFile(path string, start int64, length uint64) *File {
	return &File{path: path, start: start, length: length}
}

// Kind reports KindFile.
func (f *File) Kind() Kind { return KindFile }

// Len returns the section length.
func (f *File) Len() uint64 { return f.length }

// Path returns the backing file path.
func (f *File) Path() string { return f.path }

// Start returns the file offset of the first section byte.
func (f *File) Start() int64 { return f.start }

// ReadAt implements io.ReaderAt. Reads are clipped to the section.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("source: negative offset %d", off)
	}
	if uint64(off) >= f.length {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}

	want := p
	if remaining := f.length - uint64(off); uint64(len(p)) > remaining {
		want = p[:remaining]
	}

	fh, err := os.Open(f.path)
	if err != nil {
		return 0, err
	}
	defer fh.Close()

	n, err := fh.ReadAt(want, f.start+off)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Close marks the source closed. There is no handle to release.
func (f *File) Close() error {
	f.closed.Store(true)
	return nil
}
