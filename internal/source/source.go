// Package source provides the backing stores an archive reads payload bytes
// from.
//
// A data section lives in exactly one of three places: an owned in-memory
// buffer, a region of the archive file read on demand, or a read-only
// memory mapping of that region.
package source

import (
	"errors"
	"fmt"
	"io"
)

// ErrClosed is returned by reads after Close.
var ErrClosed = errors.New("source: closed")

// Kind identifies a source variant.
type Kind uint8

// Source variants.
const (
	KindMemory Kind = iota
	KindFile
	KindMapped
)

func (k Kind) String() string {
	switch k {
	case KindMemory:
		return "memory"
	case KindFile:
		return "file"
	case KindMapped:
		return "mapped"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Source is a readable data section. Offsets are relative to the start of
// the section. Implementations are safe for concurrent reads.
type Source interface {
	io.ReaderAt
	Kind() Kind
	Len() uint64
	Close() error
}

// Addressable is implemented by sources whose bytes are directly
// addressable without a copy. The returned slice must not be modified.
type Addressable interface {
	Bytes() []byte
}

// Bytes returns the section of src directly when it is addressable.
func Bytes(src Source) ([]byte, bool) {
	if a, ok := src.(Addressable); ok {
		return a.Bytes(), true
	}
	return nil, false
}

// readAt copies from data at off into p with io.ReaderAt semantics.
func readAt(data []byte, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("source: negative offset %d", off)
	}
	if off >= int64(len(data)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
