package kundli

import (
	"fmt"

	"github.com/meigma/kundli/internal/pathutil"
	"github.com/meigma/kundli/internal/sizing"
	"github.com/meigma/kundli/internal/source"
)

// FileData returns the payload of e: file content for regular files and
// the link target for symlinks. Directories yield an empty payload.
//
// On a lazily loaded archive the payload is read directly from the backing
// file or mapping and the checksum is not verified.
//
// Payloads larger than 1 MiB are drawn from the executor's buffer pool;
// pass them to ReleaseData when done to allow reuse.
func (a *Archive) FileData(e Entry) ([]byte, error) {
	if e.Type == TypeDirectory {
		return []byte{}, nil
	}

	var buf []byte
	err := a.withSource(func(src source.Source) error {
		if !sizing.InBounds(e.Offset, e.PayloadLen, src.Len()) {
			a.log().Warn("payload out of range", "path", e.Path,
				"offset", e.Offset, "length", e.PayloadLen, "data", src.Len())
			return fmt.Errorf("%w: %s [%d,+%d) exceeds data section of %d bytes",
				ErrOutOfRange, e.Path, e.Offset, e.PayloadLen, src.Len())
		}
		n, err := sizing.ToInt(e.PayloadLen, ErrSizeOverflow)
		if err != nil {
			return err
		}

		buf = a.exec.buffer(n)
		if b, ok := source.Bytes(src); ok {
			copy(buf, b[e.Offset:e.Offset+e.PayloadLen])
			return nil
		}
		off, err := sizing.ToInt64(e.Offset, ErrSizeOverflow)
		if err != nil {
			return err
		}
		if _, err := src.ReadAt(buf, off); err != nil {
			a.exec.release(buf)
			buf = nil
			return fmt.Errorf("%w: read %s: %w", ErrIO, e.Path, err)
		}
		return nil
	})
	if err != nil {
		return []byte{}, err
	}
	return buf, nil
}

// FileDataByPath returns the payload of the first entry named p.
func (a *Archive) FileDataByPath(p string) ([]byte, error) {
	e, ok := a.Lookup(p)
	if !ok {
		return []byte{}, fmt.Errorf("%w: %s", ErrNotFound, pathutil.Normalize(p))
	}
	return a.FileData(e)
}

// ReleaseData returns a buffer obtained from FileData to the buffer pool.
// The buffer must not be used afterwards. Small buffers are ignored.
func (a *Archive) ReleaseData(b []byte) {
	a.exec.release(b)
}
