package kundli

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/meigma/kundli/internal/checksum"
	"github.com/meigma/kundli/internal/format"
	"github.com/meigma/kundli/internal/sizing"
	"github.com/meigma/kundli/internal/source"
)

// LoadFull reads the archive at path, including its whole data section,
// and verifies the checksum. No archive is returned on failure.
func LoadFull(path string, opts ...Option) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFilesystem, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	layout, err := format.ReadLayout(br)
	if err != nil {
		return nil, layoutError(path, err)
	}

	n, err := sizing.ToInt(layout.DataLen, ErrSizeOverflow)
	if err != nil {
		return nil, fmt.Errorf("%s: data section of %d bytes: %w", path, layout.DataLen, err)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(br, data); err != nil {
		return nil, fmt.Errorf("%w: %s: read data section: %w", ErrIO, path, err)
	}

	if err := verify(layout.Header, data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	cfg := newConfig(opts)
	a := newArchive(cfg, layout.Header, layout.Entries, source.NewMemory(data), true)
	a.path = path
	a.progress("loaded archive", "path", path, "entries", len(layout.Entries), "data", layout.DataLen)
	return a, nil
}

// Load reads the header and file table of the archive at path. Payloads
// are read on demand and the checksum is not verified until Materialize.
//
// The data section is memory-mapped when it is at least the configured map
// threshold, and read from the file per access otherwise.
func Load(path string, opts ...Option) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFilesystem, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFilesystem, err)
	}

	layout, err := format.ReadLayout(bufio.NewReader(f))
	if err != nil {
		return nil, layoutError(path, err)
	}

	end, ok := sizing.AddUint64(uint64(layout.DataStart), layout.DataLen) //nolint:gosec // DataStart is non-negative
	if !ok || end > uint64(fi.Size()) {                                   //nolint:gosec // file sizes are non-negative
		return nil, fmt.Errorf("%w: %s: data section [%d,+%d) exceeds file size %d",
			ErrFormat, path, layout.DataStart, layout.DataLen, fi.Size())
	}

	cfg := newConfig(opts)
	var src source.Source
	if cfg.mapThreshold > 0 && layout.DataLen >= uint64(cfg.mapThreshold) {
		m, err := source.OpenMapped(path, layout.DataStart, layout.DataLen)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFilesystem, err)
		}
		src = m
	} else {
		src = source.NewFile(path, layout.DataStart, layout.DataLen)
	}

	a := newArchive(cfg, layout.Header, layout.Entries, src, false)
	a.path = path
	a.progress("loaded archive table", "path", path, "entries", len(layout.Entries),
		"data", layout.DataLen, "source", src.Kind())
	return a, nil
}

// Materialize reads the whole data section of a lazily loaded archive and
// verifies it against the header checksum. A file-backed archive then
// serves payloads from memory; a mapped one keeps its mapping. On failure
// the archive is unchanged. Concurrent calls share one read.
func (a *Archive) Materialize() error {
	_, err, _ := a.materializeGroup.Do("materialize", func() (any, error) {
		return nil, a.materialize()
	})
	return err
}

func (a *Archive) materialize() error {
	a.mu.RLock()
	src, hdr, verified := a.src, a.header, a.verified
	a.mu.RUnlock()

	if src == nil {
		return fmt.Errorf("%w: archive is closed", ErrConfiguration)
	}
	if verified {
		return nil
	}

	data, addressable := source.Bytes(src)
	if !addressable {
		n, err := sizing.ToInt(src.Len(), ErrSizeOverflow)
		if err != nil {
			return err
		}
		data = make([]byte, n)
		if _, err := src.ReadAt(data, 0); err != nil {
			return fmt.Errorf("%w: %s: read data section: %w", ErrIO, a.path, err)
		}
	}

	if err := verify(hdr, data); err != nil {
		a.log().Warn("materialize failed", "path", a.path, "error", err)
		return fmt.Errorf("%s: %w", a.path, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !addressable {
		if err := a.src.Close(); err != nil {
			a.log().Warn("release payload source", "source", a.src.Kind(), "error", err)
		}
		a.src = source.NewMemory(data)
	}
	a.verified = true
	a.progress("materialized data section", "path", a.path, "bytes", len(data))
	return nil
}

// verify checks data against the header checksum when the header has one.
func verify(hdr format.Header, data []byte) error {
	if !hdr.HasChecksum() {
		return nil
	}
	if got := checksum.Checksum(data); got != hdr.Checksum {
		return fmt.Errorf("%w: stored %08x, computed %08x", ErrIntegrity, hdr.Checksum, got)
	}
	return nil
}
