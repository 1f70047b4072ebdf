package kundli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"

	"github.com/meigma/kundli/internal/checksum"
	"github.com/meigma/kundli/internal/format"
	"github.com/meigma/kundli/internal/source"
	"github.com/meigma/kundli/internal/write"
)

// archiveMode is the permission given to newly created archive files.
const archiveMode fs.FileMode = 0o644

// Compress writes the archive to path. Payloads are stored verbatim. The
// file is written to a temporary name and renamed into place, so readers
// never observe a partial archive.
func (a *Archive) Compress(path string) error {
	unlock, err := a.lockOutput(path)
	if err != nil {
		return err
	}
	defer unlock()

	hdr, layout, data, err := a.snapshot()
	if err != nil {
		return err
	}

	_, statErr := os.Stat(path)
	r := io.MultiReader(bytes.NewReader(layout), bytes.NewReader(data))
	if err := atomic.WriteFile(path, r); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrFilesystem, path, err)
	}
	if errors.Is(statErr, fs.ErrNotExist) {
		if err := os.Chmod(path, archiveMode); err != nil {
			return fmt.Errorf("%w: %w", ErrFilesystem, err)
		}
	}

	a.commitHeader(hdr)
	a.progress("compressed archive", "path", path, "entries", len(a.entries), "data", len(data))
	return nil
}

// CompressParallel writes the archive to path using up to threads workers
// for the data section. Zero uses the archive's thread count. It falls
// back to Compress when threads resolves to one or fewer, or exceeds the
// number of entries. The output is byte-identical to Compress.
//
// The header and file table are written first. The file is then
// pre-extended to its final size and the data section is split into
// chunks that workers claim one at a time and write at their own offsets.
func (a *Archive) CompressParallel(path string, threads int) error {
	n, err := a.threadCount(threads)
	if err != nil {
		return err
	}
	if n <= 1 || n > len(a.entries) {
		return a.Compress(path)
	}

	unlock, err := a.lockOutput(path)
	if err != nil {
		return err
	}
	defer unlock()

	hdr, layout, data, err := a.snapshot()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFilesystem, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()        //nolint:errcheck // cleanup
			_ = os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		}
	}()

	if _, err := tmp.Write(layout); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrIO, tmpName, err)
	}
	if err := write.Preextend(tmp, int64(len(layout)+len(data))); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	a.progress("writing data section", "path", path, "workers", n,
		"chunks", len(write.Plan(int64(len(data)), n)))
	if err := write.Parallel(a.exec.pool, tmpName, int64(len(layout)), data, n); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %w", ErrIO, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrIO, tmpName, err)
	}
	if err := os.Chmod(tmpName, outputMode(path)); err != nil {
		return fmt.Errorf("%w: %w", ErrFilesystem, err)
	}
	if err := atomic.ReplaceFile(tmpName, path); err != nil {
		return fmt.Errorf("%w: replace %s: %w", ErrFilesystem, path, err)
	}
	committed = true

	a.commitHeader(hdr)
	a.progress("compressed archive", "path", path, "entries", len(a.entries), "data", len(data), "workers", n)
	return nil
}

// outputMode keeps the mode of an existing archive at path.
func outputMode(path string) fs.FileMode {
	if fi, err := os.Stat(path); err == nil {
		return fi.Mode().Perm()
	}
	return archiveMode
}

// snapshot encodes the current header and file table and returns them with
// the data section. A lazily loaded archive is materialized first so the
// new checksum is never computed over unverified bytes.
func (a *Archive) snapshot() (format.Header, []byte, []byte, error) {
	if err := a.Materialize(); err != nil {
		return format.Header{}, nil, nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.src == nil {
		return format.Header{}, nil, nil, fmt.Errorf("%w: archive is closed", ErrConfiguration)
	}
	data, _ := source.Bytes(a.src)

	hdr := a.header
	hdr.Version = format.CurrentVersion
	if hdr.Flags == 0 {
		hdr.Flags = format.FlagNone
	}
	if hdr.Timestamp == 0 {
		hdr.Timestamp = uint64(a.cfg.clock().Unix()) //nolint:gosec // clock is after the epoch
	}
	hdr.Checksum = checksum.Checksum(data)

	layout, err := format.AppendLayout(make([]byte, 0, format.LayoutSize(hdr, a.entries)),
		hdr, a.entries, uint64(len(data)))
	if err != nil {
		return format.Header{}, nil, nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return hdr, layout, data, nil
}

// commitHeader records the header that was written.
func (a *Archive) commitHeader(hdr format.Header) {
	a.mu.Lock()
	a.header = hdr
	a.mu.Unlock()
}

// lockOutput takes an exclusive advisory lock on path+".lock". The
// returned func releases the lock and removes the lock file.
func (a *Archive) lockOutput(path string) (func(), error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty archive path", ErrConfiguration)
	}
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return nil, fmt.Errorf("%w: archive path %s is a directory", ErrConfiguration, path)
	}

	lockPath := path + ".lock"
	fl := flock.New(lockPath)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: lock %s: %w", ErrFilesystem, lockPath, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s is being written by another process", ErrConfiguration, path)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			a.log().Warn("release archive lock", "path", lockPath, "error", err)
		}
		_ = os.Remove(lockPath) //nolint:errcheck // best-effort cleanup
	}, nil
}
