package kundli

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"

	natomic "github.com/natefinch/atomic"

	"github.com/meigma/kundli/internal/batch"
	"github.com/meigma/kundli/internal/pathutil"
)

// ExtractStats summarizes an extraction.
type ExtractStats struct {
	Files    int
	Dirs     int
	Symlinks int
	Bytes    uint64
	Failed   int
}

// extraction tracks one Decompress or DecompressParallel call.
type extraction struct {
	a    *Archive
	sink *batch.FileSink

	files, dirs, symlinks, failed atomic.Int64
	bytes                         atomic.Uint64

	// dirs created, restored last in reverse order
	created []Entry
}

func (a *Archive) newExtraction(destDir string) (*extraction, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	sink, err := batch.OpenFileSink(destDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFilesystem, err)
	}
	return &extraction{a: a, sink: sink}, nil
}

// Decompress extracts every entry into destDir in table order.
//
// A failure on one entry is logged and extraction continues; the returned
// error joins every per-entry failure. Directory permissions are applied
// after all entries are written.
func (a *Archive) Decompress(destDir string) (ExtractStats, error) {
	x, err := a.newExtraction(destDir)
	if err != nil {
		return ExtractStats{}, err
	}
	defer x.sink.Close()

	var errs []error
	for i := range a.entries {
		e := &a.entries[i]
		var err error
		if e.Type == TypeDirectory {
			err = x.dir(e)
		} else {
			err = x.leaf(e, true)
		}
		errs = append(errs, err)
	}
	errs = append(errs, x.restoreDirs())

	a.progress("extracted archive", "dest", destDir, "files", x.files.Load(), "failed", x.failed.Load())
	return x.stats(), errors.Join(errs...)
}

// DecompressParallel extracts every entry into destDir using up to threads
// workers. Zero uses the archive's thread count.
//
// Directories and the parents of every other entry are created first on
// the calling goroutine. The remaining entries are split into contiguous
// ranges, one per worker. With one worker, or at most one non-directory
// entry, it behaves like Decompress.
func (a *Archive) DecompressParallel(destDir string, threads int) (ExtractStats, error) {
	n, err := a.threadCount(threads)
	if err != nil {
		return ExtractStats{}, err
	}

	x, err := a.newExtraction(destDir)
	if err != nil {
		return ExtractStats{}, err
	}
	defer x.sink.Close()

	var errs []error
	leaves := make([]*Entry, 0, len(a.entries))
	for i := range a.entries {
		e := &a.entries[i]
		if e.Type == TypeDirectory {
			errs = append(errs, x.dir(e))
			continue
		}
		leaves = append(leaves, e)
	}
	for _, e := range leaves {
		if err := x.sink.MkdirParent(pathutil.Relative(e.Path)); err != nil {
			a.log().Warn("create parent directory", "path", e.Path, "error", err)
		}
	}

	n = min(n, len(leaves))
	if n <= 1 {
		for _, e := range leaves {
			errs = append(errs, x.leaf(e, false))
		}
	} else {
		a.progress("extracting", "dest", destDir, "entries", len(leaves), "workers", n)
		errs = append(errs, batch.Process(a.exec.pool, len(leaves), n, func(i int) error {
			return x.leaf(leaves[i], false)
		}))
	}
	errs = append(errs, x.restoreDirs())

	a.progress("extracted archive", "dest", destDir, "files", x.files.Load(), "failed", x.failed.Load())
	return x.stats(), errors.Join(errs...)
}

// DecompressFile extracts the entry named p to outputPath, reading only
// that entry's payload. Regular files are replaced atomically.
func (a *Archive) DecompressFile(p, outputPath string) error {
	e, ok := a.Lookup(p)
	if !ok {
		a.log().Warn("extract: no such entry", "path", p)
		return fmt.Errorf("%w: %s", ErrNotFound, pathutil.Normalize(p))
	}
	mode := pathutil.UnpackPerm(e.Perm)

	if e.Type == TypeDirectory {
		if err := os.MkdirAll(outputPath, 0o755); err != nil {
			return fmt.Errorf("%w: %w", ErrFilesystem, err)
		}
		if err := os.Chmod(outputPath, mode); err != nil {
			return fmt.Errorf("%w: %w", ErrFilesystem, err)
		}
		return nil
	}

	data, err := a.FileData(e)
	if err != nil {
		return err
	}
	defer a.ReleaseData(data)

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %w", ErrFilesystem, err)
		}
	}

	if e.Type == TypeSymlink {
		if fi, err := os.Lstat(outputPath); err == nil && !fi.IsDir() {
			if err := os.Remove(outputPath); err != nil {
				return fmt.Errorf("%w: %w", ErrFilesystem, err)
			}
		}
		if err := os.Symlink(string(data), outputPath); err != nil {
			return fmt.Errorf("%w: %w", ErrFilesystem, err)
		}
		return nil
	}

	if err := natomic.WriteFile(outputPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrFilesystem, outputPath, err)
	}
	if err := os.Chmod(outputPath, mode); err != nil {
		return fmt.Errorf("%w: %w", ErrFilesystem, err)
	}
	a.progress("extracted entry", "path", e.Path, "output", outputPath, "size", len(data))
	return nil
}

// dir creates a directory entry. Its permissions are applied later by
// restoreDirs.
func (x *extraction) dir(e *Entry) error {
	rel := pathutil.Relative(e.Path)
	if err := x.sink.MkdirAll(rel); err != nil {
		return x.fail(e, "create directory", err)
	}
	x.dirs.Add(1)
	if rel != "." {
		x.created = append(x.created, *e)
	}
	return nil
}

// leaf writes a regular file or symlink. mkParent creates its parent
// directories first.
func (x *extraction) leaf(e *Entry, mkParent bool) error {
	rel := pathutil.Relative(e.Path)
	if rel == "." {
		return x.fail(e, "extract", &fs.PathError{Op: "extract", Path: e.Path, Err: fs.ErrInvalid})
	}
	if mkParent {
		if err := x.sink.MkdirParent(rel); err != nil {
			return x.fail(e, "create parent directory", err)
		}
	}

	data, err := x.a.FileData(*e)
	if err != nil {
		x.failed.Add(1)
		x.a.log().Warn("extract failed", "op", "read payload", "path", e.Path, "error", err)
		return fmt.Errorf("%s: %w", e.Path, err)
	}
	defer x.a.ReleaseData(data)

	switch e.Type {
	case TypeSymlink:
		if err := x.sink.Symlink(string(data), rel); err != nil {
			return x.fail(e, "create symlink", err)
		}
		x.symlinks.Add(1)
	default:
		if err := x.sink.WriteFile(rel, data, pathutil.UnpackPerm(e.Perm)); err != nil {
			return x.fail(e, "write file", err)
		}
		x.files.Add(1)
		x.bytes.Add(uint64(len(data)))
	}
	x.a.progress("extracted", "path", e.Path)
	return nil
}

// restoreDirs applies directory permissions in reverse creation order, so
// a read-only parent is locked only after everything inside it.
func (x *extraction) restoreDirs() error {
	var errs []error
	for _, e := range slices.Backward(x.created) {
		rel := pathutil.Relative(e.Path)
		if err := x.sink.Chmod(rel, pathutil.UnpackPerm(e.Perm)); err != nil {
			errs = append(errs, x.fail(&e, "restore permissions", err))
		}
	}
	return errors.Join(errs...)
}

func (x *extraction) fail(e *Entry, op string, err error) error {
	x.failed.Add(1)
	x.a.log().Warn("extract failed", "op", op, "path", e.Path, "error", err)
	return fmt.Errorf("%w: %s %s: %w", ErrFilesystem, op, e.Path, err)
}

func (x *extraction) stats() ExtractStats {
	return ExtractStats{
		Files:    int(x.files.Load()),
		Dirs:     int(x.dirs.Load()),
		Symlinks: int(x.symlinks.Load()),
		Bytes:    x.bytes.Load(),
		Failed:   int(x.failed.Load()),
	}
}
