package kundli

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/meigma/kundli/internal/format"
	"github.com/meigma/kundli/internal/pathutil"
	"github.com/meigma/kundli/internal/source"
)

var (
	errNotDir          = errors.New("not a directory")
	errUnsupportedType = errors.New("unsupported file type")
)

// AddFile adds the regular file or symlink at p, inserting any missing
// parent directories first. A directory is added with AddDirectory. If a
// non-directory entry with the same normalized path exists it is returned
// unchanged.
//
// Symlinks are stored, not followed; the payload is the link target.
func (a *Archive) AddFile(p string) (Entry, error) {
	fsPath := a.fsPath(p)
	info, err := os.Lstat(fsPath)
	if err != nil {
		a.log().Warn("add file failed", "path", p, "error", err)
		return Entry{}, fmt.Errorf("%w: %w", ErrFilesystem, err)
	}
	if info.IsDir() {
		return a.AddDirectory(p)
	}

	name := pathutil.Normalize(p)
	if i := a.index(name, isNonDir); i >= 0 {
		return a.entries[i], nil
	}

	data, err := a.ensureMutable()
	if err != nil {
		return Entry{}, err
	}
	a.addAncestors(name)
	return a.addLeaf(data, name, fsPath, info)
}

// AddDirectory adds the directory at p and everything beneath it. Children
// are visited in lexical order, depth first, with each directory entry
// preceding its contents. Symlinks to directories are stored as symlinks.
//
// A child that cannot be read is logged and skipped; its siblings are still
// added. Re-adding a directory keeps the existing entry and picks up any new
// children.
func (a *Archive) AddDirectory(p string) (Entry, error) {
	fsPath := a.fsPath(p)
	info, err := os.Lstat(fsPath)
	if err != nil {
		a.log().Warn("add directory failed", "path", p, "error", err)
		return Entry{}, fmt.Errorf("%w: %w", ErrFilesystem, err)
	}
	if !info.IsDir() {
		return Entry{}, fmt.Errorf("%w: %w", ErrFilesystem,
			&fs.PathError{Op: "add", Path: p, Err: errNotDir})
	}

	data, err := a.ensureMutable()
	if err != nil {
		return Entry{}, err
	}

	name := pathutil.Normalize(p)
	a.addAncestors(name)
	root := a.addDir(name, fsPath, info)

	type pending struct{ name, fsPath string }
	var stack []pending
	push := func(name, fsPath string) {
		children, err := os.ReadDir(fsPath)
		if err != nil {
			a.log().Warn("skipping unreadable directory", "path", name, "error", err)
			return
		}
		for _, child := range slices.Backward(children) {
			stack = append(stack, pending{
				name:   path.Join(name, child.Name()),
				fsPath: filepath.Join(fsPath, child.Name()),
			})
		}
	}

	push(name, fsPath)
	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		info, err := os.Lstat(next.fsPath)
		if err != nil {
			a.log().Warn("skipping entry", "path", next.name, "error", err)
			continue
		}
		if info.IsDir() {
			a.addDir(next.name, next.fsPath, info)
			push(next.name, next.fsPath)
			continue
		}
		if a.index(next.name, isNonDir) >= 0 {
			continue
		}
		if _, err := a.addLeaf(data, next.name, next.fsPath, info); err != nil {
			a.log().Warn("skipping entry", "path", next.name, "error", err)
		}
	}
	return root, nil
}

// RemoveFile removes the first entry whose path equals the normalized form
// of p. Descendants of a removed directory stay in the table and the
// removed payload bytes stay in the data section.
func (a *Archive) RemoveFile(p string) error {
	name := pathutil.Normalize(p)
	i := a.index(name, nil)
	if i < 0 {
		a.log().Warn("remove: no such entry", "path", name)
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	a.entries = slices.Delete(a.entries, i, i+1)
	a.progress("removed", "path", name)
	return nil
}

// addAncestors inserts directory entries for the parents of name that are
// missing from the table and exist on disk as directories, outermost first.
func (a *Archive) addAncestors(name string) {
	for _, dir := range pathutil.Ancestors(name) {
		if a.index(dir, isDir) >= 0 {
			continue
		}
		fsPath := a.fsPath(filepath.FromSlash(dir))
		info, err := os.Lstat(fsPath)
		if err != nil || !info.IsDir() {
			a.log().Debug("ancestor is not a directory on disk", "path", dir)
			continue
		}
		a.addDir(dir, fsPath, info)
	}
}

// addDir appends a directory entry unless one already exists.
func (a *Archive) addDir(name, fsPath string, info fs.FileInfo) Entry {
	if i := a.index(name, isDir); i >= 0 {
		return a.entries[i]
	}
	e := format.NewEntry(name, TypeDirectory, permOf(fsPath, info), 0, 0)
	a.entries = append(a.entries, e)
	a.progress("added", "path", name, "type", e.Type)
	return e
}

// addLeaf appends a regular file or symlink and its payload.
func (a *Archive) addLeaf(data *source.Memory, name, fsPath string, info fs.FileInfo) (Entry, error) {
	perm := permOf(fsPath, info)

	var e Entry
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		target, err := os.Readlink(fsPath)
		if err != nil {
			return Entry{}, fmt.Errorf("%w: %w", ErrFilesystem, err)
		}
		a.mu.Lock()
		off := data.Append([]byte(target))
		a.mu.Unlock()
		e = format.NewEntry(name, TypeSymlink, perm, off, uint64(len(target)))

	case info.Mode().IsRegular():
		f, err := os.Open(fsPath)
		if err != nil {
			return Entry{}, fmt.Errorf("%w: %w", ErrFilesystem, err)
		}
		defer f.Close()

		a.mu.Lock()
		off, n, err := data.AppendFrom(f, readChunkSize)
		a.mu.Unlock()
		if err != nil {
			return Entry{}, fmt.Errorf("%w: read %s: %w", ErrIO, fsPath, err)
		}
		e = format.NewEntry(name, TypeRegular, perm, off, n)

	default:
		return Entry{}, fmt.Errorf("%w: %w", ErrFilesystem,
			&fs.PathError{Op: "add", Path: fsPath, Err: errUnsupportedType})
	}

	a.entries = append(a.entries, e)
	a.progress("added", "path", name, "type", e.Type, "size", e.PayloadLen)
	return e, nil
}

// permOf reads permissions from the object at fsPath, following symlinks,
// and falls back to info when the target cannot be resolved.
func permOf(fsPath string, info fs.FileInfo) [3]uint8 {
	if st, err := os.Stat(fsPath); err == nil {
		return pathutil.PackPerm(st.Mode())
	}
	return pathutil.PackPerm(info.Mode())
}

// ensureMutable returns the archive's in-memory data section, first
// materializing and copying a lazily loaded one.
func (a *Archive) ensureMutable() (*source.Memory, error) {
	a.mu.RLock()
	m, ok := a.src.(*source.Memory)
	ready := ok && a.verified
	closed := a.src == nil
	a.mu.RUnlock()

	if closed {
		return nil, fmt.Errorf("%w: archive is closed", ErrConfiguration)
	}
	if ready {
		return m, nil
	}
	if err := a.Materialize(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if m, ok := a.src.(*source.Memory); ok {
		return m, nil
	}
	b, _ := source.Bytes(a.src)
	m = source.NewMemory(bytes.Clone(b))
	if err := a.src.Close(); err != nil {
		a.log().Warn("release payload source", "source", a.src.Kind(), "error", err)
	}
	a.src = m
	return m, nil
}
