package batch

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path"
	"sync"
)

// FileSink writes extracted entries beneath a destination directory.
//
// All paths are slash-separated and relative to the destination. Access is
// confined with os.Root, so entries cannot escape through ".." or symlinks.
// Files are written to a temporary name in the same directory and renamed
// on Commit so a partially written file never appears at the final path.
type FileSink struct {
	root    *os.Root
	dirMode fs.FileMode

	// permMu serializes permission changes.
	permMu sync.Mutex
}

// FileSinkOption configures a FileSink.
type FileSinkOption func(*FileSink)

// WithDirMode sets the mode used when creating intermediate directories.
// The default is 0o755.
func WithDirMode(mode fs.FileMode) FileSinkOption {
	return func(s *FileSink) {
		s.dirMode = mode.Perm()
	}
}

// OpenFileSink creates destDir if needed and opens it as the sink root.
func OpenFileSink(destDir string, opts ...FileSinkOption) (*FileSink, error) {
	s := &FileSink{dirMode: 0o755}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(destDir, s.dirMode); err != nil {
		return nil, err
	}
	root, err := os.OpenRoot(destDir)
	if err != nil {
		return nil, err
	}
	s.root = root
	return s, nil
}

// Close releases the root handle.
func (s *FileSink) Close() error {
	return s.root.Close()
}

// Name returns the destination directory.
func (s *FileSink) Name() string {
	return s.root.Name()
}

// MkdirAll creates name and any missing parents.
func (s *FileSink) MkdirAll(name string) error {
	if name == "." || name == "" {
		return nil
	}
	return s.root.MkdirAll(name, s.dirMode)
}

// MkdirParent creates the parent directories of name.
func (s *FileSink) MkdirParent(name string) error {
	return s.MkdirAll(path.Dir(name))
}

// Writer returns a Committer that writes to a temporary file next to name.
func (s *FileSink) Writer(name string) (*Committer, error) {
	dir, base := path.Split(name)
	for range 10 {
		tmp := fmt.Sprintf("%s.%s.kundli-%08x", dir, base, rand.Uint32())
		f, err := s.root.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &Committer{sink: s, name: name, tmp: tmp, f: f}, nil
	}
	return nil, fmt.Errorf("create temp file for %s: %w", name, fs.ErrExist)
}

// WriteFile writes data to name atomically and applies mode.
func (s *FileSink) WriteFile(name string, data []byte, mode fs.FileMode) error {
	w, err := s.Writer(name)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Discard() //nolint:errcheck // best-effort cleanup
		return err
	}
	return w.Commit(mode)
}

// Symlink creates name pointing at target, replacing an existing
// non-directory at name.
func (s *FileSink) Symlink(target, name string) error {
	if fi, err := s.root.Lstat(name); err == nil && !fi.IsDir() {
		if err := s.root.Remove(name); err != nil {
			return err
		}
	}
	return s.root.Symlink(target, name)
}

// Chmod sets the permission bits of name. Calls are serialized.
func (s *FileSink) Chmod(name string, mode fs.FileMode) error {
	s.permMu.Lock()
	defer s.permMu.Unlock()
	return s.root.Chmod(name, mode.Perm())
}

// Committer writes to a temp file and renames it into place on Commit.
type Committer struct {
	sink *FileSink
	name string
	tmp  string
	f    *os.File
}

// Write implements io.Writer.
func (c *Committer) Write(p []byte) (int, error) {
	return c.f.Write(p)
}

// Commit closes the temp file, applies mode, and renames it to the final
// name.
func (c *Committer) Commit(mode fs.FileMode) error {
	if err := c.f.Close(); err != nil {
		_ = c.sink.root.Remove(c.tmp) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := c.sink.Chmod(c.tmp, mode); err != nil {
		_ = c.sink.root.Remove(c.tmp) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("chmod: %w", err)
	}
	if err := c.sink.root.Rename(c.tmp, c.name); err != nil {
		_ = c.sink.root.Remove(c.tmp) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", c.name, err)
	}
	return nil
}

// Discard closes and removes the temp file.
func (c *Committer) Discard() error {
	_ = c.f.Close() //nolint:errcheck // we're cleaning up
	return c.sink.root.Remove(c.tmp)
}
