package kundli

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/meigma/kundli/internal/format"
	"github.com/meigma/kundli/internal/pathutil"
	"github.com/meigma/kundli/internal/source"
)

// Archive is an in-memory view of a kundli archive.
//
// The file table is always held in memory. The data section is held in
// exactly one payload source: an owned buffer (built or fully loaded
// archives), the archive file read on demand, or a memory mapping of it.
type Archive struct {
	cfg     config
	logger  *slog.Logger
	verbose atomic.Bool
	threads int

	exec     *Executor
	ownsExec bool

	// path is the backing file of a loaded archive.
	path    string
	entries []Entry

	// mu guards header, src, and verified, which Materialize and Compress
	// replace while reads may be in flight.
	mu       sync.RWMutex
	header   format.Header
	src      source.Source
	verified bool

	materializeGroup singleflight.Group
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// progress logs msg at info level when verbose output is enabled.
func (a *Archive) progress(msg string, args ...any) {
	if a.verbose.Load() {
		a.log().Info(msg, args...)
	}
}

// Create returns an empty archive with a current-version header.
func Create(opts ...Option) *Archive {
	cfg := newConfig(opts)
	hdr := format.NewHeader(uint64(cfg.clock().Unix())) //nolint:gosec // clock is after the epoch
	return newArchive(cfg, hdr, nil, source.NewMemory(nil), true)
}

func newArchive(cfg config, hdr format.Header, entries []Entry, src source.Source, verified bool) *Archive {
	a := &Archive{
		cfg:      cfg,
		logger:   cfg.logger,
		threads:  cfg.threads,
		entries:  entries,
		header:   hdr,
		src:      src,
		verified: verified,
	}
	a.verbose.Store(cfg.verbose)
	if cfg.executor != nil {
		a.exec = cfg.executor
	} else {
		a.exec = NewExecutor(cfg.threads, cfg.bufferPoolSize)
		a.ownsExec = true
	}
	return a
}

// Close releases the payload source and, unless shared, the executor.
// Operations on a closed archive fail with ErrConfiguration.
func (a *Archive) Close() error {
	a.mu.Lock()
	var err error
	if a.src != nil {
		err = a.src.Close()
		a.src = nil
	}
	a.mu.Unlock()

	if a.ownsExec {
		err = errors.Join(err, a.exec.Close())
		a.ownsExec = false
	}
	return err
}

// checkOpen fails with ErrConfiguration once the archive is closed.
func (a *Archive) checkOpen() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.src == nil {
		return fmt.Errorf("%w: archive is closed", ErrConfiguration)
	}
	return nil
}

// SetVerbose toggles progress messages.
func (a *Archive) SetVerbose(verbose bool) {
	a.verbose.Store(verbose)
}

// SetThreadCount sets the default worker count for parallel operations and
// resizes the executor to match. Zero uses GOMAXPROCS. A shared executor is
// resized for every archive using it.
func (a *Archive) SetThreadCount(n int) error {
	if err := checkThreads(n); err != nil {
		return err
	}
	if err := a.checkOpen(); err != nil {
		return err
	}
	if err := a.exec.Resize(n); err != nil {
		return err
	}
	a.threads = n
	a.progress("thread count set", "threads", a.exec.Threads())
	return nil
}

// threadCount resolves a requested worker count: zero falls back to the
// archive default and then GOMAXPROCS.
func (a *Archive) threadCount(requested int) (int, error) {
	if err := checkThreads(requested); err != nil {
		return 0, err
	}
	if err := a.checkOpen(); err != nil {
		return 0, err
	}
	if requested == 0 {
		requested = a.threads
	}
	return resolveThreads(requested), nil
}

// Header returns a copy of the archive header. For built archives the
// checksum is filled in by Compress.
func (a *Archive) Header() Header {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.header
}

// Len returns the number of entries.
func (a *Archive) Len() int {
	return len(a.entries)
}

// Entries returns a copy of the file table in order.
func (a *Archive) Entries() []Entry {
	return slices.Clone(a.entries)
}

// Lookup returns the first entry whose path equals the normalized form of
// p.
func (a *Archive) Lookup(p string) (Entry, bool) {
	i := a.index(pathutil.Normalize(p), nil)
	if i < 0 {
		return Entry{}, false
	}
	return a.entries[i], true
}

// index returns the position of the first entry named name that satisfies
// match, or -1. A nil match accepts any type.
func (a *Archive) index(name string, match func(*Entry) bool) int {
	for i := range a.entries {
		e := &a.entries[i]
		if e.Path == name && (match == nil || match(e)) {
			return i
		}
	}
	return -1
}

// fsPath maps a caller-supplied path to the filesystem, resolving it
// against the base directory when relative.
func (a *Archive) fsPath(p string) string {
	if a.cfg.baseDir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(a.cfg.baseDir, p)
}

// withSource runs fn with the current payload source. The source is not
// replaced or closed while fn runs.
func (a *Archive) withSource(fn func(src source.Source) error) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.src == nil {
		return fmt.Errorf("%w: archive is closed", ErrConfiguration)
	}
	return fn(a.src)
}
