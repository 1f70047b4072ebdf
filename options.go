package kundli

import (
	"log/slog"
	"time"

	"github.com/meigma/kundli/internal/bufpool"
)

// DefaultMapThreshold is the data section size at which Load memory-maps
// the section instead of reading payloads from the file.
const DefaultMapThreshold = 100 << 20

// readChunkSize bounds each read when streaming a file into the archive.
const readChunkSize = 1 << 20

// Option configures an Archive.
type Option func(*config)

type config struct {
	logger         *slog.Logger
	verbose        bool
	threads        int
	mapThreshold   int64
	baseDir        string
	executor       *Executor
	bufferPoolSize int
	clock          func() time.Time
}

func newConfig(opts []Option) config {
	cfg := config{
		mapThreshold:   DefaultMapThreshold,
		bufferPoolSize: bufpool.DefaultCapacity,
		clock:          time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithLogger sets the logger for diagnostics.
// By default, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithVerbose enables progress messages. Warnings are logged regardless.
func WithVerbose(verbose bool) Option {
	return func(c *config) {
		c.verbose = verbose
	}
}

// WithThreads sets the default worker count for parallel operations.
// Zero uses GOMAXPROCS. Ignored when WithExecutor is given.
func WithThreads(n int) Option {
	return func(c *config) {
		c.threads = n
	}
}

// WithMapThreshold sets the data section size at which Load memory-maps
// the section. Zero or negative disables mapping.
func WithMapThreshold(n int64) Option {
	return func(c *config) {
		c.mapThreshold = n
	}
}

// WithBaseDir resolves relative paths passed to AddFile and AddDirectory
// against dir. Stored entry paths are unaffected.
func WithBaseDir(dir string) Option {
	return func(c *config) {
		c.baseDir = dir
	}
}

// WithExecutor runs parallel work on e instead of an executor owned by the
// archive. The archive does not close a shared executor.
func WithExecutor(e *Executor) Option {
	return func(c *config) {
		c.executor = e
	}
}

// WithBufferPoolSize sets how many large read buffers the archive's own
// executor keeps for reuse.
func WithBufferPoolSize(n int) Option {
	return func(c *config) {
		c.bufferPoolSize = n
	}
}

// WithClock sets the source of the header creation timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.clock = now
		}
	}
}
