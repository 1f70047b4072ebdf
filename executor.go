package kundli

import (
	"fmt"
	"runtime"

	"github.com/meigma/kundli/internal/bufpool"
	"github.com/meigma/kundli/internal/workpool"
)

// Executor owns the worker pool and the buffer pool used by parallel
// operations. Each Archive creates its own unless one is shared with
// WithExecutor. An Executor is safe for concurrent use.
type Executor struct {
	pool    *workpool.Pool
	buffers *bufpool.Pool
}

// NewExecutor starts an executor with the given number of workers and a
// buffer pool holding up to bufferPoolSize buffers. threads < 1 uses
// GOMAXPROCS; bufferPoolSize < 1 uses the default.
func NewExecutor(threads, bufferPoolSize int) *Executor {
	return &Executor{
		pool:    workpool.New(resolveThreads(threads)),
		buffers: bufpool.New(bufferPoolSize),
	}
}

// Threads returns the current worker count.
func (e *Executor) Threads() int {
	return e.pool.Size()
}

// Resize replaces the workers with n fresh ones. Work already queued still
// runs. n < 1 uses GOMAXPROCS.
func (e *Executor) Resize(n int) error {
	if err := e.pool.Resize(resolveThreads(n)); err != nil {
		return fmt.Errorf("%w: resize executor: %w", ErrConfiguration, err)
	}
	return nil
}

// Close waits for queued work, stops the workers, and drops pooled
// buffers.
func (e *Executor) Close() error {
	err := e.pool.Close()
	e.buffers.Reset()
	return err
}

// buffer returns a length-n buffer, pooled when n exceeds the threshold.
func (e *Executor) buffer(n int) []byte {
	if n > bufpool.Threshold {
		return e.buffers.Get(n)
	}
	return make([]byte, n)
}

// release returns a buffer obtained from buffer.
func (e *Executor) release(b []byte) {
	if cap(b) > bufpool.Threshold {
		e.buffers.Put(b)
	}
}

func resolveThreads(n int) int {
	if n < 1 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

func checkThreads(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: thread count %d", ErrConfiguration, n)
	}
	return nil
}
