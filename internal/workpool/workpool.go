// Package workpool implements a fixed-size pool of worker goroutines that
// consume a shared FIFO queue of tasks.
//
// The pool is resizable: Resize stops the current workers once the queue is
// drained and starts a fresh set, so queued work is never discarded.
package workpool

import (
	"container/list"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrStopped is returned when submitting to a closed pool.
var ErrStopped = errors.New("workpool: pool stopped")

// Task is a unit of work.
type Task func() error

// Submitter queues tasks for execution. *Pool implements it.
type Submitter interface {
	Submit(task Task) (*Future, error)
}

// Future is the pending result of a submitted task.
type Future struct {
	done chan struct{}
	err  error
}

// Wait blocks until the task has run and returns its error.
func (f *Future) Wait() error {
	<-f.done
	return f.err
}

// Done is closed when the task has run.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

type job struct {
	task   Task
	future *Future
}

// Pool is a set of workers consuming a FIFO queue.
type Pool struct {
	monitor *sync.Cond
	queue   *list.List

	// stopping tells the current workers to exit once the queue is empty.
	stopping bool
	closed   bool
	size     int
	workers  sync.WaitGroup

	// lifecycle serializes Resize and Close.
	lifecycle sync.Mutex
}

// New starts a pool with n workers. n < 1 uses GOMAXPROCS.
func New(n int) *Pool {
	p := &Pool{
		monitor: sync.NewCond(&sync.Mutex{}),
		queue:   list.New(),
	}
	p.start(normalize(n))
	return p
}

func normalize(n int) int {
	if n < 1 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// start launches n workers. The caller must own the lifecycle.
func (p *Pool) start(n int) {
	p.monitor.L.Lock()
	p.stopping = false
	p.size = n
	p.monitor.L.Unlock()

	p.workers.Add(n)
	for range n {
		go p.work()
	}
}

func (p *Pool) work() {
	defer p.workers.Done()
	for {
		j, ok := p.dequeue()
		if !ok {
			return
		}
		j.future.err = run(j.task)
		close(j.future.done)
	}
}

func (p *Pool) dequeue() (job, bool) {
	p.monitor.L.Lock()
	defer p.monitor.L.Unlock()

	for p.queue.Len() == 0 && !p.stopping {
		p.monitor.Wait()
	}

	// stopping and drained
	if p.queue.Len() == 0 {
		return job{}, false
	}

	front := p.queue.Front()
	p.queue.Remove(front)
	return front.Value.(job), true
}

func run(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workpool: task panicked: %v", r)
		}
	}()
	return task()
}

// Submit queues task and returns its future. It fails with ErrStopped once
// the pool is closed.
func (p *Pool) Submit(task Task) (*Future, error) {
	p.monitor.L.Lock()
	defer p.monitor.L.Unlock()

	if p.closed {
		return nil, ErrStopped
	}

	f := &Future{done: make(chan struct{})}
	p.queue.PushBack(job{task: task, future: f})
	p.monitor.Signal()
	return f, nil
}

// Resize replaces the workers with a fresh set of n. The current workers
// finish the queued work before exiting. n < 1 uses GOMAXPROCS.
func (p *Pool) Resize(n int) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if !p.stop(false) {
		return ErrStopped
	}
	p.workers.Wait()
	p.start(normalize(n))
	return nil
}

// Close stops accepting work, waits for queued tasks to finish, and joins
// the workers. It is safe to call more than once.
func (p *Pool) Close() error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.stop(true)
	p.workers.Wait()
	return nil
}

// stop signals the workers to exit. It reports false if the pool was
// already closed.
func (p *Pool) stop(final bool) bool {
	p.monitor.L.Lock()
	defer p.monitor.L.Unlock()

	if p.closed {
		return false
	}
	p.closed = final
	if final {
		p.size = 0
	}
	p.stopping = true
	p.monitor.Broadcast()
	return true
}

// Size returns the current number of workers.
func (p *Pool) Size() int {
	p.monitor.L.Lock()
	defer p.monitor.L.Unlock()
	return p.size
}

// Pending returns the number of queued tasks not yet picked up.
func (p *Pool) Pending() int {
	p.monitor.L.Lock()
	defer p.monitor.L.Unlock()
	return p.queue.Len()
}

// WaitAll waits for every future and returns the first error observed.
func WaitAll(futures []*Future) error {
	var g errgroup.Group
	for _, f := range futures {
		g.Go(f.Wait)
	}
	return g.Wait()
}
