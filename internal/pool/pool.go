// Package pool provides the goroutine pool behind the parallel-for transport.
package pool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// PanicError reports a task that panicked instead of returning.
type PanicError struct {
	Task  int
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("pool: task %d panicked: %v", e.Task, e.Value)
}

// WorkerPool runs tasks on a fixed set of goroutines.
//
// Each worker owns a queue. ExecuteAll deals tasks round-robin onto the
// queues; a worker whose queue is empty steals from the others, which keeps
// all workers busy when rows near the set take much longer than rows far
// from it.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers    int
	workQueues []chan func()
	done       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool
}

// New creates a pool with the given number of workers. Zero or negative
// means GOMAXPROCS.
func New(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := workers * 4
	if queueSize < 8 {
		queueSize = 8
	}

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	mine := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drain(mine)
			return
		case work := <-mine:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drain(mine)
				return
			case work := <-mine:
				work()
			}
		}
	}
}

func (p *WorkerPool) drain(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(id int) func() {
	for i := range p.workers {
		if i == id {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// ExecuteAll runs every task and returns once all of them have finished.
// A panicking task does not take the pool down; the first panic is returned
// as a *PanicError after the remaining tasks complete.
//
// Once ctx is done, tasks that have not started are skipped and no more are
// queued. Tasks already running are not interrupted. ExecuteAll then returns
// ctx.Err() unless a task panicked.
func (p *WorkerPool) ExecuteAll(ctx context.Context, work []func()) error {
	if len(work) == 0 {
		return nil
	}
	if !p.running.Load() {
		return fmt.Errorf("pool: closed")
	}

	var (
		completion sync.WaitGroup
		firstPanic atomic.Pointer[PanicError]
		skipped    atomic.Bool
	)
	completion.Add(len(work))

enqueue:
	for i, fn := range work {
		task := func() {
			defer completion.Done()
			if ctx.Err() != nil {
				skipped.Store(true)
				return
			}
			defer func() {
				if r := recover(); r != nil {
					firstPanic.CompareAndSwap(nil, &PanicError{Task: i, Value: r})
				}
			}()
			fn()
		}

		select {
		case p.workQueues[i%p.workers] <- task:
		case <-p.done:
			completion.Done()
		case <-ctx.Done():
			skipped.Store(true)
			completion.Add(-(len(work) - i))
			break enqueue
		}
	}

	completion.Wait()
	if pe := firstPanic.Load(); pe != nil {
		return pe
	}
	if skipped.Load() {
		return ctx.Err()
	}
	return nil
}

// Close stops the workers after draining queued work. It is safe to call
// more than once.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of worker goroutines.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool accepts work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
