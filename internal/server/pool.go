// Package server runs units of work on a fixed set of worker goroutines fed
// from a shared FIFO queue via the Pool type.
package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Pool executes submitted tasks on a fixed number of long-lived workers.
// At most Size tasks run at once; the rest wait in FIFO order. The queue is
// unbounded unless a limit is set with WithQueueLimit.
type Pool struct {
	size       int
	queueLimit int
	submit     chan Task
	tasks      chan Task
	pending    atomic.Int64
	log        *logrus.Entry
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// PoolOption customizes a Pool at construction time.
type PoolOption func(*Pool)

// WithQueueLimit caps the number of tasks waiting for a worker. Submit
// returns ErrQueueFull once the cap is reached. Zero means unbounded.
func WithQueueLimit(limit int) PoolOption {
	return func(p *Pool) {
		if limit > 0 {
			p.queueLimit = limit
		}
	}
}

// WithPoolLogger sets the logger used to report contained task panics.
func WithPoolLogger(entry *logrus.Entry) PoolOption {
	return func(p *Pool) {
		if entry != nil {
			p.log = entry
		}
	}
}

// NewPool creates a pool and starts exactly size workers plus the goroutine
// that owns the queue. The returned Pool is ready to accept tasks.
func NewPool(size int, opts ...PoolOption) (*Pool, error) {
	if size < 1 {
		return nil, ErrInvalidPoolSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		size:   size,
		submit: make(chan Task),
		tasks:  make(chan Task),
		log:    logrus.NewEntry(logrus.StandardLogger()),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker(i)
	}
	go p.dispatch()

	return p, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Pending returns the number of submitted tasks no worker has started yet.
func (p *Pool) Pending() int {
	return int(p.pending.Load())
}

// Submit enqueues a task for execution by some idle worker. It returns as
// soon as the task is queued and never waits for a worker to become free.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return nil
	}

	if n := p.pending.Add(1); p.queueLimit > 0 && n > int64(p.queueLimit) {
		p.pending.Add(-1)
		return ErrQueueFull
	}

	select {
	case <-p.ctx.Done():
		p.pending.Add(-1)
		return ErrPoolClosed
	case p.submit <- task:
		return nil
	}
}

// dispatch owns the queue. It appends submitted tasks and hands the oldest
// one to whichever worker is ready first.
func (p *Pool) dispatch() {
	defer close(p.done)

	var queue []Task
	for {
		var out chan<- Task
		var next Task
		if len(queue) > 0 {
			out = p.tasks
			next = queue[0]
		}

		select {
		case <-p.ctx.Done():
			for _, task := range queue {
				p.tasks <- task
			}
			close(p.tasks)
			return

		case task := <-p.submit:
			queue = append(queue, task)

		case out <- next:
			queue[0] = nil
			queue = queue[1:]
		}
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for task := range p.tasks {
		p.pending.Add(-1)
		p.run(id, task)
	}
}

// run executes one task. A panic is contained here so the worker survives.
func (p *Pool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("worker", id).Errorf("Recovered from panic in task: %v", r)
		}
	}()

	task()
}

// Shutdown stops accepting tasks, lets queued and in-flight tasks finish, and
// waits for all workers to exit. It returns context.DeadlineExceeded if that
// takes longer than timeout; the remaining tasks keep running in the background.
func (p *Pool) Shutdown(timeout time.Duration) error {
	p.cancel()

	finished := make(chan struct{})
	go func() {
		<-p.done
		p.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		p.log.Debug("Worker pool shutdown completed")
		return nil
	case <-time.After(timeout):
		p.log.Warn("Worker pool shutdown timeout reached, some tasks may still be running")
		return context.DeadlineExceeded
	}
}
