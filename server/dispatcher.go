package server

import (
	"sync"

	"github.com/eapache/queue"
)

// Dispatcher runs completed requests off the readiness loop. Submit must
// never block on handler latency.
type Dispatcher interface {
	Submit(task func())
	// Close stops accepting tasks and waits for queued ones to finish.
	Close()
}

// GoDispatcher runs every task on its own goroutine.
type GoDispatcher struct {
	wg sync.WaitGroup
}

func (d *GoDispatcher) Submit(task func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		task()
	}()
}

func (d *GoDispatcher) Close() { d.wg.Wait() }

// PoolDispatcher runs tasks on a fixed set of workers fed from an unbounded
// FIFO backlog.
type PoolDispatcher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	backlog *queue.Queue
	closed  bool
	wg      sync.WaitGroup
}

// NewPoolDispatcher starts n workers.
func NewPoolDispatcher(n int) *PoolDispatcher {
	if n < 1 {
		n = 1
	}
	d := &PoolDispatcher{backlog: queue.New()}
	d.cond = sync.NewCond(&d.mu)
	d.wg.Add(n)
	for i := 0; i < n; i++ {
		go d.work()
	}
	return d
}

// Submit queues task. Tasks submitted after Close are run inline.
func (d *PoolDispatcher) Submit(task func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		task()
		return
	}
	d.backlog.Add(task)
	d.mu.Unlock()
	d.cond.Signal()
}

// Backlog returns the number of tasks waiting for a worker.
func (d *PoolDispatcher) Backlog() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.backlog.Length()
}

func (d *PoolDispatcher) work() {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		for d.backlog.Length() == 0 && !d.closed {
			d.cond.Wait()
		}
		if d.backlog.Length() == 0 {
			d.mu.Unlock()
			return
		}
		task := d.backlog.Remove().(func())
		d.mu.Unlock()
		task()
	}
}

func (d *PoolDispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cond.Broadcast()
	d.wg.Wait()
}

func newDispatcher(maxWorkers int) Dispatcher {
	if maxWorkers > 0 {
		return NewPoolDispatcher(maxWorkers)
	}
	return &GoDispatcher{}
}
