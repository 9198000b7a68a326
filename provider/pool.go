package provider

import (
	"sync"
)

// Pool is a fixed set of worker goroutines running submitted tasks from a
// bounded queue.  A Pool may be shared by many Controllers
type Pool struct {
	// queue of pending tasks
	tasks chan func()
	// size is the number of workers
	size int
	// mu guards closed against concurrent Submit
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	close  sync.Once
}

// DefaultPoolSize is the number of workers used when a Controller creates
// its own pool
const DefaultPoolSize = 2

// NewPool creates a pool of size workers with a queue holding up to queue
// pending tasks
func NewPool(size, queue int) *Pool {

	if size < 1 {
		size = 1
	}

	if queue < 0 {
		queue = 0
	}

	p := &Pool{
		tasks: make(chan func(), queue),
		size:  size,
	}

	p.wg.Add(size)

	for i := 0; i < size; i++ {
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for task := range p.tasks {
		task()
	}
}

// Size returns the number of workers
func (p *Pool) Size() int {
	return p.size
}

// Submit queues task for execution.  It never blocks, returning ErrPoolFull
// when the queue has no room and ErrPoolClosed after Close
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrPoolFull
	}
}

// Close stops accepting tasks and waits for queued ones to finish
func (p *Pool) Close() {
	p.close.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()

		p.wg.Wait()
	})
}
