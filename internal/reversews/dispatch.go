// ABOUTME: Per-connection ordered dispatcher backed by an unbounded FIFO
// ABOUTME: The reader never waits on handlers; handlers see events in arrival order

package reversews

import (
	"sync"

	"github.com/eapache/queue"
)

// dispatcher runs queued jobs one at a time on its own goroutine.
type dispatcher struct {
	mu     sync.Mutex
	jobs   *queue.Queue // func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		jobs: queue.New(),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

// enqueue adds a job. Jobs added after close are dropped.
func (d *dispatcher) enqueue(job func()) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.jobs.Add(job)
	d.mu.Unlock()
	d.signal()
	return true
}

// close lets the dispatcher drain what is queued and exit.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.signal()
}

// pending returns the number of queued jobs.
func (d *dispatcher) pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.jobs.Length()
}

func (d *dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for d.jobs.Length() == 0 {
			if d.closed {
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			<-d.wake
			d.mu.Lock()
		}
		job := d.jobs.Remove().(func())
		d.mu.Unlock()

		job()
	}
}
