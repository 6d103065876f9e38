package tasks

import (
	"log"
	"sync"
)

type task struct {
	name string
	fn   func() error
}

// Queue runs small background jobs (file deletions, notifications) on a
// fixed pool of workers. A panicking job is logged, never fatal.
type Queue struct {
	tasks chan task
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewQueue(workers, backlog int) *Queue {
	if workers < 1 {
		workers = 1
	}
	q := &Queue{tasks: make(chan task, backlog)}
	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker()
	}
	return q
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for t := range q.tasks {
		q.run(t)
	}
}

func (q *Queue) run(t task) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[tasks][%s] panic: %v", t.name, r)
		}
	}()
	if err := t.fn(); err != nil {
		log.Printf("[tasks][%s] %v", t.name, err)
	}
}

// Enqueue schedules fn; when the backlog is full the job runs inline so
// it is never lost.
func (q *Queue) Enqueue(name string, fn func() error) {
	q.mu.Lock()
	if !q.closed {
		select {
		case q.tasks <- task{name: name, fn: fn}:
			q.mu.Unlock()
			return
		default:
		}
	}
	q.mu.Unlock()
	q.run(task{name: name, fn: fn})
}

// Stop drains pending jobs and waits for the workers to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.tasks)
	q.wg.Wait()
}
