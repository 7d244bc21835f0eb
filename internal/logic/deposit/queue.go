package deposit

import (
	"sync"

	"github.com/zeromicro/go-zero/core/threading"
)

// keyedQueue runs tasks in submission order per key. Each busy key has one
// worker goroutine; different keys run in parallel.
type keyedQueue struct {
	mu     sync.Mutex
	queues map[string][]func()
	wg     sync.WaitGroup
}

func newKeyedQueue() *keyedQueue {
	return &keyedQueue{queues: make(map[string][]func())}
}

// Submit never blocks on the task itself.
func (q *keyedQueue) Submit(key string, task func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	tasks, busy := q.queues[key]
	q.queues[key] = append(tasks, task)
	if busy {
		return
	}
	q.wg.Add(1)
	threading.GoSafe(func() {
		defer q.wg.Done()
		q.drain(key)
	})
}

func (q *keyedQueue) drain(key string) {
	for {
		q.mu.Lock()
		tasks := q.queues[key]
		if len(tasks) == 0 {
			delete(q.queues, key)
			q.mu.Unlock()
			return
		}
		task := tasks[0]
		tasks[0] = nil
		q.queues[key] = tasks[1:]
		q.mu.Unlock()

		threading.RunSafe(task)
	}
}

// Wait blocks until every submitted task has run.
func (q *keyedQueue) Wait() {
	q.wg.Wait()
}
