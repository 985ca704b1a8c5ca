package sftp

import (
	"context"
	"runtime/debug"
	"sync"
)

// PathQueue serializes tasks per path.
//
// At most one task runs for a given path at a time and tasks for the same
// path start in the order Enqueue was called. Tasks on different paths never
// wait on each other.
//
// Thread safety: all methods are safe for concurrent use.
type PathQueue struct {
	mu      sync.Mutex
	entries map[string]*queueEntry
}

type queueEntry struct {
	// waiters are closed, in order, to hand the path to the next task.
	waiters []chan struct{}
}

// NewPathQueue creates an empty queue.
func NewPathQueue() *PathQueue {
	return &PathQueue{entries: make(map[string]*queueEntry)}
}

// Enqueue runs task once every earlier task for path has finished. A panic
// in task is recovered and returned as *PanicError; the next task for path
// is released either way. If ctx is cancelled before task starts, task is
// never run and ctx.Err() is returned.
func (q *PathQueue) Enqueue(ctx context.Context, path string, task func() error) (err error) {
	if err := q.acquire(ctx, path); err != nil {
		return err
	}
	defer q.release(path)

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	return task()
}

// Len returns the number of paths with a running task.
func (q *PathQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *PathQueue) acquire(ctx context.Context, path string) error {
	q.mu.Lock()
	e, busy := q.entries[path]
	if !busy {
		q.entries[path] = &queueEntry{}
		q.mu.Unlock()
		return nil
	}

	turn := make(chan struct{})
	e.waiters = append(e.waiters, turn)
	q.mu.Unlock()

	select {
	case <-turn:
		return nil
	case <-ctx.Done():
	}

	q.mu.Lock()
	for i, w := range e.waiters {
		if w == turn {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			q.mu.Unlock()
			return ctx.Err()
		}
	}
	q.mu.Unlock()

	// The turn was handed over while ctx was being cancelled; pass it on.
	q.release(path)
	return ctx.Err()
}

func (q *PathQueue) release(path string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[path]
	if !ok {
		return
	}
	if len(e.waiters) == 0 {
		delete(q.entries, path)
		return
	}

	next := e.waiters[0]
	e.waiters = e.waiters[1:]
	close(next)
}
