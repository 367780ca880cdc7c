package driver

import (
	"context"
	"sync"
)

type job struct {
	work func(ctx context.Context) error
	then func(err error)
}

// worker runs store work one job at a time, in submission order, so writes issued by the
// loop land in the order they were made. Submission never blocks.
type worker struct {
	mu     sync.Mutex
	queue  []job
	wake   chan struct{}
	post   func(func())
	closed bool
}

func newWorker(post func(func())) *worker {
	return &worker{wake: make(chan struct{}, 1), post: post}
}

func (w *worker) submit(j job) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.queue = append(w.queue, j)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// run drains the queue until ctx is cancelled. Jobs still queued at shutdown are dropped.
func (w *worker) run(ctx context.Context) {
	for {
		for {
			j, ok := w.next()
			if !ok {
				break
			}
			err := j.work(ctx)
			if j.then != nil {
				w.post(func() { j.then(err) })
			}
		}

		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.closed = true
			w.mu.Unlock()
			return
		case <-w.wake:
		}
	}
}

func (w *worker) next() (job, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return job{}, false
	}
	j := w.queue[0]
	w.queue = w.queue[1:]
	return j, true
}
