package conversation

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("conversation store is closed")

type mutation struct {
	ctx    context.Context
	name   string
	apply  func(ctx context.Context) error
	result chan error
}

// mutationQueue runs mutations one at a time in submission order, so their
// commits land in the order the calls were made regardless of when backend
// responses arrive.
type mutationQueue struct {
	mu      sync.Mutex
	queue   chan mutation
	closed  bool
	stopped chan struct{}
	onStart func(name string)
}

func newMutationQueue(size int, onStart func(name string)) *mutationQueue {
	if size <= 0 {
		size = 1
	}
	q := &mutationQueue{
		queue:   make(chan mutation, size),
		stopped: make(chan struct{}),
		onStart: onStart,
	}
	go q.run()
	return q
}

// Do submits apply and waits for it to finish. A mutation whose context is
// done before it starts is skipped and reports the context error.
func (q *mutationQueue) Do(ctx context.Context, name string, apply func(ctx context.Context) error) error {
	m := mutation{ctx: ctx, name: name, apply: apply, result: make(chan error, 1)}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	// Holding the lock while blocked on a full queue keeps submission order
	// equal to call order.
	select {
	case q.queue <- m:
	case <-ctx.Done():
		q.mu.Unlock()
		return ctx.Err()
	}
	q.mu.Unlock()
	return <-m.result
}

func (q *mutationQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.queue)
	q.mu.Unlock()
	<-q.stopped
}

func (q *mutationQueue) run() {
	defer close(q.stopped)
	for m := range q.queue {
		if err := m.ctx.Err(); err != nil {
			m.result <- err
			continue
		}
		if q.onStart != nil {
			q.onStart(m.name)
		}
		m.result <- m.apply(m.ctx)
	}
}
