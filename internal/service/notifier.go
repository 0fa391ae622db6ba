package service

import (
	"context"
	"log/slog"
	"sync"
)

// notifier runs posted callbacks one by one on its own goroutine.
// The queue is unbounded so posting never blocks, even when called with job
// locks held or from inside a callback.
type notifier struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
	logger *slog.Logger
}

func newNotifier(logger *slog.Logger) *notifier {
	n := &notifier{
		done:   make(chan struct{}),
		logger: logger,
	}
	n.cond = sync.NewCond(&n.mu)
	go n.run()
	return n
}

// post queues fn. Callbacks posted after close are dropped.
func (n *notifier) post(fn func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.queue = append(n.queue, fn)
	n.cond.Signal()
}

func (n *notifier) run() {
	defer close(n.done)

	for {
		n.mu.Lock()
		for len(n.queue) == 0 && !n.closed {
			n.cond.Wait()
		}
		if len(n.queue) == 0 {
			n.mu.Unlock()
			return
		}
		batch := n.queue
		n.queue = nil
		n.mu.Unlock()

		for _, fn := range batch {
			n.call(fn)
		}
	}
}

func (n *notifier) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("progress reporter panicked", "panic", r)
		}
	}()
	fn()
}

// close stops accepting callbacks and waits until the queued ones have run.
func (n *notifier) close(ctx context.Context) error {
	n.mu.Lock()
	n.closed = true
	n.cond.Broadcast()
	n.mu.Unlock()

	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
