// Package queue serializes outbound provider calls. Some vendors corrupt or
// rate-limit concurrent requests, so every call to one provider class runs
// through a process-wide FIFO with a single in-flight call and a
// configurable inter-request delay.
package queue

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultDelay is the pause between consecutive calls of one provider
// class. Zero disables the pause.
const DefaultDelay = 100 * time.Millisecond

type result struct {
	data any
	err  error
}

type job struct {
	ctx  context.Context
	fn   func() (any, error)
	done chan result
}

// Queue is the FIFO for one provider class. Callers enqueue a thunk and
// block until their turn completes.
type Queue struct {
	name  string
	delay time.Duration

	mu      sync.Mutex
	jobs    *list.List
	running bool
}

func newQueue(name string, delay time.Duration) *Queue {
	return &Queue{
		name:  name,
		delay: delay,
		jobs:  list.New(),
	}
}

// Do enqueues fn and waits for its result. Jobs execute strictly in enqueue
// order, one at a time. A job whose context expires before it starts is
// skipped and reports the context error.
func (q *Queue) Do(ctx context.Context, fn func() (any, error)) (any, error) {
	j := &job{ctx: ctx, fn: fn, done: make(chan result, 1)}

	q.mu.Lock()
	q.jobs.PushBack(j)
	pending := q.jobs.Len()
	if !q.running {
		q.running = true
		go q.drain()
	}
	q.mu.Unlock()

	if pending > 1 {
		log.Debug("request queued", "queue", q.name, "pending", pending)
	}

	select {
	case res := <-j.done:
		return res.data, res.err
	case <-ctx.Done():
		// The drain loop notices the expired context and skips the job;
		// the caller stops waiting now.
		return nil, ctx.Err()
	}
}

// drain executes queued jobs until the queue empties. Only one drain
// goroutine exists per queue; the running flag guards the handoff.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		front := q.jobs.Front()
		if front == nil {
			q.running = false
			q.mu.Unlock()
			return
		}
		q.jobs.Remove(front)
		q.mu.Unlock()

		j := front.Value.(*job)
		if err := j.ctx.Err(); err != nil {
			j.done <- result{err: err}
			continue
		}

		data, err := j.fn()
		j.done <- result{data: data, err: err}

		if q.delay > 0 {
			time.Sleep(q.delay)
		}
	}
}

// Registry owns one Queue per provider class. Construct one per process and
// inject it wherever calls are made; all clients of a provider share its
// queue state.
type Registry struct {
	mu     sync.Mutex
	queues map[string]*Queue
	delay  time.Duration
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithDelay overrides the default inter-request delay for new queues.
func WithDelay(d time.Duration) RegistryOption {
	return func(r *Registry) { r.delay = d }
}

// NewRegistry creates a queue registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		queues: make(map[string]*Queue),
		delay:  DefaultDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs fn on the named provider's queue.
func (r *Registry) Do(ctx context.Context, provider string, fn func() (any, error)) (any, error) {
	return r.queueFor(provider).Do(ctx, fn)
}

func (r *Registry) queueFor(provider string) *Queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[provider]
	if !ok {
		q = newQueue(provider, r.delay)
		r.queues[provider] = q
	}
	return q
}
