package queue

import (
	"context"
	"sync"
	"time"

	"github.com/dgnsrekt/batchtts/tts"
)

var (
	// ErrQueueFull is returned when the queue stays at capacity past the put timeout.
	ErrQueueFull = tts.ErrQueueFull

	// ErrQueueClosed is returned when operations are attempted on a closed queue.
	ErrQueueClosed = tts.ErrQueueClosed

	// ErrTimeout is returned when a get finds nothing before its timeout.
	ErrTimeout = tts.ErrTimeout
)

// Wait durations with special meaning for Put and Get.
const (
	// NoWait fails immediately instead of blocking.
	NoWait time.Duration = 0
	// Forever blocks until the operation succeeds, the queue closes or the
	// context is done.
	Forever time.Duration = -1
)

// Queue is a bounded FIFO with backpressure. Producers block while the queue
// is full and consumers block while it is empty, each up to a timeout.
// Closing the queue rejects new items but lets consumers drain what remains.
type Queue[T any] struct {
	items    []T
	capacity int

	// Synchronization
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	// State
	closed bool
	stats  Stats
}

// Stats tracks queue throughput and occupancy.
type Stats struct {
	TotalEnqueued int64
	TotalDequeued int64
	TotalRejected int64
	CurrentSize   int
	PeakSize      int
	Capacity      int
	Closed        bool
	LastEnqueue   time.Time
	LastDequeue   time.Time
}

// New creates a queue holding at most capacity items.
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Put appends item, waiting up to timeout for space.
func (q *Queue[T]) Put(ctx context.Context, item T, timeout time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	if len(q.items) >= q.capacity {
		if timeout == NoWait {
			q.stats.TotalRejected++
			return ErrQueueFull
		}

		stop := q.wakeOn(ctx, q.notFull, timeout)
		defer stop()
		deadline := time.Now().Add(timeout)

		// Apply backpressure - wait for space
		for len(q.items) >= q.capacity && !q.closed {
			if err := ctx.Err(); err != nil {
				return err
			}
			if timeout > 0 && !time.Now().Before(deadline) {
				q.stats.TotalRejected++
				return ErrQueueFull
			}
			q.notFull.Wait()
		}

		if q.closed {
			return ErrQueueClosed
		}
	}

	q.items = append(q.items, item)
	q.stats.TotalEnqueued++
	q.stats.LastEnqueue = time.Now()
	if len(q.items) > q.stats.PeakSize {
		q.stats.PeakSize = len(q.items)
	}

	q.notEmpty.Signal()
	return nil
}

// TryPut appends item only if there is space right now.
func (q *Queue[T]) TryPut(item T) error {
	return q.Put(context.Background(), item, NoWait)
}

// Get removes the oldest item, waiting up to timeout for one to arrive.
// A closed queue keeps returning items until it is empty, then ErrQueueClosed.
func (q *Queue[T]) Get(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 && !q.closed {
		if timeout == NoWait {
			return zero, ErrTimeout
		}

		stop := q.wakeOn(ctx, q.notEmpty, timeout)
		defer stop()
		deadline := time.Now().Add(timeout)

		for len(q.items) == 0 && !q.closed {
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			if timeout > 0 && !time.Now().Before(deadline) {
				return zero, ErrTimeout
			}
			q.notEmpty.Wait()
		}
	}

	if len(q.items) == 0 {
		return zero, ErrQueueClosed
	}

	return q.pop(), nil
}

// Drain removes and returns up to max items without blocking. A max below
// one drains everything.
func (q *Queue[T]) Drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, q.pop())
	}
	return out
}

// pop removes the head. Callers hold q.mu and have checked len > 0.
func (q *Queue[T]) pop() T {
	var zero T
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]

	q.stats.TotalDequeued++
	q.stats.LastDequeue = time.Now()

	q.notFull.Signal()
	return item
}

// wakeOn arranges for c to be broadcast when ctx is done or timeout
// elapses, so waiters can re-check their exit conditions. The returned
// function releases both hooks.
func (q *Queue[T]) wakeOn(ctx context.Context, c *sync.Cond, timeout time.Duration) func() {
	broadcast := func() {
		q.mu.Lock()
		c.Broadcast()
		q.mu.Unlock()
	}

	stopCtx := context.AfterFunc(ctx, broadcast)
	var timer *time.Timer
	if timeout > 0 {
		timer = time.AfterFunc(timeout, broadcast)
	}

	return func() {
		stopCtx()
		if timer != nil {
			timer.Stop()
		}
	}
}

// Len returns the current number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return q.capacity
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Stats returns current queue statistics.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := q.stats
	stats.CurrentSize = len(q.items)
	stats.Capacity = q.capacity
	stats.Closed = q.closed
	return stats
}

// Close stops accepting items and wakes every waiter. It is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true

	// Wake up any waiting goroutines
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}
