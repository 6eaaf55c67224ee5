// Package queue buffers decision records between ingestion and persistence.
package queue

import (
	"context"
	"sync"

	"github.com/okian/fathom/internal/domain/model"
	"github.com/okian/fathom/pkg/metrics"
)

const defaultQueueCapacity = 10000

// Record is the payload flowing through the queue.
type Record = model.DecisionRecord

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a record without blocking. Returns ErrQueueFull when the
	// queue is at capacity and ErrQueueClosed after Close.
	Enqueue(ctx context.Context, r Record) error

	// Dequeue returns the channel records are delivered on. It is closed
	// once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Record

	Len(ctx context.Context) int
	Capacity() int

	// Close stops accepting records. Buffered records stay readable.
	Close() error
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	records  chan Record
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.records = make(chan Record, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0)
	return q
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, r Record) error { //nolint:gocritic // records travel by value
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrQueueClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return err
	}

	select {
	case q.records <- r:
		q.updateGauges()
		return nil
	default:
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrQueueFull
	}
}

func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Record {
	return q.records
}

func (q *InMemoryQueue) Len(_ context.Context) int {
	q.updateGauges()
	return len(q.records)
}

func (q *InMemoryQueue) Capacity() int { return q.capacity }

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.records)
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) updateGauges() {
	size := len(q.records)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}
