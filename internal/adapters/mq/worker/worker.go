// Package worker drains the ingestion queue into the decision store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/fathom/internal/adapters/mq/queue"
	"github.com/okian/fathom/internal/adapters/repository"
	"github.com/okian/fathom/pkg/logger"
	"github.com/okian/fathom/pkg/metrics"
)

// Record is what workers read off the queue.
type Record = queue.Record

// Recorder persists decision records.
type Recorder interface {
	Append(ctx context.Context, rec Record) error
}

// Invalidator is told whenever stored records change.
type Invalidator interface {
	Invalidate()
}

// Queue defines how workers receive records.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Record
}

// InMemoryWorker persists records until the queue closes or ctx is done.
type InMemoryWorker struct {
	queue       Queue
	recorder    Recorder
	invalidator Invalidator
	name        string
	logger      logger.Logger

	done chan struct{}
}

// NewInMemoryWorker creates a new worker.
func NewInMemoryWorker(q Queue, recorder Recorder, invalidator Invalidator, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:       q,
		recorder:    recorder,
		invalidator: invalidator,
		name:        "worker",
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = baseLogger(w.logger).Named(w.name)
	return w
}

// Run processes records until the queue is closed and drained or ctx is done.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	records := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-records:
			if !ok {
				return
			}
			if err := w.process(ctx, rec); err != nil {
				w.logger.Error(ctx, "error processing decision record", logger.Error(err))
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, rec Record) error { //nolint:gocritic // records travel by value
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	}()

	err := w.recorder.Append(ctx, rec)
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		metrics.RecordDecisionDuplicate()
		w.logger.Debug(ctx, "decision record already stored", logger.String("id", rec.ID))
		return nil
	case err != nil:
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "store_error")
		return fmt.Errorf("store decision %s: %w", rec.ID, err)
	}

	metrics.RecordDecisionStored()
	if w.invalidator != nil {
		w.invalidator.Invalidate()
	}
	return nil
}

func baseLogger(l logger.Logger) logger.Logger {
	if l != nil {
		return l
	}
	return logger.Get()
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
	started sync.Once
	cancel  context.CancelFunc
}

// NewPool creates a pool of workerCount workers. A count below one selects
// runtime.NumCPU().
func NewPool(workerCount int, q Queue, recorder Recorder, invalidator Invalidator, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(q, recorder, invalidator, wopts...)
	}
	probe := &InMemoryWorker{}
	for _, opt := range opts {
		opt(probe)
	}
	p.logger = baseLogger(probe.logger).Named("pool")

	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start launches every worker. Calling it again has no effect. Workers keep
// ctx's values but not its cancellation: they stop once Shutdown has closed
// and drained the queue, or when Shutdown gives up.
func (p *Pool) Start(ctx context.Context) {
	p.started.Do(func() {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		p.cancel = cancel
		for _, w := range p.workers {
			go w.Run(runCtx)
		}
	})
}

// Shutdown closes the queue and waits for workers to drain it. If ctx ends
// first the workers are cancelled and the remaining records are dropped.
func (p *Pool) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		defer p.cancel()
	}

	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("shutdown timed out: %w", ctx.Err())
		}
	}
	return nil
}
