package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Job is one unit of work run on a pool slot
type Job func(ctx context.Context)

// WorkerPool runs jobs on a fixed number of slots.
// Submit and Shutdown are meant to be called from a single goroutine.
type WorkerPool struct {
	size int
	sem  *semaphore.Weighted
	wg   sync.WaitGroup

	// jobs run on ctx, which is not tied to the caller's cancellation so
	// that an interrupted crawl can still drain
	ctx    context.Context
	cancel context.CancelFunc

	inFlight atomic.Int64
	closed   atomic.Bool
	guard    *SafeRunner
}

// NewWorkerPool creates a pool with size slots
func NewWorkerPool(parent context.Context, size int, logger *slog.Logger) (*WorkerPool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("worker pool requires a positive size, got %d", size)
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	return &WorkerPool{
		size:   size,
		sem:    semaphore.NewWeighted(int64(size)),
		ctx:    ctx,
		cancel: cancel,
		guard:  NewSafeRunner(logger),
	}, nil
}

// Size returns the number of slots
func (p *WorkerPool) Size() int {
	return p.size
}

// InFlight returns the number of jobs that have been submitted and not returned
func (p *WorkerPool) InFlight() int {
	return int(p.inFlight.Load())
}

// Panics returns how many jobs panicked
func (p *WorkerPool) Panics() int64 {
	return p.guard.PanicCount()
}

// Submit blocks until a slot is free, then starts job on it.
// It returns early if ctx is cancelled or the pool has been shut down.
func (p *WorkerPool) Submit(ctx context.Context, label string, job Job) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if p.closed.Load() {
		p.sem.Release(1)
		return ErrPoolClosed
	}

	p.inFlight.Add(1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer p.inFlight.Add(-1)

		p.guard.Run(p.ctx, label, job)
	}()
	return nil
}

// Shutdown stops the pool from accepting work.
// With drain it waits for running jobs until ctx expires, then abandons them.
// Without drain it cancels running jobs and returns at once.
func (p *WorkerPool) Shutdown(ctx context.Context, drain bool) error {
	p.closed.Store(true)

	if !drain {
		p.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		abandoned := p.InFlight()
		p.cancel()
		return fmt.Errorf("%w: %d jobs still running: %w", ErrDrainTimeout, abandoned, context.Cause(ctx))
	}
}

// IsDrainTimeout reports whether err came from an expired drain
func IsDrainTimeout(err error) bool {
	return errors.Is(err, ErrDrainTimeout)
}
