// Package async runs blocking operations on a bounded set of goroutines and
// hands out futures for their results.
package async

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

var (
	tasksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "confluence_async_tasks_in_flight",
		Help: "Number of submitted tasks currently running",
	})

	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "confluence_async_tasks_total",
		Help: "Total number of finished tasks by status",
	}, []string{"status"}) // "ok", "error", "panic", "rejected"
)

// ErrClosed is returned for tasks submitted after Close.
var ErrClosed = errors.New("executor closed")

// Executor bounds the number of concurrently running tasks.
type Executor struct {
	sem    *semaphore.Weighted
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewExecutor creates an executor running at most maxConcurrency tasks at a
// time (minimum 1).
func NewExecutor(maxConcurrency int, logger zerolog.Logger) *Executor {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Executor{
		sem:    semaphore.NewWeighted(int64(maxConcurrency)),
		logger: logger,
	}
}

// Submit runs fn on its own goroutine once a slot is free and returns a
// future for its result. If ctx ends while waiting for a slot the future
// fails with the context error. Panics in fn are turned into errors.
func Submit[T any](ctx context.Context, e *Executor, fn func(ctx context.Context) (T, error)) *Future[T] {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		tasksTotal.WithLabelValues("rejected").Inc()
		return Failed[T](ErrClosed)
	}
	e.wg.Add(1)
	e.mu.RUnlock()

	f := newFuture[T]()
	go func() {
		defer e.wg.Done()

		if err := e.sem.Acquire(ctx, 1); err != nil {
			tasksTotal.WithLabelValues("rejected").Inc()
			f.resolve(*new(T), fmt.Errorf("waiting for executor slot: %w", err))
			return
		}
		defer e.sem.Release(1)

		tasksInFlight.Inc()
		defer tasksInFlight.Dec()

		value, err := run(ctx, e.logger, fn)
		switch {
		case err == nil:
			tasksTotal.WithLabelValues("ok").Inc()
		case errors.Is(err, errPanic):
			tasksTotal.WithLabelValues("panic").Inc()
		default:
			tasksTotal.WithLabelValues("error").Inc()
		}
		f.resolve(value, err)
	}()
	return f
}

var errPanic = errors.New("task panicked")

func run[T any](ctx context.Context, logger zerolog.Logger, fn func(ctx context.Context) (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Task panicked")
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()
	return fn(ctx)
}

// Close rejects further submissions and waits for running and queued tasks.
func (e *Executor) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.wg.Wait()
	e.logger.Debug().Msg("Executor closed")
	return nil
}
