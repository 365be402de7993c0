// Package async provides goroutine lifecycle helpers: panic recovery,
// per-task timeouts, and a bounded worker pool with graceful shutdown.
package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dineos/accessd/pkg/observability"
)

// Runner launches background tasks with panic recovery and timeout
// enforcement. Use it instead of a bare `go func()` for fire-and-forget work
// so a panicking task cannot crash the process.
type Runner struct {
	logger *observability.Logger
}

// NewRunner creates a runner that reports task failures through the logger.
func NewRunner(logger *observability.Logger) *Runner {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Runner{logger: logger}
}

// Go executes fn in a goroutine. The task context is canceled after timeout
// or when the parent context is canceled, whichever comes first.
func (r *Runner) Go(parent context.Context, timeout time.Duration, task string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()

		defer func() {
			if rec := recover(); rec != nil {
				r.logger.WithFields(map[string]interface{}{
					"task":  task,
					"panic": fmt.Sprint(rec),
					"stack": string(debug.Stack()),
				}).Error("background task panicked")
			}
		}()

		if err := fn(ctx); err != nil {
			r.logger.WithError(err).WithField("task", task).Warn("background task failed")
		}
	}()
}

// Pool is a fixed-size worker pool. Submitted tasks run with a per-task
// timeout; Shutdown drains queued tasks before returning.
type Pool struct {
	task    string
	timeout time.Duration
	logger  *observability.Logger

	workCh chan func(context.Context) error
	doneCh chan struct{}

	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// NewPool starts workers goroutines processing submitted tasks.
func NewPool(ctx context.Context, workers int, task string, timeout time.Duration, logger *observability.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	ctx, cancel := context.WithCancel(ctx)

	p := &Pool{
		task:    task,
		timeout: timeout,
		logger:  logger,
		workCh:  make(chan func(context.Context) error, workers*2),
		doneCh:  make(chan struct{}),
		cancel:  cancel,
	}

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.worker(ctx)
			}()
		}
		wg.Wait()
		close(p.doneCh)
	}()

	return p
}

// Submit queues a task. It blocks while the queue is full and fails once the
// pool is shut down.
func (p *Pool) Submit(fn func(context.Context) error) error {
	select {
	case <-p.doneCh:
		return fmt.Errorf("pool %s: shut down", p.task)
	default:
	}

	defer func() {
		// Submit raced a concurrent Shutdown closing the channel.
		recover()
	}()

	select {
	case p.workCh <- fn:
		return nil
	case <-p.doneCh:
		return fmt.Errorf("pool %s: shut down", p.task)
	}
}

// Shutdown stops accepting tasks, drains the queue, and waits up to timeout
// for running tasks to finish.
func (p *Pool) Shutdown(timeout time.Duration) error {
	var err error
	p.shutdownOnce.Do(func() {
		close(p.workCh)
		select {
		case <-p.doneCh:
		case <-time.After(timeout):
			err = fmt.Errorf("pool %s: shutdown timed out after %v", p.task, timeout)
		}
		p.cancel()
	})
	return err
}

func (p *Pool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn, ok := <-p.workCh:
			if !ok {
				return
			}
			p.run(ctx, fn)
		}
	}
}

func (p *Pool) run(ctx context.Context, fn func(context.Context) error) {
	taskCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			p.logger.WithFields(map[string]interface{}{
				"task":  p.task,
				"panic": fmt.Sprint(rec),
				"stack": string(debug.Stack()),
			}).Error("pool task panicked")
		}
	}()

	if err := fn(taskCtx); err != nil {
		p.logger.WithError(err).WithField("task", p.task).Warn("pool task failed")
	}
}
