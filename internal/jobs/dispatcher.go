// Package jobs runs transcode jobs in the background, detached from the
// request that scheduled them.
package jobs

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/your-org/streamforge/internal/transcode"
	"github.com/your-org/streamforge/internal/video"
	"github.com/your-org/streamforge/pkg/metrics"
)

// ErrClosed is returned by Dispatch after Shutdown has begun.
var ErrClosed = errors.New("dispatcher is shut down")

// Runner executes one transcode job to a terminal status.
type Runner interface {
	Run(ctx context.Context, job transcode.Job) (video.Status, error)
}

// Params wires a Dispatcher.
type Params struct {
	Runner Runner
	// Locker defaults to an in-process LocalLocker.
	Locker Locker
	// MaxConcurrent caps simultaneous runs across assets; zero means no cap.
	MaxConcurrent int64
	Logger        *zap.Logger
}

// Dispatcher starts one goroutine per job. Jobs are never cancelled: a
// started run continues until its runner returns.
type Dispatcher struct {
	runner Runner
	locker Locker
	sem    *semaphore.Weighted
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher. A zero MaxConcurrent runs every job
// immediately; a nil Locker uses a process-local one.
func NewDispatcher(p Params) *Dispatcher {
	locker := p.Locker
	if locker == nil {
		locker = NewLocalLocker()
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		runner: p.Runner,
		locker: locker,
		logger: logger,
	}
	if p.MaxConcurrent > 0 {
		d.sem = semaphore.NewWeighted(p.MaxConcurrent)
	}
	return d
}

// Dispatch schedules job and returns immediately. The run keeps ctx's values
// (trace spans) but not its cancellation or deadline.
func (d *Dispatcher) Dispatch(ctx context.Context, job transcode.Job) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go d.run(context.WithoutCancel(ctx), job)
	return nil
}

func (d *Dispatcher) run(ctx context.Context, job transcode.Job) {
	defer d.wg.Done()
	logger := d.logger.With(zap.String("asset_id", job.AssetID))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("transcode job panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	if d.sem != nil {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			logger.Error("acquire job slot", zap.Error(err))
			return
		}
		defer d.sem.Release(1)
	}

	release, err := d.locker.Acquire(ctx, job.AssetID)
	switch {
	case errors.Is(err, ErrLocked):
		logger.Warn("transcode already running for asset, job skipped")
		metrics.TranscodeJobsTotal.WithLabelValues("skipped").Inc()
		return
	case err != nil:
		// The lock only guards against duplicate runs; without it the job
		// still has to reach a terminal status.
		logger.Warn("asset lock unavailable, running unlocked", zap.Error(err))
	default:
		defer release()
	}

	status, err := d.runner.Run(ctx, job)
	if err != nil {
		logger.Warn("transcode job finished", zap.String("status", string(status)), zap.Error(err))
		return
	}
	logger.Info("transcode job finished", zap.String("status", string(status)))
}

// Shutdown stops accepting jobs and waits for running ones until ctx ends.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
