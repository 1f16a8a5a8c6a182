package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skuflow/platform/pkg/common/logger"
)

var (
	ErrAlreadyRunning = errors.New("ingestion already in flight for file")
	ErrRunnerClosed   = errors.New("ingestion runner is shut down")
)

// Runner executes pipeline runs in the background with bounded parallelism,
// a per-run deadline and a per-file lock.
type Runner struct {
	pipeline *Pipeline
	locker   Locker
	timeout  time.Duration
	sem      chan struct{}

	baseCtx context.Context
	stop    context.CancelFunc

	mu      sync.Mutex
	closed  bool
	cancels map[uuid.UUID]context.CancelFunc
	wg      sync.WaitGroup
}

func NewRunner(pipeline *Pipeline, locker Locker, maxWorkers int, timeout time.Duration) *Runner {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Runner{
		pipeline: pipeline,
		locker:   locker,
		timeout:  timeout,
		sem:      make(chan struct{}, maxWorkers),
		baseCtx:  ctx,
		stop:     stop,
		cancels:  make(map[uuid.UUID]context.CancelFunc),
	}
}

// Submit schedules a run and returns as soon as it is queued. The returned
// channel yields the run's error (nil on success) once and is then closed.
func (r *Runner) Submit(fileID uuid.UUID, path string) (<-chan error, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRunnerClosed
	}
	if _, busy := r.cancels[fileID]; busy {
		r.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(r.baseCtx)
	r.cancels[fileID] = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	lockCtx, lockCancel := context.WithTimeout(ctx, 5*time.Second)
	release, err := r.locker.Acquire(lockCtx, fileID)
	lockCancel()
	if err != nil {
		cancel()
		r.forget(fileID)
		r.wg.Done()
		return nil, err
	}

	done := make(chan error, 1)
	go func() {
		err := r.execute(ctx, fileID, path)
		release()
		cancel()
		r.forget(fileID)
		done <- err
		close(done)
		r.wg.Done()
	}()
	return done, nil
}

func (r *Runner) execute(ctx context.Context, fileID uuid.UUID, path string) (err error) {
	log := logger.ForFile(fileID)

	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		log.WithError(ctx.Err()).Warn("ingestion cancelled before start")
		return ctx.Err()
	}
	defer func() { <-r.sem }()

	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("panic", rec).Error("ingestion run panicked")
			err = fmt.Errorf("ingestion panicked: %v", rec)
		}
	}()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	_, err = r.pipeline.Run(ctx, fileID, path)
	return err
}

// Cancel stops the run for fileID if one is queued or executing.
func (r *Runner) Cancel(fileID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.cancels[fileID]
	if ok {
		cancel()
	}
	return ok
}

func (r *Runner) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancels)
}

// Shutdown stops accepting work and waits for runs to drain. Runs still going
// when ctx ends are cancelled and recorded as failed.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		r.stop()
		return nil
	case <-ctx.Done():
		r.stop()
		<-drained
		return ctx.Err()
	}
}

func (r *Runner) forget(fileID uuid.UUID) {
	r.mu.Lock()
	delete(r.cancels, fileID)
	r.mu.Unlock()
}
