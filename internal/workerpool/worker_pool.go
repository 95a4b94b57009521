package workerpool

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Task represents a unit of work to be processed by the worker pool
type Task func(ctx context.Context) error

// WorkerPool runs tasks on a fixed number of goroutines.
type WorkerPool struct {
	workerCount int
	taskQueue   chan Task
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	logger      *zap.Logger

	mu       sync.RWMutex
	closed   bool
	quit     chan struct{}
	quitOnce sync.Once
}

// New creates a pool with workerCount workers and a queue twice that size.
func New(workerCount int, logger *zap.Logger) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		workerCount: workerCount,
		taskQueue:   make(chan Task, workerCount*2),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
		quit:        make(chan struct{}),
	}
}

// Start launches worker goroutines
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	wp.logger.Debug("worker_pool_started", zap.Int("workers", wp.workerCount))
}

// Submit blocks until the task is queued. It returns false once the pool is shutting down.
func (wp *WorkerPool) Submit(task Task) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return false
	}

	select {
	case <-wp.quit:
		return false
	default:
	}

	select {
	case wp.taskQueue <- task:
		return true
	case <-wp.quit:
		return false
	case <-wp.ctx.Done():
		return false
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish.
// If ctx expires first, running tasks see their context cancelled.
func (wp *WorkerPool) Shutdown(ctx context.Context) error {
	// wake submitters blocked on a full queue so they drop their read locks
	wp.quitOnce.Do(func() { close(wp.quit) })

	wp.mu.Lock()
	if !wp.closed {
		close(wp.taskQueue) // No more tasks
		wp.closed = true
	}
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.cancel()
		wp.logger.Debug("worker_pool_drained")
		return nil
	case <-ctx.Done():
		wp.cancel()
		<-done
		wp.logger.Warn("worker_pool_shutdown_timeout", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// worker processes tasks from the queue
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for task := range wp.taskQueue {
		if err := task(wp.ctx); err != nil {
			wp.logger.Debug("worker_task_failed", zap.Int("worker", id), zap.Error(err))
		}
	}
}
