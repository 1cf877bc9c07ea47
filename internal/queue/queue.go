package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var ErrShutdown = errors.New("queue: shut down")

type Job struct {
	Fn   func() error
	Errc chan error
}

// RequestQueueManager runs jobs on a fixed set of workers. The console uses
// it for roster fetches and for HTTP handlers.
type RequestQueueManager struct {
	JobQueue   chan Job
	MaxWorkers int
	logger     *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewRequestQueueManager(queueSize int, maxWorkers int, logger *slog.Logger) *RequestQueueManager {
	if logger == nil {
		logger = slog.Default()
	}
	manager := &RequestQueueManager{
		JobQueue:   make(chan Job, queueSize),
		MaxWorkers: maxWorkers,
		logger:     logger,
	}
	manager.startWorkers()
	return manager
}

func (rqm *RequestQueueManager) startWorkers() {
	for i := 0; i < rqm.MaxWorkers; i++ {
		rqm.wg.Add(1)
		go func(workerID int) {
			defer rqm.wg.Done()
			rqm.logger.Debug("queue worker started", "worker", workerID)
			for job := range rqm.JobQueue {
				err := job.Fn()
				if job.Errc != nil {
					job.Errc <- err
				}
			}
			rqm.logger.Debug("queue worker stopped", "worker", workerID)
		}(i)
	}
}

// EnqueueJob blocks until the job is queued. After Shutdown the job is failed
// with ErrShutdown instead of panicking on a closed channel.
func (rqm *RequestQueueManager) EnqueueJob(job Job) {
	rqm.mu.RLock()
	defer rqm.mu.RUnlock()
	if rqm.closed {
		if job.Errc != nil {
			job.Errc <- ErrShutdown
		}
		return
	}
	rqm.JobQueue <- job
}

// Go queues fn and returns a channel that yields its result exactly once.
func (rqm *RequestQueueManager) Go(fn func() error) <-chan error {
	errc := make(chan error, 1)
	rqm.EnqueueJob(Job{Fn: fn, Errc: errc})
	return errc
}

// Wait collects results from every channel, honouring ctx. It returns the
// first non-nil error.
func Wait(ctx context.Context, results ...<-chan error) error {
	var first error
	for _, errc := range results {
		select {
		case err := <-errc:
			if err != nil && first == nil {
				first = err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return first
}

func (rqm *RequestQueueManager) Depth() int {
	return len(rqm.JobQueue)
}

func (rqm *RequestQueueManager) Shutdown() {
	rqm.mu.Lock()
	if rqm.closed {
		rqm.mu.Unlock()
		return
	}
	rqm.closed = true
	close(rqm.JobQueue)
	rqm.mu.Unlock()
	rqm.wg.Wait()
}
