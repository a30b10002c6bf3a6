// Package worker runs fire-and-forget jobs on a fixed set of goroutines fed
// by a bounded queue.
//
// Shutdown stops intake and drains what is already queued. Jobs still queued
// or running when the shutdown context expires are abandoned: their context
// is cancelled and they may not complete.
package worker

import (
	"ai-memory-chat-be/internal/pkg/logger"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrPoolClosed = errors.New("worker pool closed")
	ErrQueueFull  = errors.New("worker queue full")
)

// QueueFullError is returned when the queue stayed full for EnqueueTimeout.
type QueueFullError struct {
	Length   int
	Capacity int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("worker queue full (%d/%d)", e.Length, e.Capacity)
}

func (e *QueueFullError) Is(target error) bool { return target == ErrQueueFull }

type Job func(ctx context.Context) error

type Config struct {
	Name           string
	Workers        int
	QueueSize      int
	EnqueueTimeout time.Duration
}

type Pool struct {
	cfg    Config
	queue  chan Job
	logger logger.ILogger

	jobCtx    context.Context
	cancelJob context.CancelFunc

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	wg sync.WaitGroup
}

func NewPool(cfg Config, log logger.ILogger) *Pool {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = 100 * time.Millisecond
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:       cfg,
		queue:     make(chan Job, cfg.QueueSize),
		logger:    log,
		jobCtx:    jobCtx,
		cancelJob: cancel,
		done:      make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}
	return p
}

// Submit enqueues job. It fails with ErrPoolClosed after Shutdown, with a
// *QueueFullError when no slot frees up within EnqueueTimeout, or with
// ctx.Err().
func (p *Pool) Submit(ctx context.Context, job Job) error {
	if job == nil {
		return errors.New("nil job")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	timer := time.NewTimer(p.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case p.queue <- job:
		submittedTotal.WithLabelValues(p.cfg.Name).Inc()
		queueDepth.WithLabelValues(p.cfg.Name).Set(float64(len(p.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		queueFullTotal.WithLabelValues(p.cfg.Name).Inc()
		return &QueueFullError{Length: len(p.queue), Capacity: cap(p.queue)}
	}
}

// Shutdown stops accepting jobs and waits for the queue to drain. If ctx
// expires first the remaining jobs are cancelled and ctx.Err() is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.logger.Info("WorkerPool", "Draining worker pool", map[string]interface{}{
		"pool":   p.cfg.Name,
		"queued": len(p.queue),
	})

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		p.cancelJob()
		p.logger.Info("WorkerPool", "Worker pool drained", map[string]interface{}{"pool": p.cfg.Name})
		return nil
	case <-ctx.Done():
		p.cancelJob()
		p.logger.Warn("WorkerPool", "Shutdown deadline reached, abandoning jobs", map[string]interface{}{
			"pool":      p.cfg.Name,
			"abandoned": len(p.queue),
		})
		return ctx.Err()
	}
}

func (p *Pool) runWorker(idx int) {
	defer p.wg.Done()

	for {
		select {
		case job := <-p.queue:
			p.run(idx, job)
		case <-p.done:
			for {
				select {
				case job := <-p.queue:
					p.run(idx, job)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool) run(idx int, job Job) {
	queueDepth.WithLabelValues(p.cfg.Name).Set(float64(len(p.queue)))

	if p.jobCtx.Err() != nil {
		jobsTotal.WithLabelValues(p.cfg.Name, "abandoned").Inc()
		return
	}

	start := time.Now()
	defer func() {
		runDuration.WithLabelValues(p.cfg.Name).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			jobsTotal.WithLabelValues(p.cfg.Name, "panic").Inc()
			p.logger.Error("WorkerPool", "Job panicked", map[string]interface{}{
				"pool":   p.cfg.Name,
				"worker": idx,
				"panic":  fmt.Sprint(r),
			})
		}
	}()

	if err := job(p.jobCtx); err != nil {
		jobsTotal.WithLabelValues(p.cfg.Name, "error").Inc()
		p.logger.Error("WorkerPool", "Job failed", map[string]interface{}{
			"pool":   p.cfg.Name,
			"worker": idx,
			"error":  err.Error(),
		})
		return
	}
	jobsTotal.WithLabelValues(p.cfg.Name, "success").Inc()
}
