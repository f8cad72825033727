package async

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/prism/am"
	"github.com/teranos/prism/db"
	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/logger"
)

const (
	// MaxOrphanedJobsToRecover limits how many orphaned jobs we'll attempt to recover
	// on startup to prevent overwhelming the system after a crash
	MaxOrphanedJobsToRecover = 1000

	// DefaultPollInterval is used when the pool config leaves PollInterval unset
	DefaultPollInterval = time.Second
)

// Outcome is the result of one job execution
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeRetried   Outcome = "retried"
	OutcomeFailed    Outcome = "failed"
)

// Observer receives the outcome of every executed job
type Observer interface {
	ObserveJob(queue, handler string, outcome Outcome, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveJob(string, string, Outcome, time.Duration) {}

// pulseLogger wraps zap.SugaredLogger with special methods for Pulse operations
// - DEBUG level → STARTING (✿ Opening operations)
// - WARN level → CLOSING (❀ Closing operations)
// - INFO level → PULSE (general worker operations)
type pulseLogger struct {
	*zap.SugaredLogger
}

// Starting logs an Opening (✿) event
func (l pulseLogger) Starting(msg string, keysAndValues ...interface{}) {
	l.Debugw("✿ "+msg, keysAndValues...)
}

// Closing logs a Closing (❀) event
func (l pulseLogger) Closing(msg string, keysAndValues ...interface{}) {
	l.Warnw("❀ "+msg, keysAndValues...)
}

// Pulse logs general worker operations
func (l pulseLogger) Pulse(msg string, keysAndValues ...interface{}) {
	l.Infow(msg, keysAndValues...)
}

// WorkerPoolConfig contains configuration for one queue's worker pool
type WorkerPoolConfig struct {
	Queue              string        `json:"queue"`
	Workers            int           `json:"workers"`              // Number of concurrent workers
	PollInterval       time.Duration `json:"poll_interval"`        // How often idle workers check for jobs
	JobTimeout         time.Duration `json:"job_timeout"`          // Per-job deadline when the job sets none; 0 = unbounded
	GracefulStartPhase time.Duration `json:"graceful_start_phase"` // Spread of orphan recovery; 0 = all at once
	MemoryLimitPercent float64       `json:"memory_limit_percent"` // Skip polling above this host memory use; 0 = never
}

// PoolConfigFor builds the pool config of a queue from the pulse section.
// The fanout queue gets at most one worker: fan-outs write attribute flags
// and last_in_log from a snapshot, so they must not overlap.
func PoolConfigFor(queue string, cfg am.PulseConfig) WorkerPoolConfig {
	workers := cfg.Workers
	if queue == QueueFanout && workers > 1 {
		workers = 1
	}
	return WorkerPoolConfig{
		Queue:              queue,
		Workers:            workers,
		PollInterval:       cfg.PollInterval(),
		JobTimeout:         time.Duration(cfg.JobTimeoutSeconds) * time.Second,
		GracefulStartPhase: time.Minute,
		MemoryLimitPercent: cfg.MemoryLimitPercent,
	}
}

// RetryPolicyFor builds the queue retry policy from the pulse section
func RetryPolicyFor(cfg am.PulseConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		Backoff:    time.Duration(cfg.RetryBackoffSeconds) * time.Second,
	}
}

// WorkerPool manages the workers of a single named queue
type WorkerPool struct {
	queue         *Queue
	poolConfig    WorkerPoolConfig
	executor      JobExecutor
	registry      *HandlerRegistry
	observer      Observer
	memStats      func() (total uint64, available uint64, err error)
	parentCtx     context.Context // Parent context from which worker context is derived
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	jobsProcessed int
	activeWorkers int
	logger        pulseLogger
	mu            sync.Mutex
}

// NewWorkerPool creates a worker pool for poolCfg.Queue.
// Handlers must be registered before calling Start().
func NewWorkerPool(ctx context.Context, queue *Queue, poolCfg WorkerPoolConfig, registry *HandlerRegistry, log *zap.SugaredLogger) *WorkerPool {
	workerCtx, cancel := context.WithCancel(ctx)
	if poolCfg.PollInterval <= 0 {
		poolCfg.PollInterval = DefaultPollInterval
	}

	return &WorkerPool{
		queue:      queue,
		poolConfig: poolCfg,
		executor:   registry,
		registry:   registry,
		observer:   nopObserver{},
		memStats:   getMemoryStats,
		parentCtx:  ctx,
		ctx:        workerCtx,
		cancel:     cancel,
		logger:     pulseLogger{logger.AddPulseSymbol(log).With(logger.FieldQueue, poolCfg.Queue)},
	}
}

// SetObserver installs the job outcome observer. Call before Start().
func (wp *WorkerPool) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	wp.observer = o
}

// Start recovers orphaned jobs and begins processing
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	select {
	case <-wp.ctx.Done():
		wp.ctx, wp.cancel = context.WithCancel(wp.parentCtx)
		wp.logger.Starting("Recreated worker context after previous shutdown")
	default:
	}
	wp.jobsProcessed = 0
	wp.mu.Unlock()

	if err := wp.recoverOrphanedJobs(); err != nil {
		wp.logger.Warnw("Failed to recover orphaned jobs", logger.FieldError, err)
	}

	if warning := wp.checkMemoryPressure(); warning != "" {
		wp.logger.Warnw("Memory pressure warning", "warning", warning, "workers", wp.poolConfig.Workers)
	}

	wp.logger.Pulse("Worker pool started", "workers", wp.poolConfig.Workers, "handlers", wp.registry.Names())
	for i := 0; i < wp.poolConfig.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// recoverOrphanedJobs requeues jobs left "running" by a previous process.
// The first job is due immediately; the rest are spread over GracefulStartPhase
// through run_after so a crash does not produce a thundering restart.
func (wp *WorkerPool) recoverOrphanedJobs() error {
	running := JobStatusRunning
	orphaned, err := wp.queue.ListJobs(wp.poolConfig.Queue, &running, MaxOrphanedJobsToRecover)
	if err != nil {
		return errors.Wrap(err, "failed to list running jobs")
	}
	if len(orphaned) == 0 {
		return nil
	}

	wp.logger.Starting("Opening - found orphaned jobs from previous run", logger.FieldCount, len(orphaned))

	var interval time.Duration
	if wp.poolConfig.GracefulStartPhase > 0 && len(orphaned) > 1 {
		interval = wp.poolConfig.GracefulStartPhase / time.Duration(len(orphaned)-1)
	}

	now := time.Now()
	recovered := 0
	for i, job := range orphaned {
		job.Requeue(now.Add(time.Duration(i) * interval))
		if err := wp.queue.UpdateJob(job); err != nil {
			wp.logger.Warnw("Failed to recover orphaned job", logger.FieldJobID, job.ID, logger.FieldError, err)
			continue
		}
		recovered++
	}

	wp.logger.Starting("Recovered orphaned jobs", "recovered", recovered, "total", len(orphaned), "spread", wp.poolConfig.GracefulStartPhase)
	return nil
}

// Stop gracefully stops the worker pool.
// Running jobs see their context cancelled and are requeued; Stop waits up to 30 seconds.
func (wp *WorkerPool) Stop() {
	wp.cancel()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	timeout := 30 * time.Second
	select {
	case <-done:
		wp.logger.Pulse("❀ Worker pool stopped - all workers exited cleanly")
	case <-time.After(timeout):
		wp.logger.Closing("Worker pool stop timeout - workers may still be running", "timeout", timeout)
	}
}

// worker processes jobs from the queue until the pool is stopped
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	ticker := time.NewTicker(wp.poolConfig.PollInterval)
	defer ticker.Stop()

	// Error backoff state
	errorCount := 0
	const maxConsecutiveErrors = 5
	backoffDuration := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-ticker.C:
			// Drain every due job before waiting for the next tick
			for {
				processed, err := wp.processNextJob()
				if err != nil {
					select {
					case <-wp.ctx.Done():
						return
					default:
					}
					if db.IsDatabaseClosed(err) {
						return
					}

					errorCount++
					wp.logger.Errorw("Worker error processing job",
						logger.FieldWorkerID, id,
						logger.FieldError, err,
						"consecutive_errors", errorCount)

					if errorCount >= maxConsecutiveErrors {
						wp.logger.Warnw("Worker backing off due to consecutive errors",
							logger.FieldWorkerID, id,
							"backoff", backoffDuration,
							"consecutive_errors", errorCount)
						select {
						case <-wp.ctx.Done():
							return
						case <-time.After(backoffDuration):
						}
						backoffDuration = min(backoffDuration*2, maxBackoff)
					}
					break
				}

				if errorCount > 0 {
					wp.logger.Infow("Worker recovered from errors",
						logger.FieldWorkerID, id,
						"previous_error_count", errorCount)
				}
				errorCount = 0
				backoffDuration = time.Second

				if !processed {
					break
				}
			}
		}
	}
}

// processNextJob claims and runs one job.
// Returns false when nothing was claimed. Handler failures are recorded on the
// job and never returned; only queue bookkeeping errors are.
func (wp *WorkerPool) processNextJob() (bool, error) {
	select {
	case <-wp.ctx.Done():
		return false, nil
	default:
	}

	if wp.underMemoryPressure() {
		return false, nil
	}

	job, err := wp.queue.Dequeue(wp.poolConfig.Queue)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	wp.mu.Lock()
	wp.jobsProcessed++
	wp.activeWorkers++
	wp.mu.Unlock()
	defer func() {
		wp.mu.Lock()
		wp.activeWorkers--
		wp.mu.Unlock()
	}()

	return true, wp.runJob(job)
}

// runJob executes a claimed job and records its outcome
func (wp *WorkerPool) runJob(job *Job) error {
	log := wp.logger.With(
		logger.FieldJobID, job.ID,
		logger.FieldHandler, job.HandlerName,
		logger.FieldAttempt, job.Attempt(),
	)

	ctx, cancel := wp.jobContext(job)
	defer cancel()

	start := time.Now()
	execErr := wp.executor.Execute(ctx, job)
	elapsed := time.Since(start)

	if execErr == nil {
		wp.observer.ObserveJob(job.Queue, job.HandlerName, OutcomeCompleted, elapsed)
		log.Debugw("Job completed", logger.FieldDurationMS, elapsed.Milliseconds())
		return wp.queue.CompleteJob(job)
	}

	// ❀ Closing: interrupted by shutdown, not by the job itself
	select {
	case <-wp.ctx.Done():
		wp.logger.Closing("Job interrupted by shutdown, re-queuing", logger.FieldJobID, job.ID)
		job.Requeue(time.Now())
		return wp.queue.UpdateJob(job)
	default:
	}

	classified := ClassifyError(job.HandlerName, execErr)
	if !classified.Retryable {
		wp.observer.ObserveJob(job.Queue, job.HandlerName, OutcomeFailed, elapsed)
		log.Errorw("Job failed",
			logger.FieldErrorCode, classified.Code,
			logger.FieldError, execErr)
		return wp.queue.FailJob(job, execErr)
	}

	retried, err := wp.queue.RetryJob(job, execErr)
	if err != nil {
		return err
	}
	if retried {
		wp.observer.ObserveJob(job.Queue, job.HandlerName, OutcomeRetried, elapsed)
		log.Warnw("Job failed, retry scheduled",
			logger.FieldErrorCode, classified.Code,
			logger.FieldError, execErr,
			"run_after", job.RunAfter)
		return nil
	}

	wp.observer.ObserveJob(job.Queue, job.HandlerName, OutcomeFailed, elapsed)
	log.Errorw("Job failed after max retries",
		logger.FieldErrorCode, classified.Code,
		logger.FieldError, execErr)
	return nil
}

// jobContext derives the execution context, bounded by the job's own timeout or the pool default
func (wp *WorkerPool) jobContext(job *Job) (context.Context, context.CancelFunc) {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = wp.poolConfig.JobTimeout
	}
	if timeout <= 0 {
		return context.WithCancel(wp.ctx)
	}
	return context.WithTimeout(wp.ctx, timeout)
}

// Queue returns the job queue (useful for enqueuing jobs)
func (wp *WorkerPool) Queue() *Queue {
	return wp.queue
}

// Workers returns the number of concurrent workers configured for this pool
func (wp *WorkerPool) Workers() int {
	return wp.poolConfig.Workers
}

// Registry returns the handler registry the pool dispatches to
func (wp *WorkerPool) Registry() *HandlerRegistry {
	return wp.registry
}
