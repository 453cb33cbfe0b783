// Package workers provides the bounded worker pool every scan phase fans out
// to. It wraps an ants goroutine pool with an optional rate limiter, tracks
// in-flight jobs so a phase can wait for its own work, and can be restarted
// after Stop so one pool serves a scan from start to finish.
package workers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"

	"github.com/anstrom/netrecon/internal/logging"
	"github.com/anstrom/netrecon/internal/metrics"
)

// Job represents a unit of work to be executed by a worker.
type Job interface {
	// Execute performs the job and returns an error if it fails.
	Execute(ctx context.Context) error
	// ID returns a unique identifier for the job.
	ID() string
	// Type returns the job type for metrics and logging.
	Type() string
}

// Config holds configuration for the worker pool.
type Config struct {
	// Size is the number of jobs that may run at once.
	Size int
	// RateLimit is the maximum number of job starts per second (0 = no limit).
	RateLimit int
}

// DefaultSize is the concurrency bound used when Config.Size is not positive.
const DefaultSize = 50

// DefaultConfig returns a default worker pool configuration.
func DefaultConfig() Config {
	return Config{Size: DefaultSize}
}

// Stats counts jobs since the pool was created.
type Stats struct {
	Submitted int64
	Succeeded int64
	Failed    int64
}

// Pool runs jobs on a bounded set of goroutines. Jobs are never retried.
type Pool struct {
	config  Config
	pool    *ants.Pool
	limiter *rate.Limiter
	metrics metrics.Recorder
	logger  *logging.Logger

	mu sync.Mutex
	wg sync.WaitGroup

	submitted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

// New creates a worker pool. Submit blocks while all workers are busy.
func New(config Config, recorder metrics.Recorder) (*Pool, error) {
	if config.Size <= 0 {
		config.Size = DefaultSize
	}

	p := &Pool{
		config:  config,
		metrics: metrics.OrNop(recorder),
		logger:  logging.WithComponent("workers"),
	}

	pool, err := ants.NewPool(config.Size,
		ants.WithNonblocking(false),
		ants.WithPanicHandler(func(v interface{}) {
			p.logger.Error("Worker panicked", "panic", v)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	p.pool = pool

	if config.RateLimit > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	p.logger.Debug("Worker pool created",
		"worker_count", config.Size,
		"rate_limit", config.RateLimit)
	return p, nil
}

// Size returns the concurrency bound.
func (p *Pool) Size() int {
	return p.config.Size
}

// Submit schedules job. It waits for the rate limiter and for a free worker;
// once ctx is done no further jobs are accepted.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	p.mu.Lock()
	if p.pool.IsClosed() {
		p.mu.Unlock()
		return ants.ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	err := p.pool.Submit(func() {
		defer p.wg.Done()
		p.run(ctx, job)
	})
	if err != nil {
		p.wg.Done()
		return fmt.Errorf("submit %s job %s: %w", job.Type(), job.ID(), err)
	}
	p.submitted.Add(1)
	return nil
}

// Go submits fn as a job.
func (p *Pool) Go(ctx context.Context, id, jobType string, fn func(ctx context.Context) error) error {
	return p.Submit(ctx, NewFuncJob(id, jobType, fn))
}

func (p *Pool) run(ctx context.Context, job Job) {
	start := time.Now()
	err := job.Execute(ctx)
	duration := time.Since(start)

	if err != nil {
		p.failed.Add(1)
		p.metrics.JobFinished(job.Type(), "error", duration)
		p.logger.Debug("Job failed",
			"job_id", job.ID(),
			"job_type", job.Type(),
			"duration", duration,
			"error", err)
		return
	}
	p.succeeded.Add(1)
	p.metrics.JobFinished(job.Type(), "success", duration)
}

// Wait blocks until every submitted job has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Running returns the number of jobs currently executing.
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Stats returns job counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
	}
}

// Stop refuses new jobs and releases idle workers. Jobs already running
// finish on their own.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.pool.IsClosed() {
		p.pool.Release()
		p.logger.Debug("Worker pool stopped")
	}
}

// Start makes a stopped pool accept jobs again.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pool.IsClosed() {
		p.pool.Reboot()
		p.logger.Debug("Worker pool restarted")
	}
}

// Stopped reports whether Stop has been called without a matching Start.
func (p *Pool) Stopped() bool {
	return p.pool.IsClosed()
}

// FuncJob adapts a function to the Job interface.
type FuncJob struct {
	id      string
	jobType string
	fn      func(ctx context.Context) error
}

// NewFuncJob creates a job that runs fn.
func NewFuncJob(id, jobType string, fn func(ctx context.Context) error) *FuncJob {
	return &FuncJob{id: id, jobType: jobType, fn: fn}
}

// Execute implements the Job interface.
func (j *FuncJob) Execute(ctx context.Context) error {
	return j.fn(ctx)
}

// ID implements the Job interface.
func (j *FuncJob) ID() string {
	return j.id
}

// Type implements the Job interface.
func (j *FuncJob) Type() string {
	return j.jobType
}
