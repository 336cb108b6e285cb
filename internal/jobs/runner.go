// Package jobs runs best-effort side effects (audit writes, notifications)
// detached from the request that triggered them.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aliuyar1234/govern/internal/metrics"
	"github.com/rs/zerolog/log"
)

// ErrRunnerClosed is returned by Shutdown when called twice.
var ErrRunnerClosed = errors.New("job runner already shut down")

type job struct {
	name string
	run  func(ctx context.Context) error
}

// Runner executes submitted jobs on background workers with bounded retries.
// Failures are logged and counted, never returned to the submitter.
type Runner struct {
	queue       chan job
	maxAttempts int
	backoff     time.Duration
	timeout     time.Duration
	metrics     *metrics.Governance

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// Options tune a Runner. Zero values fall back to defaults.
type Options struct {
	QueueSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	AttemptTimeout time.Duration
	Metrics        *metrics.Governance
}

func NewRunner(opts Options) *Runner {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 200 * time.Millisecond
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 10 * time.Second
	}

	return &Runner{
		queue:       make(chan job, opts.QueueSize),
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.InitialBackoff,
		timeout:     opts.AttemptTimeout,
		metrics:     opts.Metrics,
	}
}

// Start launches n workers.
func (r *Runner) Start(n int) {
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		r.wg.Add(1)
		go r.work()
	}
}

// Submit enqueues fn without blocking. A nil Runner runs fn inline once, which
// keeps services usable without background workers (tests, CLI).
func (r *Runner) Submit(name string, fn func(ctx context.Context) error) {
	if r == nil {
		if err := fn(context.Background()); err != nil {
			log.Error().Err(err).Str("job", name).Msg("Side effect failed")
		}
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		log.Error().Str("job", name).Msg("Side effect dropped: runner shut down")
		r.metrics.SideEffectFailed(name)
		return
	}

	select {
	case r.queue <- job{name: name, run: fn}:
	default:
		log.Error().Str("job", name).Int("queue_size", cap(r.queue)).Msg("Side effect dropped: queue full")
		r.metrics.SideEffectFailed(name)
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish or ctx to end.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRunnerClosed
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) work() {
	defer r.wg.Done()
	for j := range r.queue {
		r.execute(j)
	}
}

func (r *Runner) execute(j job) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("job", j.name).Msg("Side effect panicked")
			r.metrics.SideEffectFailed(j.name)
		}
	}()

	wait := r.backoff
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		lastErr = j.run(ctx)
		cancel()
		if lastErr == nil {
			return
		}

		log.Warn().
			Err(lastErr).
			Str("job", j.name).
			Int("attempt", attempt).
			Int("max_attempts", r.maxAttempts).
			Msg("Side effect attempt failed")

		if attempt < r.maxAttempts {
			time.Sleep(wait)
			wait *= 2
		}
	}

	log.Error().Err(lastErr).Str("job", j.name).Msg("Side effect failed after retries")
	r.metrics.SideEffectFailed(j.name)
}
