// Package worker provides a bounded pool for fire-and-forget background
// tasks: recommendation profile updates, email delivery, cache warming and
// event emits. Submitting never blocks the request path; when the queue is
// full the task is dropped and logged. Each task gets a single attempt.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Task is a unit of background work. The context carries the per-task
// timeout; tasks must return promptly after it is done.
type Task func(ctx context.Context) error

// Pool runs tasks on a fixed number of goroutines fed by a bounded queue.
type Pool struct {
	workers int
	queue   chan job
	log     zerolog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	once    sync.Once

	mu      sync.Mutex
	stopped bool
}

type job struct {
	name string
	fn   Task
}

// New builds a pool with the given worker count and queue capacity.
// perTaskTimeout bounds each task's context; zero means 30 seconds.
func New(workers, capacity int, perTaskTimeout time.Duration, log zerolog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if capacity < 1 {
		capacity = 1
	}
	if perTaskTimeout <= 0 {
		perTaskTimeout = 30 * time.Second
	}
	return &Pool{
		workers: workers,
		queue:   make(chan job, capacity),
		log:     log.With().Str("component", "worker").Logger(),
		timeout: perTaskTimeout,
	}
}

// Start spins up the configured number of workers. It returns
// immediately.
func (p *Pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
}

func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-p.queue:
			if !ok {
				return
			}
			p.execute(ctx, j)
		}
	}
}

func (p *Pool) execute(ctx context.Context, j job) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Str("task", j.name).Interface("panic", r).Msg("background task panicked")
		}
	}()
	tctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := j.fn(tctx); err != nil {
		// One attempt only; failures are logged, never retried.
		p.log.Warn().Str("task", j.name).Err(err).Msg("background task failed")
	}
}

// Submit enqueues a task. It reports false (and logs) when the queue is
// full or the pool is stopped; callers treat that as a logged side-channel
// failure, never a request failure.
func (p *Pool) Submit(name string, fn Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		p.log.Warn().Str("task", name).Msg("pool stopped, task dropped")
		return false
	}
	select {
	case p.queue <- job{name: name, fn: fn}:
		return true
	default:
		p.log.Warn().Str("task", name).Msg("worker queue full, task dropped")
		return false
	}
}

// Stop cancels running tasks and waits for the workers to exit. Submits
// after Stop are dropped.
func (p *Pool) Stop() {
	p.once.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		if p.cancel != nil {
			p.cancel()
		}
		close(p.queue)
	})
	p.wg.Wait()
}
