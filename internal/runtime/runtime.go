package runtime

import (
	"context"
	"sync"
	"time"
)

// Logger is a minimal logging interface used internally by the runtime.
// It mirrors the public logger in the root package to avoid an import cycle.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Infof(string, ...any)  {}
func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Errorf(string, ...any) {}

type Config struct {
	Concurrency int
	// Idle is how long a worker sleeps after a poll found nothing to do.
	Idle   time.Duration
	Logger Logger
}

// Poller runs at most one unit of work. It reports whether it found any.
type Poller func(ctx context.Context) (bool, error)

// Job is a maintenance routine run on a fixed interval.
type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

type Runtime struct {
	cfg     Config
	poll    Poller
	jobs    []Job
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	log     Logger
}

// New creates a background runtime that runs poll on Concurrency workers and
// each job on its own ticker.
func New(cfg Config, poll Poller, jobs ...Job) *Runtime {
	lg := cfg.Logger
	if lg == nil {
		lg = noopLogger{}
	}
	if cfg.Idle <= 0 {
		cfg.Idle = 50 * time.Millisecond
	}
	return &Runtime{
		cfg:  cfg,
		poll: poll,
		jobs: jobs,
		log:  lg,
	}
}

// Start launches workers and background maintenance goroutines.
func (rt *Runtime) Start() {
	rt.mu.Lock()
	if rt.started {
		rt.log.Warnf("runtime already started; ignoring Start()")
		rt.mu.Unlock()
		return
	}
	rt.started = true
	rt.ctx, rt.cancel = context.WithCancel(context.Background())
	rt.mu.Unlock()
	rt.log.Infof("runtime starting: concurrency=%d jobs=%d", rt.cfg.Concurrency, len(rt.jobs))

	for i := 0; i < rt.cfg.Concurrency; i++ {
		rt.wg.Add(1)
		go func(id int) {
			defer rt.wg.Done()
			rt.workerLoop(id)
		}(i + 1)
	}

	for _, j := range rt.jobs {
		if j.Every <= 0 || j.Run == nil {
			rt.log.Warnf("maintenance: skipping job=%s interval=%s", j.Name, j.Every)
			continue
		}
		rt.wg.Add(1)
		go func(j Job) {
			defer rt.wg.Done()
			ticker := time.NewTicker(j.Every)
			defer ticker.Stop()
			for {
				select {
				case <-rt.ctx.Done():
					return
				case <-ticker.C:
					if err := j.Run(rt.ctx); err != nil && rt.ctx.Err() == nil {
						rt.log.Warnf("maintenance: job=%s err=%v", j.Name, err)
					}
				}
			}
		}(j)
	}
}

// Stop cancels the internal context and waits for all goroutines to exit.
func (rt *Runtime) Stop() {
	rt.mu.Lock()
	if !rt.started {
		rt.log.Warnf("runtime not started; ignoring Stop()")
		rt.mu.Unlock()
		return
	}
	rt.started = false
	rt.mu.Unlock()
	rt.log.Infof("runtime stopping")

	rt.cancel()
	rt.wg.Wait()
}

func (rt *Runtime) workerLoop(id int) {
	for {
		select {
		case <-rt.ctx.Done():
			return
		default:
		}

		found, err := rt.poll(rt.ctx)
		if err != nil && rt.ctx.Err() == nil {
			rt.log.Errorf("worker %d: %v", id, err)
		}
		if found {
			continue
		}

		select {
		case <-rt.ctx.Done():
			return
		case <-time.After(rt.cfg.Idle):
		}
	}
}

// CfgConcurrency exposes configured worker concurrency.
func (rt *Runtime) CfgConcurrency() int { return rt.cfg.Concurrency }
