package leaseq

import (
	"context"
	"fmt"
	"sync"
	"time"

	rtm "github.com/UniQw/leaseq/internal/runtime"
)

// DefaultLeaseDuration is the lease a worker takes when it claims a task.
const DefaultLeaseDuration = 2 * time.Hour

// ServerConfig defines the configuration for a leaseq server.
type ServerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int
	// LeaseDuration is how long a claimed task stays leased before another worker
	// may take it over. Handlers needing more declare a required lease.
	LeaseDuration time.Duration
	// PollInterval is how long an idle worker waits before polling again.
	PollInterval time.Duration
	// DefaultRetryWait is the delay before retrying a transient failure.
	DefaultRetryWait time.Duration
	// ArchiveRetention is how long archived tasks are kept. Zero keeps them forever.
	ArchiveRetention time.Duration
	// GCInterval is how often archived tasks are garbage collected. Defaults to one minute.
	GCInterval time.Duration
	// Logger is the logger used for server events.
	Logger Logger
}

const gcBatch = 256

// Server claims tasks from the store and runs them through an Executor.
type Server struct {
	rt      *rtm.Runtime
	client  *Client
	exec    *Executor
	cfg     ServerConfig
	mu      sync.Mutex
	started bool
	log     Logger
}

// NewServer creates a new leaseq server.
func NewServer(client *Client, cfg ServerConfig, mux *Mux) *Server {
	l := cfg.Logger
	if l == nil {
		l = NewFmtLogger()
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = DefaultLeaseDuration
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = time.Minute
	}

	s := &Server{
		client: client,
		exec: NewExecutor(client, mux, ExecutorConfig{
			DefaultRetryWait: cfg.DefaultRetryWait,
			Logger:           l,
		}),
		cfg: cfg,
		log: l,
	}

	var jobs []rtm.Job
	if cfg.ArchiveRetention > 0 {
		jobs = append(jobs, rtm.Job{Name: "archive-gc", Every: cfg.GCInterval, Run: s.collectArchive})
	}
	s.rt = rtm.New(rtm.Config{
		Concurrency: cfg.Concurrency,
		Idle:        cfg.PollInterval,
		Logger:      rtLogger{Logger: l},
	}, s.processOne, jobs...)
	return s
}

// Start launches the server workers and background maintenance routines.
// It is idempotent and non-blocking.
func (s *Server) Start() {
	s.mu.Lock()
	if s.started {
		if s.log != nil {
			s.log.Warnf("server already started; ignoring Start()")
		}
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()
	if s.log != nil {
		s.log.Infof("starting server: concurrency=%d lease=%s", s.rt.CfgConcurrency(), s.cfg.LeaseDuration)
	}
	s.rt.Start()
}

// Stop gracefully shuts down the server, waiting for workers to finish current tasks.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.started {
		if s.log != nil {
			s.log.Warnf("server not started; ignoring Stop()")
		}
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()
	if s.log != nil {
		s.log.Infof("stopping server")
	}
	s.rt.Stop()
}

// processOne claims and executes a single task. A failed execution leaves the
// task to expire and be claimed again.
func (s *Server) processOne(ctx context.Context) (bool, error) {
	t, err := s.client.Claim(ctx, s.cfg.LeaseDuration)
	if err != nil {
		return false, fmt.Errorf("claim: %w", err)
	}
	if t == nil {
		return false, nil
	}
	if _, err := s.exec.Execute(ctx, t); err != nil {
		return true, fmt.Errorf("execute: id=%d class=%s err=%w", t.ID, t.Class, err)
	}
	return true, nil
}

func (s *Server) collectArchive(ctx context.Context) error {
	n, err := s.client.PurgeArchive(ctx, s.cfg.ArchiveRetention, gcBatch)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Debugf("archive-gc: purged=%d", n)
	}
	return nil
}

// rtLogger adapts the public Logger to the internal runtime logger interface.
type rtLogger struct{ Logger }
