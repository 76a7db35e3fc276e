package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one unit of periodic work.
type Task func(context.Context)

// Periodic runs a Task on a fixed interval from a single goroutine. Runs never overlap.
type Periodic struct {
	name     string
	interval time.Duration
	task     Task
	logger   *zap.Logger

	// RunOnStart triggers the task immediately instead of waiting a full interval.
	RunOnStart bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewPeriodic builds a stopped runner.
func NewPeriodic(name string, interval time.Duration, task Task, logger *zap.Logger) *Periodic {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Periodic{name: name, interval: interval, task: task, logger: logger}
}

// Start launches the ticker goroutine. It reports false when the runner was already running.
func (p *Periodic) Start(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return false
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go p.loop(runCtx, p.done)
	p.logger.Sugar().Infow("periodic job started", "job", p.name, "interval", p.interval.String())
	return true
}

// Stop cancels the loop and waits for an in-flight run to return.
func (p *Periodic) Stop() bool {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return false
	}
	p.cancel()
	done := p.done
	p.running = false
	p.mu.Unlock()

	<-done
	p.logger.Sugar().Infow("periodic job stopped", "job", p.name)
	return true
}

// Running reports whether the loop is active.
func (p *Periodic) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Periodic) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if p.RunOnStart {
		p.task(ctx)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.task(ctx)
		}
	}
}
