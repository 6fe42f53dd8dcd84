package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moolen/tripwire/internal/logging"
)

// Loop runs a Pipeline periodically. It implements lifecycle.Component.
type Loop struct {
	pipeline *Pipeline
	interval atomic.Int64
	logger   *logging.Logger

	// OnOutcome, if set, receives every successful run.
	OnOutcome func(*Outcome)

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
	runs    atomic.Int64
}

// NewLoop creates a loop running p every interval.
func NewLoop(p *Pipeline, interval time.Duration) (*Loop, error) {
	if p == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", interval)
	}
	l := &Loop{pipeline: p, logger: logging.GetLogger("pipeline.loop")}
	l.interval.Store(int64(interval))
	return l, nil
}

// Name implements lifecycle.Component.
func (l *Loop) Name() string {
	return "Detection Loop"
}

// SetInterval changes the delay before the next run.
func (l *Loop) SetInterval(interval time.Duration) {
	if interval > 0 {
		l.interval.Store(int64(interval))
	}
}

// Interval returns the current run interval.
func (l *Loop) Interval() time.Duration {
	return time.Duration(l.interval.Load())
}

// Runs returns the number of completed runs, failed ones included.
func (l *Loop) Runs() int64 {
	return l.runs.Load()
}

// Start runs the pipeline once immediately and then every interval until Stop.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.cancel = cancel
	l.stopped = make(chan struct{})

	go l.loop(runCtx)
	l.logger.Info("Detection loop started (interval %v)", l.Interval())
	return nil
}

func (l *Loop) loop(ctx context.Context) {
	defer close(l.stopped)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			l.runOnce(ctx)
			timer.Reset(l.Interval())
		}
	}
}

func (l *Loop) runOnce(ctx context.Context) {
	defer l.runs.Add(1)

	outcome, err := l.pipeline.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			l.logger.Error("Detection run failed: %v", err)
		}
		return
	}
	if l.OnOutcome != nil {
		l.OnOutcome(outcome)
	}
}

// Stop cancels the loop and waits for an in-flight run to finish.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel == nil {
		return nil
	}
	l.cancel()
	l.cancel = nil

	select {
	case <-l.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
