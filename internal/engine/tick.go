// Package engine provides the tick-based simulation loop.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultTickInterval is the wall-clock spacing between ticks.
const DefaultTickInterval = time.Second

// Engine drives a simulation forward on a fixed interval. Ticks run on a
// single goroutine, so a slow tick delays the next one instead of overlapping it.
type Engine struct {
	Interval time.Duration

	// OnTick runs once per interval.
	OnTick func(ctx context.Context)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	ticks   uint64
}

// NewEngine creates an engine with the given interval.
func NewEngine(interval time.Duration) *Engine {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Engine{Interval: interval}
}

// Start launches the tick loop. Starting a running engine is a no-op and
// returns false.
func (e *Engine) Start(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	e.running = true
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.run(ctx, e.done)
	slog.Info("simulation engine started", "interval", e.Interval)
	return true
}

// Stop halts the loop and waits for an in-flight tick to finish. Stopping a
// stopped engine is a no-op and returns false.
func (e *Engine) Stop() bool {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return false
	}
	e.running = false
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	cancel()
	<-done
	slog.Info("simulation engine stopped", "ticks", e.Ticks())
	return true
}

// Running reports whether the loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Ticks returns how many ticks this engine has run.
func (e *Engine) Ticks() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ticks
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.OnTick != nil {
				e.OnTick(ctx)
			}
			e.mu.Lock()
			e.ticks++
			e.mu.Unlock()
		}
	}
}
