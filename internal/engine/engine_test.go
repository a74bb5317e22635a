package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEngineStartStopIdempotent(t *testing.T) {
	e := NewEngine(5 * time.Millisecond)
	var n atomic.Int64
	e.OnTick = func(context.Context) { n.Add(1) }

	assert.True(t, e.Start(context.Background()))
	assert.False(t, e.Start(context.Background()))
	assert.True(t, e.Running())

	assert.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)

	assert.True(t, e.Stop())
	assert.False(t, e.Stop())
	assert.False(t, e.Running())

	stopped := n.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, n.Load())
	assert.Equal(t, uint64(stopped), e.Ticks())
}

func TestEngineTicksNeverOverlap(t *testing.T) {
	e := NewEngine(time.Millisecond)
	var inFlight, overlaps atomic.Int64
	e.OnTick = func(context.Context) {
		if inFlight.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(3 * time.Millisecond)
		inFlight.Add(-1)
	}
	e.Start(context.Background())
	assert.Eventually(t, func() bool { return e.Ticks() >= 5 }, time.Second, time.Millisecond)
	e.Stop()
	assert.Zero(t, overlaps.Load())
}

func TestEngineStopsWithParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := NewEngine(time.Millisecond)
	var n atomic.Int64
	e.OnTick = func(context.Context) { n.Add(1) }
	e.Start(ctx)
	cancel()

	time.Sleep(10 * time.Millisecond)
	settled := n.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, settled, n.Load())
	assert.True(t, e.Stop())
}

func TestNewEngineDefaultsInterval(t *testing.T) {
	assert.Equal(t, DefaultTickInterval, NewEngine(0).Interval)
}
