// Package engine drives a neighborhood forward tick by tick and records the
// statistics history of a run.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultReportEvery is how many ticks pass between OnReport calls.
const DefaultReportEvery = 10

// Engine paces a simulation in wall-clock time for live observation.
// Batch runs use Run instead.
type Engine struct {
	Tick        uint64        // Ticks completed so far
	Interval    time.Duration // Base tick interval at speed 1.0
	ReportEvery uint64        // Ticks between OnReport calls, 0 disables

	// OnTick advances the simulation. Returning false stops the engine.
	OnTick func(tick uint64) bool
	// OnReport runs every ReportEvery ticks after OnTick.
	OnReport func(tick uint64)

	mu      sync.Mutex
	speed   float64 // 1.0 = real-time, 0 = paused
	running bool
	stop    chan struct{}
}

// NewEngine creates an engine with default settings.
func NewEngine() *Engine {
	return &Engine{
		Interval:    time.Second,
		ReportEvery: DefaultReportEvery,
		speed:       1.0,
		stop:        make(chan struct{}),
	}
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the speed multiplier. Zero or below pauses the engine.
func (e *Engine) SetSpeed(speed float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.speed = speed
}

// Running reports whether Run is in progress.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Run starts the tick loop. It blocks until OnTick returns false, Stop is
// called or ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	slog.Info("simulation engine started", "tick", e.Tick, "speed", e.Speed())

	for {
		speed := e.Speed()
		wait := 100 * time.Millisecond
		if speed > 0 {
			start := time.Now()
			if !e.step() {
				break
			}
			wait = 0
			// Sleep for the remainder of the tick interval, adjusted for speed.
			target := time.Duration(float64(e.Interval) / speed)
			if elapsed := time.Since(start); elapsed < target {
				wait = target - elapsed
			}
		}
		select {
		case <-ctx.Done():
			slog.Info("simulation engine cancelled", "tick", e.Tick)
			return
		case <-e.stop:
			slog.Info("simulation engine stopped", "tick", e.Tick)
			return
		case <-time.After(wait):
		}
	}

	slog.Info("simulation engine finished", "tick", e.Tick)
}

// Stop halts the tick loop. It is safe to call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.stop:
	default:
		close(e.stop)
	}
}

// step advances one tick and reports whether the loop should continue.
func (e *Engine) step() bool {
	cont := true
	if e.OnTick != nil {
		cont = e.OnTick(e.Tick)
	}
	e.Tick++
	if e.ReportEvery > 0 && e.Tick%e.ReportEvery == 0 && e.OnReport != nil {
		e.OnReport(e.Tick)
	}
	return cont
}
