// Package lifecycle starts and stops the periodic tracking and enforcement loops.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"github.com/goodtune/screentime/internal/metrics"
	"github.com/goodtune/screentime/internal/sampler"
	"github.com/rs/zerolog"
)

// TickFunc performs one iteration of a loop.
type TickFunc func(ctx context.Context) error

// LoopConfig describes a periodic loop.
type LoopConfig struct {
	Name     string
	Interval time.Duration
	Tick     TickFunc
	// OnStart runs before the first tick of every start. A failure aborts the start.
	OnStart func(ctx context.Context) error
}

// Loop runs Tick once on start and then every Interval until stopped.
// Ticks never overlap. Start and Stop are idempotent.
type Loop struct {
	cfg    LoopConfig
	clock  quartz.Clock
	logger zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	idle atomic.Bool
}

func NewLoop(cfg LoopConfig, clock quartz.Clock, logger zerolog.Logger) *Loop {
	return &Loop{
		cfg:    cfg,
		clock:  clock,
		logger: logger.With().Str("component", "loop").Str("loop", cfg.Name).Logger(),
	}
}

func (l *Loop) Name() string {
	return l.cfg.Name
}

// Running reports whether the loop has been started and not stopped.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

// Idle reports whether the loop stopped working because usage access was denied.
func (l *Loop) Idle() bool {
	return l.idle.Load()
}

// Start launches the loop. Calling Start on a running loop does nothing.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		l.logger.Debug().Msg("Loop already running")
		return nil
	}

	if l.cfg.OnStart != nil {
		if err := l.cfg.OnStart(ctx); err != nil {
			return err
		}
	}

	l.idle.Store(false)
	metrics.LoopIdle.WithLabelValues(l.cfg.Name).Set(0)

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel, l.done = cancel, done

	go func() {
		defer close(done)
		l.runTick(loopCtx)
		w := l.clock.TickerFunc(loopCtx, l.cfg.Interval, func() error {
			l.runTick(loopCtx)
			return nil
		}, "lifecycle", l.cfg.Name)
		_ = w.Wait()
	}()

	metrics.LoopRunning.WithLabelValues(l.cfg.Name).Set(1)
	l.logger.Info().Dur("interval", l.cfg.Interval).Msg("Loop started")
	return nil
}

// Stop cancels the loop and waits for an in-flight tick to finish.
// Calling Stop on a stopped loop does nothing.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	l.cancel, l.done = nil, nil

	metrics.LoopRunning.WithLabelValues(l.cfg.Name).Set(0)
	l.logger.Info().Msg("Loop stopped")
}

// runTick runs one tick. Cancellation only takes effect between ticks, so a
// tick that has started always completes its writes.
func (l *Loop) runTick(ctx context.Context) {
	if ctx.Err() != nil || l.idle.Load() {
		return
	}

	err := l.cfg.Tick(context.WithoutCancel(ctx))
	switch {
	case err == nil:
	case errors.Is(err, sampler.ErrPermissionDenied):
		l.idle.Store(true)
		metrics.LoopIdle.WithLabelValues(l.cfg.Name).Set(1)
		l.logger.Warn().Err(err).Msg("Usage access denied, loop is idle until restarted")
	default:
		l.logger.Error().Err(err).Msg("Tick failed")
	}
}
