package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/goodtune/screentime/internal/policy"
	"github.com/rs/zerolog"
)

const (
	TrackingLoop    = "tracking"
	EnforcementLoop = "enforcement"
)

// ErrDisabled is returned when starting a loop that was not configured.
var ErrDisabled = errors.New("loop is disabled")

// Reconciler is the per-tick work of the tracking loop.
type Reconciler interface {
	Tick(ctx context.Context) (int, error)
}

// Enforcer is the per-tick work of the enforcement loop.
type Enforcer interface {
	Tick(ctx context.Context) (policy.Decision, error)
	Reset(ctx context.Context) error
}

// NewTrackingLoop wraps a reconciler in a loop.
func NewTrackingLoop(r Reconciler, interval time.Duration, clock quartz.Clock, logger zerolog.Logger) *Loop {
	return NewLoop(LoopConfig{
		Name:     TrackingLoop,
		Interval: interval,
		Tick: func(ctx context.Context) error {
			_, err := r.Tick(ctx)
			return err
		},
	}, clock, logger)
}

// NewEnforcementLoop wraps an enforcer in a loop. Every start begins a new
// warning session.
func NewEnforcementLoop(e Enforcer, interval time.Duration, clock quartz.Clock, logger zerolog.Logger) *Loop {
	return NewLoop(LoopConfig{
		Name:     EnforcementLoop,
		Interval: interval,
		Tick: func(ctx context.Context) error {
			_, err := e.Tick(ctx)
			return err
		},
		OnStart: e.Reset,
	}, clock, logger)
}

// Supervisor owns both loops. A nil loop is disabled.
type Supervisor struct {
	tracking    *Loop
	enforcement *Loop
	logger      zerolog.Logger
}

func NewSupervisor(tracking, enforcement *Loop, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		tracking:    tracking,
		enforcement: enforcement,
		logger:      logger.With().Str("component", "supervisor").Logger(),
	}
}

func (s *Supervisor) StartTracking(ctx context.Context) error {
	return start(ctx, s.tracking, TrackingLoop)
}

func (s *Supervisor) StopTracking() {
	if s.tracking != nil {
		s.tracking.Stop()
	}
}

func (s *Supervisor) StartEnforcement(ctx context.Context) error {
	return start(ctx, s.enforcement, EnforcementLoop)
}

func (s *Supervisor) StopEnforcement() {
	if s.enforcement != nil {
		s.enforcement.Stop()
	}
}

// Boot starts every configured loop.
func (s *Supervisor) Boot(ctx context.Context) error {
	if s.tracking != nil {
		if err := s.StartTracking(ctx); err != nil {
			return err
		}
	}
	if s.enforcement != nil {
		if err := s.StartEnforcement(ctx); err != nil {
			s.StopTracking()
			return err
		}
	}
	s.logger.Info().
		Bool("tracking", s.tracking != nil).
		Bool("enforcement", s.enforcement != nil).
		Msg("Loops booted")
	return nil
}

// Shutdown stops both loops, enforcement first.
func (s *Supervisor) Shutdown() {
	s.StopEnforcement()
	s.StopTracking()
	s.logger.Info().Msg("Loops stopped")
}

// Status describes one loop.
type Status struct {
	Name    string
	Enabled bool
	Running bool
	Idle    bool
}

func (s *Supervisor) Status() []Status {
	return []Status{status(s.tracking, TrackingLoop), status(s.enforcement, EnforcementLoop)}
}

func start(ctx context.Context, l *Loop, name string) error {
	if l == nil {
		return fmt.Errorf("start %s: %w", name, ErrDisabled)
	}
	if err := l.Start(ctx); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	return nil
}

func status(l *Loop, name string) Status {
	if l == nil {
		return Status{Name: name}
	}
	return Status{Name: name, Enabled: true, Running: l.Running(), Idle: l.Idle()}
}
