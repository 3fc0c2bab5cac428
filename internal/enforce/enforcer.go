// Package enforce applies policy decisions to the foreground app.
package enforce

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/goodtune/screentime/internal/metrics"
	"github.com/goodtune/screentime/internal/notify"
	"github.com/goodtune/screentime/internal/policy"
	"github.com/goodtune/screentime/internal/sampler"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/rs/zerolog"
)

// DefaultWindow is how far back a foreground observation still counts.
const DefaultWindow = 3 * time.Second

// Evaluator decides what to do about one app. *policy.Engine implements it.
type Evaluator interface {
	Evaluate(ctx context.Context, pkg, today string, warned bool) (policy.Decision, policy.Facts, error)
}

// Config holds enforcer settings
type Config struct {
	Window   time.Duration
	Location *time.Location
}

// Enforcer runs one enforcement pass per tick.
type Enforcer struct {
	sampler  sampler.Sampler
	engine   Evaluator
	notifier notify.Notifier
	switcher notify.Switcher
	warnings *WarningState
	clock    quartz.Clock
	cfg      Config
	logger   zerolog.Logger
}

// NewEnforcer creates an enforcer. A nil switcher never moves the user away.
func NewEnforcer(s sampler.Sampler, engine Evaluator, notifier notify.Notifier, switcher notify.Switcher, clock quartz.Clock, cfg Config, logger zerolog.Logger) *Enforcer {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if switcher == nil {
		switcher = notify.NopSwitcher{}
	}
	return &Enforcer{
		sampler:  s,
		engine:   engine,
		notifier: notifier,
		switcher: switcher,
		warnings: NewWarningState(),
		clock:    clock,
		cfg:      cfg,
		logger:   logger.With().Str("component", "enforcer").Logger(),
	}
}

// Warnings exposes the session's warning state.
func (e *Enforcer) Warnings() *WarningState {
	return e.warnings
}

// Reset starts a new enforcement session. Apps warned before are warned again.
func (e *Enforcer) Reset(context.Context) error {
	e.warnings.Reset()
	return nil
}

// Tick inspects the foreground app once and applies the decision.
// Signal delivery failures are logged; only sampler and store failures are returned.
func (e *Enforcer) Tick(ctx context.Context) (policy.Decision, error) {
	start := time.Now()
	decision, err := e.tick(ctx)
	metrics.TickDuration.WithLabelValues("enforcement").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EnforcementErrors.Inc()
		return decision, err
	}
	metrics.Decisions.WithLabelValues(string(decision.Action)).Inc()
	return decision, nil
}

func (e *Enforcer) tick(ctx context.Context) (policy.Decision, error) {
	now := e.clock.Now().In(e.cfg.Location)

	pkg, ok, err := e.sampler.ForegroundApp(ctx, now.Add(-e.cfg.Window), now)
	if err != nil {
		return policy.Decision{Action: policy.ActionNone}, fmt.Errorf("foreground app: %w", err)
	}
	if !ok {
		return policy.Decision{Action: policy.ActionNone}, nil
	}

	decision, facts, err := e.engine.Evaluate(ctx, pkg, storage.Day(now), e.warnings.Has(pkg))
	if err != nil {
		return policy.Decision{Action: policy.ActionNone}, fmt.Errorf("evaluate %s: %w", pkg, err)
	}

	appName := facts.AppName
	if appName == "" {
		appName = pkg
	}

	switch decision.Action {
	case policy.ActionBlock:
		e.block(ctx, pkg, appName, decision)
	case policy.ActionWarn:
		e.warn(ctx, pkg, appName, decision)
	}

	return decision, nil
}

func (e *Enforcer) block(ctx context.Context, pkg, appName string, decision policy.Decision) {
	e.logger.Info().
		Str("package", pkg).
		Str("app", appName).
		Str("reason", decision.Reason).
		Msg("Blocking foreground app")

	if err := e.switcher.SwitchAway(ctx, pkg); err != nil {
		e.logger.Error().Err(err).Str("package", pkg).Msg("Failed to switch away from blocked app")
	}
	if err := e.notifier.Block(ctx, notify.BlockSignal{
		Package: pkg,
		AppName: appName,
		Reason:  decision.Reason,
	}); err != nil {
		e.logger.Error().Err(err).Str("package", pkg).Msg("Failed to deliver block signal")
	}
}

// warn marks the app before notifying so a failed delivery is not retried
// every tick.
func (e *Enforcer) warn(ctx context.Context, pkg, appName string, decision policy.Decision) {
	if !e.warnings.Add(pkg) {
		return
	}

	e.logger.Info().
		Str("package", pkg).
		Str("app", appName).
		Dur("remaining", decision.Remaining).
		Msg("Warning about approaching limit")

	if err := e.notifier.Warn(ctx, notify.WarnSignal{
		Package:   pkg,
		AppName:   appName,
		Remaining: decision.Remaining,
		ID:        notify.NotificationID(pkg),
	}); err != nil {
		e.logger.Error().Err(err).Str("package", pkg).Msg("Failed to deliver warning")
	}
}
