package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/goodtune/screentime/internal/config"
	"github.com/goodtune/screentime/internal/enforce"
	"github.com/goodtune/screentime/internal/lifecycle"
	"github.com/goodtune/screentime/internal/metrics"
	"github.com/goodtune/screentime/internal/notify"
	"github.com/goodtune/screentime/internal/policy"
	"github.com/goodtune/screentime/internal/policy/opa"
	"github.com/goodtune/screentime/internal/sampler"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/goodtune/screentime/internal/storage/bolt"
	"github.com/goodtune/screentime/internal/storage/redis"
	"github.com/goodtune/screentime/internal/storage/sqlite"
	"github.com/goodtune/screentime/internal/systemd"
	"github.com/goodtune/screentime/internal/usage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the screentime daemon",
	Long:  `Start usage tracking, limit enforcement, usage retention and the metrics endpoint.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting screentime")

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return err
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("path", cfg.Storage.Path).
		Msg("Storage initialized")

	evaluator, err := newEvaluator(cfg.Enforcement, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize policy evaluator: %w", err)
	}
	policyEngine := policy.NewEngine(store, evaluator, logger)

	logger.Info().
		Str("policy_engine", cfg.Enforcement.PolicyEngine).
		Msg("Policy Engine initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := quartz.NewReal()

	// The desktop sampler feeds both loops.
	desktop := sampler.NewDesktop(newProbe(logger), clock, sampler.DesktopConfig{
		PollInterval: parseDuration(cfg.Sampler.PollInterval, time.Second),
		MaxGap:       parseDuration(cfg.Sampler.MaxGap, 5*time.Second),
		Location:     loc,
	}, logger)

	restored, err := usage.Restore(ctx, store.Usage(), desktop, storage.Day(clock.Now().In(loc)))
	if err != nil {
		return fmt.Errorf("failed to restore today's usage: %w", err)
	}
	logger.Info().Int("records", restored).Msg("Restored today's usage")

	samplerDone := make(chan struct{})
	go func() {
		defer close(samplerDone)
		if err := desktop.Run(ctx); err != nil {
			logger.Warn().Err(err).Msg("Desktop sampler stopped")
		}
	}()

	resolver := sampler.NewProcessResolver(
		cfg.Sampler.AppNames,
		cfg.Sampler.NameCacheSize,
		parseDuration(cfg.Sampler.NameCacheTTL, 10*time.Minute),
	)

	var tracking, enforcement *lifecycle.Loop
	if cfg.Tracking.Enabled {
		reconciler := usage.NewReconciler(store.Usage(), desktop, resolver, clock, loc, logger)
		tracking = lifecycle.NewTrackingLoop(reconciler, parseDuration(cfg.Tracking.Interval, 30*time.Second), clock, logger)
	}
	if cfg.Enforcement.Enabled {
		notifier, switcher := newSignals(cfg.Notifications, logger)
		enforcer := enforce.NewEnforcer(desktop, policyEngine, notifier, switcher, clock, enforce.Config{
			Window:   parseDuration(cfg.Enforcement.ForegroundWindow, enforce.DefaultWindow),
			Location: loc,
		}, logger)
		enforcement = lifecycle.NewEnforcementLoop(enforcer, parseDuration(cfg.Enforcement.Interval, 2*time.Second), clock, logger)
	}
	supervisor := lifecycle.NewSupervisor(tracking, enforcement, logger)

	retention, err := usage.NewRetentionScheduler(
		store.Usage(),
		cfg.Tracking.RetentionDays,
		cfg.Tracking.RetentionSchedule,
		clock,
		loc,
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize retention scheduler: %w", err)
	}
	retention.Start()

	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, logger)
	if sdListeners.Activated && sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}
	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start Metrics Server: %w", err)
	}

	if err := supervisor.Boot(ctx); err != nil {
		return fmt.Errorf("failed to start loops: %w", err)
	}

	logger.Info().Msg("screentime startup complete")
	logger.Info().Msgf("Metrics: http://%s/metrics", metricsAddr)

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}
	startWatchdog(ctx, clock, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for sig := range sigChan {
		if sig != syscall.SIGHUP {
			logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received, gracefully stopping...")
			break
		}

		logger.Info().Msg("SIGHUP received, reloading policies...")
		_ = systemd.NotifyReloading()
		if err := policyEngine.Reload(); err != nil {
			logger.Error().Err(err).Msg("Failed to reload policies")
		} else {
			logger.Info().Msg("Policies reloaded successfully")
		}
		_ = systemd.NotifyReady()
	}

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	supervisor.Shutdown()
	cancel()
	<-samplerDone
	retention.Stop()

	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping Metrics Server")
	}

	logger.Info().Msg("screentime stopped")
	return nil
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "bolt":
		return bolt.Open(cfg.Path)
	case "sqlite":
		return sqlite.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (must be bolt, sqlite or redis)", cfg.Type)
	}
}

func newEvaluator(cfg config.EnforcementConfig, logger zerolog.Logger) (policy.Evaluator, error) {
	if cfg.PolicyEngine != "opa" {
		return policy.Builtin{}, nil
	}
	return opa.NewEngine(opa.Config{PolicyDir: cfg.OPAPolicyDir}, logger)
}

// newProbe returns the X11 probe, or one that always reports the access
// failure so both loops go idle instead of the daemon exiting.
func newProbe(logger zerolog.Logger) sampler.Probe {
	probe, err := sampler.NewXdotoolProbe()
	if err != nil {
		logger.Warn().Err(err).Msg("Foreground usage is not observable, tracking and enforcement will idle")
		return deniedProbe{err: err}
	}
	return probe
}

type deniedProbe struct {
	err error
}

func (p deniedProbe) Active(context.Context) (string, bool, error) {
	return "", false, p.err
}

func newSignals(cfg config.NotificationsConfig, logger zerolog.Logger) (notify.Notifier, notify.Switcher) {
	notifiers := notify.Multi{notify.NewLog(logger)}
	if cfg.Desktop {
		notifiers = append(notifiers, notify.NewDesktop())
	}

	var switcher notify.Switcher = notify.NopSwitcher{}
	if cfg.SwitchAway {
		s, err := notify.NewXdotoolSwitcher(logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Blocked apps will not be minimized")
		} else {
			switcher = s
		}
	}
	return notifiers, switcher
}

func startWatchdog(ctx context.Context, clock quartz.Clock, logger zerolog.Logger) {
	interval, err := systemd.WatchdogInterval()
	if err != nil {
		logger.Warn().Err(err).Msg("Ignoring systemd watchdog settings")
		return
	}
	if interval <= 0 {
		return
	}
	clock.TickerFunc(ctx, interval, func() error {
		if err := systemd.NotifyWatchdog(); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn().Err(err).Msg("Failed to send systemd watchdog notification")
		}
		return nil
	}, "systemd", "watchdog")
	logger.Debug().Dur("interval", interval).Msg("systemd watchdog enabled")
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
