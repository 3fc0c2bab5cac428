// Package notify delivers block and warning signals to the user.
package notify

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/rs/zerolog"
)

const WarningTitle = "Time Limit Warning"

// BlockSignal tells the presentation layer an app was pushed out of the foreground.
type BlockSignal struct {
	Package string
	AppName string
	Reason  string
}

// WarnSignal announces remaining time. ID is stable per app so repeated
// warnings replace each other instead of stacking.
type WarnSignal struct {
	Package   string
	AppName   string
	Remaining time.Duration
	ID        uint32
}

// Body renders the warning text.
func (w WarnSignal) Body() string {
	return fmt.Sprintf("%d minutes remaining for this app", int64(w.Remaining/time.Minute))
}

// Notifier surfaces signals to the user.
type Notifier interface {
	Block(ctx context.Context, signal BlockSignal) error
	Warn(ctx context.Context, signal WarnSignal) error
}

// Switcher moves the user away from the foreground app.
type Switcher interface {
	SwitchAway(ctx context.Context, pkg string) error
}

// NotificationID derives a stable notification id from an app identity.
func NotificationID(pkg string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(pkg))
	return h.Sum32()
}

// Log records signals with zerolog. It never fails.
type Log struct {
	logger zerolog.Logger
}

// NewLog creates a logging notifier.
func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger.With().Str("component", "notify").Logger()}
}

func (l *Log) Block(_ context.Context, s BlockSignal) error {
	l.logger.Warn().
		Str("package", s.Package).
		Str("app", s.AppName).
		Str("reason", s.Reason).
		Msg("App blocked")
	return nil
}

func (l *Log) Warn(_ context.Context, s WarnSignal) error {
	l.logger.Info().
		Str("package", s.Package).
		Str("app", s.AppName).
		Dur("remaining", s.Remaining).
		Uint32("notification_id", s.ID).
		Msg(s.Body())
	return nil
}

// Multi fans a signal out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Block(ctx context.Context, s BlockSignal) error {
	var errs []error
	for _, n := range m {
		if err := n.Block(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Warn(ctx context.Context, s WarnSignal) error {
	var errs []error
	for _, n := range m {
		if err := n.Warn(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NopSwitcher leaves the foreground alone.
type NopSwitcher struct{}

func (NopSwitcher) SwitchAway(context.Context, string) error { return nil }
