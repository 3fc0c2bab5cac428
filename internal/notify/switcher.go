package notify

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/goodtune/screentime/internal/sampler"
	"github.com/rs/zerolog"
)

// WindowProbe names the focused window and the process that owns it.
type WindowProbe interface {
	ActiveWindow(ctx context.Context) (window, pkg string, ok bool, err error)
}

// XdotoolSwitcher minimizes the focused window, the desktop analogue of
// sending the user to the home screen. The window is only minimized while it
// still belongs to the blocked app.
type XdotoolSwitcher struct {
	windows  WindowProbe
	minimize func(ctx context.Context, window string) error
	logger   zerolog.Logger
}

// NewXdotoolSwitcher locates xdotool on PATH.
func NewXdotoolSwitcher(logger zerolog.Logger) (*XdotoolSwitcher, error) {
	probe, err := sampler.NewXdotoolProbe()
	if err != nil {
		return nil, err
	}
	bin := probe.Bin()
	return newSwitcher(probe, func(ctx context.Context, window string) error {
		out, err := exec.CommandContext(ctx, bin, "windowminimize", window).CombinedOutput()
		if err != nil {
			return fmt.Errorf("%w: %s", err, out)
		}
		return nil
	}, logger), nil
}

func newSwitcher(windows WindowProbe, minimize func(context.Context, string) error, logger zerolog.Logger) *XdotoolSwitcher {
	return &XdotoolSwitcher{
		windows:  windows,
		minimize: minimize,
		logger:   logger.With().Str("component", "switcher").Logger(),
	}
}

func (s *XdotoolSwitcher) SwitchAway(ctx context.Context, pkg string) error {
	window, active, ok, err := s.windows.ActiveWindow(ctx)
	if err != nil {
		return fmt.Errorf("inspect foreground window: %w", err)
	}
	if !ok || active != pkg {
		s.logger.Debug().
			Str("package", pkg).
			Str("foreground", active).
			Msg("Blocked app no longer in the foreground, not minimizing")
		return nil
	}

	if err := s.minimize(ctx, window); err != nil {
		return fmt.Errorf("minimize %s: %w", pkg, err)
	}
	s.logger.Debug().Str("package", pkg).Str("window", window).Msg("Minimized foreground window")
	return nil
}
