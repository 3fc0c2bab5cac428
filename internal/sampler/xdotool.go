package sampler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/cli/safeexec"
	"github.com/shirou/gopsutil/v4/process"
)

// XdotoolProbe reads the focused X11 window through xdotool and names it by
// the executable of the owning process.
type XdotoolProbe struct {
	bin string
}

// NewXdotoolProbe locates xdotool. A missing binary or display means the
// foreground cannot be observed at all, reported as ErrPermissionDenied.
func NewXdotoolProbe() (*XdotoolProbe, error) {
	if os.Getenv("DISPLAY") == "" {
		return nil, fmt.Errorf("%w: no X display", ErrPermissionDenied)
	}
	bin, err := safeexec.LookPath("xdotool")
	if err != nil {
		return nil, fmt.Errorf("%w: xdotool not found: %v", ErrPermissionDenied, err)
	}
	return &XdotoolProbe{bin: bin}, nil
}

// Bin is the resolved xdotool path.
func (p *XdotoolProbe) Bin() string {
	return p.bin
}

func (p *XdotoolProbe) Active(ctx context.Context) (string, bool, error) {
	_, pkg, ok, err := p.ActiveWindow(ctx)
	return pkg, ok, err
}

// ActiveWindow returns the focused window id and the name of its process.
// ok is false when nothing is focused or the owner cannot be named.
func (p *XdotoolProbe) ActiveWindow(ctx context.Context) (window, pkg string, ok bool, err error) {
	window, ok, err = p.run(ctx, "getactivewindow")
	if err != nil || !ok {
		return "", "", false, err
	}

	out, ok, err := p.run(ctx, "getwindowpid", window)
	if err != nil || !ok {
		return "", "", false, err
	}
	pid, err := strconv.ParseInt(out, 10, 32)
	if err != nil {
		return "", "", false, fmt.Errorf("parse window pid %q: %w", out, err)
	}

	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return "", "", false, nil
	}
	name, err := proc.NameWithContext(ctx)
	if err != nil || name == "" {
		return "", "", false, nil
	}
	return window, name, true, nil
}

// run executes xdotool and returns trimmed stdout. A non-zero exit means
// there is no such window, e.g. the desktop itself has focus.
func (p *XdotoolProbe) run(ctx context.Context, args ...string) (string, bool, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("run xdotool %s: %w", args[0], err)
	}
	return strings.TrimSpace(stdout.String()), true, nil
}
