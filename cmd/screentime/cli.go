package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coder/quartz"
	"github.com/goodtune/screentime/internal/config"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
)

// cliEnv is what one-shot commands need: configuration, a quiet logger and the store.
type cliEnv struct {
	cfg    *config.Config
	store  storage.Store
	loc    *time.Location
	clock  quartz.Clock
	logger zerolog.Logger
}

func openCLI() (*cliEnv, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	return &cliEnv{
		cfg:    cfg,
		store:  store,
		loc:    loc,
		clock:  quartz.NewReal(),
		logger: zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger(),
	}, nil
}

func (e *cliEnv) Close() {
	_ = e.store.Close()
}

func (e *cliEnv) today() string {
	return storage.Day(e.clock.Now().In(e.loc))
}

func newTable(w io.Writer, header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	return tw
}

func enabledLabel(enabled bool) string {
	if enabled {
		return "yes"
	}
	return "no"
}

func stateVerb(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

// parseLimit accepts Go durations ("1h30m") and bare minutes ("90").
func parseLimit(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if minutes, err := strconv.Atoi(s); err == nil {
		return time.Duration(minutes) * time.Minute, nil
	}
	return 0, fmt.Errorf("invalid limit %q: use a duration like 1h30m or a number of minutes", s)
}
