package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goodtune/screentime/internal/policy"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/goodtune/screentime/internal/usage"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var limitName string

var limitCmd = &cobra.Command{
	Use:   "limit",
	Short: "Manage per-app daily time limits",
}

var limitSetCmd = &cobra.Command{
	Use:   "set [flags] PACKAGE LIMIT",
	Short: "Create or replace a daily limit",
	Example: `  screentime limit set firefox 1h30m --name Firefox
  screentime limit set steam 90`,
	Args: cobra.ExactArgs(2),
	RunE: runLimitSet,
}

var limitRmCmd = &cobra.Command{
	Use:     "rm PACKAGE",
	Aliases: []string{"delete"},
	Short:   "Remove a daily limit",
	Args:    cobra.ExactArgs(1),
	RunE:    runLimitRm,
}

var limitEnableCmd = &cobra.Command{
	Use:   "enable PACKAGE",
	Short: "Enable a daily limit",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setLimitEnabled(cmd, args[0], true) },
}

var limitDisableCmd = &cobra.Command{
	Use:   "disable PACKAGE",
	Short: "Disable a daily limit without removing it",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setLimitEnabled(cmd, args[0], false) },
}

var limitListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List daily limits with today's usage",
	Args:    cobra.NoArgs,
	RunE:    runLimitList,
}

func init() {
	limitSetCmd.Flags().StringVar(&limitName, "name", "", "Display name (defaults to the package)")

	limitCmd.AddCommand(limitSetCmd, limitRmCmd, limitEnableCmd, limitDisableCmd, limitListCmd)
	rootCmd.AddCommand(limitCmd)
}

func runLimitSet(cmd *cobra.Command, args []string) error {
	pkg := args[0]
	limit, err := parseLimit(args[1])
	if err != nil {
		return err
	}

	env, err := openCLI()
	if err != nil {
		return err
	}
	defer env.Close()

	name := limitName
	if name == "" {
		name = pkg
	}

	err = env.store.Limits().Upsert(cmd.Context(), storage.LimitPolicy{
		Package:          pkg,
		AppName:          name,
		DailyLimitMillis: limit.Milliseconds(),
		Enabled:          true,
	})
	if err != nil {
		return fmt.Errorf("failed to set limit: %w", err)
	}

	fmt.Printf("Daily limit for %s set to %s\n", name, usage.FormatDuration(limit))
	return nil
}

func runLimitRm(cmd *cobra.Command, args []string) error {
	env, err := openCLI()
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.store.Limits().Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to remove limit: %w", err)
	}
	fmt.Printf("Removed daily limit for %s\n", args[0])
	return nil
}

func setLimitEnabled(cmd *cobra.Command, pkg string, enabled bool) error {
	env, err := openCLI()
	if err != nil {
		return err
	}
	defer env.Close()

	err = env.store.Limits().SetEnabled(cmd.Context(), pkg, enabled)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no daily limit for %s", pkg)
	}
	if err != nil {
		return fmt.Errorf("failed to update limit: %w", err)
	}

	fmt.Printf("Daily limit for %s %s\n", pkg, stateVerb(enabled))
	return nil
}

func runLimitList(cmd *cobra.Command, args []string) error {
	env, err := openCLI()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := cmd.Context()
	limits, err := env.store.Limits().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list limits: %w", err)
	}
	if len(limits) == 0 {
		fmt.Println("No daily limits configured.")
		return nil
	}

	engine := policy.NewEngine(env.store, nil, env.logger)
	today := env.today()

	tw := newTable(os.Stdout, table.Row{"Package", "App", "Daily limit", "Used today", "Remaining", "Enabled"})
	for _, l := range limits {
		used, err := engine.UsedToday(ctx, l.Package, today)
		if err != nil {
			return err
		}
		remaining := l.DailyLimitMillis - used
		if remaining < 0 {
			remaining = 0
		}
		tw.AppendRow(table.Row{
			l.Package,
			l.AppName,
			usage.FormatMillis(l.DailyLimitMillis),
			usage.FormatMillis(used),
			usage.FormatDuration(time.Duration(remaining) * time.Millisecond),
			enabledLabel(l.Enabled),
		})
	}
	tw.Render()
	return nil
}
