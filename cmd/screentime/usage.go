package main

import (
	"fmt"
	"os"
	"time"

	"github.com/goodtune/screentime/internal/usage"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	usageDays int
	usageTop  int
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show recorded foreground time",
}

var usageTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show today's usage per app",
	Args:  cobra.NoArgs,
	RunE:  runUsageToday,
}

var usageWeekCmd = &cobra.Command{
	Use:   "week",
	Short: "Summarize the last seven days",
	Args:  cobra.NoArgs,
	RunE:  runUsageWeek,
}

var usageAppCmd = &cobra.Command{
	Use:     "app [flags] PACKAGE",
	Short:   "Show daily usage history for one app",
	Example: `  screentime usage app firefox --days 14`,
	Args:    cobra.ExactArgs(1),
	RunE:    runUsageApp,
}

func init() {
	usageTodayCmd.Flags().IntVar(&usageTop, "top", 0, "Only show the N most used apps")
	usageAppCmd.Flags().IntVar(&usageDays, "days", 7, "Number of days to show")

	usageCmd.AddCommand(usageTodayCmd, usageWeekCmd, usageAppCmd)
	rootCmd.AddCommand(usageCmd)
}

func runUsageToday(cmd *cobra.Command, args []string) error {
	env, err := openCLI()
	if err != nil {
		return err
	}
	defer env.Close()

	report := usage.NewReport(env.store.Usage(), env.clock, env.loc)
	records, total, err := report.Today(cmd.Context())
	if err != nil {
		return err
	}
	if usageTop > 0 && len(records) > usageTop {
		records = records[:usageTop]
	}

	fmt.Printf("Screen time today: %s\n", usage.FormatMillis(total))
	if len(records) == 0 {
		return nil
	}

	tw := newTable(os.Stdout, table.Row{"App", "Package", "Time"})
	for _, r := range records {
		tw.AppendRow(table.Row{r.AppName, r.Package, usage.FormatMillis(r.TotalTimeMillis)})
	}
	tw.Render()
	return nil
}

func runUsageWeek(cmd *cobra.Command, args []string) error {
	env, err := openCLI()
	if err != nil {
		return err
	}
	defer env.Close()

	report := usage.NewReport(env.store.Usage(), env.clock, env.loc)
	summary, err := report.WeeklySummary(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("%s to %s\n", summary.Start, summary.End)
	fmt.Printf("Total:         %s\n", usage.FormatMillis(summary.TotalMillis))
	fmt.Printf("Daily average: %s\n", usage.FormatMillis(summary.DailyAverageMillis))

	days := newTable(os.Stdout, table.Row{"Date", "Time"})
	for _, d := range summary.Days {
		days.AppendRow(table.Row{d.Date, usage.FormatMillis(d.TotalMillis)})
	}
	days.Render()

	if len(summary.TopApps) > 0 {
		top := newTable(os.Stdout, table.Row{"#", "App", "Time"})
		top.SetTitle("Top apps")
		for i, a := range summary.TopApps {
			top.AppendRow(table.Row{i + 1, a.AppName, usage.FormatMillis(a.TotalMillis)})
		}
		top.Render()
	}
	return nil
}

func runUsageApp(cmd *cobra.Command, args []string) error {
	env, err := openCLI()
	if err != nil {
		return err
	}
	defer env.Close()

	report := usage.NewReport(env.store.Usage(), env.clock, env.loc)
	records, err := report.AppHistory(cmd.Context(), args[0], usageDays)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Printf("No usage recorded for %s in the last %d days.\n", args[0], usageDays)
		return nil
	}

	tw := newTable(os.Stdout, table.Row{"Date", "Time", "Last used"})
	for _, r := range records {
		last := ""
		if r.LastUsedMillis > 0 {
			last = time.UnixMilli(r.LastUsedMillis).In(env.loc).Format("15:04")
		}
		tw.AppendRow(table.Row{r.Date, usage.FormatMillis(r.TotalTimeMillis), last})
	}
	tw.Render()
	return nil
}
