package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/screentime/internal/policy"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/goodtune/screentime/internal/usage"
	"github.com/spf13/cobra"
)

var (
	checkDate   string
	checkWarned bool
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] PACKAGE",
	Short: "Check the enforcement decision for an app",
	Long:  `Evaluate what the enforcement loop would do if PACKAGE were in the foreground now.`,
	Example: `  screentime check firefox
  screentime check --date 2024-07-01 --warned steam`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkDate, "date", "", "Day to evaluate (YYYY-MM-DD) - defaults to today")
	checkCmd.Flags().BoolVar(&checkWarned, "warned", false, "Evaluate as if the app had already been warned this session")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	pkg := args[0]

	env, err := openCLI()
	if err != nil {
		return err
	}
	defer env.Close()

	date := checkDate
	if date == "" {
		date = env.today()
	} else if _, err := storage.ParseDate(date); err != nil {
		return err
	}

	evaluator, err := newEvaluator(env.cfg.Enforcement, env.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize policy evaluator: %w", err)
	}
	engine := policy.NewEngine(env.store, evaluator, env.logger)

	decision, facts, err := engine.Evaluate(cmd.Context(), pkg, date, checkWarned)
	if err != nil {
		return fmt.Errorf("failed to evaluate policy: %w", err)
	}

	printDecision(date, env.cfg.Enforcement.PolicyEngine, facts, decision)
	return nil
}

// printDecision prints the check result with colors
func printDecision(date, engine string, facts policy.Facts, decision policy.Decision) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	_, _ = cyan.Println("Enforcement Check")
	fmt.Println("=================")
	fmt.Printf("Package:    %s\n", facts.Package)
	if facts.AppName != "" {
		fmt.Printf("App:        %s\n", facts.AppName)
	}
	fmt.Printf("Date:       %s\n", date)
	fmt.Printf("Engine:     %s\n", engine)
	fmt.Printf("Blocked:    %t\n", facts.Blocked)
	if facts.HasLimit {
		fmt.Printf("Limit:      %s\n", usage.FormatMillis(facts.LimitMillis))
		fmt.Printf("Used:       %s\n", usage.FormatMillis(facts.UsedMillis))
	} else {
		fmt.Println("Limit:      (none)")
	}
	fmt.Println()

	fmt.Print("Decision:   ")
	switch decision.Action {
	case policy.ActionBlock:
		_, _ = red.Println(decision.Action)
	case policy.ActionWarn:
		_, _ = yellow.Println(decision.Action)
	default:
		_, _ = green.Println(decision.Action)
	}
	if decision.Reason != "" {
		fmt.Printf("Reason:     %s\n", decision.Reason)
	}
	if decision.Action == policy.ActionWarn {
		_, _ = yellow.Printf("Remaining:  %d minutes\n", int64(decision.Remaining/time.Minute))
	}
}
