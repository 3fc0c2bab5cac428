package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goodtune/screentime/internal/storage"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var blockName string

var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "Manage the app denylist",
}

var blockAddCmd = &cobra.Command{
	Use:     "add [flags] PACKAGE",
	Short:   "Block an app",
	Example: `  screentime block add steam --name Steam`,
	Args:    cobra.ExactArgs(1),
	RunE:    runBlockAdd,
}

var blockRmCmd = &cobra.Command{
	Use:     "rm PACKAGE",
	Aliases: []string{"delete"},
	Short:   "Remove an app from the denylist",
	Args:    cobra.ExactArgs(1),
	RunE:    runBlockRm,
}

var blockEnableCmd = &cobra.Command{
	Use:   "enable PACKAGE",
	Short: "Enable a block",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setBlockEnabled(cmd, args[0], true) },
}

var blockDisableCmd = &cobra.Command{
	Use:   "disable PACKAGE",
	Short: "Disable a block without removing it",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setBlockEnabled(cmd, args[0], false) },
}

var blockListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List blocked apps",
	Args:    cobra.NoArgs,
	RunE:    runBlockList,
}

func init() {
	blockAddCmd.Flags().StringVar(&blockName, "name", "", "Display name (defaults to the package)")

	blockCmd.AddCommand(blockAddCmd, blockRmCmd, blockEnableCmd, blockDisableCmd, blockListCmd)
	rootCmd.AddCommand(blockCmd)
}

func runBlockAdd(cmd *cobra.Command, args []string) error {
	env, err := openCLI()
	if err != nil {
		return err
	}
	defer env.Close()

	pkg := args[0]
	name := blockName
	if name == "" {
		name = pkg
	}

	err = env.store.Blocks().Upsert(cmd.Context(), storage.BlockPolicy{
		Package:     pkg,
		AppName:     name,
		Enabled:     true,
		AddedMillis: env.clock.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to block app: %w", err)
	}

	fmt.Printf("Blocked %s\n", name)
	return nil
}

func runBlockRm(cmd *cobra.Command, args []string) error {
	env, err := openCLI()
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.store.Blocks().Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to unblock app: %w", err)
	}
	fmt.Printf("Removed %s from the denylist\n", args[0])
	return nil
}

func setBlockEnabled(cmd *cobra.Command, pkg string, enabled bool) error {
	env, err := openCLI()
	if err != nil {
		return err
	}
	defer env.Close()

	err = env.store.Blocks().SetEnabled(cmd.Context(), pkg, enabled)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s is not on the denylist", pkg)
	}
	if err != nil {
		return fmt.Errorf("failed to update block: %w", err)
	}

	fmt.Printf("Block on %s %s\n", pkg, stateVerb(enabled))
	return nil
}

func runBlockList(cmd *cobra.Command, args []string) error {
	env, err := openCLI()
	if err != nil {
		return err
	}
	defer env.Close()

	blocks, err := env.store.Blocks().List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list blocks: %w", err)
	}
	if len(blocks) == 0 {
		fmt.Println("No apps are blocked.")
		return nil
	}

	tw := newTable(os.Stdout, table.Row{"Package", "App", "Added", "Enabled"})
	for _, b := range blocks {
		added := ""
		if b.AddedMillis > 0 {
			added = time.UnixMilli(b.AddedMillis).In(env.loc).Format("2006-01-02 15:04")
		}
		tw.AppendRow(table.Row{b.Package, b.AppName, added, enabledLabel(b.Enabled)})
	}
	tw.Render()
	return nil
}
