package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/mario/internal/core/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage journal database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrateUp,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrateStatus,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := db.Open(cfg.Journal.DBURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	applied, err := db.MigrateUp(database)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(applied) == 0 {
		fmt.Fprintln(out, "database is up to date")
		return nil
	}
	for _, id := range applied {
		fmt.Fprintf(out, "applied %s\n", id)
	}
	return nil
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := db.Open(cfg.Journal.DBURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	status, err := db.MigrateStatus(database)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(status))
	for _, m := range status {
		state, at := "pending", ""
		if m.Applied {
			state, at = "applied", m.AppliedAt
		}
		rows = append(rows, []string{m.ID, state, at})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"MIGRATION", "STATE", "APPLIED AT"},
		rows,
		func(row int) bool { return !status[row].Applied },
	))
	return nil
}
