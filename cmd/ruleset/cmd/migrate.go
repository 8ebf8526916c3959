package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/ruleset/internal/core/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.DB.URL == "" {
			return fmt.Errorf("--db-url required")
		}

		conn, err := db.Open(cmd.Context(), cfg.DB.URL)
		if err != nil {
			return err
		}
		defer conn.Close()

		applied, err := db.MigrateUp(cmd.Context(), conn)
		for _, id := range applied {
			logger.Info().Str("migration", id).Msg("migration applied")
		}
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			logger.Info().Msg("database schema up to date")
		}
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.DB.URL == "" {
			return fmt.Errorf("--db-url required")
		}

		conn, err := db.Open(cmd.Context(), cfg.DB.URL)
		if err != nil {
			return err
		}
		defer conn.Close()

		statuses, err := db.MigrateStatus(cmd.Context(), conn)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MIGRATION\tSTATE\tAPPLIED AT")
		for _, s := range statuses {
			state, at := "pending", "-"
			if s.Applied {
				state = "applied"
				if s.AppliedAt != nil {
					at = s.AppliedAt.Format(time.RFC3339)
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, state, at)
		}
		return w.Flush()
	},
}

func init() {
	migrateCmd.AddCommand(migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}
