package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/ruleset/internal/core/catalogfile"
	"github.com/solatis/ruleset/internal/core/db"
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Store a catalog document's schema and catalogs in the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.DB.URL == "" {
			return fmt.Errorf("--db-url required")
		}

		doc, err := catalogfile.Load(args[0])
		if err != nil {
			return err
		}

		// an invalid schema is rejected before anything is stored; condition
		// problems are reported and the catalogs are stored as written
		compiler, err := newCompiler(cfg.Engine, doc.Schema, logger)
		if err != nil {
			return err
		}
		for _, cat := range doc.Catalogs {
			if _, err := compiler.Compile(cat); err != nil {
				logDiagnostics(logger.With().Str("catalog", cat.Name).Logger(), err)
			}
		}

		conn, err := openMigrated(cmd.Context(), cfg.DB.URL)
		if err != nil {
			return err
		}
		defer conn.Close()
		store, err := db.NewStore(conn)
		if err != nil {
			return err
		}

		if len(doc.Schema) > 0 {
			if err := store.SaveSchema(cmd.Context(), doc.Schema); err != nil {
				return err
			}
		}
		for _, cat := range doc.Catalogs {
			rec, err := store.SaveCatalog(cmd.Context(), cat)
			if err != nil {
				return err
			}
			logger.Info().
				Str("catalog", cat.Name).
				Str("catalog_id", string(rec.ID)).
				Int64("revision", rec.Revision).
				Msg("catalog imported")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
