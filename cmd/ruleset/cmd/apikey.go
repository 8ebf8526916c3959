package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/solatis/ruleset/internal/core/auth"
	"github.com/solatis/ruleset/internal/core/config"
	"github.com/solatis/ruleset/internal/core/db"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys for the evaluation service",
}

// openAuthenticator connects to the key store with the configured HMAC secrets.
func openAuthenticator(cmd *cobra.Command) (*auth.Authenticator, *sqlx.DB, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DB.URL == "" {
		return nil, nil, fmt.Errorf("--db-url required")
	}
	secrets, err := config.HMACSecrets()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return nil, nil, fmt.Errorf("no HMAC secrets configured (set %s_HMAC_SECRET environment variable)", config.EnvPrefix)
	}

	conn, err := openMigrated(cmd.Context(), cfg.DB.URL)
	if err != nil {
		return nil, nil, err
	}
	q, err := db.LoadQueries(conn)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return auth.NewAuthenticator(secrets, q, logger), conn, nil
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create LABEL",
	Short: "Issue a new API key; the key is printed once",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, conn, err := openAuthenticator(cmd)
		if err != nil {
			return err
		}
		defer conn.Close()

		secretID, _ := cmd.Flags().GetString("secret-id")
		key, _, err := a.Issue(cmd.Context(), args[0], secretID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke LABEL",
	Short: "Revoke every active key issued under LABEL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, conn, err := openAuthenticator(cmd)
		if err != nil {
			return err
		}
		defer conn.Close()

		n, err := a.Revoke(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("no active keys labelled %q", args[0])
		}
		return nil
	},
}

var apikeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List issued API keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, conn, err := openAuthenticator(cmd)
		if err != nil {
			return err
		}
		defer conn.Close()

		keys, err := a.List(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tLABEL\tSECRET\tCREATED\tLAST USED\tREVOKED")
		for _, k := range keys {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				k.ID, k.Label, k.SecretID, k.CreatedAt.Format(time.RFC3339),
				nullTime(k.LastUsedAt.Valid, k.LastUsedAt.Time), nullTime(k.RevokedAt.Valid, k.RevokedAt.Time))
		}
		return w.Flush()
	},
}

func nullTime(valid bool, t time.Time) string {
	if !valid {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func init() {
	apikeyCreateCmd.Flags().String("secret-id", "", "HMAC secret ID to bind the key to (default: newest)")
	apikeyCmd.AddCommand(apikeyCreateCmd, apikeyRevokeCmd, apikeyListCmd)
	rootCmd.AddCommand(apikeyCmd)
}
