package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/prudhvinik1/crmsync/internal/config"
	"github.com/prudhvinik1/crmsync/internal/database"
)

// NewMigrateCommand creates the migrate command and its up/down children.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres lookup table schema",
		Long: `Apply or revert the external key lookup migrations.

Only the postgres lookup store is migrated. The sqlite schema is applied
whenever the database is opened.`,
	}

	up := &cobra.Command{
		Use:          "up",
		Short:        "Apply all pending migrations",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			databaseURL, err := postgresURL()
			if err != nil {
				return err
			}
			if err := database.MigratePostgres(databaseURL); err != nil {
				return WrapExitError(ExitFailure, "migrate up", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:          "down",
		Short:        "Revert migrations",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			databaseURL, err := postgresURL()
			if err != nil {
				return err
			}
			if err := database.RollbackPostgres(databaseURL, steps); err != nil {
				return WrapExitError(ExitFailure, "migrate down", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reverted %d migration(s)\n", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")

	cmd.AddCommand(up, down)
	return cmd
}

func postgresURL() (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.LookupStore != config.StorePostgres {
		return "", NewExitError(ExitCommandError, fmt.Sprintf("migrations apply to the postgres store, LOOKUP_STORE is %q", cfg.LookupStore))
	}
	return cfg.DatabaseURL, nil
}
