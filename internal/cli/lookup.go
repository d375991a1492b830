package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/prudhvinik1/crmsync/internal/app"
	"github.com/prudhvinik1/crmsync/internal/models"
	"github.com/prudhvinik1/crmsync/internal/repositories"
	"github.com/prudhvinik1/crmsync/internal/utils"
)

// NewLookupCommand creates the lookup command for inspecting and correcting
// the external key lookup table.
func NewLookupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Inspect or correct external key lookup rows",
	}
	cmd.AddCommand(newLookupListCommand(rootOpts))
	cmd.AddCommand(newLookupSetCommand(rootOpts))
	cmd.AddCommand(newLookupDeleteCommand(rootOpts))
	return cmd
}

// keyFlags are the tuple columns other than the local type and id.
type keyFlags struct {
	provider    string
	environment string
	remoteType  string
}

func (k *keyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&k.provider, "provider", "", "provider name (default CRM_DEFAULT_PROVIDER)")
	cmd.Flags().StringVar(&k.environment, "environment", "", "environment (default CRM_DEFAULT_ENVIRONMENT)")
	cmd.Flags().StringVar(&k.remoteType, "remote-type", "", "remote object type")
	_ = cmd.MarkFlagRequired("remote-type")
}

func (k *keyFlags) key(deps *app.App, localType, localID string) (models.LookupKey, error) {
	id, err := normalizeLocalID(deps, localID)
	if err != nil {
		return models.LookupKey{}, err
	}
	provider, environment := k.provider, k.environment
	if provider == "" {
		provider = deps.Config.DefaultProvider
	}
	if environment == "" {
		environment = deps.Config.DefaultEnvironment
	}
	return models.LookupKey{
		LocalType:   localType,
		LocalID:     id,
		Provider:    provider,
		Environment: environment,
		RemoteType:  k.remoteType,
	}, nil
}

// normalizeLocalID puts id in the form syncs store it under.
func normalizeLocalID(deps *app.App, id string) (string, error) {
	normalized, err := utils.NormalizeLocalID(deps.Config.PrimaryKeyFormat, id)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "invalid local id", err)
	}
	return normalized, nil
}

// withApp builds the dependencies for one lookup command.
func withApp(cmd *cobra.Command, fn func(deps *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	deps, err := app.Build(cmd.Context(), cfg, app.NewLogger(cfg, cmd.ErrOrStderr()))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize", err)
	}
	defer deps.Close()
	return fn(deps)
}

func newLookupListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "list <local-type> <local-id>",
		Short:        "List the lookup rows of a local record",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(deps *app.App) error {
				localID, err := normalizeLocalID(deps, args[1])
				if err != nil {
					return err
				}
				rows, err := deps.Lookups.ListByLocal(cmd.Context(), args[0], localID)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list lookups", err)
				}
				if rows == nil {
					rows = []*models.ExternalKeyLookup{}
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).print(rows, func(w io.Writer) {
					fmt.Fprintln(w, "PROVIDER\tENVIRONMENT\tREMOTE TYPE\tREMOTE ID\tUPDATED")
					for _, row := range rows {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", row.Provider, row.Environment, row.RemoteType, row.RemoteID, row.UpdatedAt.Format("2006-01-02 15:04:05"))
					}
				})
			})
		},
	}
}

func newLookupSetCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &keyFlags{}
	var remoteID string

	cmd := &cobra.Command{
		Use:          "set <local-type> <local-id>",
		Short:        "Insert or repoint a lookup row",
		Long:         "Insert or repoint a lookup row. Use this to correct a mapping by hand; syncs never overwrite an existing row.",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(deps *app.App) error {
				key, err := flags.key(deps, args[0], args[1])
				if err != nil {
					return err
				}
				row := models.NewLookup(key, remoteID)
				if err := deps.Lookups.Upsert(cmd.Context(), row); err != nil {
					return WrapExitError(ExitFailure, "failed to save lookup", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", row.Key(), remoteID)
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&remoteID, "remote-id", "", "remote object id")
	_ = cmd.MarkFlagRequired("remote-id")
	return cmd
}

func newLookupDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &keyFlags{}

	cmd := &cobra.Command{
		Use:          "delete <local-type> <local-id>",
		Short:        "Remove a lookup row",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(deps *app.App) error {
				key, err := flags.key(deps, args[0], args[1])
				if err != nil {
					return err
				}
				err = deps.Lookups.Delete(cmd.Context(), key)
				if errors.Is(err, repositories.ErrNotFound) {
					return NewExitError(ExitFailure, fmt.Sprintf("no lookup for %s", key))
				}
				if err != nil {
					return WrapExitError(ExitFailure, "failed to delete lookup", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", key)
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}
