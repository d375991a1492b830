package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/prudhvinik1/crmsync/internal/utils"
)

// NewHashSecretCommand prints the bcrypt hash for API_CLIENT_SECRET_HASH.
func NewHashSecretCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "hash-secret <secret>",
		Short:        "Hash an API client secret",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := utils.HashSecret(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "hash-secret", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
