package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prudhvinik1/crmsync/internal/app"
	"github.com/prudhvinik1/crmsync/internal/crm"
	"github.com/prudhvinik1/crmsync/internal/models"
	"github.com/prudhvinik1/crmsync/internal/orchestrator"
	"github.com/prudhvinik1/crmsync/internal/services"
)

type syncOptions struct {
	actions        []string
	environments   []string
	providers      []string
	noAssociations bool
	hardDelete     bool
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &syncOptions{}

	cmd := &cobra.Command{
		Use:   "sync <record.json>",
		Short: "Sync one record described by a JSON envelope",
		Long: `Sync one local record to the configured CRMs.

The file holds a record envelope: {"type", "id", "fields", "relations"}.
Use "-" to read it from stdin. The sync definition is taken from
MODEL_DEFINITIONS by the record type.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rootOpts, opts, args[0])
		},
	}

	cmd.Flags().StringSliceVarP(&opts.actions, "actions", "a", nil, "actions to run: create, update, delete, restore or patch (default patch)")
	cmd.Flags().StringSliceVarP(&opts.environments, "environment", "e", nil, "restrict to these environments")
	cmd.Flags().StringSliceVarP(&opts.providers, "provider", "p", nil, "restrict to these providers")
	cmd.Flags().BoolVar(&opts.noAssociations, "no-associations", false, "skip association reconciliation")
	cmd.Flags().BoolVar(&opts.hardDelete, "hard-delete", false, "archive the remote object on delete instead of soft deleting")

	return cmd
}

func runSync(cmd *cobra.Command, rootOpts *RootOptions, opts *syncOptions, path string) error {
	actions, err := orchestrator.ParseActions(opts.actions...)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --actions", err)
	}

	envelope, err := readEnvelope(cmd.InOrStdin(), path)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	deps, err := app.Build(cmd.Context(), cfg, app.NewLogger(cfg, cmd.ErrOrStderr()))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize", err)
	}
	defer deps.Close()

	var syncOpts []services.SyncOption
	if opts.noAssociations {
		syncOpts = append(syncOpts, services.WithoutAssociations())
	}
	if len(opts.environments) > 0 {
		syncOpts = append(syncOpts, services.WithEnvironments(opts.environments...))
	}
	if len(opts.providers) > 0 {
		syncOpts = append(syncOpts, services.WithProviders(opts.providers...))
	}
	if opts.hardDelete {
		syncOpts = append(syncOpts, services.HardDelete())
	}

	report, err := deps.Sync.Sync(cmd.Context(), envelope.ToRecord(deps.Definitions.Lookup), actions, syncOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("sync rejected (%s)", crm.CodeOf(err)), err)
	}

	if err := newFormatter(rootOpts, cmd.OutOrStdout()).print(report, func(w io.Writer) {
		printReport(w, report)
	}); err != nil {
		return err
	}

	if failed := report.Failed(); len(failed) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d unit(s) failed", len(failed)))
	}
	return nil
}

func readEnvelope(stdin io.Reader, path string) (*models.RecordEnvelope, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open record", err)
		}
		defer f.Close()
		r = f
	}

	var envelope models.RecordEnvelope
	if err := json.NewDecoder(r).Decode(&envelope); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to decode record", err)
	}
	if envelope.Type == "" || envelope.ID == "" {
		return nil, NewExitError(ExitCommandError, "record type and id are required")
	}
	return &envelope, nil
}

func printReport(w io.Writer, report *orchestrator.Report) {
	fmt.Fprintf(w, "%s:%s\tactions=%s\tcorrelation=%s\n", report.LocalType, report.LocalID, report.Actions, report.CorrelationID)
	if report.Skipped != "" {
		fmt.Fprintf(w, "skipped: %s\n", report.Skipped)
		return
	}
	fmt.Fprintln(w, "ENVIRONMENT\tPROVIDER\tREMOTE TYPE\tREMOTE ID\tOUTCOME\tSTATE\tERROR")
	for _, u := range report.Units {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			u.Environment, u.Provider, u.RemoteType, dash(u.RemoteID), u.Outcome, u.State, dash(u.Error))
		for _, a := range u.Associations {
			status := "ok"
			switch {
			case a.Skipped:
				status = "skipped"
			case a.Error != "":
				status = "failed"
			}
			fmt.Fprintf(w, "  %s -> %s:%s\t%s\t%s\n", a.Accessor, a.TargetType, dash(a.TargetID), status, dash(a.Error))
		}
	}
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
