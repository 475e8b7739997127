package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tallyforge/reconcile/internal/store"
)

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := struct {
		Database string
	}{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the most recent reconciliation run",
		Long: `Show the audit row of the most recent reconciliation run: its token,
mode, scope, and write outcome.

Example:
  reconcile report --db ./books.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(opts.Database)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer st.Close()

			run, found, err := st.LastRun(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read runs", err)
			}
			if !found {
				return WrapExitError(ExitFailure, "no runs recorded", nil)
			}

			if rootOpts.Format == "json" {
				f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
				return f.SuccessJSON(run)
			}
			printRun(cmd, run)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func printRun(cmd *cobra.Command, run store.RunRow) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s\n", run.Token)
	fmt.Fprintf(out, "  started: %s\n", run.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "  mode:    %s\n", run.Mode)
	if run.ScopeFrom != "" || run.ScopeTo != "" {
		fmt.Fprintf(out, "  scope:   %s .. %s\n", orAny(run.ScopeFrom), orAny(run.ScopeTo))
	}
	if run.Sources != "" {
		fmt.Fprintf(out, "  sources: %s\n", run.Sources)
	}
	fmt.Fprintf(out, "  matched: %d\n", run.Matched)
	fmt.Fprintf(out, "  writes:  %d ok, %d failed\n", run.WritesOK, run.WritesFail)
}

func orAny(s string) string {
	if s == "" {
		return "(open)"
	}
	return s
}
