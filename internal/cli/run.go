package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tallyforge/reconcile/internal/engine"
	"github.com/tallyforge/reconcile/internal/record"
	"github.com/tallyforge/reconcile/internal/rules"
	"github.com/tallyforge/reconcile/internal/scope"
	"github.com/tallyforge/reconcile/internal/store"
)

const dateFlagLayout = "2006-01-02"

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Rules    string
	From     string
	To       string
	Sources  []string
	Apply    bool
	Widen    bool

	// TokenGenerator allows overriding the run token generator (for
	// testing). If nil, defaults to UUIDv7Generator.
	TokenGenerator engine.TokenGenerator

	// Clock allows overriding the time source (for testing).
	Clock func() time.Time
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a reconciliation pass over the database",
		Long: `Run a reconciliation pass: load records in scope, match source feeds
against the ledger through the strategy cascade, and print a report.

Dry-run is the default; nothing is persisted until --apply is given.
Re-running an applied scope is safe: matched records are never
reconsidered and updates are idempotent.

Example:
  reconcile run --db ./books.db --from 2026-03-01 --to 2026-03-31
  reconcile run --db ./books.db --source bank --apply --widen`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Rules, "rules", "", "path to a CUE rules file or directory (default: built-in rules)")
	cmd.Flags().StringVar(&opts.From, "from", "", "scope start date, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.To, "to", "", "scope end date, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&opts.Sources, "source", nil, "restrict to a source feed (repeatable; default: all)")
	cmd.Flags().BoolVar(&opts.Apply, "apply", false, "persist matches (default: dry run)")
	cmd.Flags().BoolVar(&opts.Widen, "widen", false, "run a second pass with widened tolerances")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReconcile(opts *RunOptions, cmd *cobra.Command) error {
	configureLogging(opts.Verbose)

	sc, err := buildScope(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid scope", err)
	}

	rs, err := loadRules(opts.Rules)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load rules", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	var engOpts []engine.Option
	if opts.TokenGenerator != nil {
		engOpts = append(engOpts, engine.WithTokenGenerator(opts.TokenGenerator))
	}
	if opts.Clock != nil {
		engOpts = append(engOpts, engine.WithClock(opts.Clock))
	}
	eng := engine.New(st, rs, engOpts...)

	ctx, cancel := signalContext(cmd)
	defer cancel()

	rpt, runErr := eng.Run(ctx, sc, opts.Widen)
	if rpt != nil {
		if err := renderReport(opts.RootOptions, cmd, rpt); err != nil {
			return WrapExitError(ExitFailure, "failed to render report", err)
		}
	}
	if runErr != nil {
		return WrapExitError(ExitFailure, "run failed", runErr)
	}
	if rpt.WritesFailed > 0 {
		return WrapExitError(ExitFailure,
			fmt.Sprintf("%d record updates failed; re-run the same scope to repair", rpt.WritesFailed), nil)
	}
	return nil
}

// buildScope translates flags into a validated scope.
func buildScope(opts *RunOptions) (scope.Scope, error) {
	sc := scope.Scope{Mode: scope.ModeDryRun}
	if opts.Apply {
		sc.Mode = scope.ModeApply
	}
	if opts.From != "" {
		t, err := time.Parse(dateFlagLayout, opts.From)
		if err != nil {
			return sc, fmt.Errorf("--from: %w", err)
		}
		sc.From = t
	}
	if opts.To != "" {
		t, err := time.Parse(dateFlagLayout, opts.To)
		if err != nil {
			return sc, fmt.Errorf("--to: %w", err)
		}
		sc.To = t
	}
	for _, s := range opts.Sources {
		sc.Sources = append(sc.Sources, record.SourceTag(s))
	}
	if err := sc.Validate(); err != nil {
		return sc, err
	}
	return sc, nil
}

// loadRules compiles the rule set from a path, or the built-in default.
func loadRules(path string) (*rules.RuleSet, error) {
	if path == "" {
		return rules.Default()
	}
	return rules.Load(path)
}

// renderReport writes the run report in the configured format.
func renderReport(opts *RootOptions, cmd *cobra.Command, rpt *engine.Report) error {
	if opts.Format == "json" {
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return f.SuccessJSON(rpt)
	}
	rpt.Render(cmd.OutOrStdout())
	return nil
}

// configureLogging installs the process-wide text handler. Logs go to
// stderr so JSON output on stdout stays machine-readable.
func configureLogging(verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// signalContext derives a context cancelled by SIGINT/SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, stopping", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}
