package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tallyforge/reconcile/internal/rules"
)

// RulesSummary describes a successfully compiled rule set.
type RulesSummary struct {
	Valid             bool `json:"valid"`
	ProcessorPrefixes int  `json:"processor_prefixes"`
	KnownNames        int  `json:"known_names"`
	LegalSuffixes     int  `json:"legal_suffixes"`
	ExtractPatterns   int  `json:"extract_patterns"`
}

// NewValidateRulesCommand creates the validate-rules command.
func NewValidateRulesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-rules [rules-path]",
		Short: "Compile a rule set and report errors",
		Long: `Compile a CUE rules file or directory against the built-in schema and
report errors with file positions. With no argument, checks the built-in
default rules.

Example:
  reconcile validate-rules ./rules.cue
  reconcile validate-rules ./rules/`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runValidateRules(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidateRules(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	rs, err := loadRules(path)
	if err != nil {
		var ce *rules.CompileError
		if errors.As(err, &ce) {
			_ = formatter.Error("E_RULES", ce.Message, ce.File)
			return WrapExitError(ExitFailure, "rules invalid", err)
		}
		_ = formatter.Error("E_RULES", err.Error(), nil)
		return WrapExitError(ExitFailure, "rules invalid", err)
	}

	summary := RulesSummary{
		Valid:             true,
		ProcessorPrefixes: len(rs.Tables.ProcessorPrefixes),
		KnownNames:        len(rs.Tables.KnownNames),
		LegalSuffixes:     len(rs.Tables.LegalSuffixes),
		ExtractPatterns:   len(rs.Tables.ExtractPatterns),
	}

	if opts.Format == "json" {
		return formatter.SuccessJSON(summary)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Rules valid")
	fmt.Fprintf(cmd.OutOrStdout(), "  processor prefixes: %d\n", summary.ProcessorPrefixes)
	fmt.Fprintf(cmd.OutOrStdout(), "  known names:        %d\n", summary.KnownNames)
	fmt.Fprintf(cmd.OutOrStdout(), "  legal suffixes:     %d\n", summary.LegalSuffixes)
	fmt.Fprintf(cmd.OutOrStdout(), "  extract patterns:   %d\n", summary.ExtractPatterns)
	return nil
}
