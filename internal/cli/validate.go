package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/sierra-toolchain/internal/toolchain"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Input string // VersionedProgram JSON path
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate --input <path>",
		Short: "Validate Sierra program structure and specialization",
		Long: `Validate a Sierra program against the program registry.

Every type and libfunc declaration must specialize, and every statement must
match the signature of the libfunc it invokes. On success the counts of
declarations, statements and functions are printed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Input, "input", "", "path to VersionedProgram JSON")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	summary, err := toolchain.Validate(opts.Input)
	if err != nil {
		return formatter.Fail(err)
	}

	return formatter.Success(summary, func(p *textPrinter) {
		p.status("Validated %s", opts.Input)
		p.count("type declarations", summary.TypeDeclarations)
		p.count("libfunc declarations", summary.LibfuncDeclarations)
		p.count("statements", summary.Statements)
		p.count("functions", summary.Functions)
	})
}
