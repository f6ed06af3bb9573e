package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/sierra-toolchain/internal/toolchain"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Input    string // VersionedProgram JSON path
	OutCasm  string // CASM output path
	GasCheck bool   // enable the gas usage check
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile --input <path> --out-casm <path>",
		Short: "Compile Sierra JSON to textual CASM",
		Long: `Compile a Sierra program to textual CASM.

The program is validated, its ap-change metadata is computed, and the CASM
text is written to --out-casm (parent directories are created). Nothing is
written if any stage fails. --gas-check additionally rejects functions that
can loop without withdrawing gas.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Input, "input", "", "path to VersionedProgram JSON")
	cmd.Flags().StringVar(&opts.OutCasm, "out-casm", "", "output path for CASM text")
	cmd.Flags().BoolVar(&opts.GasCheck, "gas-check", false, "enable gas usage check in Sierra->CASM compiler")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("out-casm")

	return cmd
}

func runCompile(opts *CompileOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	summary, err := toolchain.CompileFile(opts.Input, opts.OutCasm, opts.GasCheck)
	if err != nil {
		return formatter.Fail(err)
	}

	return formatter.Success(summary, func(p *textPrinter) {
		p.status("Compiled %s", opts.Input)
		p.field("out casm", summary.OutCasm)
		p.count("instructions", summary.Instructions)
		p.count("const segments", summary.ConstSegments)
		p.field("gas check", summary.GasCheck)
	})
}
