// Command sierra-toolchain validates and compiles Sierra programs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/sierra-toolchain/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	err := cmd.Execute()
	if err != nil && !cli.IsReported(err) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Run '%s --help' for usage.\n", cmd.CommandPath())
	}
	os.Exit(cli.GetExitCode(err))
}
