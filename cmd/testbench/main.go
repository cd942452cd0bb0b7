// Command testbench bootstraps disposable applications and runs bootstrap
// scenarios against them.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/testbench/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
