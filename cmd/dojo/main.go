// Command dojo records mathematical patterns, relates them in a graph and
// trains domain specialists from it.
//
// Usage:
//
//	dojo ingest algebra "x^2 - 1 = (x-1)(x+1)"
//	dojo link P2 P1 --kind derives-from
//	dojo train algebra --actor desktop
//	dojo serve          # arena workers + MCP server on stdio
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/dojo/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		if !cli.IsReported(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
