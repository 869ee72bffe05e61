// Command pnftm operates a private-price NFT marketplace stored in SQLite.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/pnftm/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
