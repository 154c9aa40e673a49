// Command simbridge bridges cockpit hardware on two serial links to a
// flight simulator's autopilot and radio controls.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/simbridge/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
