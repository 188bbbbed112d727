// Command scanflow is the network vulnerability scan orchestrator CLI.
package main

import (
	"github.com/avolpe/scanflow/cmd/cli"
)

// Build information, set by ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
