// Command netrecon is the network reconnaissance engine.
package main

import "github.com/anstrom/netrecon/cmd/cli"

// Set by -ldflags "-X main.version=... -X main.commit=... -X main.buildTime=...".
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
