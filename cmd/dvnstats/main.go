// Command dvnstats runs the cross-chain messaging configuration indexer:
// it consumes the security-config event stream, maintains the derived
// per-route state, and serves it over a read-only HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/sekuba/dvnstats-sub001/cmd/dvnstats/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
