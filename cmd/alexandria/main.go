// Command alexandria captures the screen periodically and keeps a
// searchable index of what was on it.
package main

import (
	"os"

	"github.com/harun/alexandria/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
