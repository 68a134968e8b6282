// Command locus is the CLI surface over the code context engine.
package main

import (
	"fmt"
	"os"

	"github.com/locus-dev/locus/cmd/locus/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
