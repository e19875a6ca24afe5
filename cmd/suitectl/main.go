// Command suitectl inspects the output of suite runs.
package main

import (
	"os"

	"github.com/psantana5/testsuite/cmd/suitectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
