package main

import (
	"github.com/nightglove/cadence/cmd"
)

func main() {
	// Command-line parsing, configuration and logger setup all live in cmd.
	cmd.Execute()
}
