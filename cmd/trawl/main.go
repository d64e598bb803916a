package main

import (
	"fmt"
	"os"

	"trawl/internal/cli"
)

// runMain executes the root command and returns the exit code; extracted so
// tests can call it without exiting the process.
func runMain() int {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	exitCode := runMain()
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
