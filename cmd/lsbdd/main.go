// Package main provides lsbdd, the control tool for the log-structured
// virtual block device layer.
package main

import (
	"os"

	"github.com/qrutyy/ls-bdd/internal/cli"
)

func main() {
	exitCode := cli.Run(os.Stdin, os.Stdout, os.Stderr, os.Args, os.Environ())

	os.Exit(exitCode)
}
