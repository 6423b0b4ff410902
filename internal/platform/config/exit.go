package config

import (
	"fmt"
	"io"
	"os"
)

// Exit codes used by CLI entry points.
const (
	ExitFailure = 1
	ExitUsage   = 2
)

var (
	exitOutput io.Writer = os.Stderr
	exitFunc             = os.Exit
)

// Exitf writes a formatted error message to stderr and exits with
// ExitFailure.
func Exitf(format string, args ...any) {
	ExitCodef(ExitFailure, format, args...)
}

// ExitCodef writes a formatted error message to stderr and exits with code.
func ExitCodef(code int, format string, args ...any) {
	fmt.Fprintf(exitOutput, format+"\n", args...)
	exitFunc(code)
}
