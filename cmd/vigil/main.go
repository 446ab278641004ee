// Package main provides the entry point for the vigil file integrity checker.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitChanged = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := Execute(ctx)
	stop()
	os.Exit(exitCode(err))
}

// exitCode maps a command error to the process exit status and reports
// failures on stderr.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errChangesDetected):
		return exitChanged
	default:
		printError("%v", err)
		return exitFailure
	}
}
