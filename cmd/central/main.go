// Package main is the entry point for the central binary.
// It delegates immediately to the CLI command tree.
package main

import (
	"context"
	"os"

	"github.com/nox-kernel/central/internal/cli"
	"github.com/nox-kernel/central/internal/logging"
)

func main() {
	err := cli.NewRootCmd().ExecuteContext(context.Background())
	if err == nil {
		return
	}
	logging.Logger().Error("fatal error", "err", err)
	if cli.IsNoRuntimeReachable(err) {
		os.Exit(2)
	}
	os.Exit(1)
}
