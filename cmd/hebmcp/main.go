// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the hebmcp gateway.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/iHildy/heb-sdk-unofficial-sub000/cmd/hebmcp/app"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/logger"
)

func main() {
	// Initialize the logger
	logger.Initialize()

	// Create a context that will be canceled on signal
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
