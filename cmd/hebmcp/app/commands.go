// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the hebmcp command-line application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/logger"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/versions"
)

var rootCmd = &cobra.Command{
	Use:               "hebmcp",
	DisableAutoGenTag: true,
	Short:             "OAuth gateway and credential vault for the H-E-B MCP server",
	Long: `hebmcp is the authentication layer for an MCP (Model Context Protocol) server
exposing H-E-B grocery tools. It runs a standards-compliant OAuth 2.0
authorization server for MCP clients and keeps each tenant's vendor
credentials (browser cookies or OAuth tokens) in an encrypted on-disk vault.

MCP clients authenticate with gateway-issued tokens; the gateway maps each
token to a tenant and signs vendor calls with that tenant's stored
credentials.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates a new root command for the hebmcp CLI.
func NewRootCmd() *cobra.Command {
	// Add persistent flags
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	// Add subcommands
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())

	// Silence printing the usage on error
	rootCmd.SilenceUsage = true

	return rootCmd
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Display version information for hebmcp",
		Run: func(_ *cobra.Command, _ []string) {
			info := versions.GetVersionInfo()
			logger.Infof("hebmcp %s (commit %s, built %s, %s, %s)",
				info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
		},
	}
}
