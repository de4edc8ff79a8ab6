// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Keygate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygate",
		Short: "Keygate - credential and token lifecycle service",
		Long: `Keygate manages account credentials and the tokens that gate them:
session tokens, email verification tokens, and password reset codes,
backed by PostgreSQL and delivered over a JSON HTTP API.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
