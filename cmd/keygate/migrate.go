// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package main

import (
	"fmt"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/store"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Apply, roll back, and inspect schema migrations against the PostgreSQL database.`,
	}

	cmd.PersistentFlags().String("database.url", "", "PostgreSQL connection URL")

	cmd.AddCommand(
		newMigrateUpCmd(),
		newMigrateDownCmd(),
		newMigrateVersionCmd(),
		newMigrateForceCmd(),
	)

	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				cmd.Println("Running migrations...")
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	}
}

func newMigrateDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				cmd.Println("Rolling back one migration...")
				if err := m.Steps(-1); err != nil {
					return err
				}
				cmd.Println("Rollback completed successfully")
				return nil
			})
		},
	}
}

func newMigrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the current migration version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				cmd.Println(formatMigrationVersion(version, dirty))
				return nil
			})
		},
	}
}

func newMigrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Force the migration version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, func(m *store.Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced version to %d\n", version)
				return nil
			})
		},
	}
}

// formatMigrationVersion renders the version subcommand's output.
// Version 0 means the schema has never been migrated; applied
// migrations start at 1.
func formatMigrationVersion(version uint, dirty bool) string {
	if version == 0 {
		return "No migrations applied yet"
	}
	if dirty {
		return fmt.Sprintf("Version: %d (dirty)", version)
	}
	return fmt.Sprintf("Version: %d", version)
}

func parseForceVersion(s string) (int, error) {
	version, err := strconv.Atoi(s)
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer")
	}
	return version, nil
}

// withMigrator loads configuration, opens a migrator, and closes it
// after fn runs.
func withMigrator(cmd *cobra.Command, fn func(m *store.Migrator) error) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url is required")
	}

	m, err := store.NewMigrator(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrf("warning: failed to close migrator: %v\n", closeErr)
		}
	}()

	return fn(m)
}
