// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/pkg/errutil"
)

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion int
		wantErr     bool
	}{
		{
			name:        "valid integer",
			input:       "3",
			wantVersion: 3,
		},
		{
			name:        "zero is valid",
			input:       "0",
			wantVersion: 0,
		},
		{
			name:        "negative is valid",
			input:       "-1",
			wantVersion: -1,
		},
		{
			name:    "non-numeric returns error",
			input:   "abc",
			wantErr: true,
		},
		{
			name:    "float returns error",
			input:   "1.5",
			wantErr: true,
		},
		{
			name:    "trailing chars return error",
			input:   "3abc",
			wantErr: true,
		},
		{
			name:    "empty string returns error",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, err := parseForceVersion(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "INVALID_VERSION")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, version)
		})
	}
}

func TestFormatMigrationVersion(t *testing.T) {
	tests := []struct {
		name     string
		version  uint
		dirty    bool
		expected string
	}{
		{
			name:     "fresh database reports nothing applied",
			version:  0,
			expected: "No migrations applied yet",
		},
		{
			name:     "clean version",
			version:  3,
			expected: "Version: 3",
		},
		{
			name:     "dirty version",
			version:  5,
			dirty:    true,
			expected: "Version: 5 (dirty)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatMigrationVersion(tt.version, tt.dirty))
		})
	}
}

func TestMigrateCommand_HasExpectedSubcommands(t *testing.T) {
	cmd := NewMigrateCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	for _, sub := range []string{"up", "down", "version", "force"} {
		assert.Contains(t, output, sub, "Help missing %q subcommand", sub)
	}
}

func TestMigrateCommand_Properties(t *testing.T) {
	cmd := NewMigrateCmd()

	assert.Equal(t, "migrate", cmd.Use)
	assert.Contains(t, cmd.Short, "migration", "Short description should mention migrations")
	assert.Contains(t, cmd.Long, "PostgreSQL", "Long description should mention PostgreSQL")
}

func TestMigrateForce_RequiresVersionArg(t *testing.T) {
	cmd := NewMigrateCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"force"})

	require.Error(t, cmd.Execute())
}

func TestMigrateForce_RejectsNonNumericVersion(t *testing.T) {
	configFile = ""

	cmd := NewMigrateCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"force", "abc"})

	err := cmd.Execute()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "INVALID_VERSION")
}

func TestMigrateUp_InvalidDatabaseURL(t *testing.T) {
	t.Setenv("KEYGATE_DATABASE_URL", "://not-a-url")
	configFile = ""

	cmd := NewMigrateCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"up"})

	require.Error(t, cmd.Execute())
}
