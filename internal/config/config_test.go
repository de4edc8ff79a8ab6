// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/pkg/errutil"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "127.0.0.1:9100", cfg.Observability.Addr)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
	assert.Equal(t, 5, cfg.Login.Ceiling)
	assert.Equal(t, 15*time.Minute, cfg.Login.Window)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "http://localhost:3000", cfg.Frontend.URL)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keygate.yaml")
	content := `
server:
  addr: ":9999"
session:
  secret: file-secret
  ttl: 30m
login:
  ceiling: 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "file-secret", cfg.Session.Secret)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
	assert.Equal(t, 10, cfg.Login.Ceiling)
	// Untouched keys keep their defaults.
	assert.Equal(t, 15*time.Minute, cfg.Login.Window)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keygate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  secret: file-secret\n"), 0o600))

	t.Setenv("KEYGATE_SESSION_SECRET", "env-secret")
	t.Setenv("KEYGATE_DATABASE_URL", "postgres://env-host:5432/keygate")

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Session.Secret)
	assert.Equal(t, "postgres://env-host:5432/keygate", cfg.Database.URL)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("KEYGATE_SERVER_ADDR", ":7777")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("server.addr", "", "listen address")
	require.NoError(t, flags.Parse([]string{"--server.addr", ":6666"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, ":6666", cfg.Server.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/keygate.yaml", nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("", nil)
		require.NoError(t, err)
		cfg.Session.Secret = "some-secret"
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	t.Run("missing session secret", func(t *testing.T) {
		cfg := valid()
		cfg.Session.Secret = ""
		err := cfg.Validate()
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})

	t.Run("missing database url", func(t *testing.T) {
		cfg := valid()
		cfg.Database.URL = ""
		err := cfg.Validate()
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})

	t.Run("negative login ceiling", func(t *testing.T) {
		cfg := valid()
		cfg.Login.Ceiling = -1
		err := cfg.Validate()
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})
}
