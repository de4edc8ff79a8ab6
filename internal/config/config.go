// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

// Package config loads service configuration from defaults, an
// optional YAML file, KEYGATE_* environment variables, and command
// line flags, in that order of precedence.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config is the full service configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Database      DatabaseConfig      `koanf:"database"`
	Session       SessionConfig       `koanf:"session"`
	Login         LoginConfig         `koanf:"login"`
	SMTP          SMTPConfig          `koanf:"smtp"`
	Frontend      FrontendConfig      `koanf:"frontend"`
	Log           LogConfig           `koanf:"log"`
}

// ServerConfig configures the public HTTP API listener.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// ObservabilityConfig configures the metrics and health listener.
type ObservabilityConfig struct {
	Addr string `koanf:"addr"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// SessionConfig configures session token issuance.
type SessionConfig struct {
	Secret string        `koanf:"secret"`
	TTL    time.Duration `koanf:"ttl"`
}

// LoginConfig configures the login attempt limiter.
type LoginConfig struct {
	Ceiling int           `koanf:"ceiling"`
	Window  time.Duration `koanf:"window"`
}

// SMTPConfig configures outbound mail.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
}

// FrontendConfig holds the public URL prefix embedded in emailed links.
type FrontendConfig struct {
	URL string `koanf:"url"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.addr":        ":8080",
		"observability.addr": "127.0.0.1:9100",
		"database.url":       "postgres://localhost:5432/keygate?sslmode=disable",
		"session.secret":     "",
		"session.ttl":        "1h",
		"login.ceiling":      5,
		"login.window":       "15m",
		"smtp.host":          "",
		"smtp.port":          587,
		"smtp.username":      "",
		"smtp.password":      "",
		"smtp.from":          "",
		"frontend.url":       "http://localhost:3000",
		"log.format":         "json",
		"log.level":          "info",
	}
}

// Load assembles the configuration. path is an optional YAML file;
// flags is an optional already-parsed flag set whose dotted flag names
// mirror config keys. Later sources override earlier ones.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").
			With("source", "defaults").
			Wrap(err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("source", "file").
				With("path", path).
				Wrap(err)
		}
	}

	// KEYGATE_DATABASE_URL -> database.url
	err := k.Load(env.Provider("KEYGATE_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "KEYGATE_")), "_", ".")
	}), nil)
	if err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").
			With("source", "env").
			Wrap(err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("source", "flags").
				Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").
			With("source", "unmarshal").
			Wrap(err)
	}

	return &cfg, nil
}

// Validate checks the settings the serve command cannot run without.
func (c *Config) Validate() error {
	if c.Session.Secret == "" {
		return oops.Code("CONFIG_INVALID").Errorf("session.secret is required")
	}
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url is required")
	}
	if c.Login.Ceiling < 0 {
		return oops.Code("CONFIG_INVALID").Errorf("login.ceiling cannot be negative")
	}
	return nil
}
