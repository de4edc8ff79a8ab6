// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/account"
	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/logging"
	"github.com/keygate/keygate/internal/mail"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Keygate API server",
		Long: `Start the HTTP API server along with the observability endpoints.
Configuration is read from defaults, the config file, KEYGATE_*
environment variables, and flags, in that order of precedence.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	cmd.Flags().String("server.addr", "", "API listen address")
	cmd.Flags().String("observability.addr", "", "metrics/health listen address")
	cmd.Flags().String("database.url", "", "PostgreSQL connection URL")
	cmd.Flags().String("frontend.url", "", "public URL prefix for emailed links")
	cmd.Flags().String("log.format", "", "log format (json or text)")
	cmd.Flags().String("log.level", "", "log level (debug, info, warn, error)")

	return cmd
}

// runServeWithDeps starts the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.applyDefaults()

	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.SetDefault("keygate", version, cfg.Log.Format, cfg.Log.Level)

	slog.Info("starting keygate",
		"addr", cfg.Server.Addr,
		"observability_addr", cfg.Observability.Addr,
	)

	accountStore, err := deps.StoreOpener(ctx, cfg.Database.URL)
	if err != nil {
		return oops.Code("STORE_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer accountStore.Close()

	slog.Info("connected to database")

	sessions, err := account.NewSessionIssuer([]byte(cfg.Session.Secret), cfg.Session.TTL)
	if err != nil {
		return err
	}

	notifier, err := deps.NotifierFactory(mail.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	if err != nil {
		return err
	}

	limiter := account.NewMemoryAttemptLimiter(cfg.Login.Ceiling, cfg.Login.Window)

	svc, err := account.NewService(
		accountStore,
		account.NewArgon2idHasher(),
		sessions,
		limiter,
		notifier,
		cfg.Frontend.URL,
	)
	if err != nil {
		return err
	}
	svc = svc.WithLogger(slog.Default())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Readiness flips true once both servers are up.
	var ready atomic.Bool
	obsServer := deps.ObservabilityServerFactory(cfg.Observability.Addr, ready.Load)

	obsErrChan, err := obsServer.Start()
	if err != nil {
		return oops.With("operation", "start observability server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, obsErrChan, "observability")

	apiServer := deps.APIServerFactory(cfg.Server.Addr, svc, sessions, slog.Default(), obsServer.Metrics())

	apiErrChan, err := apiServer.Start()
	if err != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if stopErr := obsServer.Stop(shutdownCtx); stopErr != nil {
			slog.Warn("failed to stop observability server during cleanup", "error", stopErr)
		}
		return oops.With("operation", "start api server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	ready.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Keygate started")
	slog.Info("keygate ready", "addr", apiServer.Addr())

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		slog.Warn("error stopping api server", "error", err)
	}
	if err := obsServer.Stop(shutdownCtx); err != nil {
		slog.Warn("error stopping observability server", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// monitorServerErrors cancels the run context when a server reports an
// error. Channel close without an error means a clean stop.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errChan <-chan error, name string) {
	select {
	case err, ok := <-errChan:
		if ok && err != nil {
			slog.Error("server failed", "server", name, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
