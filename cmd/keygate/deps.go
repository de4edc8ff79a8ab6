// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/keygate/keygate/internal/account"
	"github.com/keygate/keygate/internal/account/postgres"
	"github.com/keygate/keygate/internal/httpapi"
	"github.com/keygate/keygate/internal/mail"
	"github.com/keygate/keygate/internal/observability"
	"github.com/keygate/keygate/internal/store"
)

// AccountStore is an account.Store with a connection lifecycle.
type AccountStore interface {
	account.Store
	Close()
}

// APIServer wraps the methods used from httpapi.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreOpener connects to the database and returns the account store.
	// Default: store.Connect wrapped in the pgx repository.
	StoreOpener func(ctx context.Context, databaseURL string) (AccountStore, error)

	// NotifierFactory creates the mail notifier.
	// Default: mail.NewSMTPNotifier
	NotifierFactory func(cfg mail.Config) (account.Notifier, error)

	// APIServerFactory creates the API server.
	// Default: httpapi.NewServer
	APIServerFactory func(addr string, svc httpapi.AccountService, sessions *account.SessionIssuer, logger *slog.Logger, metrics *observability.Metrics) APIServer

	// ObservabilityServerFactory creates the metrics/health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer
}

// pgAccountStore couples the pgx repository with its pool so the
// connection closes with the store.
type pgAccountStore struct {
	*postgres.AccountRepository
	close func()
}

func (s *pgAccountStore) Close() { s.close() }

func openAccountStore(ctx context.Context, databaseURL string) (AccountStore, error) {
	pool, err := store.Connect(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &pgAccountStore{
		AccountRepository: postgres.NewAccountRepository(pool),
		close:             pool.Close,
	}, nil
}

func (d *ServeDeps) applyDefaults() {
	if d.StoreOpener == nil {
		d.StoreOpener = openAccountStore
	}
	if d.NotifierFactory == nil {
		d.NotifierFactory = func(cfg mail.Config) (account.Notifier, error) {
			return mail.NewSMTPNotifier(cfg)
		}
	}
	if d.APIServerFactory == nil {
		d.APIServerFactory = func(addr string, svc httpapi.AccountService, sessions *account.SessionIssuer, logger *slog.Logger, metrics *observability.Metrics) APIServer {
			return httpapi.NewServer(addr, svc, sessions, logger, metrics)
		}
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
}
