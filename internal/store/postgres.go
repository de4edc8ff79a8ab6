// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

// Package store provides PostgreSQL connection and schema management.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Connection retry settings. Postgres is often still starting when the
// service comes up, so the first pings are expected to fail.
const (
	connectRetries = 5
	connectBackoff = 500 * time.Millisecond
)

// Connect creates a pgx connection pool and verifies it with a ping,
// retrying with exponential backoff until the database answers or the
// retry budget is exhausted.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("STORE_CONFIG_INVALID").
			With("operation", "parse database url").
			Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").
			With("operation", "create pool").
			Wrap(err)
	}

	backoff := retry.WithMaxRetries(connectRetries, retry.NewExponential(connectBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("STORE_CONNECT_FAILED").
			With("operation", "ping database").
			Wrap(err)
	}

	return pool, nil
}
