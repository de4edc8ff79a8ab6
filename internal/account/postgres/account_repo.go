// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

// Package postgres implements account.Store using PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/keygate/keygate/internal/account"
)

// poolIface is the subset of pgxpool.Pool the repository needs.
// Satisfied by *pgxpool.Pool and by pgxmock in tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AccountRepository implements account.Store using PostgreSQL.
type AccountRepository struct {
	pool poolIface
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool poolIface) *AccountRepository {
	return &AccountRepository{pool: pool}
}

const accountColumns = `
	id, email, first_name, last_name, display_name, password_hash,
	role, email_verified,
	verification_digest, verification_issued_at, verification_expires_at,
	reset_digest, reset_issued_at, reset_expires_at,
	created_at, updated_at`

// Create stores a new account.
func (r *AccountRepository) Create(ctx context.Context, acct *account.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (
			id, email, first_name, last_name, display_name, password_hash,
			role, email_verified,
			verification_digest, verification_issued_at, verification_expires_at,
			reset_digest, reset_issued_at, reset_expires_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, r.insertArgs(acct)...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("ACCOUNT_EMAIL_CONFLICT").
				With("email", acct.Email).
				Wrap(account.ErrDuplicateEmail)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("email", acct.Email).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*account.Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id.String())

	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_ID_FAILED").
			With("operation", "get account by id").
			With("id", id.String()).
			Wrap(err)
	}
	return acct, nil
}

// GetByEmail retrieves an account by email. Matching is exact: the
// address compares as stored.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*account.Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+accountColumns+`
		FROM accounts
		WHERE email = $1
	`, email)

	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("email", email).
			Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_EMAIL_FAILED").
			With("operation", "get account by email").
			With("email", email).
			Wrap(err)
	}
	return acct, nil
}

// GetByArtifact retrieves the account holding a pending artifact with
// the given digest. Expiry is not filtered here; the caller checks it.
func (r *AccountRepository) GetByArtifact(ctx context.Context, kind account.ArtifactKind, digest string) (*account.Account, error) {
	column := "verification_digest"
	if kind == account.ArtifactPasswordReset {
		column = "reset_digest"
	}

	row := r.pool.QueryRow(ctx, `
		SELECT`+accountColumns+`
		FROM accounts
		WHERE `+column+` = $1
	`, digest)

	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("kind", string(kind)).
			Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_ARTIFACT_FAILED").
			With("operation", "get account by artifact").
			With("kind", string(kind)).
			Wrap(err)
	}
	return acct, nil
}

// Update updates an existing account.
func (r *AccountRepository) Update(ctx context.Context, acct *account.Account) error {
	verDigest, verIssued, verExpires := artifactColumns(acct.Verification)
	resDigest, resIssued, resExpires := artifactColumns(acct.Reset)

	result, err := r.pool.Exec(ctx, `
		UPDATE accounts SET
			email = $2,
			first_name = $3,
			last_name = $4,
			display_name = $5,
			password_hash = $6,
			role = $7,
			email_verified = $8,
			verification_digest = $9,
			verification_issued_at = $10,
			verification_expires_at = $11,
			reset_digest = $12,
			reset_issued_at = $13,
			reset_expires_at = $14,
			updated_at = $15
		WHERE id = $1
	`,
		acct.ID.String(),
		acct.Email,
		acct.FirstName,
		acct.LastName,
		acct.DisplayName,
		acct.PasswordHash,
		string(acct.Role),
		acct.EmailVerified,
		verDigest,
		verIssued,
		verExpires,
		resDigest,
		resIssued,
		resExpires,
		acct.UpdatedAt,
	)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update account").
			With("id", acct.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", acct.ID.String()).
			Wrap(account.ErrNotFound)
	}
	return nil
}

func (r *AccountRepository) insertArgs(acct *account.Account) []any {
	verDigest, verIssued, verExpires := artifactColumns(acct.Verification)
	resDigest, resIssued, resExpires := artifactColumns(acct.Reset)

	return []any{
		acct.ID.String(),
		acct.Email,
		acct.FirstName,
		acct.LastName,
		acct.DisplayName,
		acct.PasswordHash,
		string(acct.Role),
		acct.EmailVerified,
		verDigest,
		verIssued,
		verExpires,
		resDigest,
		resIssued,
		resExpires,
		acct.CreatedAt,
		acct.UpdatedAt,
	}
}

// artifactColumns flattens a pending artifact into its three nullable
// columns.
func artifactColumns(a *account.PendingArtifact) (digest *string, issued, expires *time.Time) {
	if a == nil {
		return nil, nil, nil
	}
	d := a.Digest
	i := a.IssuedAt
	e := a.ExpiresAt
	return &d, &i, &e
}

// scanAccount scans a single row into an Account.
// Callers are responsible for handling pgx.ErrNoRows.
func scanAccount(row pgx.Row) (*account.Account, error) {
	var (
		idStr         string
		email         string
		firstName     string
		lastName      string
		displayName   string
		passwordHash  string
		role          string
		emailVerified bool
		verDigest     *string
		verIssued     *time.Time
		verExpires    *time.Time
		resDigest     *string
		resIssued     *time.Time
		resExpires    *time.Time
		createdAt     time.Time
		updatedAt     time.Time
	)

	err := row.Scan(
		&idStr,
		&email,
		&firstName,
		&lastName,
		&displayName,
		&passwordHash,
		&role,
		&emailVerified,
		&verDigest,
		&verIssued,
		&verExpires,
		&resDigest,
		&resIssued,
		&resExpires,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_CORRUPT_ROW").
			With("id", idStr).
			Wrap(err)
	}

	acct := &account.Account{
		ID:            id,
		Email:         email,
		FirstName:     firstName,
		LastName:      lastName,
		DisplayName:   displayName,
		PasswordHash:  passwordHash,
		Role:          account.Role(role),
		EmailVerified: emailVerified,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}
	acct.Verification = artifactFromColumns(verDigest, verIssued, verExpires)
	acct.Reset = artifactFromColumns(resDigest, resIssued, resExpires)
	return acct, nil
}

func artifactFromColumns(digest *string, issued, expires *time.Time) *account.PendingArtifact {
	if digest == nil || issued == nil || expires == nil {
		return nil
	}
	return &account.PendingArtifact{
		Digest:    *digest,
		IssuedAt:  *issued,
		ExpiresAt: *expires,
	}
}

// Compile-time interface check.
var _ account.Store = (*AccountRepository)(nil)
