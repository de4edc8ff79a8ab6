// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package account

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is an account's authorization role.
type Role string

// Known roles.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ArtifactKind distinguishes the two pending-artifact flavors an
// account can hold.
type ArtifactKind string

// Artifact kinds.
const (
	ArtifactEmailVerification ArtifactKind = "email_verification"
	ArtifactPasswordReset     ArtifactKind = "password_reset"
)

// PendingArtifact is an issued, not-yet-consumed credential artifact.
// Only the SHA-256 digest of the value is kept; the plaintext goes to
// the user and is never stored.
type PendingArtifact struct {
	Digest    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IsExpired returns true if the artifact has expired.
func (a *PendingArtifact) IsExpired() bool {
	return a.IsExpiredAt(time.Now())
}

// IsExpiredAt returns true if the artifact would be expired at the
// given time. Useful for testing with deterministic time values.
func (a *PendingArtifact) IsExpiredAt(t time.Time) bool {
	return !t.Before(a.ExpiresAt)
}

// Account is a registered user identity.
type Account struct {
	ID            ulid.ULID
	Email         string
	FirstName     string
	LastName      string
	DisplayName   string
	PasswordHash  string
	Role          Role
	EmailVerified bool

	// At most one live artifact per kind. Nil means none pending.
	Verification *PendingArtifact
	Reset        *PendingArtifact

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccount creates a validated, unverified account. The password
// must already be hashed; plaintext never reaches this constructor.
func NewAccount(email, firstName, lastName, passwordHash string) (*Account, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID").Errorf("password hash cannot be empty")
	}

	now := time.Now()
	return &Account{
		ID:           ulid.Make(),
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		DisplayName:  strings.TrimSpace(firstName + " " + lastName),
		PasswordHash: passwordHash,
		Role:         RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Artifact returns the pending artifact of the given kind, or nil.
func (a *Account) Artifact(kind ArtifactKind) *PendingArtifact {
	switch kind {
	case ArtifactEmailVerification:
		return a.Verification
	case ArtifactPasswordReset:
		return a.Reset
	default:
		return nil
	}
}

// SetArtifact installs a pending artifact, replacing any prior one of
// the same kind. Replacement is what invalidates an earlier issued
// value: its digest is simply no longer stored anywhere.
func (a *Account) SetArtifact(kind ArtifactKind, artifact *PendingArtifact) {
	switch kind {
	case ArtifactEmailVerification:
		a.Verification = artifact
	case ArtifactPasswordReset:
		a.Reset = artifact
	}
	a.UpdatedAt = time.Now()
}

// ClearArtifact removes the pending artifact of the given kind.
// Consuming flows call this before saving so the value cannot be
// replayed.
func (a *Account) ClearArtifact(kind ArtifactKind) {
	a.SetArtifact(kind, nil)
}

// MarkVerified flips the account to the verified state. Terminal:
// nothing in this package transitions back.
func (a *Account) MarkVerified() {
	a.EmailVerified = true
	a.UpdatedAt = time.Now()
}

// SetPasswordHash replaces the stored password digest.
func (a *Account) SetPasswordHash(hash string) {
	a.PasswordHash = hash
	a.UpdatedAt = time.Now()
}

// ValidateEmail checks that an address is plausibly deliverable.
// Matching elsewhere is exact (case-sensitive, as stored); this only
// rejects structurally invalid input.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("ACCOUNT_INVALID").Errorf("email cannot be empty")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return oops.Code("ACCOUNT_INVALID").
			With("email", email).
			Errorf("invalid email address")
	}
	return nil
}

// Store is the external keyed store holding account records. The core
// reads and mutates accounts only through this interface and never
// caches them beyond one operation.
type Store interface {
	// Create persists a new account. Returns ErrDuplicateEmail if the
	// email is already registered.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByEmail retrieves an account by exact email match.
	// Returns ErrNotFound if absent.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// GetByArtifact retrieves the account holding a pending artifact of
	// the given kind whose stored digest equals digest. Expiry is NOT
	// filtered here; the caller checks it. Returns ErrNotFound if no
	// account holds the digest.
	GetByArtifact(ctx context.Context, kind ArtifactKind, digest string) (*Account, error)

	// Update writes the full account record atomically.
	// Returns ErrNotFound if the account no longer exists.
	Update(ctx context.Context, account *Account) error
}

// Notifier delivers out-of-band messages to users. Implementations
// live outside the core (SMTP in production, a recorder in tests).
type Notifier interface {
	// Send delivers a message. html may be empty, in which case only
	// the text body is sent.
	Send(ctx context.Context, to, subject, text, html string) error
}
