// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// dummyPasswordDigest is verified against when a login targets an
// unknown email, so response time stays flat whether or not the
// account exists. It is a fake digest that matches no password.
//
//nolint:gosec // G101: intentionally fake digest for timing attack prevention, not a credential.
const dummyPasswordDigest = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Service orchestrates the account lifecycle flows. It owns no
// account state itself; records live in the Store and session tokens
// are self-verifying.
type Service struct {
	store    Store
	hasher   PasswordHasher
	sessions *SessionIssuer
	limiter  AttemptLimiter
	notifier Notifier
	baseURL  string
	logger   *slog.Logger
}

// NewService creates a Service. baseURL is the public prefix embedded
// in emailed links, e.g. "https://app.example.com".
func NewService(
	store Store,
	hasher PasswordHasher,
	sessions *SessionIssuer,
	limiter AttemptLimiter,
	notifier Notifier,
	baseURL string,
) (*Service, error) {
	if store == nil {
		return nil, oops.Errorf("account store is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session issuer is required")
	}
	if limiter == nil {
		return nil, oops.Errorf("attempt limiter is required")
	}
	if notifier == nil {
		return nil, oops.Errorf("notifier is required")
	}
	return &Service{
		store:    store,
		hasher:   hasher,
		sessions: sessions,
		limiter:  limiter,
		notifier: notifier,
		baseURL:  baseURL,
		logger:   slog.Default(),
	}, nil
}

// WithLogger overrides the logger used for best-effort failures.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// RegisterParams are the validated inputs to Register.
type RegisterParams struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Register creates an unverified account, emails a verification link,
// and returns the account with a freshly issued session token.
//
// The verification email must reach the user or they have no way to
// obtain the token, so a delivery failure fails the whole request.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*Account, string, error) {
	digest, err := s.hasher.Hash(params.Password)
	if err != nil {
		return nil, "", oops.Code("ACCOUNT_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	acct, err := NewAccount(params.Email, params.FirstName, params.LastName, digest)
	if err != nil {
		return nil, "", err
	}

	token, tokenDigest, err := GenerateVerificationToken()
	if err != nil {
		return nil, "", oops.Code("ACCOUNT_REGISTER_FAILED").
			With("operation", "generate verification token").
			Wrap(err)
	}
	acct.SetArtifact(ArtifactEmailVerification, IssueArtifact(ArtifactEmailVerification, tokenDigest, time.Now()))

	if err := s.store.Create(ctx, acct); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, "", oops.Code(CodeEmailConflict).
				With("email", params.Email).
				Errorf("email already exists")
		}
		return nil, "", oops.Code("ACCOUNT_REGISTER_FAILED").
			With("operation", "create account").
			Wrap(err)
	}

	if err := s.sendVerificationMail(ctx, acct.Email, token); err != nil {
		return nil, "", oops.Code(CodeDeliveryFailed).
			With("operation", "send verification email").
			Wrap(err)
	}

	session, err := s.sessions.Issue(acct.ID)
	if err != nil {
		return nil, "", oops.Code("ACCOUNT_REGISTER_FAILED").
			With("operation", "issue session token").
			Wrap(err)
	}

	return acct, session, nil
}

// Login authenticates an account by email and password. clientKey
// identifies the caller for attempt limiting (typically the source
// address); the limiter is consulted before any store or hasher work.
func (s *Service) Login(ctx context.Context, email, password, clientKey string) (*Account, string, error) {
	if !s.limiter.Allow(clientKey) {
		return nil, "", oops.Code(CodeRateLimited).
			With("client", clientKey).
			Errorf("too many login attempts")
	}

	acct, lookupErr := s.store.GetByEmail(ctx, email)

	// Verify against a dummy digest when the account is unknown so the
	// two failure paths take the same time.
	target := dummyPasswordDigest
	exists := false
	switch {
	case lookupErr == nil:
		target = acct.PasswordHash
		exists = true
	case errors.Is(lookupErr, ErrNotFound):
		// fall through with the dummy digest
	default:
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get account by email").
			Wrap(lookupErr)
	}

	valid, verifyErr := s.hasher.Verify(password, target)
	if verifyErr != nil && exists {
		// A malformed stored digest is indistinguishable from a wrong
		// password to the caller, but worth a log line.
		s.logger.Warn("stored password digest is malformed",
			"account_id", acct.ID.String())
	}
	if !exists || !valid || verifyErr != nil {
		return nil, "", oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
	}

	// The password already proved account ownership, so revealing the
	// verification gate here leaks nothing new.
	if !acct.EmailVerified {
		return nil, "", oops.Code(CodeEmailNotVerified).Errorf("email address not verified")
	}

	session, err := s.sessions.Issue(acct.ID)
	if err != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue session token").
			Wrap(err)
	}

	return acct, session, nil
}

// Profile fetches the account for an already-verified session subject.
func (s *Service) Profile(ctx context.Context, id ulid.ULID) (*Account, error) {
	acct, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeAccountNotFound).
				With("id", id.String()).
				Errorf("account not found")
		}
		return nil, oops.Code("ACCOUNT_PROFILE_FAILED").
			With("operation", "get account by id").
			Wrap(err)
	}
	return acct, nil
}

// ForgotPassword issues a fresh reset code for the account, replacing
// any pending one, and emails it. Delivery failure fails the request:
// without the email the user cannot obtain the code.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	acct, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeAccountNotFound).Errorf("account not found")
		}
		return oops.Code("ACCOUNT_FORGOT_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}

	code, codeDigest, err := GenerateResetCode()
	if err != nil {
		return oops.Code("ACCOUNT_FORGOT_FAILED").
			With("operation", "generate reset code").
			Wrap(err)
	}

	acct.SetArtifact(ArtifactPasswordReset, IssueArtifact(ArtifactPasswordReset, codeDigest, time.Now()))
	if err := s.store.Update(ctx, acct); err != nil {
		return oops.Code("ACCOUNT_FORGOT_FAILED").
			With("operation", "save reset artifact").
			Wrap(err)
	}

	if err := s.sendResetMail(ctx, acct.Email, code); err != nil {
		return oops.Code(CodeDeliveryFailed).
			With("operation", "send reset email").
			Wrap(err)
	}

	return nil
}

// ResetPassword consumes a reset code and installs a new password.
// Wrong value, unknown value, and expired value all collapse into one
// ARTIFACT_INVALID outcome. The confirmation email is best-effort.
func (s *Service) ResetPassword(ctx context.Context, code, newPassword string) error {
	acct, err := s.consumeArtifact(ctx, ArtifactPasswordReset, code)
	if err != nil {
		return err
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("ACCOUNT_RESET_FAILED").
			With("operation", "hash new password").
			Wrap(err)
	}

	acct.SetPasswordHash(digest)
	acct.ClearArtifact(ArtifactPasswordReset)
	if err := s.store.Update(ctx, acct); err != nil {
		return oops.Code("ACCOUNT_RESET_FAILED").
			With("operation", "save account").
			Wrap(err)
	}

	// The password is already changed; a lost confirmation email must
	// not roll that back.
	if err := s.notifier.Send(ctx, acct.Email, "Password Reset Successful",
		"Your password has been successfully reset.", ""); err != nil {
		s.logger.Warn("reset confirmation email failed",
			"account_id", acct.ID.String(), "error", err)
	}

	return nil
}

// VerifyEmail consumes a verification token and marks the account
// verified. Verified is terminal.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	acct, err := s.consumeArtifact(ctx, ArtifactEmailVerification, token)
	if err != nil {
		return err
	}

	acct.MarkVerified()
	acct.ClearArtifact(ArtifactEmailVerification)
	if err := s.store.Update(ctx, acct); err != nil {
		return oops.Code("ACCOUNT_VERIFY_FAILED").
			With("operation", "save account").
			Wrap(err)
	}

	return nil
}

// consumeArtifact locates the account holding an artifact value and
// checks match and expiry together. Every failure mode returns the
// same generic outcome so callers cannot probe which condition failed.
func (s *Service) consumeArtifact(ctx context.Context, kind ArtifactKind, value string) (*Account, error) {
	invalid := func() error {
		return oops.Code(CodeArtifactInvalid).Errorf("invalid or expired %s", artifactNoun(kind))
	}

	if value == "" {
		return nil, invalid()
	}

	acct, err := s.store.GetByArtifact(ctx, kind, DigestArtifact(value))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalid()
		}
		return nil, oops.Code("ARTIFACT_LOOKUP_FAILED").
			With("operation", "get account by artifact").
			With("kind", string(kind)).
			Wrap(err)
	}

	artifact := acct.Artifact(kind)
	if artifact == nil || !MatchArtifact(value, artifact.Digest) || artifact.IsExpired() {
		return nil, invalid()
	}

	return acct, nil
}

func artifactNoun(kind ArtifactKind) string {
	if kind == ArtifactPasswordReset {
		return "reset code"
	}
	return "verification token"
}

func (s *Service) sendVerificationMail(ctx context.Context, to, token string) error {
	link := fmt.Sprintf("%s/verify-email/%s", s.baseURL, token)
	text := fmt.Sprintf("Please verify your email by clicking on the following link: %s", link)
	html := fmt.Sprintf(`<h1>Email Verification</h1>
<p>Thank you for registering!</p>
<p>Please verify your email by clicking the link below:</p>
<a href=%q target="_blank">Verify Email</a>
<p>This link will expire in 24 hours.</p>`, link)

	return s.notifier.Send(ctx, to, "Email Verification", text, html)
}

func (s *Service) sendResetMail(ctx context.Context, to, code string) error {
	link := fmt.Sprintf("%s/reset-password/%s", s.baseURL, code)
	text := fmt.Sprintf("You requested a password reset. Please use the following code to reset your password: %s", code)
	html := fmt.Sprintf(`<h1>Password Reset</h1>
<p>You requested a password reset.</p>
<p>Your password reset code is: <strong>%s</strong></p>
<p>Or click the link below to reset your password:</p>
<a href=%q target="_blank">Reset Password</a>
<p>This code will expire in 1 hour.</p>
<p>If you did not request this, please ignore this email.</p>`, code, link)

	return s.notifier.Send(ctx, to, "Password Reset", text, html)
}
