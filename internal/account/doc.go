// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

// Package account implements the credential and token lifecycle for
// user accounts.
//
// # Domain Types
//
// An Account carries at most one live PendingArtifact per kind
// (email verification, password reset). Issuing a new artifact of a
// kind replaces the previous one; consuming an artifact clears it so
// it cannot be replayed. Artifact values are stored as SHA-256
// digests, never in the clear.
//
// # Services
//
// Service orchestrates the user-facing flows: Register, Login,
// Profile, ForgotPassword, ResetPassword, VerifyEmail. It depends on
// narrow collaborator interfaces (Store, Notifier, PasswordHasher,
// AttemptLimiter) so transports and storage engines stay out of the
// core. Session tokens are self-contained signed assertions issued by
// SessionIssuer; validating one requires no store lookup.
package account
