// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package account

import "errors"

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound is returned when a requested account does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned when creating an account whose
	// email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
)

// Error codes attached to oops errors crossing the service boundary.
// Transports map these to caller-visible outcomes; anything without a
// code listed here is an infrastructure fault.
const (
	CodeEmailConflict      = "ACCOUNT_EMAIL_CONFLICT"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeEmailNotVerified   = "AUTH_EMAIL_NOT_VERIFIED"
	CodeRateLimited        = "AUTH_RATE_LIMITED"
	CodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	CodeArtifactInvalid    = "ARTIFACT_INVALID"
	CodeDeliveryFailed     = "NOTIFY_DELIVERY_FAILED"
	CodeSessionInvalid     = "AUTH_SESSION_INVALID"
)
