// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package account

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/samber/oops"
)

// Artifact configuration.
const (
	// VerificationTokenBytes is the entropy of an email-verification
	// token. 32 bytes = 64 hex chars.
	VerificationTokenBytes = 32

	// VerificationTokenTTL is how long a verification link stays valid.
	VerificationTokenTTL = 24 * time.Hour

	// ResetCodeTTL is how long a password-reset code stays valid.
	ResetCodeTTL = time.Hour
)

// Reset codes are 6-digit integers the user types by hand. The range
// excludes anything with a leading zero so the code survives numeric
// round-trips.
const (
	resetCodeMin = 100000
	resetCodeMax = 999999
)

// GenerateVerificationToken creates a secure random verification token
// and its digest. Returns (plaintext_token, sha256_digest, error).
// The plaintext goes into the emailed link; only the digest is stored.
func GenerateVerificationToken() (token, digest string, err error) {
	raw := make([]byte, VerificationTokenBytes)
	if _, err = rand.Read(raw); err != nil {
		return "", "", oops.Code("ARTIFACT_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			Wrap(err)
	}

	token = hex.EncodeToString(raw)
	return token, DigestArtifact(token), nil
}

// GenerateResetCode creates a uniformly distributed 6-digit reset code
// and its digest. Returns (plaintext_code, sha256_digest, error).
// Rejection sampling keeps the distribution uniform over the range.
func GenerateResetCode() (code, digest string, err error) {
	span := uint64(resetCodeMax - resetCodeMin + 1)
	// Largest multiple of span below 2^64; values at or above it would
	// bias the low end of the range.
	limit := (^uint64(0) / span) * span

	var buf [8]byte
	for {
		if _, err = rand.Read(buf[:]); err != nil {
			return "", "", oops.Code("ARTIFACT_GENERATE_FAILED").
				With("operation", "crypto/rand.Read").
				Wrap(err)
		}
		v := binary.BigEndian.Uint64(buf[:])
		if v >= limit {
			continue
		}
		code = strconv.FormatUint(resetCodeMin+v%span, 10)
		return code, DigestArtifact(code), nil
	}
}

// DigestArtifact computes the SHA-256 digest of an artifact value.
// This is what the store holds in place of the plaintext.
func DigestArtifact(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// MatchArtifact checks a plaintext value against a stored digest using
// a constant-time comparison.
func MatchArtifact(value, digest string) bool {
	if value == "" || digest == "" {
		return false
	}
	computed := DigestArtifact(value)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1
}

// IssueArtifact builds a pending artifact for a digest with the TTL of
// its kind, anchored at now.
func IssueArtifact(kind ArtifactKind, digest string, now time.Time) *PendingArtifact {
	ttl := VerificationTokenTTL
	if kind == ArtifactPasswordReset {
		ttl = ResetCodeTTL
	}
	return &PendingArtifact{
		Digest:    digest,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}
