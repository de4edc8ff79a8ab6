// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package account

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// OWASP-recommended argon2id parameters.
const (
	argonTime    = 1         // iterations
	argonMemory  = 64 * 1024 // 64 MB
	argonThreads = 4         // parallelism
	argonSaltLen = 16        // salt length in bytes
	argonKeyLen  = 32        // derived key length in bytes
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("ACCOUNT_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides one-way password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted digest of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the digest. Returns
	// (true, nil) on match, (false, nil) on mismatch, or (false, error)
	// on a malformed digest. Callers must treat the error case exactly
	// like a mismatch; it exists for logging only.
	Verify(password, digest string) (bool, error)
}

// Argon2idHasher implements PasswordHasher using argon2id with PHC
// string encoding.
type Argon2idHasher struct{}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// argonParams are the cost parameters recovered from a PHC digest.
type argonParams struct {
	memory  uint32
	time    uint32
	threads uint32
	salt    []byte
	key     []byte
}

// Hash produces an argon2id digest of the password in PHC format:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("ACCOUNT_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	digest := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory,
		argonTime,
		argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)

	return digest, nil
}

// Verify checks if the password matches the digest using a
// constant-time comparison of the derived keys.
func (h *Argon2idHasher) Verify(password, digest string) (bool, error) {
	params, err := parseDigest(digest)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(password),
		params.salt,
		params.time,
		params.memory,
		uint8(params.threads),
		uint32(len(params.key)),
	)

	return subtle.ConstantTimeCompare(computed, params.key) == 1, nil
}

// parseDigest recovers the cost parameters, salt, and key from a PHC
// argon2id string.
func parseDigest(digest string) (*argonParams, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 {
		return nil, oops.Code("ACCOUNT_MALFORMED_DIGEST").Errorf("invalid digest format")
	}
	if parts[1] != "argon2id" {
		return nil, oops.Code("ACCOUNT_MALFORMED_DIGEST").Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, oops.Code("ACCOUNT_MALFORMED_DIGEST").Wrap(err)
	}

	p := &argonParams{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return nil, oops.Code("ACCOUNT_MALFORMED_DIGEST").Wrap(err)
	}
	if p.threads == 0 || p.threads > 255 {
		return nil, oops.Code("ACCOUNT_MALFORMED_DIGEST").Errorf("parallelism %d out of range", p.threads)
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, oops.Code("ACCOUNT_MALFORMED_DIGEST").Wrap(err)
	}
	if p.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, oops.Code("ACCOUNT_MALFORMED_DIGEST").Wrap(err)
	}
	if len(p.key) == 0 || len(p.key) > 1<<10 {
		return nil, oops.Code("ACCOUNT_MALFORMED_DIGEST").Errorf("invalid key length: %d", len(p.key))
	}

	return p, nil
}
