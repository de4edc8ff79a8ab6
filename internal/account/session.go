// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package account

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionTokenTTL is the default lifetime of a session token.
const SessionTokenTTL = time.Hour

// SessionIssuer mints and verifies self-contained session tokens.
// A token is an HS256-signed JWT carrying {sub, iat, exp}; validity is
// fully determined by signature and expiry, with no store lookup.
// The signing secret is the single point of trust: supplying a new one
// at construction rotates it without code change.
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewSessionIssuer creates a SessionIssuer. ttl <= 0 falls back to
// SessionTokenTTL.
func NewSessionIssuer(secret []byte, ttl time.Duration) (*SessionIssuer, error) {
	if len(secret) == 0 {
		return nil, oops.Code("AUTH_SESSION_SECRET_EMPTY").Errorf("signing secret cannot be empty")
	}
	if ttl <= 0 {
		ttl = SessionTokenTTL
	}
	return &SessionIssuer{secret: secret, ttl: ttl}, nil
}

// Issue signs a session token for the account.
func (s *SessionIssuer) Issue(accountID ulid.ULID) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   accountID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", oops.Code("AUTH_SESSION_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// Verify checks a token's signature and expiry and returns the account
// ID it asserts. Tampering, a wrong algorithm, expiry, and structural
// garbage all collapse into one AUTH_SESSION_INVALID outcome.
func (s *SessionIssuer) Verify(token string) (ulid.ULID, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return ulid.ULID{}, oops.Code(CodeSessionInvalid).Errorf("invalid session token")
	}

	id, err := ulid.Parse(claims.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code(CodeSessionInvalid).Errorf("invalid session token")
	}
	return id, nil
}
