// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package httpapi_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/internal/account"
	"github.com/keygate/keygate/internal/httpapi"
	"github.com/keygate/keygate/internal/observability"
)

type stubService struct {
	acct  *account.Account
	token string
	err   error

	lastEmail     string
	lastClientKey string
	lastProfileID ulid.ULID
	lastCode      string
	lastToken     string
}

func (s *stubService) Register(_ context.Context, params account.RegisterParams) (*account.Account, string, error) {
	s.lastEmail = params.Email
	if s.err != nil {
		return nil, "", s.err
	}
	return s.acct, s.token, nil
}

func (s *stubService) Login(_ context.Context, email, _, clientKey string) (*account.Account, string, error) {
	s.lastEmail = email
	s.lastClientKey = clientKey
	if s.err != nil {
		return nil, "", s.err
	}
	return s.acct, s.token, nil
}

func (s *stubService) Profile(_ context.Context, id ulid.ULID) (*account.Account, error) {
	s.lastProfileID = id
	if s.err != nil {
		return nil, s.err
	}
	return s.acct, nil
}

func (s *stubService) ForgotPassword(_ context.Context, email string) error {
	s.lastEmail = email
	return s.err
}

func (s *stubService) ResetPassword(_ context.Context, code, _ string) error {
	s.lastCode = code
	return s.err
}

func (s *stubService) VerifyEmail(_ context.Context, token string) error {
	s.lastToken = token
	return s.err
}

func testAccount(t *testing.T) *account.Account {
	t.Helper()
	acct, err := account.NewAccount("alice@example.com", "Alice", "Smith", "$argon2id$fake")
	require.NoError(t, err)
	return acct
}

func newFixture(t *testing.T, svc *stubService) (http.Handler, *account.SessionIssuer) {
	t.Helper()
	sessions, err := account.NewSessionIssuer([]byte("test-secret"), time.Hour)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return httpapi.NewRouter(svc, sessions, logger, nil), sessions
}

func newMetricsFixture(t *testing.T, svc *stubService) (http.Handler, *observability.Metrics) {
	t.Helper()
	sessions, err := account.NewSessionIssuer([]byte("test-secret"), time.Hour)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return httpapi.NewRouter(svc, sessions, logger, metrics), metrics
}

type response struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	User    map[string]any `json:"user"`
	Token   string         `json:"token"`
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, header http.Header) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestRegister(t *testing.T) {
	t.Run("success returns 201 with user and token", func(t *testing.T) {
		svc := &stubService{acct: testAccount(t), token: "jwt-token"}
		h, _ := newFixture(t, svc)

		rec, resp := doJSON(t, h, http.MethodPost, "/api/users/register",
			`{"firstName":"Alice","lastName":"Smith","email":"alice@example.com","password":"hunter22"}`, nil)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.True(t, resp.Success)
		assert.Equal(t, "jwt-token", resp.Token)
		assert.Equal(t, "alice@example.com", resp.User["email"])
		assert.Equal(t, "Alice Smith", resp.User["displayName"])
		assert.Equal(t, false, resp.User["emailVerified"])
		assert.NotContains(t, rec.Body.String(), "passwordHash")
		assert.Equal(t, "alice@example.com", svc.lastEmail)
	})

	t.Run("duplicate email returns 409", func(t *testing.T) {
		svc := &stubService{err: oops.Code(account.CodeEmailConflict).Errorf("email already registered")}
		h, _ := newFixture(t, svc)

		rec, resp := doJSON(t, h, http.MethodPost, "/api/users/register",
			`{"firstName":"A","lastName":"B","email":"a@b.c","password":"x"}`, nil)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.False(t, resp.Success)
		assert.Equal(t, "email already registered", resp.Message)
	})

	t.Run("malformed body returns 400", func(t *testing.T) {
		svc := &stubService{}
		h, _ := newFixture(t, svc)

		rec, resp := doJSON(t, h, http.MethodPost, "/api/users/register", `{not json`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.False(t, resp.Success)
	})

	t.Run("mail delivery failure returns 502 with generic message", func(t *testing.T) {
		svc := &stubService{err: oops.Code(account.CodeDeliveryFailed).Errorf("smtp: 550 relay denied for internal-host")}
		h, _ := newFixture(t, svc)

		rec, resp := doJSON(t, h, http.MethodPost, "/api/users/register",
			`{"firstName":"A","lastName":"B","email":"a@b.c","password":"x"}`, nil)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "failed to send email", resp.Message)
		assert.NotContains(t, rec.Body.String(), "relay denied")
	})
}

func TestLogin(t *testing.T) {
	t.Run("success returns 200 with token", func(t *testing.T) {
		acct := testAccount(t)
		acct.EmailVerified = true
		svc := &stubService{acct: acct, token: "jwt-token"}
		h, _ := newFixture(t, svc)

		rec, resp := doJSON(t, h, http.MethodPost, "/api/users/login",
			`{"email":"alice@example.com","password":"hunter22"}`, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, resp.Success)
		assert.Equal(t, "jwt-token", resp.Token)
		assert.NotEmpty(t, svc.lastClientKey)
	})

	t.Run("invalid credentials return 401", func(t *testing.T) {
		svc := &stubService{err: oops.Code(account.CodeInvalidCredentials).Errorf("invalid email or password")}
		h, _ := newFixture(t, svc)

		rec, resp := doJSON(t, h, http.MethodPost, "/api/users/login",
			`{"email":"a@b.c","password":"wrong"}`, nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid email or password", resp.Message)
	})

	t.Run("unverified email returns 403", func(t *testing.T) {
		svc := &stubService{err: oops.Code(account.CodeEmailNotVerified).Errorf("email is not verified")}
		h, _ := newFixture(t, svc)

		rec, _ := doJSON(t, h, http.MethodPost, "/api/users/login",
			`{"email":"a@b.c","password":"x"}`, nil)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("rate limited returns 429", func(t *testing.T) {
		svc := &stubService{err: oops.Code(account.CodeRateLimited).Errorf("too many login attempts")}
		h, _ := newFixture(t, svc)

		rec, _ := doJSON(t, h, http.MethodPost, "/api/users/login",
			`{"email":"a@b.c","password":"x"}`, nil)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("unexpected error returns 500 with generic message", func(t *testing.T) {
		svc := &stubService{err: oops.Errorf("pool exhausted: db01.internal unreachable")}
		h, _ := newFixture(t, svc)

		rec, resp := doJSON(t, h, http.MethodPost, "/api/users/login",
			`{"email":"a@b.c","password":"x"}`, nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "internal server error", resp.Message)
		assert.NotContains(t, rec.Body.String(), "db01.internal")
	})
}

func TestProfile(t *testing.T) {
	t.Run("valid bearer token returns the session subject's profile", func(t *testing.T) {
		acct := testAccount(t)
		svc := &stubService{acct: acct}
		h, sessions := newFixture(t, svc)

		token, err := sessions.Issue(acct.ID)
		require.NoError(t, err)

		rec, resp := doJSON(t, h, http.MethodGet, "/api/users/profile", "",
			http.Header{"Authorization": []string{"Bearer " + token}})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, resp.Success)
		assert.Equal(t, acct.ID.String(), resp.User["id"])
		assert.Equal(t, acct.ID, svc.lastProfileID)
	})

	t.Run("missing header returns 401", func(t *testing.T) {
		svc := &stubService{acct: testAccount(t)}
		h, _ := newFixture(t, svc)

		rec, resp := doJSON(t, h, http.MethodGet, "/api/users/profile", "", nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, resp.Success)
	})

	t.Run("malformed header returns 401", func(t *testing.T) {
		svc := &stubService{acct: testAccount(t)}
		h, _ := newFixture(t, svc)

		rec, _ := doJSON(t, h, http.MethodGet, "/api/users/profile", "",
			http.Header{"Authorization": []string{"Token abc"}})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token returns 401", func(t *testing.T) {
		svc := &stubService{acct: testAccount(t)}
		h, _ := newFixture(t, svc)

		rec, _ := doJSON(t, h, http.MethodGet, "/api/users/profile", "",
			http.Header{"Authorization": []string{"Bearer not.a.jwt"}})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token signed with another secret returns 401", func(t *testing.T) {
		svc := &stubService{acct: testAccount(t)}
		h, _ := newFixture(t, svc)

		other, err := account.NewSessionIssuer([]byte("other-secret"), time.Hour)
		require.NoError(t, err)
		token, err := other.Issue(ulid.Make())
		require.NoError(t, err)

		rec, _ := doJSON(t, h, http.MethodGet, "/api/users/profile", "",
			http.Header{"Authorization": []string{"Bearer " + token}})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("account gone returns 404", func(t *testing.T) {
		svc := &stubService{err: oops.Code(account.CodeAccountNotFound).Errorf("account not found")}
		h, sessions := newFixture(t, svc)

		token, err := sessions.Issue(ulid.Make())
		require.NoError(t, err)

		rec, _ := doJSON(t, h, http.MethodGet, "/api/users/profile", "",
			http.Header{"Authorization": []string{"Bearer " + token}})

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestForgotPassword(t *testing.T) {
	t.Run("success returns 200", func(t *testing.T) {
		svc := &stubService{}
		h, _ := newFixture(t, svc)

		rec, resp := doJSON(t, h, http.MethodPost, "/api/users/forgot-password",
			`{"email":"alice@example.com"}`, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, resp.Success)
		assert.Equal(t, "alice@example.com", svc.lastEmail)
	})

	t.Run("unknown email returns 404", func(t *testing.T) {
		svc := &stubService{err: oops.Code(account.CodeAccountNotFound).Errorf("account not found")}
		h, _ := newFixture(t, svc)

		rec, _ := doJSON(t, h, http.MethodPost, "/api/users/forgot-password",
			`{"email":"nobody@example.com"}`, nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestMailFailureCounter(t *testing.T) {
	t.Run("register delivery failure increments counter", func(t *testing.T) {
		svc := &stubService{err: oops.Code(account.CodeDeliveryFailed).Errorf("relay refused")}
		h, metrics := newMetricsFixture(t, svc)

		rec, _ := doJSON(t, h, http.MethodPost, "/api/users/register",
			`{"firstName":"A","lastName":"B","email":"a@b.c","password":"x"}`, nil)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.MailFailuresTotal))
	})

	t.Run("forgot-password delivery failure increments counter", func(t *testing.T) {
		svc := &stubService{err: oops.Code(account.CodeDeliveryFailed).Errorf("relay refused")}
		h, metrics := newMetricsFixture(t, svc)

		rec, _ := doJSON(t, h, http.MethodPost, "/api/users/forgot-password",
			`{"email":"alice@example.com"}`, nil)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.MailFailuresTotal))
	})

	t.Run("non-delivery failure leaves counter untouched", func(t *testing.T) {
		svc := &stubService{err: oops.Code(account.CodeEmailConflict).Errorf("email already registered")}
		h, metrics := newMetricsFixture(t, svc)

		rec, _ := doJSON(t, h, http.MethodPost, "/api/users/register",
			`{"firstName":"A","lastName":"B","email":"a@b.c","password":"x"}`, nil)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, float64(0), testutil.ToFloat64(metrics.MailFailuresTotal))
	})
}

func TestResetPassword(t *testing.T) {
	t.Run("success returns 200", func(t *testing.T) {
		svc := &stubService{}
		h, _ := newFixture(t, svc)

		rec, resp := doJSON(t, h, http.MethodPost, "/api/users/reset-password",
			`{"code":"123456","newPassword":"n3w-secret"}`, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, resp.Success)
		assert.Equal(t, "123456", svc.lastCode)
	})

	t.Run("bad code returns 400", func(t *testing.T) {
		svc := &stubService{err: oops.Code(account.CodeArtifactInvalid).Errorf("invalid or expired reset code")}
		h, _ := newFixture(t, svc)

		rec, resp := doJSON(t, h, http.MethodPost, "/api/users/reset-password",
			`{"code":"000000","newPassword":"x"}`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid or expired reset code", resp.Message)
	})
}

func TestVerifyEmail(t *testing.T) {
	t.Run("token comes from the path", func(t *testing.T) {
		svc := &stubService{}
		h, _ := newFixture(t, svc)

		rec, resp := doJSON(t, h, http.MethodGet, "/api/users/verify-email/abc123", "", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, resp.Success)
		assert.Equal(t, "abc123", svc.lastToken)
	})

	t.Run("invalid token returns 400", func(t *testing.T) {
		svc := &stubService{err: oops.Code(account.CodeArtifactInvalid).Errorf("invalid or expired verification token")}
		h, _ := newFixture(t, svc)

		rec, _ := doJSON(t, h, http.MethodGet, "/api/users/verify-email/bogus", "", nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHealthz(t *testing.T) {
	svc := &stubService{}
	h, _ := newFixture(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRecoverer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions, err := account.NewSessionIssuer([]byte("test-secret"), time.Hour)
	require.NoError(t, err)

	panicSvc := &panickingService{}
	h := httpapi.NewRouter(panicSvc, sessions, logger, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/users/forgot-password",
		strings.NewReader(`{"email":"a@b.c"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

type panickingService struct {
	stubService
}

func (p *panickingService) ForgotPassword(context.Context, string) error {
	panic("boom")
}
