// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/keygate/keygate/internal/account"
	"github.com/keygate/keygate/internal/observability"
	"github.com/keygate/keygate/pkg/errutil"
)

// AccountService is the surface the HTTP layer needs from the account
// service.
type AccountService interface {
	Register(ctx context.Context, params account.RegisterParams) (*account.Account, string, error)
	Login(ctx context.Context, email, password, clientKey string) (*account.Account, string, error)
	Profile(ctx context.Context, id ulid.ULID) (*account.Account, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, code, newPassword string) error
	VerifyEmail(ctx context.Context, token string) error
}

type handlers struct {
	svc     AccountService
	logger  *slog.Logger
	metrics *observability.Metrics
}

type registerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest,
			envelope{Success: false, Message: "invalid request body"})
		return false
	}
	return true
}

// clientKey derives the rate-limit key from the remote address,
// stripping the ephemeral port so retries from one host share a bucket.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// recordMailFailure counts a failed email delivery when the error came
// from the notifier rather than the flow itself.
func (h *handlers) recordMailFailure(err error) {
	if h.metrics != nil && errutil.Code(err) == account.CodeDeliveryFailed {
		h.metrics.MailFailuresTotal.Inc()
	}
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acct, token, err := h.svc.Register(r.Context(), account.RegisterParams{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		h.recordMailFailure(err)
		writeError(w, h.logger, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RegistrationsTotal.Inc()
		h.metrics.ArtifactsIssued.WithLabelValues(string(account.ArtifactEmailVerification)).Inc()
	}

	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: "User registered. Please verify your email.",
		User:    viewOf(acct),
		Token:   token,
	})
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acct, token, err := h.svc.Login(r.Context(), req.Email, req.Password, clientKey(r))
	if err != nil {
		if h.metrics != nil {
			h.metrics.LoginsTotal.WithLabelValues("failure").Inc()
			if errutil.Code(err) == account.CodeRateLimited {
				h.metrics.RateLimitedTotal.Inc()
			}
		}
		writeError(w, h.logger, err)
		return
	}

	if h.metrics != nil {
		h.metrics.LoginsTotal.WithLabelValues("success").Inc()
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Login successful",
		User:    viewOf(acct),
		Token:   token,
	})
}

func (h *handlers) profile(w http.ResponseWriter, r *http.Request) {
	id, ok := AccountIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized,
			envelope{Success: false, Message: "authorization required"})
		return
	}

	acct, err := h.svc.Profile(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, User: viewOf(acct)})
}

func (h *handlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		h.recordMailFailure(err)
		writeError(w, h.logger, err)
		return
	}

	if h.metrics != nil {
		h.metrics.ArtifactsIssued.WithLabelValues(string(account.ArtifactPasswordReset)).Inc()
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Password reset code sent to your email",
	})
}

func (h *handlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.svc.ResetPassword(r.Context(), req.Code, req.NewPassword); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if h.metrics != nil {
		h.metrics.ArtifactsConsumed.WithLabelValues(string(account.ArtifactPasswordReset)).Inc()
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Password reset successful",
	})
}

func (h *handlers) verifyEmail(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	if err := h.svc.VerifyEmail(r.Context(), token); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if h.metrics != nil {
		h.metrics.ArtifactsConsumed.WithLabelValues(string(account.ArtifactEmailVerification)).Inc()
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Email verified successfully",
	})
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
