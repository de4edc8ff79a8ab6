// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/keygate/keygate/internal/account"
	"github.com/keygate/keygate/pkg/errutil"
)

// envelope is the uniform response body. Message carries the outcome
// in words; User and Token appear on the flows that produce them.
type envelope struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	User    *accountView `json:"user,omitempty"`
	Token   string       `json:"token,omitempty"`
}

// accountView is the wire shape of an account. The password digest and
// pending artifacts never leave the service.
type accountView struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	DisplayName   string    `json:"displayName"`
	Role          string    `json:"role"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

func viewOf(acct *account.Account) *accountView {
	return &accountView{
		ID:            acct.ID.String(),
		Email:         acct.Email,
		FirstName:     acct.FirstName,
		LastName:      acct.LastName,
		DisplayName:   acct.DisplayName,
		Role:          string(acct.Role),
		EmailVerified: acct.EmailVerified,
		CreatedAt:     acct.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // nothing to do if the client is gone
	json.NewEncoder(w).Encode(body)
}

// statusOf maps a service error to an HTTP status. Unknown codes are
// internal errors; their detail stays in the logs.
func statusOf(err error) int {
	switch errutil.Code(err) {
	case account.CodeEmailConflict:
		return http.StatusConflict
	case account.CodeInvalidCredentials, account.CodeSessionInvalid:
		return http.StatusUnauthorized
	case account.CodeEmailNotVerified:
		return http.StatusForbidden
	case account.CodeRateLimited:
		return http.StatusTooManyRequests
	case account.CodeAccountNotFound:
		return http.StatusNotFound
	case account.CodeArtifactInvalid, "ACCOUNT_INVALID":
		return http.StatusBadRequest
	case account.CodeDeliveryFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a service error. Internal errors get a generic
// message after being logged with full context.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusOf(err)
	message := err.Error()
	switch status {
	case http.StatusInternalServerError:
		errutil.LogError(logger, "request failed", err)
		message = "internal server error"
	case http.StatusBadGateway:
		errutil.LogError(logger, "mail delivery failed", err)
		message = "failed to send email"
	}
	writeJSON(w, status, envelope{Success: false, Message: message})
}
