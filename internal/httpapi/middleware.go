// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/keygate/keygate/internal/account"
)

type contextKey string

const accountIDKey contextKey = "account_id"

// AccountIDFromContext returns the authenticated account ID placed by
// the bearer middleware.
func AccountIDFromContext(ctx context.Context) (ulid.ULID, bool) {
	id, ok := ctx.Value(accountIDKey).(ulid.ULID)
	return id, ok
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	//nolint:wrapcheck // ResponseWriter passthrough
	return sr.ResponseWriter.Write(b)
}

// requestLogger emits one structured log line per request. 5xx logs at
// error, 4xx at warn, the rest at info.
func requestLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rec, r)

			level := slog.LevelInfo
			switch {
			case rec.statusCode >= 500:
				level = slog.LevelError
			case rec.statusCode >= 400:
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.statusCode,
				"duration_ms", float64(time.Since(start).Nanoseconds())/float64(time.Millisecond),
			)
		})
	}
}

// recoverer turns a handler panic into a 500 instead of a dead process.
func recoverer(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						"panic", rec,
						"method", r.Method,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					writeJSON(w, http.StatusInternalServerError,
						envelope{Success: false, Message: "internal server error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// bearerAuth verifies the Authorization header and stores the session
// subject in the request context. Requests without a valid session
// token stop here.
func bearerAuth(sessions *account.SessionIssuer) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				writeJSON(w, http.StatusUnauthorized,
					envelope{Success: false, Message: "authorization required"})
				return
			}

			id, err := sessions.Verify(token)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized,
					envelope{Success: false, Message: "invalid session token"})
				return
			}

			ctx := context.WithValue(r.Context(), accountIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
