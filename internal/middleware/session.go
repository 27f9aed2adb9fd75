package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dermascan/dermascan/internal/auth"
	"github.com/dermascan/dermascan/internal/model"
)

// Authenticator resolves a bearer token to a session.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Session, error)
}

// SessionConfig holds configuration for the session middleware.
type SessionConfig struct {
	Logger        *slog.Logger
	Authenticator Authenticator
}

// OptionalSession attaches a session when a bearer token is present.
// Requests without a token continue anonymously; a present but invalid
// token is rejected with 401.
func OptionalSession(cfg SessionConfig) func(http.Handler) http.Handler {
	return sessionMiddleware(cfg, false)
}

// RequireSession rejects requests without a valid bearer token.
func RequireSession(cfg SessionConfig) func(http.Handler) http.Handler {
	return sessionMiddleware(cfg, true)
}

func sessionMiddleware(cfg SessionConfig, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, present := bearerToken(r)
			if !present {
				if !required {
					next.ServeHTTP(w, r)
					return
				}
				logAuthFailure(cfg.Logger, r, "missing_token")
				writeError(w, http.StatusUnauthorized, CodeInvalidCredentials, "Authentication required")
				return
			}

			session, err := cfg.Authenticator.Authenticate(r.Context(), token)
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidCredentials) {
					cfg.Logger.Error("session lookup failed",
						slog.String("request_id", GetRequestID(r.Context())),
						slog.String("error", err.Error()),
					)
					writeError(w, http.StatusInternalServerError, CodeDatabaseError, "Could not verify session")
					return
				}
				logAuthFailure(cfg.Logger, r, "invalid_token")
				writeError(w, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid or expired session")
				return
			}

			recordSession(r.Context(), session)
			next.ServeHTTP(w, r.WithContext(auth.ContextWithSession(r.Context(), session)))
		})
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
// present is true whenever an Authorization header was sent.
func bearerToken(r *http.Request) (token string, present bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return "", false
	}
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", true
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

func logAuthFailure(logger *slog.Logger, r *http.Request, reason string) {
	logger.Warn("authentication failed",
		slog.String("reason", reason),
		slog.String("ip", r.RemoteAddr),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	)
}

type sessionHolderKey struct{}

// sessionHolder carries the authenticated session back up to Logger.
type sessionHolder struct {
	session *model.Session
}

func withSessionHolder(ctx context.Context, h *sessionHolder) context.Context {
	return context.WithValue(ctx, sessionHolderKey{}, h)
}

func recordSession(ctx context.Context, s *model.Session) {
	if h, ok := ctx.Value(sessionHolderKey{}).(*sessionHolder); ok {
		h.session = s
	}
}
