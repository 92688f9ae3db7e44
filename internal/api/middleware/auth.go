package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dom/neighbor-group/internal/domain"
	"github.com/dom/neighbor-group/internal/service"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	userKey    contextKey = "user"
	sessionKey contextKey = "session"
)

// SessionCookie carries the session token for browser clients.
const SessionCookie = "session"

// Session resolves an optional session token from the session cookie or a
// Bearer header. Requests without a valid token continue anonymously.
func Session(auth *service.AuthService, log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, session, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				if !errors.Is(err, domain.ErrUnauthenticated) {
					log.WithError(err).Error("[middleware.Session] resolve session")
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			ctx = context.WithValue(ctx, sessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser rejects anonymous requests with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"Please log in first."}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func CurrentUser(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(userKey).(*domain.User)
	return user, ok && user != nil
}

func CurrentSession(ctx context.Context) (*service.BoundSession, bool) {
	session, ok := ctx.Value(sessionKey).(*service.BoundSession)
	return session, ok && session != nil
}

// UserID returns the signed-in user's id, or zero for anonymous requests.
func UserID(ctx context.Context) int64 {
	if user, ok := CurrentUser(ctx); ok {
		return user.ID
	}
	return 0
}

// Meta describes the request for the auth event log. It expects RealIP and
// chi's RequestID middleware to have run.
func Meta(r *http.Request) service.RequestMeta {
	return service.RequestMeta{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: chiMiddleware.GetReqID(r.Context()),
	}
}

func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if strings.HasPrefix(addr, "[") {
		if end := strings.Index(addr, "]"); end > 0 {
			return addr[1:end]
		}
	}
	if i := strings.LastIndex(addr, ":"); i > 0 && strings.Count(addr, ":") == 1 {
		return addr[:i]
	}
	return addr
}

func tokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}
