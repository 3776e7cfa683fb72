package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"bi-demo/internal/domain"
)

// UserLookup resolves the user a session token was issued to.
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
}

// Authenticator attaches the session user to the request context.
type Authenticator struct {
	tokens     *SessionTokens
	users      UserLookup
	cookieName string
	logger     *slog.Logger
}

// NewAuthenticator creates an Authenticator reading the named cookie and the
// Authorization header.
func NewAuthenticator(tokens *SessionTokens, users UserLookup, cookieName string, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cookieName == "" {
		cookieName = "session"
	}
	return &Authenticator{tokens: tokens, users: users, cookieName: cookieName, logger: logger}
}

// CookieName returns the name of the session cookie.
func (a *Authenticator) CookieName() string { return a.cookieName }

// Tokens returns the session token issuer.
func (a *Authenticator) Tokens() *SessionTokens { return a.tokens }

// Middleware resolves the caller from a Bearer token or the session cookie.
// Requests without credentials pass through anonymously so that handlers
// decide whether a user is required. A Bearer token that fails validation is
// rejected with 401. A stale session cookie is dropped.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				u, err := a.resolve(r.Context(), strings.TrimPrefix(auth, "Bearer "))
				if err != nil {
					a.logger.Debug("bearer token rejected", "error", err)
					writeUnauthorized(w)
					return
				}
				next.ServeHTTP(w, r.WithContext(domain.WithUser(r.Context(), u)))
				return
			}

			if c, err := r.Cookie(a.cookieName); err == nil && c.Value != "" {
				u, err := a.resolve(r.Context(), c.Value)
				if err == nil {
					next.ServeHTTP(w, r.WithContext(domain.WithUser(r.Context(), u)))
					return
				}
				a.logger.Debug("session cookie rejected", "error", err)
				http.SetCookie(w, a.ClearCookie())
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (a *Authenticator) resolve(ctx context.Context, token string) (*domain.User, error) {
	claims, err := a.tokens.Validate(token)
	if err != nil {
		return nil, err
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, domain.ErrUnauthenticated("invalid subject")
	}
	u, err := a.users.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.Active {
		return nil, domain.ErrUnauthenticated("user %s is inactive", u.Username)
	}
	return u, nil
}

// SessionCookie builds the cookie carrying a freshly issued token.
func (a *Authenticator) SessionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     a.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.tokens.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie builds a cookie that removes the session.
func (a *Authenticator) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     a.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    401,
		"message": "unauthorized: provide a valid session cookie or Bearer token",
	})
}
