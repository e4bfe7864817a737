package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mohammedemad618/amir-sub000/internal/storage"
	"github.com/mohammedemad618/amir-sub000/internal/storage/models"
	"github.com/mohammedemad618/amir-sub000/pkg/errors"
	"github.com/mohammedemad618/amir-sub000/pkg/logger"
)

type ctxKey struct{}

// Identity is the authenticated caller
type Identity struct {
	UserID string
	Email  string
	Name   string
	Role   models.Role
}

// IsAdmin reports whether the caller has the admin role
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == models.RoleAdmin
}

// Can reports whether the caller holds perm
func (i *Identity) Can(perm Permission) bool {
	return i != nil && RoleHasPermission(i.Role, perm)
}

// WithIdentity stores id in ctx
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IdentityFrom returns the caller stored by the middleware, or nil
func IdentityFrom(ctx context.Context) *Identity {
	id, _ := ctx.Value(ctxKey{}).(*Identity)
	return id
}

// ErrorWriter renders an error response
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// CookieConfig describes the session cookie
type CookieConfig struct {
	Name   string
	Secure bool
}

// Authenticator resolves the caller from the session cookie or a Bearer header
type Authenticator struct {
	tokens   *TokenManager
	users    storage.UserRepository
	cookie   CookieConfig
	writeErr ErrorWriter
	logger   *zap.Logger
}

func NewAuthenticator(tokens *TokenManager, users storage.UserRepository, cookie CookieConfig, writeErr ErrorWriter, log *zap.Logger) *Authenticator {
	return &Authenticator{
		tokens:   tokens,
		users:    users,
		cookie:   cookie,
		writeErr: writeErr,
		logger:   logger.OrNop(log),
	}
}

func (a *Authenticator) token(r *http.Request) string {
	if c, err := r.Cookie(a.cookie.Name); err == nil && c.Value != "" {
		return c.Value
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Middleware attaches the caller's Identity when a valid token is present.
// The role is read from storage so role changes apply immediately.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := a.token(r)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := a.tokens.Parse(raw)
		if err != nil {
			a.logger.Debug("Rejected token", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		user, err := a.users.GetUserByID(r.Context(), claims.Subject)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				a.logger.Error("Failed to load token subject", zap.Error(err))
			}
			next.ServeHTTP(w, r)
			return
		}

		id := &Identity{UserID: user.ID, Email: user.Email, Name: user.Name, Role: user.Role}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequireAuth rejects anonymous callers with 401
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IdentityFrom(r.Context()) == nil {
			a.writeErr(w, r, errors.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission rejects anonymous callers with 401 and callers lacking perm with 403
func (a *Authenticator) RequirePermission(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFrom(r.Context())
			if id == nil {
				a.writeErr(w, r, errors.ErrUnauthorized)
				return
			}
			if !id.Can(perm) {
				a.writeErr(w, r, errors.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SetCookie writes the session cookie
func (a *Authenticator) SetCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookie.Name,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   a.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie
func (a *Authenticator) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
