// Package gate composes the per-route authorization guards: authenticate,
// then coarse role/permission checks, then resource-scoped access checks.
// Route definitions apply them in that order.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/helios-sis/helios-sis/internal/abac"
	"github.com/helios-sis/helios-sis/internal/platform/httpx"
	"github.com/helios-sis/helios-sis/internal/principal"
	"github.com/helios-sis/helios-sis/internal/shared"
	"github.com/helios-sis/helios-sis/internal/token"
)

// TokenVerifier validates an access token and returns its claims.
type TokenVerifier interface {
	Verify(raw string) (*token.Claims, error)
}

// PrincipalLoader fetches the current principal record.
type PrincipalLoader interface {
	Load(ctx context.Context, id int64) (*principal.Principal, error)
}

// PermissionResolver answers coarse role/permission questions.
type PermissionResolver interface {
	HasAnyRole(ctx context.Context, principalID int64, roles ...string) (bool, error)
	HasPermission(ctx context.Context, principalID int64, permission string) (bool, error)
}

// AccessChecker evaluates resource-scoped access.
type AccessChecker interface {
	CheckAccess(ctx context.Context, principalID int64, permission, resourceType, resourceID string) (abac.Decision, error)
}

// Gate wires the authorization guards for HTTP handlers.
type Gate struct {
	Tokens     TokenVerifier
	Principals PrincipalLoader
	Resolver   PermissionResolver
	Access     AccessChecker
	CookieName string
	Logger     *slog.Logger
}

// Authenticate verifies the bearer token, loads the principal, rejects stale
// or deactivated identities and stores the principal in the request context.
func (g Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := g.extractToken(r)
		if raw == "" {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "missing credentials")
			return
		}

		claims, err := g.Tokens.Verify(raw)
		if err != nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "invalid or expired token")
			return
		}
		id, err := claims.PrincipalID()
		if err != nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "invalid or expired token")
			return
		}

		p, err := g.Principals.Load(r.Context(), id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "principal no longer exists")
				return
			}
			g.logError("load principal", err)
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}

		if claims.IssuedAt != nil && claims.IssuedAt.Time.Before(p.PasswordChangedAt) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "stale token, re-authenticate")
			return
		}
		if !p.IsActive {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "account deactivated")
			return
		}

		next.ServeHTTP(w, r.WithContext(principal.ContextWith(r.Context(), p)))
	})
}

// RequireAnyRole allows the request when the principal holds at least one of
// the named roles.
func (g Gate) RequireAnyRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := principal.FromContext(r.Context())
			if p == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "missing credentials")
				return
			}
			ok, err := g.Resolver.HasAnyRole(r.Context(), p.ID, roles...)
			if err != nil {
				g.logError("require any role", err)
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if !ok {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "role not permitted")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission allows the request when any of the principal's roles
// grants the named permission.
func (g Gate) RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := principal.FromContext(r.Context())
			if p == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "missing credentials")
				return
			}
			ok, err := g.Resolver.HasPermission(r.Context(), p.ID, permission)
			if err != nil {
				g.logError("require permission", err)
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if !ok {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "permission not granted")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireResourceAccess runs the attribute-based check for the resource named
// by the route parameter.
func (g Gate) RequireResourceAccess(permission, resourceType, routeParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := principal.FromContext(r.Context())
			if p == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "missing credentials")
				return
			}
			resourceID := chi.URLParam(r, routeParam)
			if resourceID == "" {
				httpx.Problem(w, http.StatusBadRequest, "Bad Request", "missing route parameter "+routeParam)
				return
			}
			decision, err := g.Access.CheckAccess(r.Context(), p.ID, permission, resourceType, resourceID)
			if err != nil {
				g.logError("check access", err)
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if !decision.Allowed {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", decision.Reason)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g Gate) extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if g.CookieName != "" {
		if cookie, err := r.Cookie(g.CookieName); err == nil {
			return cookie.Value
		}
	}
	return ""
}

func (g Gate) logError(msg string, err error) {
	if g.Logger != nil {
		g.Logger.Error(msg, slog.Any("error", err))
	}
}
