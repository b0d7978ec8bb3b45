package gate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helios-sis/helios-sis/internal/abac"
	"github.com/helios-sis/helios-sis/internal/principal"
	"github.com/helios-sis/helios-sis/internal/shared"
	"github.com/helios-sis/helios-sis/internal/token"
	_ "github.com/helios-sis/helios-sis/testing"
)

type stubVerifier struct {
	claims map[string]*token.Claims
}

func (s stubVerifier) Verify(raw string) (*token.Claims, error) {
	if c, ok := s.claims[raw]; ok {
		return c, nil
	}
	return nil, token.ErrInvalid
}

type stubLoader struct {
	principals map[int64]*principal.Principal
}

func (s stubLoader) Load(ctx context.Context, id int64) (*principal.Principal, error) {
	if p, ok := s.principals[id]; ok {
		return p, nil
	}
	return nil, shared.ErrNotFound
}

type stubResolver struct {
	roles map[int64][]string
	perms map[int64][]string
}

func (s stubResolver) HasAnyRole(ctx context.Context, principalID int64, roles ...string) (bool, error) {
	for _, held := range s.roles[principalID] {
		for _, want := range roles {
			if held == want {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s stubResolver) HasPermission(ctx context.Context, principalID int64, permission string) (bool, error) {
	for _, p := range s.perms[principalID] {
		if p == permission {
			return true, nil
		}
	}
	return false, nil
}

type stubAccess struct {
	decision abac.Decision
}

func (s stubAccess) CheckAccess(ctx context.Context, principalID int64, permission, resourceType, resourceID string) (abac.Decision, error) {
	return s.decision, nil
}

func claimsFor(id string, issuedAt time.Time) *token.Claims {
	return &token.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  id,
		IssuedAt: jwt.NewNumericDate(issuedAt),
	}}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func testGate() Gate {
	now := time.Now()
	return Gate{
		Tokens: stubVerifier{claims: map[string]*token.Claims{
			"good":        claimsFor("1", now),
			"stale":       claimsFor("1", now.Add(-48*time.Hour)),
			"ghost":       claimsFor("99", now),
			"deactivated": claimsFor("2", now),
			"badsubject":  claimsFor("not-a-number", now),
		}},
		Principals: stubLoader{principals: map[int64]*principal.Principal{
			1: {ID: 1, Email: "f@helios.local", IsActive: true, PasswordChangedAt: now.Add(-24 * time.Hour)},
			2: {ID: 2, Email: "x@helios.local", IsActive: false, PasswordChangedAt: now.Add(-24 * time.Hour)},
		}},
		Resolver: stubResolver{
			roles: map[int64][]string{1: {"Faculty"}},
			perms: map[int64][]string{1: {"attendance_mark"}},
		},
		CookieName: "helios_token",
	}
}

func problemDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Detail
}

func TestAuthenticate(t *testing.T) {
	g := testGate()
	handler := g.Authenticate(okHandler())

	cases := []struct {
		name       string
		token      string
		wantStatus int
		wantDetail string
	}{
		{"valid token", "good", http.StatusOK, ""},
		{"missing token", "", http.StatusUnauthorized, "missing credentials"},
		{"unknown token", "forged", http.StatusUnauthorized, "invalid or expired token"},
		{"non numeric subject", "badsubject", http.StatusUnauthorized, "invalid or expired token"},
		{"deleted principal", "ghost", http.StatusUnauthorized, "principal no longer exists"},
		{"issued before password change", "stale", http.StatusUnauthorized, "stale token, re-authenticate"},
		{"deactivated account", "deactivated", http.StatusUnauthorized, "account deactivated"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantDetail != "" {
				assert.Equal(t, tc.wantDetail, problemDetail(t, rec))
			}
		})
	}
}

func TestAuthenticateFromCookie(t *testing.T) {
	g := testGate()
	handler := g.Authenticate(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "helios_token", Value: "good"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticateStoresPrincipal(t *testing.T) {
	g := testGate()
	var got *principal.Principal
	handler := g.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = principal.FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.ID)
}

func TestRequireAnyRole(t *testing.T) {
	g := testGate()
	chain := g.Authenticate(g.RequireAnyRole("Faculty", "Registrar")(okHandler()))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	denied := g.Authenticate(g.RequireAnyRole("Admin")(okHandler()))
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	denied.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "role not permitted", problemDetail(t, rec))
}

func TestRequireAnyRoleWithoutAuthentication(t *testing.T) {
	g := testGate()
	handler := g.RequireAnyRole("Faculty")(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequirePermission(t *testing.T) {
	g := testGate()

	allowed := g.Authenticate(g.RequirePermission("attendance_mark")(okHandler()))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	allowed.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	denied := g.Authenticate(g.RequirePermission("roles.edit")(okHandler()))
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec = httptest.NewRecorder()
	denied.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "permission not granted", problemDetail(t, rec))
}

func TestRequireResourceAccess(t *testing.T) {
	cases := []struct {
		name       string
		decision   abac.Decision
		wantStatus int
		wantDetail string
	}{
		{"allowed", abac.Decision{Allowed: true}, http.StatusOK, ""},
		{"denied default", abac.Decision{Reason: "insufficient permissions"}, http.StatusForbidden, "insufficient permissions"},
		{"denied not faculty", abac.Decision{Reason: "User is not a faculty member"}, http.StatusForbidden, "User is not a faculty member"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := testGate()
			g.Access = stubAccess{decision: tc.decision}

			r := chi.NewRouter()
			r.With(g.Authenticate, g.RequireResourceAccess("attendance_mark", "section", "sectionID")).
				Post("/sections/{sectionID}/attendance", func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusOK)
				})

			req := httptest.NewRequest(http.MethodPost, "/sections/S1/attendance", nil)
			req.Header.Set("Authorization", "Bearer good")
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantDetail != "" {
				assert.Equal(t, tc.wantDetail, problemDetail(t, rec))
			}
		})
	}
}

func TestRequireResourceAccessMissingParam(t *testing.T) {
	g := testGate()
	g.Access = stubAccess{decision: abac.Decision{Allowed: true}}

	// Route registered without the parameter the guard expects.
	r := chi.NewRouter()
	r.With(g.Authenticate, g.RequireResourceAccess("attendance_mark", "section", "sectionID")).
		Post("/attendance", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

	req := httptest.NewRequest(http.MethodPost, "/attendance", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing route parameter sectionID", problemDetail(t, rec))
}
