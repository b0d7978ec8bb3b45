package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/helios-sis/helios-sis/internal/principal"
	"github.com/helios-sis/helios-sis/internal/shared"
	"github.com/helios-sis/helios-sis/internal/token"
	_ "github.com/helios-sis/helios-sis/testing"
)

type memRepo struct {
	nextID     int64
	byID       map[int64]*principal.Principal
	resetOwner map[string]int64
	resetExp   map[string]time.Time
}

func newMemRepo() *memRepo {
	return &memRepo{
		nextID:     1,
		byID:       map[int64]*principal.Principal{},
		resetOwner: map[string]int64{},
		resetExp:   map[string]time.Time{},
	}
}

func (m *memRepo) GetByID(ctx context.Context, id int64) (*principal.Principal, error) {
	if p, ok := m.byID[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, shared.ErrNotFound
}

func (m *memRepo) GetByEmail(ctx context.Context, email string) (*principal.Principal, error) {
	for _, p := range m.byID {
		if p.Email == email {
			cp := *p
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memRepo) Create(ctx context.Context, email, name, passwordHash string) (*principal.Principal, error) {
	if _, err := m.GetByEmail(ctx, email); err == nil {
		return nil, principal.ErrDuplicateEmail
	}
	p := &principal.Principal{
		ID:           m.nextID,
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		IsActive:     true,
	}
	m.byID[p.ID] = p
	m.nextID++
	cp := *p
	return &cp, nil
}

func (m *memRepo) ListAttributes(ctx context.Context, principalID int64) ([]principal.Attribute, error) {
	return nil, nil
}

func (m *memRepo) AddAttribute(ctx context.Context, principalID int64, name, value string) error {
	return nil
}

func (m *memRepo) SetActive(ctx context.Context, principalID int64, active bool) error {
	p, ok := m.byID[principalID]
	if !ok {
		return shared.ErrNotFound
	}
	p.IsActive = active
	return nil
}

func (m *memRepo) UpdatePassword(ctx context.Context, principalID int64, passwordHash string) error {
	p, ok := m.byID[principalID]
	if !ok {
		return shared.ErrNotFound
	}
	p.PasswordHash = passwordHash
	p.PasswordChangedAt = time.Now()
	return nil
}

func (m *memRepo) SetPasswordResetToken(ctx context.Context, principalID int64, digest string, expiresAt time.Time) error {
	if _, ok := m.byID[principalID]; !ok {
		return shared.ErrNotFound
	}
	m.resetOwner[digest] = principalID
	m.resetExp[digest] = expiresAt
	return nil
}

func (m *memRepo) FindByPasswordResetDigest(ctx context.Context, digest string) (*principal.Principal, error) {
	id, ok := m.resetOwner[digest]
	if !ok || time.Now().After(m.resetExp[digest]) {
		return nil, shared.ErrNotFound
	}
	return m.GetByID(ctx, id)
}

func (m *memRepo) ClearPasswordResetToken(ctx context.Context, principalID int64) error {
	for digest, owner := range m.resetOwner {
		if owner == principalID {
			delete(m.resetOwner, digest)
			delete(m.resetExp, digest)
		}
	}
	return nil
}

var _ principal.Repository = (*memRepo)(nil)

type captureMail struct {
	to    string
	token string
}

func (c *captureMail) EnqueueResetEmail(ctx context.Context, to, resetToken string) error {
	c.to = to
	c.token = resetToken
	return nil
}

func newTestRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

type fixture struct {
	handler *Handler
	repo    *memRepo
	mail    *captureMail
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemRepo()
	mail := &captureMail{}
	tokens := token.NewService("test-secret", time.Hour, "helios-test")
	resets := token.NewResetService(repo, time.Hour)
	svc := NewService(repo, tokens, resets, mail)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{handler: NewHandler(logger, svc), repo: repo, mail: mail}
}

func (f *fixture) seedPrincipal(t *testing.T, email, password string) *principal.Principal {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	p, err := f.repo.Create(context.Background(), email, "Test Principal", string(hashed))
	require.NoError(t, err)
	return p
}

func (f *fixture) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r := newTestRouter(f.handler)
	r.ServeHTTP(rec, req)
	return rec
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	f.seedPrincipal(t, "faculty@helios.local", "correct-horse")

	rec := f.post(t, "/login", map[string]string{
		"email":    "faculty@helios.local",
		"password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "faculty@helios.local", resp.Email)
}

func TestLoginBadCredentials(t *testing.T) {
	f := newFixture(t)
	f.seedPrincipal(t, "faculty@helios.local", "correct-horse")

	cases := []map[string]string{
		{"email": "faculty@helios.local", "password": "wrong-password"},
		{"email": "nobody@helios.local", "password": "correct-horse"},
	}
	for _, body := range cases {
		rec := f.post(t, "/login", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestLoginDeactivated(t *testing.T) {
	f := newFixture(t)
	p := f.seedPrincipal(t, "former@helios.local", "correct-horse")
	require.NoError(t, f.repo.SetActive(context.Background(), p.ID, false))

	rec := f.post(t, "/login", map[string]string{
		"email":    "former@helios.local",
		"password": "correct-horse",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "/register", map[string]string{
		"email":    "new@helios.local",
		"name":     "New Principal",
		"password": "long-enough-pw",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Duplicate registration conflicts.
	rec = f.post(t, "/register", map[string]string{
		"email":    "new@helios.local",
		"name":     "New Principal",
		"password": "long-enough-pw",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "/register", map[string]string{
		"email":    "not-an-email",
		"name":     "X",
		"password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t)
	f.seedPrincipal(t, "faculty@helios.local", "old-password-1")

	rec := f.post(t, "/forgot-password", map[string]string{"email": "faculty@helios.local"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NotEmpty(t, f.mail.token)
	assert.Equal(t, "faculty@helios.local", f.mail.to)

	rec = f.post(t, "/reset-password", map[string]string{
		"token":    f.mail.token,
		"password": "new-password-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// Old password no longer works, new one does.
	rec = f.post(t, "/login", map[string]string{
		"email":    "faculty@helios.local",
		"password": "old-password-1",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.post(t, "/login", map[string]string{
		"email":    "faculty@helios.local",
		"password": "new-password-1",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	// The reset token is single use.
	rec = f.post(t, "/reset-password", map[string]string{
		"token":    f.mail.token,
		"password": "another-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "/forgot-password", map[string]string{"email": "ghost@helios.local"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, f.mail.token)
}

func TestResetPasswordInvalidToken(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "/reset-password", map[string]string{
		"token":    "never-issued",
		"password": "whatever-pw-1",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
