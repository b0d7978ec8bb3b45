package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/helios-sis/helios-sis/internal/platform/httpx"
	"github.com/helios-sis/helios-sis/internal/principal"
	"github.com/helios-sis/helios-sis/internal/shared"
	"github.com/helios-sis/helios-sis/internal/token"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers public auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/register", h.handleRegister)
	r.Post("/forgot-password", h.handleForgotPassword)
	r.Post("/reset-password", h.handleResetPassword)
}

// MountProtected registers routes that require an authenticated principal.
func (h *Handler) MountProtected(r chi.Router) {
	r.Get("/me", h.handleMe)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	Token string `json:"token"`
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	signed, p, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "invalid email or password")
			return
		}
		h.logger.Error("login", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, loginResponse{Token: signed, ID: p.ID, Email: p.Email, Name: p.Name})
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	p, err := h.service.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		if errors.Is(err, principal.ErrDuplicateEmail) {
			httpx.Problem(w, http.StatusConflict, "Duplicate", "email already registered")
			return
		}
		h.logger.Error("register", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": p.ID, "email": p.Email, "name": p.Name})
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		h.logger.Error("forgot password", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	// Always 202: the response must not reveal whether the email exists.
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		if errors.Is(err, token.ErrInvalid) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "invalid or expired reset token")
			return
		}
		h.logger.Error("reset password", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())
	if p == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "missing credentials")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id":        p.ID,
		"email":     p.Email,
		"name":      p.Name,
		"is_active": p.IsActive,
	})
}
