package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/helios-sis/helios-sis/internal/platform/httpx"
	"github.com/helios-sis/helios-sis/internal/shared"
)

// Guard exposes the permission gate the handler mounts in front of admin
// routes. The request gate implements it.
type Guard interface {
	RequirePermission(permission string) func(http.Handler) http.Handler
}

// Handler manages role and permission administration.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     Guard
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Guard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers admin routes. Callers mount this behind Authenticate.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(shared.PermRolesView))
		r.Get("/roles", h.listRoles)
		r.Get("/roles/{roleID}", h.getRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(shared.PermRolesEdit))
		r.Post("/roles", h.createRole)
		r.Put("/roles/{roleID}", h.updateRole)
		r.Delete("/roles/{roleID}", h.deleteRole)
		r.Put("/roles/{roleID}/permissions", h.setRolePermissions)
		r.Post("/principals/{principalID}/roles/{roleID}", h.assignRole)
		r.Delete("/principals/{principalID}/roles/{roleID}", h.removeRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(shared.PermPermissionsView))
		r.Get("/permissions", h.listPermissions)
	})
}

type roleView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func toRoleView(r Role) roleView {
	return roleView{ID: r.ID, Name: r.Name, Description: r.Description}
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.respondErr(w, "list roles", err)
		return
	}
	views := make([]roleView, len(roles))
	for i, role := range roles {
		views[i] = toRoleView(role)
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.respondErr(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleView(role))
}

type roleRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		h.respondErr(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleView(role))
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, req.Name, req.Description)
	if err != nil {
		h.respondErr(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleView(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		h.respondErr(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rolePermissionsRequest struct {
	PermissionIDs []int64 `json:"permission_ids"`
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	var req rolePermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.service.SetRolePermissions(r.Context(), id, req.PermissionIDs); err != nil {
		h.respondErr(w, "set role permissions", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	principalID, err := pathID(r, "principalID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid principal id")
		return
	}
	roleID, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	if err := h.service.AssignRole(r.Context(), principalID, roleID); err != nil {
		h.respondErr(w, "assign role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	principalID, err := pathID(r, "principalID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid principal id")
		return
	}
	roleID, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	if err := h.service.RemoveRole(r.Context(), principalID, roleID); err != nil {
		h.respondErr(w, "remove role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type permissionView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.respondErr(w, "list permissions", err)
		return
	}
	views := make([]permissionView, len(perms))
	for i, p := range perms {
		views[i] = permissionView{ID: p.ID, Name: p.Name, Description: p.Description}
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, shared.ErrNotFound) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(r *http.Request, param string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, param), 10, 64)
}
