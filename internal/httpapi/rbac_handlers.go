package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sparehub.org/internal/audit"
)

type createNamedRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type assignPermissionsRequest struct {
	PermissionIDs []string `json:"permission_ids"`
}

func (a *API) registerRBAC(r chi.Router) {
	r.Route("/roles", func(r chi.Router) {
		r.With(a.protect(OpRolesList)).Get("/", a.listRoles)
		r.With(a.protect(OpRolesCreate)).Post("/", a.createRole)
		r.With(a.protect(OpRolesGet)).Get("/{id}", a.getRole)
		r.With(a.protect(OpRolesDelete)).Delete("/{id}", a.deleteRole)
		r.With(a.protect(OpRolesPermissions)).Post("/{id}/permissions", a.setRolePermissions)
	})
	r.Route("/permissions", func(r chi.Router) {
		r.With(a.protect(OpPermissionsList)).Get("/", a.listPermissions)
		r.With(a.protect(OpPermissionsCreate)).Post("/", a.createPermission)
		r.With(a.protect(OpPermissionsGet)).Get("/{id}", a.getPermission)
		r.With(a.protect(OpPermissionsDelete)).Delete("/{id}", a.deletePermission)
	})
}

// pathID returns the {id} URL parameter. Malformed ids cannot name a stored row, so they are
// answered with 404 before reaching the store.
func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return "", false
	}
	return id, true
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.rbac.ListRoles(r.Context())
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	var req createNamedRequest
	if !decodeOr400(w, r, &req) {
		return
	}
	role, err := a.rbac.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventRoleCreated, logrus.Fields{"role_id": role.ID, "name": role.Name})
	w.Header().Set("Location", "/api/roles/"+role.ID)
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	role, err := a.rbac.GetRole(r.Context(), id)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.rbac.DeleteRole(r.Context(), id); err != nil {
		a.handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventRoleDeleted, logrus.Fields{"role_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req assignPermissionsRequest
	if !decodeOr400(w, r, &req) {
		return
	}
	if req.PermissionIDs == nil {
		writeError(w, r, http.StatusBadRequest, "permission_ids is required")
		return
	}
	for _, pid := range req.PermissionIDs {
		if _, err := uuid.Parse(pid); err != nil {
			writeError(w, r, http.StatusNotFound, "permission "+pid+" not found")
			return
		}
	}
	role, err := a.rbac.SetRolePermissions(r.Context(), id, req.PermissionIDs)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventRolePermissions, logrus.Fields{
		"role_id":     id,
		"permissions": role.Permissions,
	})
	writeJSON(w, http.StatusOK, role)
}

func (a *API) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := a.rbac.ListPermissions(r.Context())
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, perms)
}

func (a *API) createPermission(w http.ResponseWriter, r *http.Request) {
	var req createNamedRequest
	if !decodeOr400(w, r, &req) {
		return
	}
	perm, err := a.rbac.CreatePermission(r.Context(), req.Name, req.Description)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventPermissionCreated, logrus.Fields{"permission_id": perm.ID, "name": perm.Name})
	w.Header().Set("Location", "/api/permissions/"+perm.ID)
	writeJSON(w, http.StatusCreated, perm)
}

func (a *API) getPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	perm, err := a.rbac.GetPermission(r.Context(), id)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, perm)
}

func (a *API) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.rbac.DeletePermission(r.Context(), id); err != nil {
		a.handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventPermissionDeleted, logrus.Fields{"permission_id": id})
	w.WriteHeader(http.StatusNoContent)
}
