package httpapi

import (
	"net/http"

	"genaccess.org/internal/auth"
)

type permissionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type permissionPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type roleRequest struct {
	Name          string   `json:"name"`
	ClientID      string   `json:"client_id"`
	PermissionIDs []string `json:"permission_ids"`
}

type rolePatch struct {
	Name          *string  `json:"name"`
	PermissionIDs []string `json:"permission_ids"`
}

func (a *API) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := a.dir.ListPermissions(r.Context(), actor(r))
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(perms)})
}

func (a *API) getPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "permission")
	if !ok {
		return
	}
	p, err := a.dir.GetPermission(r.Context(), actor(r), id)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) createPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if !bindJSON(w, r, &req) {
		return
	}
	p, err := a.dir.CreatePermission(r.Context(), actor(r), req.Name, req.Description)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.permission.create", "permission", p.ID, map[string]any{"name": p.Name})
	w.Header().Set("Location", "/api/permissions/"+p.ID)
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) updatePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "permission")
	if !ok {
		return
	}
	var req permissionPatch
	if !bindJSON(w, r, &req) {
		return
	}
	p, err := a.dir.UpdatePermission(r.Context(), actor(r), id, auth.PermissionUpdate{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.permission.update", "permission", p.ID, map[string]any{"name": p.Name})
	writeJSON(w, http.StatusOK, p)
}

func (a *API) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "permission")
	if !ok {
		return
	}
	if err := a.dir.DeletePermission(r.Context(), actor(r), id); err != nil {
		writeAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.permission.delete", "permission", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.dir.ListRoles(r.Context(), actor(r))
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(roles)})
}

func (a *API) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "role")
	if !ok {
		return
	}
	role, err := a.dir.GetRole(r.Context(), actor(r), id)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !bindJSON(w, r, &req) {
		return
	}
	role, err := a.dir.CreateRole(r.Context(), actor(r), auth.RoleInput{
		Name:          req.Name,
		ClientID:      req.ClientID,
		PermissionIDs: req.PermissionIDs,
	})
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.role.create", "role", role.ID, map[string]any{
		"name":      role.Name,
		"client_id": role.ClientID,
	})
	w.Header().Set("Location", "/api/roles/"+role.ID)
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "role")
	if !ok {
		return
	}
	var req rolePatch
	if !bindJSON(w, r, &req) {
		return
	}
	role, err := a.dir.UpdateRole(r.Context(), actor(r), id, auth.RoleUpdate{
		Name:          req.Name,
		PermissionIDs: req.PermissionIDs,
	})
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.role.update", "role", role.ID, map[string]any{
		"name":        role.Name,
		"permissions": len(role.PermissionIDs),
	})
	writeJSON(w, http.StatusOK, role)
}

func (a *API) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "role")
	if !ok {
		return
	}
	if err := a.dir.DeleteRole(r.Context(), actor(r), id); err != nil {
		writeAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.role.delete", "role", id, nil)
	w.WriteHeader(http.StatusNoContent)
}
