package httpapi

import (
	"net/http"

	"genaccess.org/internal/auth"
)

type clientRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type clientPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type userRequest struct {
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	ClientID  string   `json:"client_id"`
	Roles     []string `json:"roles"`
}

// userPatch leaves a field untouched when it is absent. An explicit empty
// roles array clears the assignment.
type userPatch struct {
	FirstName *string  `json:"first_name"`
	LastName  *string  `json:"last_name"`
	Username  *string  `json:"username"`
	Email     *string  `json:"email"`
	Password  *string  `json:"password"`
	ClientID  *string  `json:"client_id"`
	Roles     []string `json:"roles"`
}

func (a *API) listClients(w http.ResponseWriter, r *http.Request) {
	clients, err := a.dir.ListClients(r.Context(), actor(r))
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(clients)})
}

func (a *API) getClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "client")
	if !ok {
		return
	}
	c, err := a.dir.GetClient(r.Context(), actor(r), id)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) clientUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "client")
	if !ok {
		return
	}
	u, err := a.dir.ClientUsage(r.Context(), actor(r), id)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) createClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if !bindJSON(w, r, &req) {
		return
	}
	c, err := a.dir.CreateClient(r.Context(), actor(r), req.Name, req.Description)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "directory.client.create", "client", c.ID, map[string]any{"name": c.Name})
	w.Header().Set("Location", "/api/clients/"+c.ID)
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) updateClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "client")
	if !ok {
		return
	}
	var req clientPatch
	if !bindJSON(w, r, &req) {
		return
	}
	c, err := a.dir.UpdateClient(r.Context(), actor(r), id, auth.ClientUpdate{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "directory.client.update", "client", c.ID, map[string]any{"name": c.Name})
	writeJSON(w, http.StatusOK, c)
}

func (a *API) deleteClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "client")
	if !ok {
		return
	}
	if err := a.dir.DeleteClient(r.Context(), actor(r), id); err != nil {
		writeAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "directory.client.delete", "client", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.dir.ListUsers(r.Context(), actor(r))
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(users)})
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "user")
	if !ok {
		return
	}
	u, err := a.dir.GetUser(r.Context(), actor(r), id)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !bindJSON(w, r, &req) {
		return
	}
	u, err := a.dir.CreateUser(r.Context(), actor(r), auth.UserInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		ClientID:  req.ClientID,
		Roles:     req.Roles,
	})
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "directory.user.create", "user", u.ID, map[string]any{
		"username":  u.Username,
		"client_id": u.ClientID,
	})
	w.Header().Set("Location", "/api/users/"+u.ID)
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "user")
	if !ok {
		return
	}
	var req userPatch
	if !bindJSON(w, r, &req) {
		return
	}
	u, err := a.dir.UpdateUser(r.Context(), actor(r), id, auth.UserUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		ClientID:  req.ClientID,
		Roles:     req.Roles,
	})
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "directory.user.update", "user", u.ID, map[string]any{"username": u.Username})
	writeJSON(w, http.StatusOK, u)
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "user")
	if !ok {
		return
	}
	if err := a.dir.DeleteUser(r.Context(), actor(r), id); err != nil {
		writeAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "directory.user.delete", "user", id, nil)
	w.WriteHeader(http.StatusNoContent)
}
