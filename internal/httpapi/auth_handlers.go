package httpapi

import (
	"net/http"
	"time"

	"genaccess.org/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token       string    `json:"token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        auth.User `json:"user"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
}

type registerRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	ClientID  string `json:"client_id"`
}

type meResponse struct {
	UserID      string   `json:"user_id"`
	Username    string   `json:"username"`
	ClientID    string   `json:"client_id,omitempty"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !bindJSON(w, r, &req) {
		return
	}
	sess, err := a.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		a.audit(r.Context(), "auth.login.failed", "user", "", map[string]any{"username": req.Username})
		writeAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "auth.login", "user", sess.User.ID, map[string]any{
		"username":   sess.User.Username,
		"expires_at": sess.ExpiresAt.Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, loginResponse{
		Token:       sess.Token,
		TokenType:   "Bearer",
		ExpiresAt:   sess.ExpiresAt,
		User:        sess.User,
		Roles:       nonNil(sess.Identity.Roles()),
		Permissions: nonNil(sess.Identity.Permissions()),
	})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !bindJSON(w, r, &req) {
		return
	}
	u, err := a.svc.Register(r.Context(), auth.UserInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		ClientID:  req.ClientID,
	})
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "auth.register", "user", u.ID, map[string]any{"username": u.Username})
	w.Header().Set("Location", "/api/users/"+u.ID)
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.TokenFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if err := a.svc.Logout(r.Context(), token); err != nil {
		writeAuthError(w, r, err)
		return
	}
	id := actor(r)
	a.audit(r.Context(), "auth.logout", "user", id.UserID, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	id := actor(r)
	writeJSON(w, http.StatusOK, meResponse{
		UserID:      id.UserID,
		Username:    id.Username,
		ClientID:    id.ClientID,
		Roles:       nonNil(id.Roles()),
		Permissions: nonNil(id.Permissions()),
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
