package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"genaccess.org/internal/audit"
	"genaccess.org/internal/auth"
	"genaccess.org/internal/ids"
	"genaccess.org/internal/obs"
)

const serviceName = "genaccess-api"

// ReadyProbe reports whether backing stores are reachable.
type ReadyProbe interface {
	Ping(ctx context.Context) error
}

type noopProbe struct{}

func (noopProbe) Ping(context.Context) error { return nil }

// Option customises the API.
type Option func(*API)

// WithReadyProbe sets the dependency checked by /readyz.
func WithReadyProbe(p ReadyProbe) Option {
	return func(a *API) {
		if p != nil {
			a.ready = p
		}
	}
}

// WithRateLimit sets the per-IP token bucket.
func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		a.rateBurst = burst
		a.ratePerSec = perSecond
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBody = n
		}
	}
}

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) Option {
	return func(a *API) { a.version = v }
}

// API is the HTTP layer over auth.Service.
type API struct {
	mux        *http.ServeMux
	svc        *auth.Service
	dir        *auth.Directory
	ready      ReadyProbe
	version    string
	rateBurst  int
	ratePerSec int
	maxBody    int64
}

func New(svc *auth.Service, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		dir:        svc.Directory(),
		ready:      noopProbe{},
		version:    "dev",
		rateBurst:  20,
		ratePerSec: 10,
		maxBody:    1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.routes()
	return a
}

func (a *API) routes() {
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /api/auth/login", a.handleLogin)
	a.mux.HandleFunc("POST /api/auth/register", a.handleRegister)
	a.mux.HandleFunc("POST /api/auth/logout", a.handleLogout)
	a.mux.HandleFunc("GET /api/auth/me", a.handleMe)

	a.mux.HandleFunc("GET /api/clients", a.listClients)
	a.mux.HandleFunc("POST /api/clients", a.createClient)
	a.mux.HandleFunc("GET /api/clients/{id}", a.getClient)
	a.mux.HandleFunc("GET /api/clients/{id}/usage", a.clientUsage)
	a.mux.HandleFunc("PUT /api/clients/{id}", a.updateClient)
	a.mux.HandleFunc("DELETE /api/clients/{id}", a.deleteClient)

	a.mux.HandleFunc("GET /api/permissions", a.listPermissions)
	a.mux.HandleFunc("POST /api/permissions", a.createPermission)
	a.mux.HandleFunc("GET /api/permissions/{id}", a.getPermission)
	a.mux.HandleFunc("PUT /api/permissions/{id}", a.updatePermission)
	a.mux.HandleFunc("DELETE /api/permissions/{id}", a.deletePermission)

	a.mux.HandleFunc("GET /api/roles", a.listRoles)
	a.mux.HandleFunc("POST /api/roles", a.createRole)
	a.mux.HandleFunc("GET /api/roles/{id}", a.getRole)
	a.mux.HandleFunc("PUT /api/roles/{id}", a.updateRole)
	a.mux.HandleFunc("DELETE /api/roles/{id}", a.deleteRole)

	a.mux.HandleFunc("GET /api/users", a.listUsers)
	a.mux.HandleFunc("POST /api/users", a.createUser)
	a.mux.HandleFunc("GET /api/users/{id}", a.getUser)
	a.mux.HandleFunc("PUT /api/users/{id}", a.updateUser)
	a.mux.HandleFunc("DELETE /api/users/{id}", a.deleteUser)
}

// Handler returns the fully wrapped handler chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, a.maxBody)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.ready.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) audit(ctx context.Context, event, kind, id string, fields map[string]any) {
	payload := map[string]any{"kind": kind, "id": id}
	for k, v := range fields {
		payload[k] = v
	}
	if err := audit.LogEvent(ctx, event, payload); err != nil {
		obs.Logger().WarnContext(ctx, "audit log failed", "event", event, "error", err)
	}
}

// pathID extracts and checks the {id} wildcard. Malformed ids cannot exist.
func pathID(w http.ResponseWriter, r *http.Request, kind string) (string, bool) {
	id := r.PathValue("id")
	if !ids.Valid(id) {
		writeError(w, r, http.StatusNotFound, kind+" not found")
		return "", false
	}
	return id, true
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// writeAuthError maps auth outcomes onto HTTP status codes.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrBadCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid username or password")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, auth.ErrMalformedToken), errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrPrecondition):
		writeError(w, r, http.StatusPreconditionFailed, err.Error())
	default:
		obs.Logger().ErrorContext(r.Context(), "request failed",
			"request_id", RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body too large")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func bindJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(r, dst); err != nil {
		writeError(w, r, http.StatusBadRequest, strings.TrimPrefix(err.Error(), "json: "))
		return false
	}
	return true
}
