package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"genaccess.org/internal/auth"
	"genaccess.org/internal/bootstrap"
	"genaccess.org/internal/revocation"
	"genaccess.org/internal/store/memory"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
	system  auth.Client
}

func newTestAPI(t *testing.T, opts ...Option) *apiClient {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	res, err := bootstrap.Seed(ctx, store, bootstrap.Admin{Username: "root", Email: "root@example.com", Password: "root-pw"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	tokens, err := auth.NewTokenService([]byte("0123456789abcdef0123456789abcdef"), revocation.NewMemory())
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	svc, err := auth.NewService(store, tokens)
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	opts = append([]Option{WithRateLimit(1000, 1000), WithVersion("test")}, opts...)
	api := New(svc, opts...)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{baseURL: srv.URL, client: srv.Client(), t: t, system: res.Client}
}

func (c *apiClient) do(method, path, token string, body any) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	c.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (c *apiClient) login(username, password string) string {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/api/auth/login", "", loginRequest{Username: username, Password: password})
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login %s: status %d", username, resp.StatusCode)
	}
	var out loginResponse
	decode(c.t, resp, &out)
	if out.Token == "" {
		c.t.Fatal("empty token")
	}
	return out.Token
}

func decode(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		var body map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&body)
		t.Fatalf("%s %s: status %d, want %d (body %v)", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, body)
	}
}

func TestHealthAndReady(t *testing.T) {
	c := newTestAPI(t)
	resp := c.do(http.MethodGet, "/healthz", "", nil)
	expectStatus(t, resp, http.StatusOK)
	var body map[string]any
	decode(t, resp, &body)
	if body["version"] != "test" {
		t.Fatalf("unexpected healthz body: %v", body)
	}
	if got := resp.Header.Get("X-Request-ID"); got == "" {
		t.Fatal("expected X-Request-ID header")
	}
	expectStatus(t, c.do(http.MethodGet, "/readyz", "", nil), http.StatusOK)
}

type failingProbe struct{}

func (failingProbe) Ping(context.Context) error { return errors.New("db down") }

func TestReadyReportsProbeFailure(t *testing.T) {
	c := newTestAPI(t, WithReadyProbe(failingProbe{}))
	expectStatus(t, c.do(http.MethodGet, "/readyz", "", nil), http.StatusServiceUnavailable)
}

func TestLoginRejectsBadCredentialsUniformly(t *testing.T) {
	c := newTestAPI(t)
	wrong := c.do(http.MethodPost, "/api/auth/login", "", loginRequest{Username: "root", Password: "nope"})
	unknown := c.do(http.MethodPost, "/api/auth/login", "", loginRequest{Username: "ghost", Password: "nope"})
	expectStatus(t, wrong, http.StatusUnauthorized)
	expectStatus(t, unknown, http.StatusUnauthorized)

	var a, b map[string]any
	decode(t, wrong, &a)
	decode(t, unknown, &b)
	if a["error"] != b["error"] {
		t.Fatalf("login failures differ: %v vs %v", a["error"], b["error"])
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	c := newTestAPI(t)
	resp := c.do(http.MethodGet, "/api/users", "", nil)
	expectStatus(t, resp, http.StatusUnauthorized)
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate header")
	}
	expectStatus(t, c.do(http.MethodGet, "/api/users", "garbage", nil), http.StatusUnauthorized)
}

func TestLogoutRevokesToken(t *testing.T) {
	c := newTestAPI(t)
	token := c.login("root", "root-pw")

	resp := c.do(http.MethodGet, "/api/auth/me", token, nil)
	expectStatus(t, resp, http.StatusOK)
	var me meResponse
	decode(t, resp, &me)
	if me.Username != "root" || me.ClientID != c.system.ID {
		t.Fatalf("unexpected me: %+v", me)
	}

	expectStatus(t, c.do(http.MethodPost, "/api/auth/logout", token, nil), http.StatusNoContent)
	expectStatus(t, c.do(http.MethodGet, "/api/auth/me", token, nil), http.StatusUnauthorized)

	// A fresh login still works.
	other := c.login("root", "root-pw")
	expectStatus(t, c.do(http.MethodGet, "/api/auth/me", other, nil), http.StatusOK)
}

func TestRegisterGrantsUserRoleOnly(t *testing.T) {
	c := newTestAPI(t)
	resp := c.do(http.MethodPost, "/api/auth/register", "", registerRequest{
		FirstName: "Reg", LastName: "User", Username: "reggie", Email: "reggie@example.com",
		Password: "pw-123", ClientID: c.system.ID,
	})
	expectStatus(t, resp, http.StatusCreated)
	if resp.Header.Get("Location") == "" {
		t.Fatal("expected Location header")
	}

	token := c.login("reggie", "pw-123")
	resp = c.do(http.MethodGet, "/api/auth/me", token, nil)
	expectStatus(t, resp, http.StatusOK)
	var me meResponse
	decode(t, resp, &me)
	if len(me.Roles) != 1 || me.Roles[0] != auth.RoleUser {
		t.Fatalf("roles = %v, want [USER]", me.Roles)
	}
	expectStatus(t, c.do(http.MethodGet, "/api/users", token, nil), http.StatusForbidden)

	dup := c.do(http.MethodPost, "/api/auth/register", "", registerRequest{
		Username: "reggie", Email: "other@example.com", Password: "pw",
	})
	expectStatus(t, dup, http.StatusConflict)
}

func TestTenantScopedCRUD(t *testing.T) {
	c := newTestAPI(t)
	root := c.login("root", "root-pw")

	var acme auth.Client
	resp := c.do(http.MethodPost, "/api/clients", root, clientRequest{Name: "Acme", Description: "tenant"})
	expectStatus(t, resp, http.StatusCreated)
	decode(t, resp, &acme)

	var perms struct {
		Items []auth.Permission `json:"items"`
	}
	resp = c.do(http.MethodGet, "/api/permissions", root, nil)
	expectStatus(t, resp, http.StatusOK)
	decode(t, resp, &perms)
	var adminPerms, userPerms []string
	for _, p := range perms.Items {
		if p.Name == auth.PermUserRead {
			userPerms = append(userPerms, p.ID)
		}
		for _, want := range auth.BuiltinRoles[auth.RoleClientAdmin] {
			if p.Name == want {
				adminPerms = append(adminPerms, p.ID)
			}
		}
	}

	expectStatus(t, c.do(http.MethodPost, "/api/roles", root, roleRequest{
		Name: auth.RoleClientAdmin, ClientID: acme.ID, PermissionIDs: adminPerms,
	}), http.StatusCreated)
	expectStatus(t, c.do(http.MethodPost, "/api/roles", root, roleRequest{
		Name: auth.RoleUser, ClientID: acme.ID, PermissionIDs: userPerms,
	}), http.StatusCreated)
	expectStatus(t, c.do(http.MethodPost, "/api/users", root, userRequest{
		Username: "acme-admin", Email: "admin@acme.test", Password: "acme-pw",
		ClientID: acme.ID, Roles: []string{auth.RoleClientAdmin},
	}), http.StatusCreated)

	admin := c.login("acme-admin", "acme-pw")

	// Clients are reserved for super admins.
	expectStatus(t, c.do(http.MethodGet, "/api/clients", admin, nil), http.StatusForbidden)

	var created auth.User
	resp = c.do(http.MethodPost, "/api/users", admin, userRequest{
		Username: "worker", Email: "worker@acme.test", Password: "pw", ClientID: c.system.ID,
	})
	expectStatus(t, resp, http.StatusCreated)
	decode(t, resp, &created)
	if created.ClientID != acme.ID {
		t.Fatalf("user created in %q, want tenant %q", created.ClientID, acme.ID)
	}

	var list struct {
		Items []auth.User `json:"items"`
	}
	resp = c.do(http.MethodGet, "/api/users", admin, nil)
	expectStatus(t, resp, http.StatusOK)
	decode(t, resp, &list)
	for _, u := range list.Items {
		if u.ClientID != acme.ID {
			t.Fatalf("tenant admin sees foreign user %s", u.Username)
		}
	}
	if len(list.Items) != 2 {
		t.Fatalf("listed %d users, want 2", len(list.Items))
	}

	// Root lives in the System tenant: invisible to the Acme admin.
	resp = c.do(http.MethodGet, "/api/users", root, nil)
	expectStatus(t, resp, http.StatusOK)
	decode(t, resp, &list)
	var rootID string
	for _, u := range list.Items {
		if u.Username == "root" {
			rootID = u.ID
		}
	}
	expectStatus(t, c.do(http.MethodGet, "/api/users/"+rootID, admin, nil), http.StatusNotFound)
	expectStatus(t, c.do(http.MethodDelete, "/api/users/"+rootID, admin, nil), http.StatusForbidden)

	name := "Worker"
	resp = c.do(http.MethodPut, "/api/users/"+created.ID, admin, userPatch{FirstName: &name})
	expectStatus(t, resp, http.StatusOK)
	expectStatus(t, c.do(http.MethodDelete, "/api/users/"+created.ID, admin, nil), http.StatusNoContent)
	expectStatus(t, c.do(http.MethodGet, "/api/users/"+created.ID, admin, nil), http.StatusNotFound)

	// Acme still owns a user and two roles.
	expectStatus(t, c.do(http.MethodDelete, "/api/clients/"+acme.ID, root, nil), http.StatusPreconditionFailed)
	resp = c.do(http.MethodGet, "/api/clients/"+acme.ID+"/usage", root, nil)
	expectStatus(t, resp, http.StatusOK)
	var usage auth.Usage
	decode(t, resp, &usage)
	if usage.Users != 1 || usage.Roles != 2 {
		t.Fatalf("usage = %+v", usage)
	}
}

func TestRequestValidation(t *testing.T) {
	c := newTestAPI(t)
	root := c.login("root", "root-pw")

	expectStatus(t, c.do(http.MethodGet, "/api/roles/not-an-id", root, nil), http.StatusNotFound)
	expectStatus(t, c.do(http.MethodPost, "/api/clients", root, map[string]any{"name": "Acme", "extra": 1}), http.StatusBadRequest)
	expectStatus(t, c.do(http.MethodPost, "/api/clients", root, clientRequest{Name: "ab"}), http.StatusBadRequest)
	expectStatus(t, c.do(http.MethodPost, "/api/clients", root, clientRequest{Name: "System"}), http.StatusConflict)
	expectStatus(t, c.do(http.MethodPatch, "/api/clients", root, nil), http.StatusMethodNotAllowed)
}
