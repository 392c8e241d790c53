package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                          "/",
		"/metrics":                  "/metrics",
		"/api/users/01HXYZ":         "/api/users/:id",
		"/api/roles/abc?x=1":        "/api/roles/:id",
		"/api/clients":              "/api/clients",
		"/api/auth/login":           "/api/auth/login",
		"/api/clients/abc/usage":    "/api/clients/:id/usage",
		"/api/permissions/p1":       "/api/permissions/:id",
		"/api/auth/logout?reason=x": "/api/auth/logout",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
