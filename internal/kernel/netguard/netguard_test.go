package netguard

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opskernel/pluginhost/internal/kernel/audit"
	"github.com/opskernel/pluginhost/internal/kernel/permission"
)

func newTestGuard(t *testing.T) (*Guard, *permission.Store) {
	t.Helper()
	dir := t.TempDir()
	perms := permission.New(dir, permission.AutoDeny{}, audit.New(dir))
	return New(perms, audit.New(dir)), perms
}

func TestDomainNotPermittedRejected(t *testing.T) {
	g, _ := newTestGuard(t)
	_, err := g.Do("p1", Request{Method: "GET", URL: "https://api.example.com/data"})
	if err == nil {
		t.Fatal("expected rejection without a network grant")
	}
}

func TestDotBoundaryRejectsLookalikeDomain(t *testing.T) {
	g, perms := newTestGuard(t)
	perms.Grant("p1", permission.TypeNetworkRequest, "*.example.com")

	if g.permissions.ValidateNetwork("p1", "notexample.com") {
		t.Fatal("notexample.com must not match *.example.com")
	}
}

func TestCacheKeyGeneration(t *testing.T) {
	got := cacheKey("GET", "https://api.example.com/data", nil)
	want := "GET:https://api.example.com/data"
	if got != want {
		t.Fatalf("cacheKey = %q, want %q", got, want)
	}

	withAuth := cacheKey("GET", "https://api.example.com/data", map[string]string{"Authorization": "Bearer token123"})
	if withAuth == want {
		t.Fatal("expected auth-bearing key to differ")
	}
	if !containsSubstr(withAuth, "auth:Bearer token123") {
		t.Fatalf("expected auth suffix in key, got %q", withAuth)
	}
}

func containsSubstr(s, sub string) bool {
	return len(s) >= len(sub) && (func() bool {
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				return true
			}
		}
		return false
	})()
}

func TestSuccessfulGetIsCached(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	g, perms := newTestGuard(t)
	perms.Grant("p1", permission.TypeNetworkRequest, "127.0.0.1")

	resp1, err := g.Get("p1", srv.URL, nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp1.Status != 200 || resp1.Body != "hello" {
		t.Fatalf("unexpected response: %+v", resp1)
	}

	key := cacheKey("GET", srv.URL, nil)
	if _, ok := g.cache.get(key); !ok {
		t.Fatal("expected successful GET to populate cache")
	}
}

func TestOptionsMethodRejected(t *testing.T) {
	g, perms := newTestGuard(t)
	perms.Grant("p1", permission.TypeNetworkRequest, "*")
	if _, err := g.Do("p1", Request{Method: "OPTIONS", URL: "https://api.example.com/"}); err == nil {
		t.Fatal("expected OPTIONS to be rejected")
	}
}

func TestClampTimeout(t *testing.T) {
	if got := clampTimeout(0); got != defaultTimeout {
		t.Errorf("expected default timeout for 0, got %v", got)
	}
	if got := clampTimeout(10000); got != maxTimeout {
		t.Errorf("expected clamp to max timeout, got %v", got)
	}
}
