package permission

import (
	"testing"

	"github.com/opskernel/pluginhost/internal/kernel/audit"
)

func newTestStore(t *testing.T, dialog AuthorizationDialog) *Store {
	t.Helper()
	dir := t.TempDir()
	return New(dir, dialog, audit.New(dir))
}

func TestGrantAndHas(t *testing.T) {
	s := newTestStore(t, AutoDeny{})
	if err := s.Grant("p1", TypeStorageRead, "*"); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if !s.Has("p1", "storage.read:anything") {
		t.Fatal("expected storage.read to be granted")
	}
	if s.Has("p1", "storage.write:anything") {
		t.Fatal("did not expect storage.write to be granted")
	}
}

func TestRequestAutoApprove(t *testing.T) {
	s := newTestStore(t, AutoApprove{})
	if err := s.Request("p1", "network.request:api.example.com"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !s.ValidateNetwork("p1", "api.example.com") {
		t.Fatal("expected network permission to be granted")
	}
}

func TestRequestAutoDeny(t *testing.T) {
	s := newTestStore(t, AutoDeny{})
	err := s.Request("p1", "network.request:api.example.com")
	if err == nil {
		t.Fatal("expected denial error")
	}
}

func TestMatchesScopeFilesystem(t *testing.T) {
	cases := []struct {
		requested, scope string
		want             bool
	}{
		{"notes/a.txt", "notes/*", true},
		{"other/a.txt", "notes/*", false},
		{"notes/a.txt", "notes/a.txt", true},
		{"anything", "*", true},
	}
	for _, c := range cases {
		if got := MatchesScope(c.requested, c.scope); got != c.want {
			t.Errorf("MatchesScope(%q,%q) = %v, want %v", c.requested, c.scope, got, c.want)
		}
	}
}

func TestMatchesDomainDotBoundary(t *testing.T) {
	cases := []struct {
		host, scope string
		want        bool
	}{
		{"api.example.com", "*.example.com", true},
		{"example.com", "*.example.com", true}, // the base domain itself matches
		{"notexample.com", "*.example.com", false}, // no dot boundary, must reject
		{"api.example.com", "api.example.com", true},
	}
	for _, c := range cases {
		if got := MatchesDomain(c.host, c.scope); got != c.want {
			t.Errorf("MatchesDomain(%q,%q) = %v, want %v", c.host, c.scope, got, c.want)
		}
	}
}

func TestValidateFilesystemScope(t *testing.T) {
	s := newTestStore(t, AutoDeny{})
	if err := s.Grant("p1", TypeFilesystemRead, "AppData/notes/*"); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if !s.ValidateFilesystem("p1", "AppData/notes/a.txt", false) {
		t.Fatal("expected read permission on notes/a.txt")
	}
	if s.ValidateFilesystem("p1", "AppData/other/a.txt", false) {
		t.Fatal("did not expect read permission outside scope")
	}
	if s.ValidateFilesystem("p1", "AppData/notes/a.txt", true) {
		t.Fatal("did not expect write permission when only read was granted")
	}
}

func TestGrantRejectsFilesystemScopeOutsideAppData(t *testing.T) {
	s := newTestStore(t, AutoDeny{})
	if err := s.Grant("p1", TypeFilesystemWrite, "etc/passwd"); err == nil {
		t.Fatal("expected filesystem scope lacking AppData/ prefix to be rejected")
	}
	if err := s.Grant("p1", TypeFilesystemRead, "*"); err != nil {
		t.Fatalf("expected wildcard filesystem scope to be accepted: %v", err)
	}
}

func TestGrantRejectsMalformedNetworkScope(t *testing.T) {
	s := newTestStore(t, AutoDeny{})
	cases := []struct {
		scope   string
		wantErr bool
	}{
		{"api.example.com", false},
		{"*.example.com", false},
		{"*", false},
		{"localhost", true},           // no dot
		{"api.*.com", true},           // embedded wildcard
		{"has space.com", true},       // space
		{"*.nodot", true},             // wildcard base has no dot
	}
	for _, c := range cases {
		err := s.Grant("p1", TypeNetworkRequest, c.scope)
		if c.wantErr && err == nil {
			t.Errorf("Grant(%q) expected error, got nil", c.scope)
		}
		if !c.wantErr && err != nil {
			t.Errorf("Grant(%q) unexpected error: %v", c.scope, err)
		}
	}
}

func TestRevokeAll(t *testing.T) {
	s := newTestStore(t, AutoDeny{})
	s.Grant("p1", TypeStorageRead, "*")
	if err := s.RevokeAll("p1"); err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	if s.Has("p1", "storage.read:anything") {
		t.Fatal("expected all permissions revoked")
	}
}

func TestRateLimitSaturatesAtCapacity(t *testing.T) {
	s := newTestStore(t, AutoDeny{})
	allowed := 0
	for i := 0; i < 150; i++ {
		if s.CheckRateLimit("p1") {
			allowed++
		}
	}
	if allowed != defaultRateCapacity {
		t.Fatalf("expected exactly %d allowed out of 150 immediate requests, got %d", defaultRateCapacity, allowed)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s1 := New(dir, AutoDeny{}, audit.New(dir))
	if err := s1.Grant("p1", TypeStorageWrite, "*"); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	s2 := New(dir, AutoDeny{}, audit.New(dir))
	if !s2.Has("p1", "storage.write:anything") {
		t.Fatal("expected permission to persist across Store instances")
	}
}
