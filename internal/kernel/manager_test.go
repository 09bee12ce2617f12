package kernel

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/opskernel/pluginhost/internal/kernel/permission"
)

func writeTestZip(t *testing.T, manifestJSON string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plugin.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("manifest.json")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(manifestJSON)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestManager(t *testing.T, dialog permission.AuthorizationDialog) *Manager {
	t.Helper()
	root := t.TempDir()
	return New(filepath.Join(root, "appdata"), filepath.Join(root, "plugins"), dialog)
}

const minimalManifest = `{
	"manifest_version": "1.0.0",
	"name": "sample-plugin",
	"display_name": "Sample Plugin",
	"version": "1.0.0",
	"description": "a test plugin",
	"author": "tester"
}`

func TestInstallActivateDeactivateUninstall(t *testing.T) {
	m := newTestManager(t, permission.AutoApprove{})

	zipPath := writeTestZip(t, minimalManifest)
	pluginID, err := m.InstallFromZip(zipPath)
	if err != nil {
		t.Fatalf("InstallFromZip: %v", err)
	}
	if pluginID != "sample-plugin" {
		t.Fatalf("expected plugin id derived from manifest name, got %s", pluginID)
	}

	meta, err := m.Registry.GetMetadata(pluginID)
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if meta.State != StateInstalled {
		t.Fatalf("expected Installed after install, got %s", meta.State)
	}

	if err := m.Activate(pluginID); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	meta, _ = m.Registry.GetMetadata(pluginID)
	if meta.State != StateRunning {
		t.Fatalf("expected Running after activate, got %s", meta.State)
	}

	if err := m.Deactivate(pluginID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	meta, _ = m.Registry.GetMetadata(pluginID)
	if meta.State != StateDeactivated {
		t.Fatalf("expected Deactivated, got %s", meta.State)
	}

	if err := m.Uninstall(pluginID); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if m.Registry.Has(pluginID) {
		t.Fatal("expected plugin removed from registry after uninstall")
	}
	if _, statErr := os.Stat(meta.InstallPath); !os.IsNotExist(statErr) {
		t.Fatal("expected install directory removed")
	}
}

func TestActivateWithPermissionDeniedRollsBack(t *testing.T) {
	m := newTestManager(t, permission.AutoDeny{})

	manifestWithPermission := `{
		"manifest_version": "1.0.0",
		"name": "needs-perm",
		"display_name": "Needs Perm",
		"version": "1.0.0",
		"description": "wants network access",
		"author": "tester",
		"permissions": ["network.request:api.example.com"]
	}`
	pluginID, err := m.InstallFromZip(writeTestZip(t, manifestWithPermission))
	if err != nil {
		t.Fatalf("InstallFromZip: %v", err)
	}

	err = m.ActivateWithRollback(pluginID)
	if err == nil {
		t.Fatal("expected activation to fail when authorization is denied")
	}

	meta, _ := m.Registry.GetMetadata(pluginID)
	if meta.State != StateInstalled {
		t.Fatalf("expected rollback to Installed, got %s", meta.State)
	}
}

func TestResolveDependenciesOrdersDepsBeforeDependents(t *testing.T) {
	m := newTestManager(t, permission.AutoApprove{})

	base, err := m.InstallFromZip(writeTestZip(t, minimalManifest))
	if err != nil {
		t.Fatal(err)
	}

	dependent := `{
		"manifest_version": "1.0.0",
		"name": "dependent-plugin",
		"display_name": "Dependent",
		"version": "1.0.0",
		"description": "depends on sample-plugin",
		"author": "tester",
		"dependencies": {"sample-plugin": "^1.0.0"}
	}`
	depID, err := m.InstallFromZip(writeTestZip(t, dependent))
	if err != nil {
		t.Fatal(err)
	}

	order, err := m.ResolveDependencies(depID)
	if err != nil {
		t.Fatalf("ResolveDependencies: %v", err)
	}
	if len(order) != 2 || order[0] != base || order[1] != depID {
		t.Fatalf("expected [%s, %s], got %v", base, depID, order)
	}
}

func TestResolveDependenciesDetectsCycle(t *testing.T) {
	m := newTestManager(t, permission.AutoApprove{})

	aManifest := `{
		"manifest_version": "1.0.0", "name": "plugin-a", "display_name": "A",
		"version": "1.0.0", "description": "a", "author": "t",
		"dependencies": {"plugin-b": "1.0.0"}
	}`
	bManifest := `{
		"manifest_version": "1.0.0", "name": "plugin-b", "display_name": "B",
		"version": "1.0.0", "description": "b", "author": "t",
		"dependencies": {"plugin-a": "1.0.0"}
	}`
	idA, _ := m.InstallFromZip(writeTestZip(t, aManifest))
	m.InstallFromZip(writeTestZip(t, bManifest))

	if _, err := m.ResolveDependencies(idA); err == nil {
		t.Fatal("expected cycle detection error")
	}
}

func TestGrantPermissionDefaultsScopeToWildcard(t *testing.T) {
	m := newTestManager(t, permission.AutoDeny{})
	if err := m.GrantPermission("p1", "storage.read"); err != nil {
		t.Fatalf("GrantPermission: %v", err)
	}
	if !m.Permissions.Has("p1", "storage.read:anything") {
		t.Fatal("expected wildcard-scoped grant to cover any resource")
	}
}
