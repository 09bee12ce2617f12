// Package kernel composes the permission, manifest, filesystem, network,
// storage, lifecycle, and registry components into the top-level plugin
// manager (C8) described in spec.md §4.8, ported from plugin_manager.rs's
// PluginManager.
package kernel

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/opskernel/pluginhost/internal/kernel/audit"
	"github.com/opskernel/pluginhost/internal/kernel/fsguard"
	"github.com/opskernel/pluginhost/internal/kernel/kernelerr"
	"github.com/opskernel/pluginhost/internal/kernel/lifecycle"
	"github.com/opskernel/pluginhost/internal/kernel/manifest"
	"github.com/opskernel/pluginhost/internal/kernel/netguard"
	"github.com/opskernel/pluginhost/internal/kernel/permission"
	"github.com/opskernel/pluginhost/internal/kernel/registry"
	"github.com/opskernel/pluginhost/internal/kernel/storage"
)

// Manager is the top-level plugin kernel: install, activate, deactivate,
// uninstall, and dependency resolution, all funneled through a single
// per-plugin lock so concurrent lifecycle calls against the same plugin
// serialize cleanly.
type Manager struct {
	Audit       *audit.Logger
	Permissions *permission.Store
	Registry    *registry.Registry
	Lifecycle   *lifecycle.Manager
	FSGuard     *fsguard.Guard
	NetGuard    *netguard.Guard
	Storage     *storage.Store

	manifestParser *manifest.Parser
	pluginsDir     string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New wires every kernel component rooted at appDataDir, with
// pluginsDir holding extracted plugin installs.
func New(appDataDir, pluginsDir string, dialog permission.AuthorizationDialog) *Manager {
	auditLog := audit.New(filepath.Join(appDataDir, "audit-logs"))
	perms := permission.New(appDataDir, dialog, auditLog)

	return &Manager{
		Audit:          auditLog,
		Permissions:    perms,
		Registry:       registry.New(),
		Lifecycle:      lifecycle.NewManager(),
		FSGuard:        fsguard.New(appDataDir, perms, auditLog),
		NetGuard:       netguard.New(perms, auditLog),
		Storage:        storage.New(filepath.Join(appDataDir, "plugin-storage")),
		manifestParser: manifest.NewParser(),
		pluginsDir:     pluginsDir,
		locks:          make(map[string]*sync.Mutex),
	}
}

func (m *Manager) lockFor(pluginID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[pluginID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[pluginID] = l
	}
	return l
}

// InstallFromZip extracts a plugin archive, validates its manifest, and
// registers it in the Installed state.
func (m *Manager) InstallFromZip(zipPath string) (string, error) {
	tempDir, err := os.MkdirTemp("", "plugin-install-*")
	if err != nil {
		return "", &kernelerr.Zip{Detail: err.Error()}
	}
	defer os.RemoveAll(tempDir)

	if err := extractZip(zipPath, tempDir); err != nil {
		return "", &kernelerr.Zip{Detail: err.Error()}
	}

	manifestPath := filepath.Join(tempDir, "manifest.json")
	mf, err := m.manifestParser.ParseAndValidate(manifestPath)
	if err != nil {
		return "", err
	}

	pluginID := mf.Name
	lock := m.lockFor(pluginID)
	lock.Lock()
	defer lock.Unlock()

	installPath := filepath.Join(m.pluginsDir, pluginID)
	os.RemoveAll(installPath)
	if err := os.MkdirAll(m.pluginsDir, 0o755); err != nil {
		return "", &kernelerr.FileSystem{Detail: err.Error()}
	}
	if err := os.Rename(tempDir, installPath); err != nil {
		return "", &kernelerr.FileSystem{Detail: fmt.Sprintf("failed to install plugin: %v", err)}
	}

	now := time.Now().UTC()
	m.Registry.Register(registry.Metadata{
		ID:          pluginID,
		Name:        mf.Name,
		DisplayName: mf.DisplayName,
		Version:     mf.Version,
		Description: mf.Description,
		Author:      mf.Author,
		PluginType:  mf.PluginType,
		InstallPath: installPath,
		State:       StateInstalled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, mf)

	return pluginID, nil
}

func extractZip(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		targetPath := filepath.Join(destDir, f.Name)
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(targetPath, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return err
		}

		src, err := f.Open()
		if err != nil {
			return err
		}
		dst, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
		if err != nil {
			src.Close()
			return err
		}
		_, copyErr := io.Copy(dst, src)
		src.Close()
		dst.Close()
		if copyErr != nil {
			return copyErr
		}
	}
	return nil
}

// ResolveDependencies returns a dependencies-before-dependents activation
// order for one or more root plugin IDs via depth-first search, detecting
// cycles. This one variadic function serves both single-root and
// multi-root callers — plugin_manager.rs had two near-duplicate
// implementations (resolve_dependencies / resolve_plugin_dependencies);
// unifying them here removes that duplication without changing either
// caller's observable behavior.
func (m *Manager) ResolveDependencies(roots ...string) ([]string, error) {
	visited := make(map[string]bool)
	tempMark := make(map[string]bool)
	var order []string

	var visit func(id string) error
	visit = func(id string) error {
		if visited[id] {
			return nil
		}
		if tempMark[id] {
			return &kernelerr.Dependency{Detail: fmt.Sprintf("circular dependency detected involving plugin: %s", id)}
		}
		tempMark[id] = true

		for _, dep := range m.Registry.Dependencies(id) {
			if err := visit(dep); err != nil {
				return err
			}
		}

		tempMark[id] = false
		visited[id] = true
		order = append(order, id)
		return nil
	}

	for _, root := range roots {
		if err := visit(root); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Activate requests every declared permission (before any state change,
// so a denial leaves no side effects), transitions the plugin through
// Loaded/Activated/Running, and runs the activate hook.
func (m *Manager) Activate(pluginID string) error {
	lock := m.lockFor(pluginID)
	lock.Lock()
	defer lock.Unlock()

	mf, err := m.Registry.GetManifest(pluginID)
	if err != nil {
		return err
	}
	meta, err := m.Registry.GetMetadata(pluginID)
	if err != nil {
		return err
	}

	for _, permString := range mf.Permissions {
		if m.Permissions.Has(pluginID, permString) {
			continue
		}
		if err := m.Permissions.Request(pluginID, permString); err != nil {
			return &kernelerr.Activation{Detail: fmt.Sprintf("permission request failed: %v", err)}
		}
	}

	if meta.State != StateDeactivated {
		if err := m.Registry.UpdateState(pluginID, StateLoaded); err != nil {
			return err
		}
	}
	if err := m.Registry.UpdateState(pluginID, StateActivated); err != nil {
		return err
	}

	hookErr := m.Lifecycle.ExecuteActivateHook(lifecycle.Context{
		PluginID:    pluginID,
		InstallPath: meta.InstallPath,
		Manifest:    mf,
	})
	if hookErr != nil {
		return &kernelerr.Hook{Detail: hookErr.Error()}
	}

	if err := m.Registry.UpdateState(pluginID, StateRunning); err != nil {
		return err
	}
	m.Registry.AddToActivationOrder(pluginID)
	return nil
}

// ActivateWithRollback calls Activate and, on failure, best-effort
// deactivates and force-resets the plugin to Installed so a half-started
// plugin never lingers in an ambiguous state.
func (m *Manager) ActivateWithRollback(pluginID string) error {
	if err := m.Activate(pluginID); err != nil {
		_ = m.Deactivate(pluginID) // best-effort; original failure takes priority
		_ = m.Registry.ForceState(pluginID, StateInstalled)
		return err
	}
	return nil
}

// Deactivate transitions Running->Deactivated first, then runs the
// deactivate hook — state change precedes teardown, the opposite order
// from Activate, matching plugin_manager.rs exactly.
func (m *Manager) Deactivate(pluginID string) error {
	lock := m.lockFor(pluginID)
	lock.Lock()
	defer lock.Unlock()

	if err := m.Registry.UpdateState(pluginID, StateDeactivated); err != nil {
		return err
	}
	if err := m.Lifecycle.ExecuteDeactivateHook(pluginID); err != nil {
		return &kernelerr.Hook{Detail: err.Error()}
	}
	return nil
}

// Uninstall deactivates (if running), removes the plugin from the
// registry and disk, and revokes every permission it held.
func (m *Manager) Uninstall(pluginID string) error {
	meta, err := m.Registry.GetMetadata(pluginID)
	if err != nil {
		return err
	}

	if meta.State == StateRunning {
		if err := m.Deactivate(pluginID); err != nil {
			return err
		}
	}

	lock := m.lockFor(pluginID)
	lock.Lock()
	m.Registry.Remove(pluginID)
	lock.Unlock()

	if meta.InstallPath != "" {
		if _, statErr := os.Stat(meta.InstallPath); statErr == nil {
			if err := os.RemoveAll(meta.InstallPath); err != nil {
				return &kernelerr.FileSystem{Detail: err.Error()}
			}
		}
	}

	return m.Permissions.RevokeAll(pluginID)
}

// GrantPermission parses "type:scope" (scope defaulting to "*") and grants
// it unconditionally, bypassing the authorization dialog — used by admin
// tooling and tests.
func (m *Manager) GrantPermission(pluginID, permissionString string) error {
	parts := splitOnce(permissionString, ':')
	permType := permission.Type(parts[0])
	scope := "*"
	if len(parts) > 1 {
		scope = parts[1]
	}
	return m.Permissions.Grant(pluginID, permType, scope)
}

func splitOnce(s string, sep byte) []string {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return []string{s[:i], s[i+1:]}
		}
	}
	return []string{s}
}
