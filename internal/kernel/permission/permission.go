// Package permission implements the typed capability store (C2) described
// in spec.md §4.2: persisted grants, resource-scope matching, the
// injectable authorization dialog, and the per-plugin rate limiter.
package permission

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/opskernel/pluginhost/internal/kernel/audit"
	"github.com/opskernel/pluginhost/internal/kernel/kernelerr"
)

// Type enumerates the permission types recognized by the kernel.
type Type string

const (
	TypeFilesystemRead  Type = "filesystem.read"
	TypeFilesystemWrite Type = "filesystem.write"
	TypeNetworkRequest  Type = "network.request"
	TypeStorageRead     Type = "storage.read"
	TypeStorageWrite    Type = "storage.write"
	TypeSystemNotify    Type = "system.notify"
	TypeUIRegisterCmd   Type = "ui.registerCommand"
	TypeUIRegisterView  Type = "ui.registerView"
)

var validTypes = map[Type]bool{
	TypeFilesystemRead:  true,
	TypeFilesystemWrite: true,
	TypeNetworkRequest:  true,
	TypeStorageRead:     true,
	TypeStorageWrite:    true,
	TypeSystemNotify:    true,
	TypeUIRegisterCmd:   true,
	TypeUIRegisterView:  true,
}

// GrantedBy records whether a grant came from an explicit call or from the
// auto-approve authorization path (SPEC_FULL supplemented feature #3).
type GrantedBy string

const (
	GrantedByUser GrantedBy = "user"
	GrantedByAuto GrantedBy = "auto"
)

// Record is one persisted permission grant (spec.md §3).
type Record struct {
	PluginID       string    `json:"plugin_id"`
	PermissionType Type      `json:"permission_type"`
	ResourceScope  string    `json:"resource_scope"`
	Granted        bool      `json:"granted"`
	GrantedAt      time.Time `json:"granted_at,omitempty"`
	GrantedBy      GrantedBy `json:"granted_by,omitempty"`
}

// AuthorizationDialog is the injectable "ask the user" collaborator from
// spec.md §4.2/§6. The host application implements it; tests substitute
// auto-approve or auto-deny policies.
type AuthorizationDialog interface {
	Ask(pluginID string, rec Record) bool
}

// AutoApprove grants every request without prompting (dev/test builds).
type AutoApprove struct{}

func (AutoApprove) Ask(string, Record) bool { return true }

// AutoDeny denies every unapproved request (production default per spec.md
// §4.2: "the production configuration sets auto_approve=false").
type AutoDeny struct{}

func (AutoDeny) Ask(string, Record) bool { return false }

type persistedFile struct {
	Version     int                 `json:"version"`
	UpdatedAt   time.Time           `json:"updated_at"`
	Permissions map[string][]Record `json:"permissions"`
}

// Store is the permission store. It is safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	statePath   string
	permissions map[string][]Record
	loaded      bool

	rateMu       sync.Mutex
	rateLimiters map[string]*rate.Limiter

	dialog AuthorizationDialog
	audit  *audit.Logger
}

const (
	defaultRateCapacity = 100
	defaultRateWindow   = time.Minute
)

// New returns a Store persisting to <appDataDir>/plugin-permissions.json.
func New(appDataDir string, dialog AuthorizationDialog, auditLog *audit.Logger) *Store {
	if dialog == nil {
		dialog = AutoDeny{}
	}
	return &Store{
		statePath:    filepath.Join(appDataDir, "plugin-permissions.json"),
		permissions:  make(map[string][]Record),
		rateLimiters: make(map[string]*rate.Limiter),
		dialog:       dialog,
		audit:        auditLog,
	}
}

func (s *Store) ensureLoadedLocked() {
	if s.loaded {
		return
	}
	s.loaded = true

	data, err := os.ReadFile(s.statePath)
	if err != nil {
		return // no file yet; start empty
	}
	var pf persistedFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return
	}
	if pf.Permissions != nil {
		s.permissions = pf.Permissions
	}
}

func (s *Store) saveLocked() error {
	pf := persistedFile{Version: 1, UpdatedAt: time.Now().UTC(), Permissions: s.permissions}
	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.statePath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.statePath, data, 0o644)
}

// Has performs a pure scope-matching check with no side effects.
func (s *Store) Has(pluginID string, permissionString string) bool {
	permType, scope, err := parsePermissionString(permissionString)
	if err != nil {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	s.ensureLoadedLockedForRead()

	for _, rec := range s.permissions[pluginID] {
		if rec.PermissionType != permType || !rec.Granted {
			continue
		}
		if rec.ResourceScope == "*" || MatchesScope(scope, rec.ResourceScope) {
			return true
		}
	}
	return false
}

// ensureLoadedLockedForRead loads lazily under the write lock, upgrading
// briefly from the caller's read lock when needed. Kept simple: the first
// caller to touch the store pays a short write-lock hop.
func (s *Store) ensureLoadedLockedForRead() {
	if s.loaded {
		return
	}
	s.mu.RUnlock()
	s.mu.Lock()
	s.ensureLoadedLocked()
	s.mu.Unlock()
	s.mu.RLock()
}

// Request parses "type[:scope]", validates the scope, asks the
// authorization dialog, and grants on approval.
func (s *Store) Request(pluginID, permissionString string) error {
	permType, scope, err := parsePermissionString(permissionString)
	if err != nil {
		s.logDenied(pluginID, string(permType), scope, "request", err.Error())
		return &kernelerr.PermissionDenied{Detail: err.Error()}
	}
	if err := validateScope(permType, scope); err != nil {
		s.logDenied(pluginID, string(permType), scope, "request", err.Error())
		return &kernelerr.PermissionDenied{Detail: err.Error()}
	}

	rec := Record{PluginID: pluginID, PermissionType: permType, ResourceScope: scope}
	if !s.dialog.Ask(pluginID, rec) {
		s.logDenied(pluginID, string(permType), scope, "request", "authorization denied")
		return &kernelerr.PermissionDenied{Detail: "authorization denied"}
	}

	if err := s.grant(pluginID, permType, scope, GrantedByAuto); err != nil {
		return err
	}
	s.logOK(pluginID, string(permType), scope, "request")
	return nil
}

// Grant unconditionally grants a permission (used by tests and explicit
// policy). It still validates the scope.
func (s *Store) Grant(pluginID string, permType Type, scope string) error {
	if err := validateScope(permType, scope); err != nil {
		s.logDenied(pluginID, string(permType), scope, "grant", err.Error())
		return &kernelerr.PermissionDenied{Detail: err.Error()}
	}
	if err := s.grant(pluginID, permType, scope, GrantedByUser); err != nil {
		return err
	}
	s.logOK(pluginID, string(permType), scope, "grant")
	return nil
}

func (s *Store) grant(pluginID string, permType Type, scope string, by GrantedBy) error {
	s.mu.Lock()
	s.ensureLoadedLocked()
	s.permissions[pluginID] = append(s.permissions[pluginID], Record{
		PluginID:       pluginID,
		PermissionType: permType,
		ResourceScope:  scope,
		Granted:        true,
		GrantedAt:      time.Now().UTC(),
		GrantedBy:      by,
	})
	err := s.saveLocked()
	s.mu.Unlock()
	return err
}

// Revoke removes every record of permType for pluginID.
func (s *Store) Revoke(pluginID string, permType Type) error {
	s.mu.Lock()
	s.ensureLoadedLocked()
	recs := s.permissions[pluginID]
	kept := recs[:0]
	for _, r := range recs {
		if r.PermissionType != permType {
			kept = append(kept, r)
		}
	}
	s.permissions[pluginID] = kept
	err := s.saveLocked()
	s.mu.Unlock()

	s.logOK(pluginID, string(permType), "", "revoke")
	return err
}

// RevokeAll removes every permission and rate limiter for pluginID
// (used on uninstall, per spec.md §4.8).
func (s *Store) RevokeAll(pluginID string) error {
	s.mu.Lock()
	s.ensureLoadedLocked()
	delete(s.permissions, pluginID)
	err := s.saveLocked()
	s.mu.Unlock()

	s.rateMu.Lock()
	delete(s.rateLimiters, pluginID)
	s.rateMu.Unlock()

	s.logOK(pluginID, "", "*", "revoke_all")
	return err
}

// ValidateFilesystem checks whether pluginID holds a filesystem permission
// whose scope matches relPath (AppData-relative, "/"-normalized).
func (s *Store) ValidateFilesystem(pluginID, relPath string, write bool) bool {
	permType := TypeFilesystemRead
	if write {
		permType = TypeFilesystemWrite
	}
	normalized := strings.ReplaceAll(relPath, "\\", "/")
	normalized = strings.TrimPrefix(normalized, "AppData/")

	s.mu.RLock()
	defer s.mu.RUnlock()
	s.ensureLoadedLockedForRead()

	for _, rec := range s.permissions[pluginID] {
		if rec.PermissionType != permType || !rec.Granted {
			continue
		}
		if rec.ResourceScope == "*" {
			return true
		}
		scope := strings.TrimPrefix(rec.ResourceScope, "AppData/")
		if MatchesScope(normalized, scope) {
			return true
		}
	}
	return false
}

// ValidateNetwork checks whether pluginID holds a network.request
// permission whose scope matches host.
func (s *Store) ValidateNetwork(pluginID, host string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.ensureLoadedLockedForRead()

	for _, rec := range s.permissions[pluginID] {
		if rec.PermissionType != TypeNetworkRequest || !rec.Granted {
			continue
		}
		if rec.ResourceScope == "*" || MatchesDomain(host, rec.ResourceScope) {
			return true
		}
	}
	return false
}

// CheckRateLimit consumes one token from pluginID's bucket (capacity 100,
// refill 100/minute). Backed by golang.org/x/time/rate the same way the
// teacher's internal/auth login limiter keys one *rate.Limiter per
// identity, lazily created on first use.
func (s *Store) CheckRateLimit(pluginID string) bool {
	s.rateMu.Lock()
	lim, ok := s.rateLimiters[pluginID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(defaultRateCapacity)/defaultRateWindow.Seconds()), defaultRateCapacity)
		s.rateLimiters[pluginID] = lim
	}
	s.rateMu.Unlock()

	allowed := lim.Allow()
	if !allowed {
		s.logDenied(pluginID, "", "rate_limit", "check_rate_limit", "Rate limit exceeded")
	}
	return allowed
}

func (s *Store) logOK(pluginID, permType, resource, action string) {
	if s.audit != nil {
		_ = s.audit.Log(pluginID, permType, resource, action, true, "")
	}
}

func (s *Store) logDenied(pluginID, permType, resource, action, reason string) {
	if s.audit != nil {
		_ = s.audit.Log(pluginID, permType, resource, action, false, reason)
	}
}

func parsePermissionString(s string) (Type, string, error) {
	parts := strings.SplitN(s, ":", 2)
	permType := Type(parts[0])
	if !validTypes[permType] {
		return "", "", fmt.Errorf("unknown permission type: %s", parts[0])
	}
	scope := "*"
	if len(parts) > 1 {
		scope = parts[1]
	}
	return permType, scope, nil
}
