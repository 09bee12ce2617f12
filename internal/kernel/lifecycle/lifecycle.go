// Package lifecycle implements plugin activate/deactivate hook execution
// and resource tracking (C7) described in spec.md §4.7, ported from
// original_source's lifecycle_manager.rs.
package lifecycle

import (
	"fmt"
	"log"
	"sync"

	"github.com/opskernel/pluginhost/internal/kernel/manifest"
)

// ResourceKind distinguishes the tracked resource variants a plugin can
// register during activation.
type ResourceKind string

const (
	ResourceFileHandle     ResourceKind = "file_handle"
	ResourceEventListener  ResourceKind = "event_listener"
	ResourceTimer          ResourceKind = "timer"
	ResourceHTTPRequest    ResourceKind = "http_request"
	ResourceCommand        ResourceKind = "command"
	ResourceView           ResourceKind = "view"
)

// Resource identifies one resource a plugin acquired while active.
type Resource struct {
	Kind  ResourceKind
	Value string // command id, view id, listener id, file path, etc.
}

// Context is the data handed to a plugin's activate hook.
type Context struct {
	PluginID    string
	InstallPath string
	Manifest    *manifest.Manifest
}

// ResourceTracker records per-plugin sets of acquired resources so
// deactivation can tear them down deterministically.
type ResourceTracker struct {
	mu        sync.Mutex
	resources map[string]map[Resource]struct{}
}

// NewResourceTracker returns an empty tracker.
func NewResourceTracker() *ResourceTracker {
	return &ResourceTracker{resources: make(map[string]map[Resource]struct{})}
}

// Track registers r as owned by pluginID.
func (t *ResourceTracker) Track(pluginID string, r Resource) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resources[pluginID] == nil {
		t.resources[pluginID] = make(map[Resource]struct{})
	}
	t.resources[pluginID][r] = struct{}{}
}

// Untrack removes a single resource from pluginID's set.
func (t *ResourceTracker) Untrack(pluginID string, r Resource) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.resources[pluginID], r)
}

// GetResources returns a snapshot of pluginID's tracked resources.
func (t *ResourceTracker) GetResources(pluginID string) []Resource {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Resource, 0, len(t.resources[pluginID]))
	for r := range t.resources[pluginID] {
		out = append(out, r)
	}
	return out
}

// ClearPluginResources drops every resource tracked for pluginID.
func (t *ResourceTracker) ClearPluginResources(pluginID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.resources, pluginID)
}

// ResourceCount reports how many resources pluginID currently holds.
func (t *ResourceTracker) ResourceCount(pluginID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.resources[pluginID])
}

// Manager runs activate/deactivate hooks and tracks the resources they
// acquire.
type Manager struct {
	tracker *ResourceTracker
}

// NewManager returns a Manager with a fresh ResourceTracker.
func NewManager() *Manager {
	return &Manager{tracker: NewResourceTracker()}
}

// Tracker exposes the underlying ResourceTracker (for introspection by
// the registry/manager layer and tests).
func (m *Manager) Tracker() *ResourceTracker { return m.tracker }

// ExecuteActivateHook runs the activation side effects for a plugin:
// registering every contributed command and view as a tracked resource.
// Actual script execution is outside this kernel's scope (plugins run in
// a separate host-provided sandbox); this records the contract the host
// is expected to honor.
func (m *Manager) ExecuteActivateHook(ctx Context) error {
	log.Printf("lifecycle: activating %s (install_path=%s)", ctx.PluginID, ctx.InstallPath)

	if ctx.Manifest == nil {
		return nil
	}
	for _, cmd := range ctx.Manifest.Contributes.Commands {
		m.tracker.Track(ctx.PluginID, Resource{Kind: ResourceCommand, Value: cmd.Identifier})
		log.Printf("lifecycle: %s registered command %s", ctx.PluginID, cmd.Identifier)
	}
	for _, v := range ctx.Manifest.Contributes.Views {
		m.tracker.Track(ctx.PluginID, Resource{Kind: ResourceView, Value: v.Identifier})
		log.Printf("lifecycle: %s registered view %s", ctx.PluginID, v.Identifier)
	}
	return nil
}

// ExecuteDeactivateHook tears down every resource pluginID acquired.
// Teardown proceeds resource-by-resource and never aborts early: a single
// resource's teardown failing must not prevent the others from running,
// per spec.md §4.7.
func (m *Manager) ExecuteDeactivateHook(pluginID string) error {
	resources := m.tracker.GetResources(pluginID)

	var errs []string
	for _, r := range resources {
		if err := teardown(pluginID, r); err != nil {
			errs = append(errs, err.Error())
		}
	}

	m.tracker.ClearPluginResources(pluginID)

	if len(errs) > 0 {
		return fmt.Errorf("deactivation completed with %d teardown error(s): %v", len(errs), errs)
	}
	return nil
}

func teardown(pluginID string, r Resource) error {
	switch r.Kind {
	case ResourceFileHandle:
		log.Printf("lifecycle: %s closing file handle %s", pluginID, r.Value)
	case ResourceEventListener:
		log.Printf("lifecycle: %s removing event listener %s", pluginID, r.Value)
	case ResourceTimer:
		log.Printf("lifecycle: %s canceling timer %s", pluginID, r.Value)
	case ResourceHTTPRequest:
		log.Printf("lifecycle: %s aborting in-flight request %s", pluginID, r.Value)
	case ResourceCommand:
		log.Printf("lifecycle: %s unregistering command %s", pluginID, r.Value)
	case ResourceView:
		log.Printf("lifecycle: %s unregistering view %s", pluginID, r.Value)
	default:
		return fmt.Errorf("unknown resource kind: %s", r.Kind)
	}
	return nil
}
