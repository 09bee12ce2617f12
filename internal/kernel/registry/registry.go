// Package registry holds plugin metadata and manifests in memory, backing
// the registry half of C8 (spec.md §4.8), ported from plugin_manager.rs's
// PluginRegistry.
package registry

import (
	"sync"
	"time"

	"github.com/opskernel/pluginhost/internal/kernel"
	"github.com/opskernel/pluginhost/internal/kernel/kernelerr"
	"github.com/opskernel/pluginhost/internal/kernel/manifest"
)

// Metadata is the registry's record for one installed plugin.
type Metadata struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name"`
	Version     string       `json:"version"`
	Description string       `json:"description"`
	Author      string       `json:"author"`
	PluginType  string       `json:"plugin_type"`
	InstallPath string       `json:"install_path"`
	State       kernel.State `json:"state"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Registry is the in-memory source of truth for installed plugins, their
// manifests, and activation order.
type Registry struct {
	mu              sync.RWMutex
	plugins         map[string]*Metadata
	manifests       map[string]*manifest.Manifest
	activationOrder []string
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		plugins:   make(map[string]*Metadata),
		manifests: make(map[string]*manifest.Manifest),
	}
}

// Register adds or replaces a plugin's metadata and manifest.
func (r *Registry) Register(meta Metadata, m *manifest.Manifest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	metaCopy := meta
	r.plugins[meta.ID] = &metaCopy
	r.manifests[meta.ID] = m
}

// GetMetadata returns a copy of pluginID's metadata.
func (r *Registry) GetMetadata(pluginID string) (Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.plugins[pluginID]
	if !ok {
		return Metadata{}, &kernelerr.NotFound{PluginID: pluginID}
	}
	return *m, nil
}

// GetManifest returns pluginID's parsed manifest.
func (r *Registry) GetManifest(pluginID string) (*manifest.Manifest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.manifests[pluginID]
	if !ok {
		return nil, &kernelerr.NotFound{PluginID: pluginID}
	}
	return m, nil
}

// UpdateState transitions pluginID to target, rejecting the move if the
// state machine forbids it.
func (r *Registry) UpdateState(pluginID string, target kernel.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta, ok := r.plugins[pluginID]
	if !ok {
		return &kernelerr.NotFound{PluginID: pluginID}
	}
	if !meta.State.CanTransitionTo(target) {
		return &kernelerr.InvalidStateTransition{From: string(meta.State), To: string(target)}
	}
	meta.State = target
	meta.UpdatedAt = time.Now().UTC()
	return nil
}

// ForceState bypasses the state machine check entirely. It exists solely
// for best-effort rollback after a failed activation (spec.md §4.8,
// ActivateWithRollback), matching plugin_manager.rs's direct field
// mutation in that one path.
func (r *Registry) ForceState(pluginID string, target kernel.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	meta, ok := r.plugins[pluginID]
	if !ok {
		return &kernelerr.NotFound{PluginID: pluginID}
	}
	meta.State = target
	meta.UpdatedAt = time.Now().UTC()
	return nil
}

// Remove deletes pluginID from every registry map and the activation
// order.
func (r *Registry) Remove(pluginID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.plugins, pluginID)
	delete(r.manifests, pluginID)

	kept := r.activationOrder[:0]
	for _, id := range r.activationOrder {
		if id != pluginID {
			kept = append(kept, id)
		}
	}
	r.activationOrder = kept
}

// List returns a snapshot of every registered plugin's metadata.
func (r *Registry) List() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Metadata, 0, len(r.plugins))
	for _, m := range r.plugins {
		out = append(out, *m)
	}
	return out
}

// AddToActivationOrder appends pluginID if it isn't already present.
func (r *Registry) AddToActivationOrder(pluginID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.activationOrder {
		if id == pluginID {
			return
		}
	}
	r.activationOrder = append(r.activationOrder, pluginID)
}

// ActivationOrder returns a snapshot of the recorded activation order.
func (r *Registry) ActivationOrder() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.activationOrder))
	copy(out, r.activationOrder)
	return out
}

// Dependencies returns pluginID's declared dependency plugin IDs.
func (r *Registry) Dependencies(pluginID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.manifests[pluginID]
	if !ok {
		return nil
	}
	deps := make([]string, 0, len(m.Dependencies))
	for dep := range m.Dependencies {
		deps = append(deps, dep)
	}
	return deps
}

// Has reports whether pluginID is registered.
func (r *Registry) Has(pluginID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.plugins[pluginID]
	return ok
}
