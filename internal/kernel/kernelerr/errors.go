// Package kernelerr defines the distinguishable error taxonomy shared by
// every plugin-kernel component.
package kernelerr

import "fmt"

// Sentinel kinds usable with errors.Is. Parameterized errors below wrap one
// of these so callers can classify failures without string matching.
var (
	ErrNotFound               = &sentinel{"plugin not found"}
	ErrInvalidStateTransition = &sentinel{"invalid state transition"}
	ErrManifest               = &sentinel{"manifest parsing error"}
	ErrManifestValidation     = &sentinel{"manifest validation error"}
	ErrPermissionDenied       = &sentinel{"permission denied"}
	ErrDependency             = &sentinel{"dependency resolution failed"}
	ErrActivation             = &sentinel{"plugin activation failed"}
	ErrFileSystem             = &sentinel{"file system error"}
	ErrZip                    = &sentinel{"zip extraction error"}
	ErrHook                   = &sentinel{"lifecycle hook error"}
	ErrIO                     = &sentinel{"i/o error"}
)

type sentinel struct{ msg string }

func (s *sentinel) Error() string { return s.msg }

// NotFound reports a registry lookup miss for pluginID.
type NotFound struct {
	PluginID string
}

func (e *NotFound) Error() string    { return fmt.Sprintf("plugin not found: %s", e.PluginID) }
func (e *NotFound) Unwrap() error    { return ErrNotFound }

// InvalidStateTransition reports a state machine rejecting a move.
type InvalidStateTransition struct {
	From, To string
}

func (e *InvalidStateTransition) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}
func (e *InvalidStateTransition) Unwrap() error { return ErrInvalidStateTransition }

// Manifest reports a structural/parse failure reading a manifest file.
type Manifest struct {
	Detail string
}

func (e *Manifest) Error() string { return fmt.Sprintf("manifest parsing error: %s", e.Detail) }
func (e *Manifest) Unwrap() error { return ErrManifest }

// ManifestValidation reports a semantic validation failure (§3 rules).
type ManifestValidation struct {
	Detail string
}

func (e *ManifestValidation) Error() string {
	return fmt.Sprintf("manifest validation error: %s", e.Detail)
}
func (e *ManifestValidation) Unwrap() error { return ErrManifestValidation }

// PermissionDenied reports any capability, scope, or rate-limit rejection.
type PermissionDenied struct {
	Detail string
}

func (e *PermissionDenied) Error() string { return fmt.Sprintf("permission denied: %s", e.Detail) }
func (e *PermissionDenied) Unwrap() error { return ErrPermissionDenied }

// Dependency reports a missing or cyclic dependency during resolution.
type Dependency struct {
	Detail string
}

func (e *Dependency) Error() string { return fmt.Sprintf("dependency resolution failed: %s", e.Detail) }
func (e *Dependency) Unwrap() error { return ErrDependency }

// Activation reports a hook or rollback failure during activation.
type Activation struct {
	Detail string
}

func (e *Activation) Error() string { return fmt.Sprintf("plugin activation failed: %s", e.Detail) }
func (e *Activation) Unwrap() error { return ErrActivation }

// FileSystem reports canonicalization, I/O, or glob failures in the guard.
type FileSystem struct {
	Detail string
}

func (e *FileSystem) Error() string { return fmt.Sprintf("file system error: %s", e.Detail) }
func (e *FileSystem) Unwrap() error { return ErrFileSystem }

// Zip reports an archive extraction failure.
type Zip struct {
	Detail string
}

func (e *Zip) Error() string { return fmt.Sprintf("zip extraction error: %s", e.Detail) }
func (e *Zip) Unwrap() error { return ErrZip }

// Hook reports a plugin-provided activate/deactivate failure.
type Hook struct {
	Detail string
}

func (e *Hook) Error() string { return fmt.Sprintf("lifecycle hook error: %s", e.Detail) }
func (e *Hook) Unwrap() error { return ErrHook }

// IO wraps a raw I/O error surfaced from the platform.
type IO struct {
	Cause error
}

func (e *IO) Error() string { return fmt.Sprintf("i/o error: %v", e.Cause) }
func (e *IO) Unwrap() error { return e.Cause }
