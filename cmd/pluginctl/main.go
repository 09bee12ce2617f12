// Package main provides CLI tools for plugin manifest management.
// Usage: pluginctl validate <plugin-dir>
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opskernel/pluginhost/internal/kernel/manifest"
)

// Exit codes
const (
	ExitOK              = 0
	ExitValidationError = 1
	ExitUsageError      = 2
	ExitFileError       = 3
)

// Colors for terminal output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// ValidationError represents a single manifest validation failure, reported
// by its JSON path so a plugin author can locate the offending field.
type ValidationError struct {
	Path    string
	Message string
	Value   interface{}
}

func (e *ValidationError) String() string {
	if e.Value != nil {
		return fmt.Sprintf("%s: %s (got: %v)", e.Path, e.Message, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator accumulates manifest validation errors across every field,
// rather than stopping at the first one manifest.Manifest.Validate hits —
// useful for a CLI that wants to report everything wrong in one pass.
type Validator struct {
	errors []ValidationError
}

func (v *Validator) AddError(path, msg string, value interface{}) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: msg, Value: value})
}

func (v *Validator) HasErrors() bool { return len(v.errors) > 0 }

func (v *Validator) Errors() []ValidationError { return v.errors }

// validPermissionTypes mirrors the permission.Type enum in
// internal/kernel/permission: a permission string is "type" or
// "type:scope" where type is one of these.
var validPermissionTypes = map[string]bool{
	"filesystem.read":    true,
	"filesystem.write":   true,
	"network.request":    true,
	"storage.read":       true,
	"storage.write":      true,
	"system.notify":      true,
	"ui.registerCommand": true,
	"ui.registerView":    true,
}

// ValidateManifest runs every manifest.json rule from spec.md §3/§4.3,
// reporting every violation found rather than just the first.
func (v *Validator) ValidateManifest(m *manifest.Manifest) {
	if m.Name == "" {
		v.AddError("name", "is required", nil)
	} else {
		for _, r := range m.Name {
			if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
				v.AddError("name", "must contain only alphanumeric characters, hyphens, and underscores", m.Name)
				break
			}
		}
	}

	if m.Version == "" {
		v.AddError("version", "is required", nil)
	} else if !isValidVersion(m.Version) {
		v.AddError("version", "must be in X.Y.Z format", m.Version)
	}

	if m.ManifestVersion == "" {
		v.AddError("manifest_version", "is required", nil)
	} else if !isValidVersion(m.ManifestVersion) {
		v.AddError("manifest_version", "must be in X.Y.Z format", m.ManifestVersion)
	}

	if m.DisplayName == "" {
		v.AddError("display_name", "is required", nil)
	}

	if m.Description == "" {
		v.AddError("description", "is required", nil)
	}

	if m.Author == "" {
		v.AddError("author", "is required", nil)
	}

	validPluginTypes := map[string]bool{
		"synchronous": true, "asynchronous": true, "static": true,
		"service": true, "messagePreprocessor": true,
	}
	if m.PluginType != "" && !validPluginTypes[m.PluginType] {
		v.AddError("plugin_type", "must be one of: synchronous, asynchronous, static, service, messagePreprocessor", m.PluginType)
	}

	for i, evt := range m.ActivationEvents {
		if _, err := manifest.ParseActivationEvent(evt); err != nil {
			v.AddError(fmt.Sprintf("activation_events[%d]", i), err.Error(), evt)
		}
	}

	for i, perm := range m.Permissions {
		permType := perm
		if idx := strings.IndexByte(perm, ':'); idx >= 0 {
			// Everything after the first colon is the scope
			// (e.g. "filesystem.read:AppData/notes/*").
			permType = perm[:idx]
		}
		if !validPermissionTypes[permType] {
			v.AddError(fmt.Sprintf("permissions[%d]", i), "unrecognized permission type", perm)
		}
	}

	for depName, depVersion := range m.Dependencies {
		if !isValidVersionRange(depVersion) {
			v.AddError(fmt.Sprintf("dependencies[%s]", depName), "must be a valid version or version range", depVersion)
		}
	}

	for i, cmd := range m.Contributes.Commands {
		if err := validateIdentifier(cmd.Identifier); err != nil {
			v.AddError(fmt.Sprintf("contributes.commands[%d].identifier", i), err.Error(), cmd.Identifier)
		}
		if cmd.Title == "" {
			v.AddError(fmt.Sprintf("contributes.commands[%d].title", i), "is required", nil)
		}
	}
	for i, view := range m.Contributes.Views {
		if err := validateIdentifier(view.Identifier); err != nil {
			v.AddError(fmt.Sprintf("contributes.views[%d].identifier", i), err.Error(), view.Identifier)
		}
		if view.Title == "" {
			v.AddError(fmt.Sprintf("contributes.views[%d].title", i), "is required", nil)
		}
		validLocations := map[manifest.ViewLocation]bool{
			manifest.ViewSidebar: true, manifest.ViewPanel: true, manifest.ViewEditor: true,
		}
		if view.Location != "" && !validLocations[view.Location] {
			v.AddError(fmt.Sprintf("contributes.views[%d].location", i), "must be one of: sidebar, panel, editor", view.Location)
		}
	}
	for i, evt := range m.Contributes.Events {
		if err := validateIdentifier(evt.Identifier); err != nil {
			v.AddError(fmt.Sprintf("contributes.events[%d].identifier", i), err.Error(), evt.Identifier)
		}
	}
	for i, kb := range m.Contributes.Keybindings {
		if kb.Command == "" {
			v.AddError(fmt.Sprintf("contributes.keybindings[%d].command", i), "is required", nil)
		}
		if kb.Key == "" {
			v.AddError(fmt.Sprintf("contributes.keybindings[%d].key", i), "is required", nil)
		}
	}
}

func isValidVersion(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		for _, r := range p {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

func isValidVersionRange(s string) bool {
	return isValidVersion(strings.TrimLeft(s, "^~>=<"))
}

func validateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if !strings.Contains(id, ".") {
		return fmt.Errorf("identifier must follow 'pluginId.name' format")
	}
	for _, r := range id {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-'
		if !ok {
			return fmt.Errorf("identifier contains invalid characters")
		}
	}
	return nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(ExitUsageError)
	}

	switch os.Args[1] {
	case "validate":
		if len(os.Args) < 3 {
			fmt.Fprintf(os.Stderr, "%sError: missing plugin directory%s\n", colorRed, colorReset)
			fmt.Fprintf(os.Stderr, "Usage: pluginctl validate <plugin-dir>\n")
			os.Exit(ExitUsageError)
		}
		os.Exit(cmdValidate(os.Args[2]))
	case "show-version":
		if len(os.Args) < 3 {
			fmt.Fprintf(os.Stderr, "Usage: pluginctl show-version <plugin-dir>\n")
			os.Exit(ExitUsageError)
		}
		os.Exit(cmdShowVersion(os.Args[2]))
	case "help", "--help", "-h":
		printUsage()
		os.Exit(ExitOK)
	default:
		fmt.Fprintf(os.Stderr, "%sUnknown command: %s%s\n", colorRed, os.Args[1], colorReset)
		printUsage()
		os.Exit(ExitUsageError)
	}
}

func printUsage() {
	fmt.Println(`pluginctl - plugin host manifest CLI

Usage:
  pluginctl <command> [arguments]

Commands:
  validate <plugin-dir>      Validate a plugin's manifest.json
  show-version <plugin-dir>  Print the plugin's declared version
  help                       Show this help

Examples:
  pluginctl validate plugins/note-sync
  pluginctl show-version plugins/note-sync

Exit codes:
  0  Success
  1  Validation failed
  2  Usage error
  3  File error`)
}

func cmdValidate(pluginDir string) int {
	manifestPath := filepath.Join(pluginDir, "manifest.json")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%sError reading %s: %v%s\n", colorRed, manifestPath, err, colorReset)
		return ExitFileError
	}

	var m manifest.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		fmt.Fprintf(os.Stderr, "%sError parsing manifest.json: %v%s\n", colorRed, err, colorReset)
		return ExitFileError
	}

	fmt.Printf("%s[manifest] %s%s\n", colorCyan, filepath.Base(pluginDir), colorReset)

	validator := &Validator{}
	validator.ValidateManifest(&m)

	if validator.HasErrors() {
		fmt.Printf("\n%sValidation FAILED with %d error(s):%s\n\n", colorRed, len(validator.Errors()), colorReset)
		for i, e := range validator.Errors() {
			fmt.Printf("  %s%d. %s%s\n", colorRed, i+1, e.String(), colorReset)
		}
		fmt.Println()
		return ExitValidationError
	}

	fmt.Printf("\n%s✓ Validation PASSED%s\n", colorGreen, colorReset)
	return ExitOK
}

func cmdShowVersion(pluginDir string) int {
	manifestPath := filepath.Join(pluginDir, "manifest.json")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read-error")
		return ExitFileError
	}

	var m manifest.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		fmt.Fprintln(os.Stderr, "parse-error")
		return ExitFileError
	}
	if m.Version == "" {
		fmt.Fprintln(os.Stderr, "unknown")
		return ExitValidationError
	}
	fmt.Println(m.Version)
	return ExitOK
}
