// Package manifest implements the plugin manifest schema and validation
// (C3) described in spec.md §4.3: activation-event grammar, contribution
// point identifiers, and semver-style version validation.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/opskernel/pluginhost/internal/kernel/kernelerr"
)

// ActivationEventKind enumerates the recognized event families.
type ActivationEventKind string

const (
	OnCommand         ActivationEventKind = "onCommand"
	OnView            ActivationEventKind = "onView"
	OnStartupFinished ActivationEventKind = "onStartupFinished"
	OnLanguage        ActivationEventKind = "onLanguage"
	OnFileOpen        ActivationEventKind = "onFileOpen"
)

// ActivationEvent is a single parsed "kind:value" activation declaration.
type ActivationEvent struct {
	Kind  ActivationEventKind
	Value string // empty for OnStartupFinished
}

// ParseActivationEvent parses strings like "onCommand:myCommand".
func ParseActivationEvent(s string) (ActivationEvent, error) {
	parts := strings.SplitN(s, ":", 2)
	kind := ActivationEventKind(parts[0])

	switch kind {
	case OnStartupFinished:
		return ActivationEvent{Kind: kind}, nil
	case OnCommand, OnView, OnLanguage, OnFileOpen:
		if len(parts) < 2 || parts[1] == "" {
			return ActivationEvent{}, fmt.Errorf("%s requires a value: %s", kind, s)
		}
		return ActivationEvent{Kind: kind, Value: parts[1]}, nil
	default:
		return ActivationEvent{}, fmt.Errorf("unknown activation event: %s", parts[0])
	}
}

// ViewLocation is where a contributed view is mounted in the host UI.
type ViewLocation string

const (
	ViewSidebar ViewLocation = "sidebar"
	ViewPanel   ViewLocation = "panel"
	ViewEditor  ViewLocation = "editor"
)

// Command is a contributed command contribution point.
type Command struct {
	Identifier  string `json:"identifier"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

func (c Command) validate() error {
	if err := validateContributionIdentifier(c.Identifier); err != nil {
		return fmt.Errorf("command %w", err)
	}
	if c.Title == "" {
		return fmt.Errorf("command title cannot be empty")
	}
	return nil
}

// View is a contributed view contribution point.
type View struct {
	Identifier  string       `json:"identifier"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Location    ViewLocation `json:"location"`
}

func (v View) validate() error {
	if err := validateContributionIdentifier(v.Identifier); err != nil {
		return fmt.Errorf("view %w", err)
	}
	if v.Title == "" {
		return fmt.Errorf("view title cannot be empty")
	}
	return nil
}

// Event is a contributed custom event contribution point.
type Event struct {
	Identifier  string `json:"identifier"`
	Description string `json:"description,omitempty"`
}

func (e Event) validate() error {
	if err := validateContributionIdentifier(e.Identifier); err != nil {
		return fmt.Errorf("event %w", err)
	}
	return nil
}

// Keybinding binds a key chord to a command.
type Keybinding struct {
	Command string `json:"command"`
	Key     string `json:"key"`
	When    string `json:"when,omitempty"`
}

func (k Keybinding) validate() error {
	if k.Command == "" {
		return fmt.Errorf("keybinding command cannot be empty")
	}
	if k.Key == "" {
		return fmt.Errorf("keybinding key cannot be empty")
	}
	return nil
}

// Contributions groups every contribution-point family a manifest may
// declare.
type Contributions struct {
	Commands    []Command    `json:"commands,omitempty"`
	Views       []View       `json:"views,omitempty"`
	Events      []Event      `json:"events,omitempty"`
	Keybindings []Keybinding `json:"keybindings,omitempty"`
}

func (c Contributions) validate() error {
	for _, cmd := range c.Commands {
		if err := cmd.validate(); err != nil {
			return err
		}
	}
	for _, v := range c.Views {
		if err := v.validate(); err != nil {
			return err
		}
	}
	for _, e := range c.Events {
		if err := e.validate(); err != nil {
			return err
		}
	}
	for _, k := range c.Keybindings {
		if err := k.validate(); err != nil {
			return err
		}
	}
	return nil
}

var validPluginTypes = map[string]bool{
	"synchronous":         true,
	"asynchronous":        true,
	"static":              true,
	"service":             true,
	"messagePreprocessor": true,
}

// Manifest is the full plugin manifest schema (spec.md §3).
type Manifest struct {
	ManifestVersion  string            `json:"manifest_version"`
	Name             string            `json:"name"`
	DisplayName      string            `json:"display_name"`
	Version          string            `json:"version"`
	Description      string            `json:"description"`
	Author           string            `json:"author"`
	PluginType       string            `json:"plugin_type,omitempty"`
	Main             string            `json:"main,omitempty"`
	ActivationEvents []string          `json:"activation_events,omitempty"`
	Permissions      []string          `json:"permissions,omitempty"`
	Contributes      Contributions     `json:"contributes,omitempty"`
	Engines          map[string]string `json:"engines,omitempty"`
	Dependencies     map[string]string `json:"dependencies,omitempty"`
}

// applyDefaults fills optional fields with the schema defaults
// (plugin_type="synchronous", main="index.js").
func (m *Manifest) applyDefaults() {
	if m.PluginType == "" {
		m.PluginType = "synchronous"
	}
	if m.Main == "" {
		m.Main = "index.js"
	}
}

// Validate checks every manifest.json rule from spec.md §3/§4.3.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return &kernelerr.ManifestValidation{Detail: "missing required field: name"}
	}
	if m.Version == "" {
		return &kernelerr.ManifestValidation{Detail: "missing required field: version"}
	}
	if m.Description == "" {
		return &kernelerr.ManifestValidation{Detail: "missing required field: description"}
	}
	if m.DisplayName == "" {
		return &kernelerr.ManifestValidation{Detail: "missing required field: display_name"}
	}
	if m.Author == "" {
		return &kernelerr.ManifestValidation{Detail: "missing required field: author"}
	}

	if !isValidVersion(m.ManifestVersion) {
		return &kernelerr.ManifestValidation{Detail: fmt.Sprintf("invalid manifest version format: %s", m.ManifestVersion)}
	}
	if !isValidVersion(m.Version) {
		return &kernelerr.ManifestValidation{Detail: fmt.Sprintf("invalid version format: %s", m.Version)}
	}

	for _, r := range m.Name {
		if !isAlphanumeric(r) && r != '-' && r != '_' {
			return &kernelerr.ManifestValidation{Detail: fmt.Sprintf("invalid plugin name (only alphanumeric, hyphens, underscores allowed): %s", m.Name)}
		}
	}

	if !validPluginTypes[m.PluginType] {
		return &kernelerr.ManifestValidation{Detail: fmt.Sprintf("invalid plugin type: %s", m.PluginType)}
	}

	for _, evt := range m.ActivationEvents {
		if _, err := ParseActivationEvent(evt); err != nil {
			return &kernelerr.ManifestValidation{Detail: err.Error()}
		}
	}

	if err := m.Contributes.validate(); err != nil {
		return &kernelerr.ManifestValidation{Detail: err.Error()}
	}

	for depName, depVersion := range m.Dependencies {
		if !isValidVersionRange(depVersion) {
			return &kernelerr.ManifestValidation{Detail: fmt.Sprintf("invalid dependency version for %s: %s", depName, depVersion)}
		}
	}

	return nil
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// isValidVersion checks the X.Y.Z schema (three dot-separated unsigned
// integer components).
func isValidVersion(v string) bool {
	parts := strings.Split(v, ".")
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

// isValidVersionRange accepts a bare version or one prefixed by any of the
// range operator characters ^ ~ > = <, trimmed as a character class (NOT a
// fixed-token strip) to mirror original_source's
// trim_start_matches(&['^','~','>','=','<']) exactly: ">=1.2.3" and
// "^~1.2.3" both trim down to "1.2.3".
func isValidVersionRange(versionRange string) bool {
	trimmed := strings.TrimLeft(versionRange, "^~>=<")
	return isValidVersion(trimmed)
}

// validateContributionIdentifier enforces the "pluginId.name" shape shared
// by commands/views/events: non-empty, contains at least one '.', and
// restricted to [A-Za-z0-9.-].
func validateContributionIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if !strings.Contains(id, ".") {
		return fmt.Errorf("identifier must follow 'pluginId.name' format: %s", id)
	}
	for _, r := range id {
		if !isAlphanumeric(r) && r != '.' && r != '-' {
			return fmt.Errorf("invalid characters in identifier: %s", id)
		}
	}
	return nil
}

// Parser reads and validates manifest.json files.
type Parser struct{}

// NewParser returns a ready-to-use Parser (stateless, like
// original_source's ManifestParser).
func NewParser() *Parser { return &Parser{} }

// Parse reads and JSON-decodes manifest.json without validating it.
func (p *Parser) Parse(path string) (*Manifest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &kernelerr.Manifest{Detail: fmt.Sprintf("failed to read manifest: %v", err)}
	}

	var m Manifest
	if err := json.Unmarshal(content, &m); err != nil {
		return nil, &kernelerr.Manifest{Detail: fmt.Sprintf("JSON parse error: %v", err)}
	}
	m.applyDefaults()
	return &m, nil
}

// ParseAndValidate parses manifest.json and runs full schema validation.
func (p *Parser) ParseAndValidate(path string) (*Manifest, error) {
	m, err := p.Parse(path)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
