package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseAndValidateMinimal(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `{
		"manifest_version": "1.0.0",
		"name": "my-plugin",
		"display_name": "My Plugin",
		"version": "1.2.3",
		"description": "does things",
		"author": "me"
	}`)

	p := NewParser()
	m, err := p.ParseAndValidate(path)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if m.PluginType != "synchronous" {
		t.Errorf("expected default plugin_type synchronous, got %s", m.PluginType)
	}
	if m.Main != "index.js" {
		t.Errorf("expected default main index.js, got %s", m.Main)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	m := &Manifest{ManifestVersion: "1.0.0", Version: "1.0.0"}
	if err := m.Validate(); err == nil {
		t.Fatal("expected validation error for missing name/description")
	}
}

func TestValidateRejectsBadPluginType(t *testing.T) {
	m := &Manifest{
		ManifestVersion: "1.0.0", Name: "p", DisplayName: "P", Version: "1.0.0",
		Description: "d", Author: "a", PluginType: "bogus",
	}
	if err := m.Validate(); err == nil {
		t.Fatal("expected validation error for invalid plugin_type")
	}
}

func TestParseActivationEvents(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"onCommand:myCommand", false},
		{"onView:sidebar.panel", false},
		{"onStartupFinished", false},
		{"onLanguage:go", false},
		{"onFileOpen:*.go", false},
		{"onCommand", true},
		{"onBogusEvent:x", true},
	}
	for _, c := range cases {
		_, err := ParseActivationEvent(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("ParseActivationEvent(%q) err=%v, wantErr=%v", c.in, err, c.wantErr)
		}
	}
}

func TestContributionIdentifierRules(t *testing.T) {
	valid := Command{Identifier: "myplugin.doThing", Title: "Do Thing"}
	if err := valid.validate(); err != nil {
		t.Errorf("expected valid identifier to pass: %v", err)
	}

	noDot := Command{Identifier: "doThing", Title: "Do Thing"}
	if err := noDot.validate(); err == nil {
		t.Error("expected identifier without '.' to fail")
	}

	badChars := Command{Identifier: "my plugin.do!", Title: "Do Thing"}
	if err := badChars.validate(); err == nil {
		t.Error("expected identifier with invalid characters to fail")
	}
}

func TestVersionRangeCharacterClassTrim(t *testing.T) {
	cases := map[string]bool{
		"1.0.0":   true,
		"^1.0.0":  true,
		"~1.0.0":  true,
		">=1.0.0": true,
		"<=1.0.0": true,
		"^~1.0.0": true, // multiple operator chars trimmed together
		"1.0":     false,
		"abc":     false,
	}
	for in, want := range cases {
		if got := isValidVersionRange(in); got != want {
			t.Errorf("isValidVersionRange(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestValidateRejectsBadDependencyVersion(t *testing.T) {
	m := &Manifest{
		ManifestVersion: "1.0.0", Name: "p", DisplayName: "P", Version: "1.0.0",
		Description: "d", Author: "a", PluginType: "synchronous",
		Dependencies: map[string]string{"other-plugin": "not-a-version"},
	}
	if err := m.Validate(); err == nil {
		t.Fatal("expected validation error for malformed dependency version")
	}
}
