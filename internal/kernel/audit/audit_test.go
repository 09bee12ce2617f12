package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	if err := l.Log("plugin-a", "filesystem.read", "AppData/x", "read", true, ""); err != nil {
		t.Fatalf("Log: %v", err)
	}

	today := time.Now().UTC().Format("2006-01-02")
	path := filepath.Join(dir, today+".jsonl")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected log file at %s: %v", path, err)
	}
	if !strings.Contains(string(data), "plugin-a") {
		t.Fatalf("log file missing plugin id: %s", data)
	}
}

func TestReadFiltersByDateRange(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	l.Log("p1", "storage.read", "k", "read", true, "")

	entries, err := l.Read("", "")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	future := time.Now().UTC().AddDate(1, 0, 0).Format("2006-01-02")
	entries, err = l.Read(future, "")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected 0 entries outside range, got %d", len(entries))
	}
}

func TestReadSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	today := time.Now().UTC().Format("2006-01-02")
	if err := os.WriteFile(filepath.Join(dir, today+".jsonl"), []byte("not json\n{\"plugin_id\":\"p\",\"timestamp\":\"2020-01-01T00:00:00Z\"}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := New(dir)
	entries, err := l.Read("", "")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(entries) != 1 || entries[0].PluginID != "p" {
		t.Fatalf("expected one valid entry, got %+v", entries)
	}
}

func TestExportCSVHeaderAndRow(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)
	l.Log("p1", "network.request", "https://x", "GET request", false, "Rate limit exceeded")

	out := filepath.Join(dir, "out.csv")
	if err := l.ExportCSV(out); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines", len(lines))
	}
	if lines[0] != "Timestamp,Plugin ID,Permission Type,Resource,Action,Result,Error Message" {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "Rate limit exceeded") || !strings.Contains(lines[1], "false") {
		t.Fatalf("unexpected row: %s", lines[1])
	}
}

func TestRotationRemovesOldFiles(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "2000-01-01.jsonl")
	if err := os.WriteFile(old, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := New(dir)
	l.Log("p", "storage.read", "k", "read", true, "")

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old log file to be rotated away, stat err=%v", err)
	}
}
