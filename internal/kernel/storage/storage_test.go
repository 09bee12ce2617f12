package storage

import "testing"

func TestSetAndGetStringIsJSONEncoded(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Set("p1", "key1", "value1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := s.Get("p1", "key1")
	if !ok {
		t.Fatal("expected key1 to exist")
	}
	if got != `"value1"` {
		t.Fatalf("expected JSON-quoted string, got %q", got)
	}
}

func TestSetNumberAndBool(t *testing.T) {
	s := New(t.TempDir())
	s.Set("p1", "n", "42")
	s.Set("p1", "b", "true")

	if got, _ := s.Get("p1", "n"); got != "42" {
		t.Errorf("expected 42, got %q", got)
	}
	if got, _ := s.Get("p1", "b"); got != "true" {
		t.Errorf("expected true, got %q", got)
	}
}

func TestEmptyKeyRejected(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Set("p1", "", "value"); err == nil {
		t.Fatal("expected empty key to be rejected")
	}
}

func TestPluginIsolation(t *testing.T) {
	s := New(t.TempDir())
	s.Set("p1", "key", "a")
	s.Set("p2", "key", "b")

	v1, _ := s.Get("p1", "key")
	v2, _ := s.Get("p2", "key")
	if v1 == v2 {
		t.Fatal("expected plugin namespaces to be isolated")
	}
}

func TestPersistenceAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	s1 := New(dir)
	s1.Set("p1", "key", "persisted")

	s2 := New(dir)
	got, ok := s2.Get("p1", "key")
	if !ok || got != `"persisted"` {
		t.Fatalf("expected persisted value to survive new Store instance, got %q ok=%v", got, ok)
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	s := New(t.TempDir())
	s.Set("p1", "key", "v")

	existed, err := s.Delete("p1", "key")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !existed {
		t.Fatal("expected key to have existed")
	}

	existed, err = s.Delete("p1", "key")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if existed {
		t.Fatal("expected second delete to report non-existence")
	}
}

func TestClearAndKeysAndSize(t *testing.T) {
	s := New(t.TempDir())
	s.Set("p1", "a", "1")
	s.Set("p1", "b", "2")

	if s.Size("p1") != 2 {
		t.Fatalf("expected size 2, got %d", s.Size("p1"))
	}
	keys := s.Keys("p1")
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}

	if err := s.Clear("p1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if s.Size("p1") != 0 {
		t.Fatal("expected store to be empty after Clear")
	}
}
