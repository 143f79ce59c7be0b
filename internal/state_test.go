package internal

import (
	"path/filepath"
	"testing"
)

func TestStateStore_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	s, err := OpenStateStore(path)
	if err != nil {
		t.Fatalf("OpenStateStore() error = %v", err)
	}
	defer func() { _ = s.Close() }()

	if v, err := s.Get("missing"); err != nil || v != "" {
		t.Errorf("Get(missing) = (%q, %v), want empty and nil", v, err)
	}

	if err := s.Set("k", "v1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if v, _ := s.Get("k"); v != "v1" {
		t.Errorf("Get(k) = %q, want v1", v)
	}

	// Overwrite is an upsert, not a constraint violation.
	if err := s.Set("k", "v2"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	if v, _ := s.Get("k"); v != "v2" {
		t.Errorf("Get(k) = %q after overwrite, want v2", v)
	}

	if err := s.Delete("k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if v, _ := s.Get("k"); v != "" {
		t.Errorf("Get(k) = %q after delete, want empty", v)
	}
}

func TestStateStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := OpenStateStore(path)
	if err != nil {
		t.Fatalf("OpenStateStore() error = %v", err)
	}
	if err := s.SetLastProject("p1"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetLastSession("s1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = OpenStateStore(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer func() { _ = s.Close() }()

	if v, _ := s.LastProject(); v != "p1" {
		t.Errorf("LastProject() = %q after reopen, want p1", v)
	}
	if v, _ := s.LastSession(); v != "s1" {
		t.Errorf("LastSession() = %q after reopen, want s1", v)
	}

	if err := s.ClearLastSession(); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.LastSession(); v != "" {
		t.Errorf("LastSession() = %q after clear, want empty", v)
	}
	if v, _ := s.LastProject(); v != "p1" {
		t.Errorf("clearing the session must not touch the project, got %q", v)
	}
}
