package internal

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(dir, "does-not-exist.yaml"))
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg.ServerURL != DefaultServerURL {
			t.Errorf("ServerURL = %q, want %q", cfg.ServerURL, DefaultServerURL)
		}
		if cfg.PageSize != DefaultPageSize {
			t.Errorf("PageSize = %d, want %d", cfg.PageSize, DefaultPageSize)
		}
	})

	t.Run("values parsed", func(t *testing.T) {
		path := filepath.Join(dir, "config.yaml")
		content := "server_url: http://example.test:9999\npage_size: 25\nstate_path: /tmp/custom.db\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg.ServerURL != "http://example.test:9999" {
			t.Errorf("ServerURL = %q", cfg.ServerURL)
		}
		if cfg.PageSize != 25 {
			t.Errorf("PageSize = %d, want 25", cfg.PageSize)
		}
		if cfg.StatePath != "/tmp/custom.db" {
			t.Errorf("StatePath = %q", cfg.StatePath)
		}
	})

	t.Run("partial file keeps defaults for the rest", func(t *testing.T) {
		path := filepath.Join(dir, "partial.yaml")
		if err := os.WriteFile(path, []byte("page_size: 5\n"), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg.ServerURL != DefaultServerURL {
			t.Errorf("ServerURL = %q, want default", cfg.ServerURL)
		}
		if cfg.PageSize != 5 {
			t.Errorf("PageSize = %d, want 5", cfg.PageSize)
		}
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		if err := os.WriteFile(path, []byte("server_url: [unclosed\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Error("LoadConfig(malformed) error = nil, want error")
		}
	})
}

func TestConfig_Save(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := &Config{ServerURL: "http://localhost:1234", PageSize: 7}
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() after save error = %v", err)
	}
	if loaded.ServerURL != cfg.ServerURL || loaded.PageSize != cfg.PageSize {
		t.Errorf("roundtrip mismatch: %+v vs %+v", loaded, cfg)
	}
}
