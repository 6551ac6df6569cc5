package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
  operator_id: 99
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Backend != BackendFile {
		t.Errorf("backend default = %q", cfg.Storage.Backend)
	}
	if cfg.Storage.Dir != "data" {
		t.Errorf("dir default = %q", cfg.Storage.Dir)
	}
	if cfg.Catalog.Path != "catalog.yaml" {
		t.Errorf("catalog path default = %q", cfg.Catalog.Path)
	}
	if cfg.CoreConfig().Telegram.OperatorID != 99 {
		t.Errorf("operator id = %d", cfg.CoreConfig().Telegram.OperatorID)
	}
}

func TestLoadRequiresOperator(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("missing operator_id accepted")
	}
}

func TestLoadPostgresBackendNeedsHost(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
  operator_id: 99
storage:
  backend: postgres
`)
	if _, err := Load(path); err == nil {
		t.Fatal("postgres backend without database.host accepted")
	}

	path = writeConfig(t, `
telegram:
  token: "123:abc"
  operator_id: 99
storage:
  backend: postgres
database:
  host: localhost
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Backend != BackendPostgres {
		t.Errorf("backend = %q", cfg.Storage.Backend)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
  operator_id: 99
storage:
  backend: s3
`)
	if _, err := Load(path); err == nil {
		t.Fatal("unknown backend accepted")
	}
}
